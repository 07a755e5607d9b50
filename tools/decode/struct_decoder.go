package decode

import (
	"encoding/json"
	"reflect"

	"ChatHub/tools/errs"

	"github.com/mitchellh/mapstructure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Options 解码行为
type Options struct {
	// "123" -> int、"true" -> bool 等宽松转换，默认关闭
	WeaklyTypedInput bool
	// 目标结构体里没有的字段是否报错
	ErrorUnused bool
}

func WithWeaklyTypedInput(v bool) Options {
	return Options{WeaklyTypedInput: v}
}

// ParseStructJSON 把 JSON 对象解析为 *structpb.Struct；空输入/null 得到空 Struct
func ParseStructJSON(raw []byte) (*structpb.Struct, error) {
	st := &structpb.Struct{}
	if len(raw) == 0 || string(raw) == "null" {
		return st, nil
	}
	um := protojson.UnmarshalOptions{DiscardUnknown: true}
	if err := um.Unmarshal(raw, st); err != nil {
		return nil, errs.WrapMsg(err, "payload is not a json object")
	}
	return st, nil
}

// DecodeStruct 按 `json` tag 把 Struct 解码到 T
func DecodeStruct[T any](st *structpb.Struct, opts ...Options) (*T, error) {
	if st == nil {
		return nil, errs.New("struct is nil")
	}
	var cfg Options
	if len(opts) > 0 {
		cfg = opts[0]
	}

	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &out,
		WeaklyTypedInput: cfg.WeaklyTypedInput,
		ErrorUnused:      cfg.ErrorUnused,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			floatToIntHook(),
			objectToJSONStringHook(),
		),
	})
	if err != nil {
		return nil, errs.Wrap(err)
	}
	if err := dec.Decode(st.AsMap()); err != nil {
		return nil, errs.WrapMsg(err, "decode payload")
	}
	return &out, nil
}

// DecodeJSON = ParseStructJSON + DecodeStruct
func DecodeJSON[T any](raw []byte, opts ...Options) (*T, error) {
	st, err := ParseStructJSON(raw)
	if err != nil {
		return nil, err
	}
	return DecodeStruct[T](st, opts...)
}

// JSON 数字一律是 float64，整型字段截断取整
func floatToIntHook() mapstructure.DecodeHookFuncKind {
	return func(from, to reflect.Kind, data any) (any, error) {
		if from != reflect.Float64 {
			return data, nil
		}
		f := data.(float64)
		switch to {
		case reflect.Int:
			return int(f), nil
		case reflect.Int32:
			return int32(f), nil
		case reflect.Int64:
			return int64(f), nil
		}
		return data, nil
	}
}

// 字符串字段收到对象/数组时按原样转回 JSON 文本（extends、at 这类透传字段）
func objectToJSONStringHook() mapstructure.DecodeHookFuncKind {
	return func(from, to reflect.Kind, data any) (any, error) {
		if to != reflect.String || (from != reflect.Map && from != reflect.Slice) {
			return data, nil
		}
		b, err := json.Marshal(data)
		if err != nil {
			return nil, errs.Wrap(err)
		}
		return string(b), nil
	}
}
