package chat

import (
	"encoding/json"

	"ChatHub/module/chat/model"
	"ChatHub/tools/decode"
	"ChatHub/tools/errs"
)

type FrameType string

const (
	FrameInit    FrameType = "init"
	FramePing    FrameType = "ping"
	FramePong    FrameType = "pong"
	FrameBindUID FrameType = "bindUid"
	FrameMessage FrameType = "message"
)

// Envelope 线上的 JSON 帧 {"type": "...", "data": {...}}
type Envelope struct {
	Type FrameType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Frame 解码后的帧，只有下面几种
type Frame interface {
	Type() FrameType
}

// InitFrame server→client，连接建立后下发一次
type InitFrame struct {
	ClientID string `json:"client_id"`
}

type PingFrame struct{}

// PongFrame 心跳回复；bindUid 的确认也复用 pong 并带 multiport
type PongFrame struct {
	Multiport *bool `json:"multiport,omitempty"`
}

type BindUIDFrame struct {
	Token string `json:"token"`
}

// MessageFrame client→server 的聊天消息
type MessageFrame struct {
	FromUser string  `json:"from_user"`
	ToUser   string  `json:"to_user"`
	Content  string  `json:"content"`
	MsgType  string  `json:"type"`
	IsGroup  bool    `json:"is_group"`
	FileID   *string `json:"file_id"`
	Extends  *string `json:"extends"`
	At       *string `json:"at"`
}

// DeliverFrame server→client，data 为已落库的消息
type DeliverFrame struct {
	Message *model.ChatMessage
}

// UnknownFrame 无法识别的 type，分发时忽略
type UnknownFrame struct {
	Raw FrameType
}

func (InitFrame) Type() FrameType    { return FrameInit }
func (PingFrame) Type() FrameType    { return FramePing }
func (PongFrame) Type() FrameType    { return FramePong }
func (BindUIDFrame) Type() FrameType { return FrameBindUID }
func (MessageFrame) Type() FrameType { return FrameMessage }
func (DeliverFrame) Type() FrameType { return FrameMessage }
func (UnknownFrame) Type() FrameType { return "" }

// DecodeFrame 边界处一次性解码；非 JSON / payload 形状不对返回 ErrDecode
func DecodeFrame(raw []byte) (Frame, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errs.ErrDecode.WrapMsg("envelope", "err", err)
	}

	switch env.Type {
	case FramePing:
		return PingFrame{}, nil
	case FramePong:
		p, err := decode.DecodeJSON[PongFrame](env.Data)
		if err != nil {
			return nil, errs.ErrDecode.WrapMsg("pong", "err", err)
		}
		return *p, nil
	case FrameInit:
		p, err := decode.DecodeJSON[InitFrame](env.Data)
		if err != nil {
			return nil, errs.ErrDecode.WrapMsg("init", "err", err)
		}
		return *p, nil
	case FrameBindUID:
		p, err := decode.DecodeJSON[BindUIDFrame](env.Data)
		if err != nil {
			return nil, errs.ErrDecode.WrapMsg("bindUid", "err", err)
		}
		return *p, nil
	case FrameMessage:
		p, err := decode.DecodeJSON[MessageFrame](env.Data)
		if err != nil {
			return nil, errs.ErrDecode.WrapMsg("message", "err", err)
		}
		return *p, nil
	default:
		return UnknownFrame{Raw: env.Type}, nil
	}
}

// EncodeFrame 编码为 {"type","data"}；data 永远是对象
func EncodeFrame(f Frame) ([]byte, error) {
	var payload any
	switch v := f.(type) {
	case DeliverFrame:
		if v.Message == nil {
			return nil, errs.ErrArgs.WrapMsg("deliver frame without message")
		}
		payload = v.Message
	case UnknownFrame:
		return nil, errs.ErrArgs.WrapMsg("cannot encode unknown frame", "type", v.Raw)
	default:
		payload = v
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	return json.Marshal(Envelope{Type: f.Type(), Data: data})
}

func boolPtr(b bool) *bool { return &b }

// BindAck bindUid 成功的确认，沿用 pong 帧
func BindAck() PongFrame { return PongFrame{Multiport: boolPtr(false)} }
