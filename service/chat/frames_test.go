package chat

import (
	"errors"
	"testing"

	"ChatHub/module/chat/model"
	"ChatHub/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrameVariants(t *testing.T) {
	f, err := DecodeFrame([]byte(`{"type":"ping","data":{}}`))
	require.NoError(t, err)
	assert.Equal(t, PingFrame{}, f)

	f, err = DecodeFrame([]byte(`{"type":"bindUid","data":{"token":"abc"}}`))
	require.NoError(t, err)
	assert.Equal(t, BindUIDFrame{Token: "abc"}, f)

	f, err = DecodeFrame([]byte(`{"type":"message","data":{"from_user":"u1","to_user":"g1","content":"hi","type":"image","is_group":true,"file_id":"f1"}}`))
	require.NoError(t, err)
	mf, ok := f.(MessageFrame)
	require.True(t, ok)
	assert.Equal(t, "g1", mf.ToUser)
	assert.Equal(t, "image", mf.MsgType)
	assert.True(t, mf.IsGroup)
	require.NotNil(t, mf.FileID)
	assert.Equal(t, "f1", *mf.FileID)
	assert.Nil(t, mf.At)

	f, err = DecodeFrame([]byte(`{"type":"shout","data":{}}`))
	require.NoError(t, err)
	assert.Equal(t, UnknownFrame{Raw: "shout"}, f)
}

func TestDecodeFrameMissingData(t *testing.T) {
	f, err := DecodeFrame([]byte(`{"type":"ping"}`))
	require.NoError(t, err)
	assert.Equal(t, FramePing, f.Type())

	f, err = DecodeFrame([]byte(`{"type":"bindUid"}`))
	require.NoError(t, err)
	assert.Equal(t, BindUIDFrame{}, f)
}

func TestDecodeFrameErrors(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"type":`,
		`{"type":"message","data":"oops"}`,
		`{"type":"message","data":{"is_group":"maybe"}}`,
	} {
		_, err := DecodeFrame([]byte(raw))
		assert.True(t, errors.Is(err, errs.ErrDecode), raw)
	}
}

func TestEncodeFrame(t *testing.T) {
	b, err := EncodeFrame(PongFrame{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong","data":{}}`, string(b))

	b, err = EncodeFrame(BindAck())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong","data":{"multiport":false}}`, string(b))

	b, err = EncodeFrame(InitFrame{ClientID: "42"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"init","data":{"client_id":"42"}}`, string(b))

	m := &model.ChatMessage{ID: "1", MsgID: "m1", FromUser: "u1", ToUser: "u2", Content: "hi", MessageType: model.MessageTypeText}
	b, err = EncodeFrame(DeliverFrame{Message: m})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"type":"message"`)
	assert.Contains(t, string(b), `"msg_id":"m1"`)
	assert.Contains(t, string(b), `"message_type":"text"`)

	_, err = EncodeFrame(DeliverFrame{})
	assert.Error(t, err)
	_, err = EncodeFrame(UnknownFrame{Raw: "x"})
	assert.Error(t, err)
}
