package event

import (
	"encoding/json"

	"ChatHub/module/chat/model"
	"ChatHub/tools/errs"
)

// MessageCreated 消息落库并扇出后发出的事件
const MessageCreated = "chat.message.created"

type Envelope struct {
	Event   string             `json:"event"`
	NodeID  string             `json:"node_id"`
	Message *model.ChatMessage `json:"message"`
}

// Encode 事件体；同时返回去重用的 key（msg_id）
func Encode(nodeID string, m *model.ChatMessage) (data []byte, key string, err error) {
	if m == nil {
		return nil, "", errs.ErrArgs.WrapMsg("nil message")
	}
	data, err = json.Marshal(Envelope{Event: MessageCreated, NodeID: nodeID, Message: m})
	if err != nil {
		return nil, "", errs.Wrap(err)
	}
	return data, m.MsgID, nil
}
