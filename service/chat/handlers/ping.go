package handlers

import (
	"context"

	"ChatHub/service/chat"
)

// PingHandler 心跳：原连接回一个空 pong；已绑定的连接顺带续期在线状态
type PingHandler struct{}

func NewPingHandler() chat.Handler          { return &PingHandler{} }
func (h *PingHandler) Type() chat.FrameType { return chat.FramePing }

func (h *PingHandler) Handle(ctx context.Context, c *chat.ChatContext, _ chat.Frame) error {
	if err := c.S.Reply(c.ConnID, chat.PongFrame{}); err != nil {
		return err
	}
	c.S.RefreshPresence(ctx, c.ConnID)
	return nil
}
