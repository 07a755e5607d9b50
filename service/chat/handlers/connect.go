package handlers

import (
	"context"

	"ChatHub/service/chat"
)

// ConnectHandler 连接建立后下发 init，告知客户端自己的连接ID
type ConnectHandler struct{}

func NewConnectHandler() chat.Handler          { return &ConnectHandler{} }
func (h *ConnectHandler) Type() chat.FrameType { return chat.FrameInit }

func (h *ConnectHandler) Handle(_ context.Context, c *chat.ChatContext, f chat.Frame) error {
	fr, ok := f.(chat.InitFrame)
	if !ok || fr.ClientID == "" {
		fr = chat.InitFrame{ClientID: c.ConnID}
	}
	return c.S.Reply(c.ConnID, fr)
}
