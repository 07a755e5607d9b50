package handlers

import (
	"context"

	"ChatHub/logger"
	"ChatHub/service/chat"
	"ChatHub/tools/errs"

	"go.uber.org/zap"
)

type MessageHandler struct{}

func NewMessageHandler() chat.Handler          { return &MessageHandler{} }
func (h *MessageHandler) Type() chat.FrameType { return chat.FrameMessage }

func (h *MessageHandler) Handle(ctx context.Context, c *chat.ChatContext, f chat.Frame) error {
	mf, ok := f.(chat.MessageFrame)
	if !ok {
		return errs.ErrArgs.WrapMsg("unexpected frame", "type", f.Type())
	}
	msg, err := c.S.Route(ctx, c.ConnID, &mf)
	if err != nil {
		logger.Info("[msg] route failed", zap.String("conn_id", c.ConnID), zap.Error(err))
		return nil
	}
	logger.Debug("[msg] routed", zap.String("msg_id", msg.MsgID), zap.String("from", msg.FromUser))
	return nil
}
