package handlers

import (
	"context"

	"ChatHub/logger"
	"ChatHub/service/chat"
	"ChatHub/tools/errs"

	"go.uber.org/zap"
)

// AuthHandler bindUid：解析凭证 -> 绑定 -> 回 pong{multiport:false}。
// 失败不回任何帧，只记日志。
type AuthHandler struct{}

func NewAuthHandler() chat.Handler          { return &AuthHandler{} }
func (h *AuthHandler) Type() chat.FrameType { return chat.FrameBindUID }

func (h *AuthHandler) Handle(ctx context.Context, c *chat.ChatContext, f chat.Frame) error {
	bf, ok := f.(chat.BindUIDFrame)
	if !ok {
		return errs.ErrArgs.WrapMsg("unexpected frame", "type", f.Type())
	}
	uid, err := c.S.Auth().Resolve(ctx, bf.Token)
	if err != nil {
		logger.Info("[auth] resolve failed", zap.String("conn_id", c.ConnID), zap.Error(err))
		return nil
	}
	if err := c.S.BindUser(ctx, c.ConnID, uid); err != nil {
		logger.Info("[auth] bind failed", zap.String("conn_id", c.ConnID), zap.String("user_id", uid), zap.Error(err))
		return nil
	}
	logger.Info("[auth] bound", zap.String("conn_id", c.ConnID), zap.String("user_id", uid))
	return c.S.Reply(c.ConnID, chat.BindAck())
}
