package chat

import (
	"context"
	"strings"

	"ChatHub/logger"
	"ChatHub/module/chat/model"
	"ChatHub/tools/errs"

	"go.uber.org/zap"
)

// Route 落库 -> 解析接收方 -> 扇出 -> 回显给发送连接 -> 发布事件。
// 在发送连接的读协程里同步执行，所以同一连接的消息按序处理。
func (s *Server) Route(ctx context.Context, senderConnID string, f *MessageFrame) (*model.ChatMessage, error) {
	if f == nil {
		return nil, errs.ErrArgs.WrapMsg("nil message frame")
	}
	sender, ok := s.connMgr.UserOf(senderConnID)
	if !ok {
		return nil, errs.ErrUnauthenticated.WrapMsg("message before bindUid", "conn_id", senderConnID)
	}
	to := strings.TrimSpace(f.ToUser)
	if to == "" {
		return nil, errs.ErrArgs.WrapMsg("to_user empty", "conn_id", senderConnID)
	}
	if f.FromUser != "" && f.FromUser != sender {
		logger.Warn("[route] from_user mismatch, using bound user",
			zap.String("claimed", f.FromUser), zap.String("bound", sender))
	}

	msg := model.NewChatMessage(model.NewMessage{
		FromUser:    sender,
		ToUser:      to,
		Content:     f.Content,
		MessageType: model.ParseMessageType(f.MsgType),
		IsGroup:     f.IsGroup,
		FileID:      f.FileID,
		Extends:     f.Extends,
		At:          f.At,
	}, s.clock())

	opCtx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	err := s.deps.Gateway.SaveMessage(opCtx, msg)
	cancel()
	if err != nil {
		return nil, errs.ErrPersistFailed.WrapMsg("save message", "msg_id", msg.MsgID, "err", err)
	}

	users, err := s.recipients(ctx, msg)
	if err != nil {
		return nil, err
	}

	payload, err := EncodeFrame(DeliverFrame{Message: msg})
	if err != nil {
		return nil, err
	}

	targets := s.connMgr.ConnectionsForUsers(users)
	delivered := 0
	for _, id := range targets {
		if id == senderConnID {
			continue
		}
		if s.send(id, payload) == nil {
			delivered++
		}
	}
	// 回显：发送方拿到服务端分配的 id / 时间戳
	if err := s.send(senderConnID, payload); err != nil {
		logger.Warn("[route] echo failed", zap.String("conn_id", senderConnID), zap.Error(err))
	}

	logger.Debug("[route] fanout",
		zap.String("msg_id", msg.MsgID),
		zap.String("chat", msg.ChatIdentify),
		zap.Int("targets", delivered))

	s.publish(ctx, msg)
	return msg, nil
}

// 单聊：对方 + 发送方其他端；群聊：每次实时查询成员
func (s *Server) recipients(ctx context.Context, msg *model.ChatMessage) ([]string, error) {
	if !msg.IsGroup {
		return []string{msg.ToUser, msg.FromUser}, nil
	}
	opCtx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()
	members, err := s.deps.Gateway.GroupMembers(opCtx, msg.ToUser)
	if err != nil {
		return nil, errs.ErrGroupLookup.WrapMsg("group members", "group_id", msg.ToUser, "err", err)
	}
	return members, nil
}

func (s *Server) publish(ctx context.Context, msg *model.ChatMessage) {
	if s.deps.Publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.PublishTimeout)
	defer cancel()
	if err := s.deps.Publisher.Publish(pubCtx, msg); err != nil {
		logger.Warn("[event] publish failed", zap.String("msg_id", msg.MsgID), zap.Error(err))
	}
}
