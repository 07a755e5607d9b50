package chat

import (
	"context"

	"ChatHub/module/chat/model"
)

// Gateway 持久化网关：消息落库与群成员查询。
// 两个方法都可能慢、可能失败，调用方不得在持有 ConnManager 锁时调用。
type Gateway interface {
	SaveMessage(ctx context.Context, m *model.ChatMessage) error
	GroupMembers(ctx context.Context, groupID string) ([]string, error)
}

// Authenticator 把 bindUid 携带的凭证解析为用户ID
type Authenticator interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// Presence 在线状态（可选）
type Presence interface {
	Online(ctx context.Context, userID, nodeID string) error
	Offline(ctx context.Context, userID string) error
}

// Publisher 消息事件出口（可选），消息落库并扇出后调用
type Publisher interface {
	Publish(ctx context.Context, m *model.ChatMessage) error
	Close() error
}

type Handler interface {
	Type() FrameType
	Handle(ctx context.Context, c *ChatContext, f Frame) error
}

// ChatContext 一次分发的上下文：服务实例 + 当前连接
type ChatContext struct {
	S      *Server
	ConnID string
}
