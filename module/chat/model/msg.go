package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MessageCollection = "message"
	MessageTable      = "messages"
)

// MessageType 消息内容类型
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeVoice  MessageType = "voice"
	MessageTypeVideo  MessageType = "video"
	MessageTypeFile   MessageType = "file"
	MessageTypeEvent  MessageType = "event"
	MessageTypeSystem MessageType = "system"
)

// ParseMessageType 未知/空值一律按 text 处理
func ParseMessageType(s string) MessageType {
	switch MessageType(strings.ToLower(strings.TrimSpace(s))) {
	case MessageTypeImage:
		return MessageTypeImage
	case MessageTypeVoice:
		return MessageTypeVoice
	case MessageTypeVideo:
		return MessageTypeVideo
	case MessageTypeFile:
		return MessageTypeFile
	case MessageTypeEvent:
		return MessageTypeEvent
	case MessageTypeSystem:
		return MessageTypeSystem
	default:
		return MessageTypeText
	}
}

// ChatMessage 一条已落库的聊天消息；网关创建后不再修改
type ChatMessage struct {
	ID           string      `json:"id" bson:"id"`
	MsgID        string      `json:"msg_id" bson:"msg_id"`
	FromUser     string      `json:"from_user" bson:"from_user"`
	ToUser       string      `json:"to_user" bson:"to_user"` // 单聊=用户ID，群聊=群ID
	Content      string      `json:"content" bson:"content"`
	MessageType  MessageType `json:"message_type" bson:"message_type"`
	IsGroup      bool        `json:"is_group" bson:"is_group"`
	IsRead       bool        `json:"is_read" bson:"is_read"`
	IsLast       bool        `json:"is_last" bson:"is_last"`
	ChatIdentify string      `json:"chat_identify" bson:"chat_identify"` // 会话键，见 ConversationKey
	FileID       *string     `json:"file_id,omitempty" bson:"file_id,omitempty"`
	Extends      *string     `json:"extends,omitempty" bson:"extends,omitempty"`
	At           *string     `json:"at,omitempty" bson:"at,omitempty"`
	CreatedAt    int64       `json:"created_at" bson:"created_at"` // unix 秒
	UpdatedAt    int64       `json:"updated_at" bson:"updated_at"`
}

// NewMessage 入参
type NewMessage struct {
	FromUser    string
	ToUser      string
	Content     string
	MessageType MessageType
	IsGroup     bool
	FileID      *string
	Extends     *string
	At          *string
}

// ConversationKey 单聊 "{from}-{to}"，群聊 "group-{group_id}"；不依赖存储
func ConversationKey(from, to string, isGroup bool) string {
	if isGroup {
		return "group-" + to
	}
	return from + "-" + to
}

// NewChatMessage 分配新的 id/msg_id 与时间戳
func NewChatMessage(in NewMessage, now time.Time) *ChatMessage {
	ts := now.Unix()
	mt := in.MessageType
	if mt == "" {
		mt = MessageTypeText
	}
	return &ChatMessage{
		ID:           uuid.NewString(),
		MsgID:        uuid.NewString(),
		FromUser:     in.FromUser,
		ToUser:       in.ToUser,
		Content:      in.Content,
		MessageType:  mt,
		IsGroup:      in.IsGroup,
		IsRead:       false,
		IsLast:       true,
		ChatIdentify: ConversationKey(in.FromUser, in.ToUser, in.IsGroup),
		FileID:       in.FileID,
		Extends:      in.Extends,
		At:           in.At,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
}
