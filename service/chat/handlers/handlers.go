package handlers

import "ChatHub/service/chat"

// RegisterAll 注册全部帧处理器
func RegisterAll(s *chat.Server) {
	s.Register(
		NewConnectHandler(),
		NewPingHandler(),
		NewAuthHandler(),
		NewMessageHandler(),
	)
}
