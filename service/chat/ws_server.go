package chat

import (
	"context"
	"net"
	"net/http"
	"time"

	"ChatHub/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// HandleWS gin 路由入口
func (s *Server) HandleWS(c *gin.Context) {
	s.ServeHTTP(c.Writer, c.Request)
}

// ServeHTTP 升级为 WebSocket；读协程 = 当前协程，写协程单独起
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.acquire() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.conns.Done()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// 常见：非 WebSocket 请求/握手失败，Upgrade 已经写回了错误响应
		logger.Info("[ws] upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	connID, send, err := s.connMgr.Register(r.RemoteAddr)
	if err != nil {
		// 升级期间进入关闭流程
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(s.opts.WriteWait))
		_ = ws.Close()
		return
	}
	logger.Info("[ws] connected", zap.String("conn_id", connID), zap.String("remote", r.RemoteAddr))

	done := make(chan struct{})
	go s.writePump(ws, connID, send, done)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// 连接建立：下发 init
	if h := s.disp.GetHandler(FrameInit); h != nil {
		if err := h.Handle(ctx, &ChatContext{S: s, ConnID: connID}, InitFrame{ClientID: connID}); err != nil {
			logger.Warn("[ws] connect handler", zap.String("conn_id", connID), zap.Error(err))
		}
	}

	s.readLoop(ctx, ws, connID)

	// 读侧退出：统一拆除，写协程随队列关闭收尾
	s.connMgr.Remove(connID, "read_closed")
	<-done
	logger.Info("[ws] closed", zap.String("conn_id", connID))
}

func (s *Server) readLoop(ctx context.Context, ws *websocket.Conn, connID string) {
	ws.SetReadLimit(s.opts.ReadLimit)
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Debug("[ws] peer closed", zap.String("conn_id", connID))
			} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
				logger.Info("[ws] read timeout", zap.String("conn_id", connID))
			} else {
				logger.Debug("[ws] read err", zap.String("conn_id", connID), zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		s.connMgr.Touch(connID)

		f, err := DecodeFrame(data)
		if err != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Info("[ws] drop undecodable frame",
				zap.String("conn_id", connID), zap.ByteString("sample", sample), zap.Error(err))
			continue
		}
		if u, ok := f.(UnknownFrame); ok {
			logger.Debug("[ws] ignore frame", zap.String("conn_id", connID), zap.String("type", string(u.Raw)))
			continue
		}

		h := s.disp.GetHandler(f.Type())
		if h == nil {
			continue
		}
		if err := h.Handle(ctx, &ChatContext{S: s, ConnID: connID}, f); err != nil {
			logger.Info("[ws] handle frame",
				zap.String("conn_id", connID), zap.String("type", string(f.Type())), zap.Error(err))
		}
	}
}

// writePump 队列唯一消费者；队列关闭后发 Close 帧并关闭底层连接
func (s *Server) writePump(ws *websocket.Conn, connID string, send <-chan []byte, done chan<- struct{}) {
	defer close(done)
	defer ws.Close()

	broken := false
	for payload := range send {
		if broken {
			continue
		}
		_ = ws.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
		if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
			logger.Info("[ws] write err", zap.String("conn_id", connID), zap.Error(err))
			broken = true
			// 关掉底层连接让读协程退出，队列由 Remove 关闭
			_ = ws.Close()
			s.connMgr.Remove(connID, "write_error")
		}
	}
	if !broken {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(s.opts.WriteWait))
	}
}
