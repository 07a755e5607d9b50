package chat

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"ChatHub/logger"
	"ChatHub/tools/errs"
	"ChatHub/tools/safe"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Options struct {
	NodeID         string        // 网关ID，写入在线状态
	Manager        ManagerConf   // 连接管理
	OpTimeout      time.Duration // 落库/查群成员超时
	PublishTimeout time.Duration // 事件发布超时
	WriteWait      time.Duration // 单帧写超时
	ReadLimit      int64         // 单帧最大字节
	// 心跳续期在线状态的最小间隔，一般取在线 TTL 的一半
	PresenceRefresh time.Duration
	CheckOrigin     func(r *http.Request) bool
}

func (o *Options) norm() {
	if o.NodeID == "" {
		o.NodeID = "chathub-1"
	}
	if o.OpTimeout <= 0 {
		o.OpTimeout = 3 * time.Second
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = 2 * time.Second
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 1 << 20
	}
	if o.PresenceRefresh <= 0 {
		o.PresenceRefresh = time.Minute
	}
	if o.CheckOrigin == nil {
		o.CheckOrigin = func(*http.Request) bool { return true }
	}
}

// Deps 外部协作方；Presence / Publisher 可为空
type Deps struct {
	Gateway   Gateway
	Auth      Authenticator
	Presence  Presence
	Publisher Publisher
}

type Server struct {
	opts     Options
	deps     Deps
	connMgr  *ConnManager
	disp     *Dispatcher
	upgrader websocket.Upgrader
	clock    func() time.Time
	presence *presenceTracker // 未配置 Presence 时为 nil

	lifeMu  sync.Mutex
	closing bool // Shutdown 之后拒绝升级
	conns   sync.WaitGroup
}

func NewServer(opts Options, deps Deps) (*Server, error) {
	if deps.Gateway == nil {
		return nil, errs.ErrArgs.WrapMsg("gateway is nil")
	}
	if deps.Auth == nil {
		return nil, errs.ErrArgs.WrapMsg("authenticator is nil")
	}
	opts.norm()

	s := &Server{
		opts:    opts,
		deps:    deps,
		connMgr: NewConnManager(opts.Manager),
		disp:    NewDispatcher(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     opts.CheckOrigin,
		},
		clock: opts.Manager.Clock,
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if deps.Presence != nil {
		s.presence = newPresenceTracker(deps.Presence, s)
	}
	s.connMgr.OnDetach(s.onDetach)
	return s, nil
}

func (s *Server) ConnMgr() *ConnManager { return s.connMgr }
func (s *Server) Disp() *Dispatcher     { return s.disp }
func (s *Server) Auth() Authenticator   { return s.deps.Auth }
func (s *Server) NodeID() string        { return s.opts.NodeID }

// Register 注册帧处理器
func (s *Server) Register(hs ...Handler) { s.disp.Register(hs...) }

// Reply 编码后投递到单个连接；队列满即断开该连接
func (s *Server) Reply(connID string, f Frame) error {
	payload, err := EncodeFrame(f)
	if err != nil {
		return err
	}
	return s.send(connID, payload)
}

func (s *Server) send(connID string, payload []byte) error {
	err := s.connMgr.Send(connID, payload)
	if errors.Is(err, errs.ErrQueueFull) {
		logger.Warn("[ws] send queue full, drop conn", zap.String("conn_id", connID))
		s.connMgr.Remove(connID, "overflow")
	}
	return err
}

// acquire 登记一个连接协程；Shutdown 之后返回 false
func (s *Server) acquire() bool {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.closing {
		return false
	}
	s.conns.Add(1)
	return true
}

// BindUser 绑定成功后标记在线；换绑导致旧用户无连接时标记离线
func (s *Server) BindUser(ctx context.Context, connID, userID string) error {
	emptied, err := s.connMgr.Bind(userID, connID)
	if err != nil {
		return err
	}
	if emptied != "" {
		s.markOffline(emptied)
	}
	if s.presence != nil {
		s.presence.online(ctx, userID)
	}
	return nil
}

// RefreshPresence 心跳时为已绑定的连接续期在线状态（按 PresenceRefresh 节流）
func (s *Server) RefreshPresence(ctx context.Context, connID string) bool {
	if s.presence == nil {
		return false
	}
	userID, ok := s.connMgr.UserOf(connID)
	if !ok {
		return false
	}
	return s.presence.renew(ctx, userID)
}

func (s *Server) onDetach(d Detached) {
	if d.UserOffline {
		s.markOffline(d.UserID)
	}
}

func (s *Server) markOffline(userID string) {
	if s.presence == nil || userID == "" {
		return
	}
	safe.Go("presence-offline", func() {
		s.presence.offline(context.Background(), userID)
	})
}

// Shutdown 断开全部连接并等待连接协程退出
func (s *Server) Shutdown(ctx context.Context) error {
	s.lifeMu.Lock()
	s.closing = true
	s.lifeMu.Unlock()

	s.connMgr.Close()

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = errs.Wrap(ctx.Err())
	}
	if s.deps.Publisher != nil {
		if cerr := s.deps.Publisher.Close(); cerr != nil {
			logger.Warn("[event] publisher close", zap.Error(cerr))
		}
	}
	return err
}
