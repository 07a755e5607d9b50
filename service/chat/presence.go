package chat

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"ChatHub/logger"

	"go.uber.org/zap"
)

const presenceStripes = 64

// presenceTracker 同一用户的在线/离线写入串行执行，写之前按当前绑定状态再判断一次，
// 所以慢的离线写不会覆盖之后的重连。
type presenceTracker struct {
	p       Presence
	nodeID  string
	timeout time.Duration
	every   time.Duration // 心跳续期最小间隔
	clock   func() time.Time
	isBound func(userID string) bool

	stripes [presenceStripes]sync.Mutex

	mu      sync.Mutex
	renewed map[string]time.Time // 最近一次成功写入在线的时间
}

func newPresenceTracker(p Presence, s *Server) *presenceTracker {
	return &presenceTracker{
		p:       p,
		nodeID:  s.opts.NodeID,
		timeout: s.opts.OpTimeout,
		every:   s.opts.PresenceRefresh,
		clock:   s.clock,
		isBound: func(userID string) bool { return len(s.connMgr.ConnectionsFor(userID)) > 0 },
		renewed: make(map[string]time.Time),
	}
}

func (t *presenceTracker) stripe(userID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &t.stripes[h.Sum32()%presenceStripes]
}

// online 用户仍有绑定连接时写入在线并续期
func (t *presenceTracker) online(ctx context.Context, userID string) {
	l := t.stripe(userID)
	l.Lock()
	defer l.Unlock()
	if !t.isBound(userID) {
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	if err := t.p.Online(opCtx, userID, t.nodeID); err != nil {
		logger.Warn("[presence] online failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	t.mu.Lock()
	t.renewed[userID] = t.clock()
	t.mu.Unlock()
}

// offline 用户已经没有任何绑定连接时才删除
func (t *presenceTracker) offline(ctx context.Context, userID string) {
	l := t.stripe(userID)
	l.Lock()
	defer l.Unlock()
	if t.isBound(userID) {
		return
	}
	t.mu.Lock()
	delete(t.renewed, userID)
	t.mu.Unlock()

	opCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	if err := t.p.Offline(opCtx, userID); err != nil {
		logger.Warn("[presence] offline failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// renew 心跳续期；距上次写入不足 every 时跳过，返回是否真正写了
func (t *presenceTracker) renew(ctx context.Context, userID string) bool {
	t.mu.Lock()
	last, ok := t.renewed[userID]
	t.mu.Unlock()
	if ok && t.clock().Sub(last) < t.every {
		return false
	}
	t.online(ctx, userID)
	return true
}
