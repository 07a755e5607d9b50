package chat

import (
	"sync"
	"time"

	"ChatHub/logger"
	"ChatHub/tools/errs"
	"ChatHub/tools/ids"

	"go.uber.org/zap"
)

// ===== 配置 =====

type ManagerConf struct {
	SendQueue   int              // 每连接发送队列长度（有界）
	IdleTimeout time.Duration    // 空闲踢出；<=0 不启用
	SweepEvery  time.Duration    // 清理周期
	NodeID      int64            // 雪花节点号，参与连接ID生成
	Clock       func() time.Time // 可注入时钟（单测用）；nil => time.Now
}

func (c *ManagerConf) norm() {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 256
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = 10 * time.Second
	}
}

// Detached 一条连接被彻底移除后的结果
type Detached struct {
	ConnID      string
	UserID      string // 未绑定时为空
	UserOffline bool   // 该用户已无任何连接
	Reason      string
}

// Stats 快照
type Stats struct {
	Connections int `json:"connections"`
	Users       int `json:"users"`
}

// ConnManager 连接注册表 + 用户会话索引，共用一把锁，
// 保证 Register/Remove/Bind/Unbind 相互之间是原子的。
type ConnManager struct {
	mu       sync.RWMutex
	reg      *registry
	sessions *sessionIndex

	conf     ManagerConf
	idGen    *ids.Generator
	onDetach func(Detached)

	closed   bool // Close 之后拒绝新连接
	stopOnce sync.Once
	stopCh   chan struct{}
}

// ===== 构造/关闭 =====

func NewConnManager(conf ManagerConf) *ConnManager {
	conf.norm()
	m := &ConnManager{
		reg:      newRegistry(),
		sessions: newSessionIndex(),
		conf:     conf,
		idGen:    ids.NewGenerator(conf.NodeID),
		stopCh:   make(chan struct{}),
	}
	if conf.IdleTimeout > 0 {
		go m.sweeper()
	}
	return m
}

// OnDetach 注册移除回调；回调在锁外执行
func (m *ConnManager) OnDetach(fn func(Detached)) {
	m.mu.Lock()
	m.onDetach = fn
	m.mu.Unlock()
}

// Close 停止清理协程并关闭所有发送队列
func (m *ConnManager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })

	m.mu.Lock()
	m.closed = true
	var out []Detached
	for _, id := range m.reg.ids() {
		out = append(out, m.detachLocked(id, "shutdown"))
	}
	fn := m.onDetach
	m.mu.Unlock()

	m.notify(fn, out...)
}

// ===== 注册表 =====

// Register 新连接登记（未授权）；返回连接ID和只读的发送队列。
// Close 之后返回 ErrShuttingDown
func (m *ConnManager) Register(remote string) (string, <-chan []byte, error) {
	now := m.conf.Clock()
	c := &connRecord{
		remote:    remote,
		send:      make(chan []byte, m.conf.SendQueue),
		createdAt: now,
	}
	c.touch(now)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", nil, errs.ErrShuttingDown.WrapMsg("conn manager closed", "remote", remote)
	}
	for {
		c.id = m.idGen.NextString()
		if m.reg.add(c) {
			return c.id, c.send, nil
		}
	}
}

// Send 投递到指定连接；连接不存在时静默忽略，队列满返回 ErrQueueFull
func (m *ConnManager) Send(connID string, payload []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := m.reg.get(connID)
	if c == nil {
		return nil
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return errs.ErrQueueFull.WrapMsg("", "conn_id", connID)
	}
}

// Remove 从注册表和会话索引中一并移除，幂等
func (m *ConnManager) Remove(connID string, reason string) (Detached, bool) {
	m.mu.Lock()
	if m.reg.get(connID) == nil {
		m.mu.Unlock()
		return Detached{}, false
	}
	d := m.detachLocked(connID, reason)
	fn := m.onDetach
	m.mu.Unlock()

	m.notify(fn, d)
	return d, true
}

// Touch 刷新最近活跃时间
func (m *ConnManager) Touch(connID string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c := m.reg.get(connID); c != nil {
		c.touch(m.conf.Clock())
	}
}

func (m *ConnManager) Exists(connID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reg.get(connID) != nil
}

// ===== 会话索引 =====

// Bind 绑定连接到用户。同一用户重复绑定幂等；换绑会先从旧用户摘除。
// 返回因换绑而失去最后一条连接的旧用户（没有则为空串）
func (m *ConnManager) Bind(userID, connID string) (string, error) {
	if userID == "" || connID == "" {
		return "", errs.ErrArgs.WrapMsg("user/conn empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.reg.get(connID) == nil {
		return "", errs.ErrConnNotFound.WrapMsg("", "conn_id", connID)
	}
	return m.sessions.bind(userID, connID), nil
}

// Unbind 解除绑定，连接本身保留（回到未授权状态）
func (m *ConnManager) Unbind(connID string) (userID string, offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions.unbind(connID)
}

// UserOf 连接当前绑定的用户
func (m *ConnManager) UserOf(connID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions.userOf(connID)
}

// ConnectionsFor 用户当前绑定的连接快照（可能为空）
func (m *ConnManager) ConnectionsFor(userID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions.connections(userID)
}

// ConnectionsForUsers 一次性取多个用户的连接并去重
func (m *ConnManager) ConnectionsForUsers(userIDs []string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for _, u := range userIDs {
		for _, id := range m.sessions.connections(u) {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func (m *ConnManager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{Connections: m.reg.len(), Users: m.sessions.users()}
}

// ===== 清理协程 =====

func (m *ConnManager) sweeper() {
	t := time.NewTicker(m.conf.SweepEvery)
	defer t.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case now := <-t.C:
			m.sweepOnce(now)
		}
	}
}

func (m *ConnManager) sweepOnce(now time.Time) int {
	if m.conf.IdleTimeout <= 0 {
		return 0
	}
	var expired []Detached

	m.mu.Lock()
	for _, id := range m.reg.ids() {
		c := m.reg.get(id)
		if now.Sub(c.idleSince()) > m.conf.IdleTimeout {
			expired = append(expired, m.detachLocked(id, "idle"))
		}
	}
	fn := m.onDetach
	m.mu.Unlock()

	m.notify(fn, expired...)
	return len(expired)
}

// ===== 内部 =====

// 需要在持锁状态下调用
func (m *ConnManager) detachLocked(connID, reason string) Detached {
	m.reg.remove(connID)
	user, offline := m.sessions.unbind(connID)
	return Detached{ConnID: connID, UserID: user, UserOffline: offline, Reason: reason}
}

func (m *ConnManager) notify(fn func(Detached), ds ...Detached) {
	for _, d := range ds {
		logger.Debug("[conn] detached",
			zap.String("conn_id", d.ConnID),
			zap.String("user_id", d.UserID),
			zap.String("reason", d.Reason))
		if fn != nil {
			fn(d)
		}
	}
}
