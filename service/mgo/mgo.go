package mgo

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"ChatHub/data/database/mgo/mongoutil"
	"ChatHub/logger"
	"ChatHub/tools/errs"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const (
	baseBackoff = 200 * time.Millisecond
	maxBackoff  = 5 * time.Second
	healthEvery = 10 * time.Second // 健康检查周期
	failThresh  = 3                // 连续失败阈值
)

// Manager 后台维持 Mongo 连接：首次连上 close readyCh，掉线后自动重连
type Manager struct {
	mu        sync.RWMutex
	client    *mongoutil.Client
	readyCh   chan struct{} // 只会被 close 一次
	readyOnce sync.Once

	lastErr atomic.Value // error
}

// StartAsync 一直运行到 ctx.Done()
func StartAsync(ctx context.Context, cfg *mongoutil.Config) *Manager {
	m := &Manager{readyCh: make(chan struct{})}
	go m.run(ctx, cfg)
	return m
}

func (m *Manager) run(ctx context.Context, cfg *mongoutil.Config) {
	for {
		if !m.connect(ctx, cfg) {
			return
		}
		m.health(ctx) // 返回即掉线，回到连接阶段
		if ctx.Err() != nil {
			return
		}
	}
}

// connect 带退避重试；ctx 结束返回 false
func (m *Manager) connect(ctx context.Context, cfg *mongoutil.Config) bool {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return false
		}
		cli, err := mongoutil.NewMongoDB(ctx, cfg)
		if err == nil {
			m.mu.Lock()
			m.client = cli
			m.mu.Unlock()
			m.readyOnce.Do(func() { close(m.readyCh) })
			logger.Info("[mongo] connected", zap.String("db", cfg.Database))
			return true
		}
		m.lastErr.Store(err)
		logger.Warn("[mongo] connect failed", zap.Int("attempt", attempt), zap.Error(err))

		timer := time.NewTimer(backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
		if attempt < 6 {
			attempt++
		}
	}
}

func (m *Manager) health(ctx context.Context) {
	fail := 0
	t := time.NewTicker(healthEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			m.drop()
			return
		case <-t.C:
			m.mu.RLock()
			c := m.client
			m.mu.RUnlock()
			if c == nil {
				return
			}
			if err := c.Ping(ctx); err != nil {
				fail++
				m.lastErr.Store(err)
				if fail >= failThresh {
					logger.Warn("[mongo] lost connection", zap.Error(err))
					m.drop()
					return
				}
			} else {
				fail = 0
			}
		}
	}
}

func (m *Manager) drop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		_ = m.client.Close(context.Background())
		m.client = nil
	}
}

// backoff 指数退避 + 0~20% 抖动
func backoff(attempt int) time.Duration {
	b := baseBackoff << attempt
	if b > maxBackoff {
		b = maxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(b / 5)))
	return b - jitter/2
}

// Ready 首次连接成功时会 close
func (m *Manager) Ready() <-chan struct{} { return m.readyCh }

// Err 最近一次错误
func (m *Manager) Err() error {
	if v := m.lastErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func (m *Manager) TryGetDB() (*mongo.Database, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil {
		return nil, false
	}
	return m.client.GetDB(), true
}

// DB 未就绪时返回错误而不是 panic
func (m *Manager) DB() (*mongo.Database, error) {
	db, ok := m.TryGetDB()
	if !ok {
		return nil, errs.ErrInternalServer.WrapMsg("mongo not ready", "last_err", m.Err())
	}
	return db, nil
}

func (m *Manager) WaitReady(ctx context.Context) error {
	select {
	case <-m.readyCh:
		return nil
	case <-ctx.Done():
		return errs.WrapMsg(ctx.Err(), "wait mongo ready", "last_err", m.Err())
	}
}
