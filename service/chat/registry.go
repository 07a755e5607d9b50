package chat

import (
	"sync/atomic"
	"time"
)

// connRecord 一条存活的传输连接；send 只归 registry 所有，写协程是唯一消费者
type connRecord struct {
	id        string
	remote    string
	send      chan []byte
	createdAt time.Time
	lastSeen  atomic.Int64 // unix nano
	closed    bool
}

func (c *connRecord) touch(now time.Time) { c.lastSeen.Store(now.UnixNano()) }

func (c *connRecord) idleSince() time.Time { return time.Unix(0, c.lastSeen.Load()) }

// registry connID -> record。本身不加锁，由 ConnManager 的锁保护
type registry struct {
	byConn map[string]*connRecord
}

func newRegistry() *registry {
	return &registry{byConn: make(map[string]*connRecord)}
}

func (r *registry) add(c *connRecord) bool {
	if _, exists := r.byConn[c.id]; exists {
		return false
	}
	r.byConn[c.id] = c
	return true
}

func (r *registry) get(id string) *connRecord {
	return r.byConn[id]
}

// remove 删除并关闭发送队列；不存在时返回 nil
func (r *registry) remove(id string) *connRecord {
	c, ok := r.byConn[id]
	if !ok {
		return nil
	}
	delete(r.byConn, id)
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	return c
}

func (r *registry) len() int { return len(r.byConn) }

func (r *registry) ids() []string {
	out := make([]string, 0, len(r.byConn))
	for id := range r.byConn {
		out = append(out, id)
	}
	return out
}
