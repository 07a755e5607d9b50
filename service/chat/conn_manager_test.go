package chat

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"ChatHub/tools/errs"
	"ChatHub/tools/ids"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, conf ManagerConf) *ConnManager {
	t.Helper()
	m := NewConnManager(conf)
	t.Cleanup(m.Close)
	return m
}

func mustRegister(t *testing.T, m *ConnManager, remote string) (string, <-chan []byte) {
	t.Helper()
	id, q, err := m.Register(remote)
	require.NoError(t, err)
	return id, q
}

// 断开后连接ID不应再出现在注册表或任何用户的会话集合里
func assertGone(t *testing.T, m *ConnManager, connID string, users ...string) {
	t.Helper()
	assert.False(t, m.Exists(connID))
	_, bound := m.UserOf(connID)
	assert.False(t, bound)
	for _, u := range users {
		assert.NotContains(t, m.ConnectionsFor(u), connID)
	}
}

func TestRegisterRemoveConsistency(t *testing.T) {
	m := newTestManager(t, ManagerConf{})

	c1, q1 := mustRegister(t, m, "1.1.1.1:1")
	c2, _ := mustRegister(t, m, "1.1.1.1:2")
	require.NotEqual(t, c1, c2)

	_, err := m.Bind("alice", c1)
	require.NoError(t, err)
	_, err = m.Bind("alice", c2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{c1, c2}, m.ConnectionsFor("alice"))

	d, ok := m.Remove(c1, "test")
	require.True(t, ok)
	assert.Equal(t, "alice", d.UserID)
	assert.False(t, d.UserOffline)
	assertGone(t, m, c1, "alice")

	_, open := <-q1
	assert.False(t, open, "queue must be closed on teardown")

	// 幂等
	_, ok = m.Remove(c1, "again")
	assert.False(t, ok)

	d, ok = m.Remove(c2, "test")
	require.True(t, ok)
	assert.True(t, d.UserOffline)
	assert.Equal(t, Stats{}, m.Stats())
}

func TestBindIdempotent(t *testing.T) {
	m := newTestManager(t, ManagerConf{})
	c, _ := mustRegister(t, m, "")

	for i := 0; i < 3; i++ {
		emptied, err := m.Bind("alice", c)
		require.NoError(t, err)
		assert.Empty(t, emptied)
	}
	assert.Equal(t, []string{c}, m.ConnectionsFor("alice"))
	assert.Equal(t, Stats{Connections: 1, Users: 1}, m.Stats())
}

func TestRebindExclusive(t *testing.T) {
	m := newTestManager(t, ManagerConf{})
	c, _ := mustRegister(t, m, "")
	other, _ := mustRegister(t, m, "")

	_, err := m.Bind("alice", c)
	require.NoError(t, err)
	_, err = m.Bind("alice", other)
	require.NoError(t, err)

	emptied, err := m.Bind("bob", c)
	require.NoError(t, err)
	assert.Empty(t, emptied, "alice still has another connection")
	assert.Equal(t, []string{other}, m.ConnectionsFor("alice"))
	assert.Equal(t, []string{c}, m.ConnectionsFor("bob"))

	emptied, err = m.Bind("carol", other)
	require.NoError(t, err)
	assert.Equal(t, "alice", emptied)
	assert.Empty(t, m.ConnectionsFor("alice"))

	u, ok := m.UserOf(other)
	assert.True(t, ok)
	assert.Equal(t, "carol", u)
}

func TestBindRejects(t *testing.T) {
	m := newTestManager(t, ManagerConf{})
	_, err := m.Bind("alice", "nope")
	assert.True(t, errors.Is(err, errs.ErrConnNotFound))

	c, _ := mustRegister(t, m, "")
	_, err = m.Bind("", c)
	assert.True(t, errors.Is(err, errs.ErrArgs))
}

func TestUnbindKeepsConnection(t *testing.T) {
	m := newTestManager(t, ManagerConf{})
	c, _ := mustRegister(t, m, "")
	_, _ = m.Bind("alice", c)

	u, offline := m.Unbind(c)
	assert.Equal(t, "alice", u)
	assert.True(t, offline)
	assert.True(t, m.Exists(c))
	assert.Empty(t, m.ConnectionsFor("alice"))

	u, offline = m.Unbind(c)
	assert.Empty(t, u)
	assert.False(t, offline)
}

func TestSendOverflowAndUnknown(t *testing.T) {
	m := newTestManager(t, ManagerConf{SendQueue: 2})
	c, q := mustRegister(t, m, "")

	assert.NoError(t, m.Send("unknown", []byte("x")))
	require.NoError(t, m.Send(c, []byte("1")))
	require.NoError(t, m.Send(c, []byte("2")))
	err := m.Send(c, []byte("3"))
	assert.True(t, errors.Is(err, errs.ErrQueueFull))

	assert.Equal(t, "1", string(<-q))
	assert.Equal(t, "2", string(<-q))

	m.Remove(c, "done")
	assert.NoError(t, m.Send(c, []byte("late")), "send after teardown is a no-op")
}

func TestOnDetachCallback(t *testing.T) {
	m := newTestManager(t, ManagerConf{})
	var mu sync.Mutex
	var got []Detached
	m.OnDetach(func(d Detached) {
		mu.Lock()
		got = append(got, d)
		mu.Unlock()
		// 回调在锁外执行，可以回调用 manager
		_ = m.Stats()
	})

	a, _ := mustRegister(t, m, "")
	b, _ := mustRegister(t, m, "")
	_, _ = m.Bind("alice", a)
	_, _ = m.Bind("alice", b)

	m.Remove(a, "x")
	m.Remove(b, "y")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.False(t, got[0].UserOffline)
	assert.True(t, got[1].UserOffline)
	assert.Equal(t, "y", got[1].Reason)
}

func TestSweepIdle(t *testing.T) {
	now := time.Unix(1000, 0)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	m := newTestManager(t, ManagerConf{IdleTimeout: time.Minute, SweepEvery: time.Hour, Clock: clock})
	stale, _ := mustRegister(t, m, "")
	fresh, _ := mustRegister(t, m, "")
	_, _ = m.Bind("alice", stale)

	advance(50 * time.Second)
	m.Touch(fresh)
	advance(20 * time.Second)

	assert.Equal(t, 1, m.sweepOnce(clock()))
	assertGone(t, m, stale, "alice")
	assert.True(t, m.Exists(fresh))
}

func TestSweepDisabled(t *testing.T) {
	m := newTestManager(t, ManagerConf{})
	mustRegister(t, m, "")
	assert.Equal(t, 0, m.sweepOnce(time.Now().Add(24*time.Hour)))
	assert.Equal(t, 1, m.Stats().Connections)
}

func TestConnectionsForUsersDedupe(t *testing.T) {
	m := newTestManager(t, ManagerConf{})
	a, _ := mustRegister(t, m, "")
	b, _ := mustRegister(t, m, "")
	_, _ = m.Bind("alice", a)
	_, _ = m.Bind("bob", b)

	got := m.ConnectionsForUsers([]string{"alice", "bob", "alice", "nobody"})
	assert.ElementsMatch(t, []string{a, b}, got)
}

func TestCloseTearsDownAll(t *testing.T) {
	m := NewConnManager(ManagerConf{})
	_, q1 := mustRegister(t, m, "")
	c2, q2 := mustRegister(t, m, "")
	_, _ = m.Bind("alice", c2)

	m.Close()
	m.Close()
	_, open := <-q1
	assert.False(t, open)
	_, open = <-q2
	assert.False(t, open)
	assert.Equal(t, Stats{}, m.Stats())

	_, _, err := m.Register("")
	assert.True(t, errors.Is(err, errs.ErrShuttingDown))
	assert.Equal(t, Stats{}, m.Stats())
}

func TestConcurrentLifecycle(t *testing.T) {
	m := newTestManager(t, ManagerConf{SendQueue: 4})
	const workers = 32
	const rounds = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			user := fmt.Sprintf("u%d", w%5)
			for i := 0; i < rounds; i++ {
				c, q, err := m.Register("")
				if err != nil {
					t.Errorf("register: %v", err)
					return
				}
				if _, err := m.Bind(user, c); err != nil {
					t.Errorf("bind: %v", err)
					return
				}
				for _, id := range m.ConnectionsFor(user) {
					_ = m.Send(id, []byte("x"))
				}
				if i%2 == 0 {
					_, _ = m.Bind(fmt.Sprintf("u%d", (w+1)%5), c)
				}
				m.Remove(c, "done")
				for range q {
				}
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, Stats{}, m.Stats())
}

func TestConnIDsCarryNode(t *testing.T) {
	m := newTestManager(t, ManagerConf{NodeID: 42})
	c, _ := mustRegister(t, m, "")
	n, err := strconv.ParseInt(c, 10, 64)
	require.NoError(t, err)
	assert.Equal(t, int64(42), ids.NodeOf(n))
}
