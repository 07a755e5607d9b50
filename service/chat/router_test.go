package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"ChatHub/module/chat/model"
	"ChatHub/service/storage"
	"ChatHub/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []*model.ChatMessage
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, m *model.ChatMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, m)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

type hubFixture struct {
	s   *Server
	gw  *storage.MemoryGateway
	pub *recordingPublisher
}

func newFixture(t *testing.T) *hubFixture {
	t.Helper()
	gw := storage.NewMemory()
	pub := &recordingPublisher{}
	s, err := NewServer(Options{Manager: ManagerConf{SendQueue: 16}}, Deps{
		Gateway:   gw,
		Auth:      PlainAuthenticator{},
		Publisher: pub,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return &hubFixture{s: s, gw: gw, pub: pub}
}

// connect 注册并绑定一个连接
func (f *hubFixture) connect(t *testing.T, user string) (string, <-chan []byte) {
	t.Helper()
	id, q := mustRegister(t, f.s.ConnMgr(), "test")
	if user != "" {
		require.NoError(t, f.s.BindUser(context.Background(), id, user))
	}
	return id, q
}

// drain 取出队列里当前所有的 message 帧
func drain(t *testing.T, q <-chan []byte) []*model.ChatMessage {
	t.Helper()
	var out []*model.ChatMessage
	for {
		select {
		case raw, ok := <-q:
			if !ok {
				return out
			}
			var env Envelope
			require.NoError(t, json.Unmarshal(raw, &env))
			if env.Type != FrameMessage {
				continue
			}
			var m model.ChatMessage
			require.NoError(t, json.Unmarshal(env.Data, &m))
			out = append(out, &m)
		default:
			return out
		}
	}
}

func TestRouteDirectDeliveryAndEcho(t *testing.T) {
	f := newFixture(t)
	c1, q1 := f.connect(t, "u1")
	c2, q2 := f.connect(t, "u2")
	_, q3 := f.connect(t, "u3")
	_ = c2

	msg, err := f.s.Route(context.Background(), c1, &MessageFrame{ToUser: "u2", Content: "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "u1-u2", msg.ChatIdentify)

	got := drain(t, q2)
	require.Len(t, got, 1)
	assert.Equal(t, "hi", got[0].Content)
	assert.Equal(t, "u1", got[0].FromUser)

	echo := drain(t, q1)
	require.Len(t, echo, 1)
	assert.Equal(t, msg.MsgID, echo[0].MsgID)
	assert.Equal(t, msg.CreatedAt, echo[0].CreatedAt)

	assert.Empty(t, drain(t, q3))
	assert.Len(t, f.gw.Messages(), 1)
	assert.Equal(t, 1, f.pub.count())
}

func TestRouteBoundIdentityWins(t *testing.T) {
	f := newFixture(t)
	c1, _ := f.connect(t, "u1")
	_, q2 := f.connect(t, "u2")

	msg, err := f.s.Route(context.Background(), c1, &MessageFrame{FromUser: "mallory", ToUser: "u2", Content: "x"})
	require.NoError(t, err)
	assert.Equal(t, "u1", msg.FromUser)
	got := drain(t, q2)
	require.Len(t, got, 1)
	assert.Equal(t, "u1", got[0].FromUser)
}

func TestRouteSenderOtherDevices(t *testing.T) {
	f := newFixture(t)
	c1, q1 := f.connect(t, "u1")
	_, q1b := f.connect(t, "u1")
	_, q2 := f.connect(t, "u2")

	_, err := f.s.Route(context.Background(), c1, &MessageFrame{ToUser: "u2", Content: "hi"})
	require.NoError(t, err)
	assert.Len(t, drain(t, q1), 1, "originating connection gets exactly the echo")
	assert.Len(t, drain(t, q1b), 1)
	assert.Len(t, drain(t, q2), 1)
}

func TestRouteGroupFanout(t *testing.T) {
	f := newFixture(t)
	f.gw.SetGroup("g1", "u1", "u2", "u3")

	c1, q1 := f.connect(t, "u1")
	_, q2 := f.connect(t, "u2")
	_, q3a := f.connect(t, "u3")
	_, q3b := f.connect(t, "u3")
	_, qOut := f.connect(t, "outsider")

	msg, err := f.s.Route(context.Background(), c1, &MessageFrame{ToUser: "g1", Content: "hello all", IsGroup: true, MsgType: "image"})
	require.NoError(t, err)
	assert.Equal(t, "group-g1", msg.ChatIdentify)
	assert.Equal(t, model.MessageTypeImage, msg.MessageType)

	assert.Len(t, drain(t, q1), 1)
	assert.Len(t, drain(t, q2), 1)
	assert.Len(t, drain(t, q3a), 1)
	assert.Len(t, drain(t, q3b), 1)
	assert.Empty(t, drain(t, qOut))
}

func TestRouteGroupMembershipRequeried(t *testing.T) {
	f := newFixture(t)
	f.gw.SetGroup("g1", "u1", "u2")
	c1, _ := f.connect(t, "u1")
	_, q2 := f.connect(t, "u2")
	_, q3 := f.connect(t, "u3")

	_, err := f.s.Route(context.Background(), c1, &MessageFrame{ToUser: "g1", IsGroup: true})
	require.NoError(t, err)
	assert.Empty(t, drain(t, q3))

	f.gw.RemoveMember("g1", "u2")
	f.gw.AddMember("g1", "u3")
	drain(t, q2)

	_, err = f.s.Route(context.Background(), c1, &MessageFrame{ToUser: "g1", IsGroup: true})
	require.NoError(t, err)
	assert.Empty(t, drain(t, q2))
	assert.Len(t, drain(t, q3), 1)
}

func TestRouteUnknownGroupOnlyEchoes(t *testing.T) {
	f := newFixture(t)
	c1, q1 := f.connect(t, "u1")
	_, q2 := f.connect(t, "u2")

	msg, err := f.s.Route(context.Background(), c1, &MessageFrame{ToUser: "nope", IsGroup: true})
	require.NoError(t, err)
	assert.Equal(t, "group-nope", msg.ChatIdentify)
	assert.Len(t, drain(t, q1), 1)
	assert.Empty(t, drain(t, q2))
	assert.Len(t, f.gw.Messages(), 1)
	assert.Equal(t, 1, f.pub.count())
}

func TestRoutePersistBeforeDeliver(t *testing.T) {
	f := newFixture(t)
	c1, q1 := f.connect(t, "u1")
	_, q2 := f.connect(t, "u2")
	f.gw.FailSave(errors.New("db down"))

	_, err := f.s.Route(context.Background(), c1, &MessageFrame{ToUser: "u2", Content: "hi"})
	assert.True(t, errors.Is(err, errs.ErrPersistFailed))
	assert.Empty(t, drain(t, q2))
	assert.Empty(t, drain(t, q1), "no echo on persist failure")
	assert.Equal(t, 0, f.pub.count())
}

func TestRouteGroupLookupFailure(t *testing.T) {
	f := newFixture(t)
	f.gw.SetGroup("g1", "u1", "u2")
	c1, q1 := f.connect(t, "u1")
	_, q2 := f.connect(t, "u2")
	f.gw.FailGroups(errors.New("timeout"))

	_, err := f.s.Route(context.Background(), c1, &MessageFrame{ToUser: "g1", IsGroup: true})
	assert.True(t, errors.Is(err, errs.ErrGroupLookup))
	assert.Empty(t, drain(t, q1))
	assert.Empty(t, drain(t, q2))
}

func TestRouteUnauthenticated(t *testing.T) {
	f := newFixture(t)
	anon, qa := f.connect(t, "")
	_, q2 := f.connect(t, "u2")

	_, err := f.s.Route(context.Background(), anon, &MessageFrame{FromUser: "u1", ToUser: "u2", Content: "hi"})
	assert.True(t, errors.Is(err, errs.ErrUnauthenticated))
	assert.Empty(t, drain(t, q2))
	assert.Empty(t, drain(t, qa))
	assert.Empty(t, f.gw.Messages())
}

func TestRouteRequiresRecipient(t *testing.T) {
	f := newFixture(t)
	c1, _ := f.connect(t, "u1")
	_, err := f.s.Route(context.Background(), c1, &MessageFrame{ToUser: "  "})
	assert.True(t, errors.Is(err, errs.ErrArgs))
	assert.Empty(t, f.gw.Messages())
}

func TestRoutePublishFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("broker down")
	c1, q1 := f.connect(t, "u1")

	_, err := f.s.Route(context.Background(), c1, &MessageFrame{ToUser: "u2"})
	require.NoError(t, err)
	assert.Len(t, drain(t, q1), 1)
}

func TestRouteOverflowTearsDownSlowConsumer(t *testing.T) {
	gw := storage.NewMemory()
	s, err := NewServer(Options{Manager: ManagerConf{SendQueue: 1}}, Deps{Gateway: gw, Auth: PlainAuthenticator{}})
	require.NoError(t, err)
	defer s.Shutdown(context.Background())

	c1, _ := mustRegister(t, s.ConnMgr(), "")
	slow, _ := mustRegister(t, s.ConnMgr(), "")
	require.NoError(t, s.BindUser(context.Background(), c1, "u1"))
	require.NoError(t, s.BindUser(context.Background(), slow, "u2"))

	for i := 0; i < 2; i++ {
		_, err := s.Route(context.Background(), c1, &MessageFrame{ToUser: "u2"})
		require.NoError(t, err)
	}
	assert.False(t, s.ConnMgr().Exists(slow))
	assert.Empty(t, s.ConnMgr().ConnectionsFor("u2"))
}

type recordingPresence struct {
	mu      sync.Mutex
	online  map[string]string
	offline chan string
}

func (p *recordingPresence) Online(_ context.Context, user, node string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[user] = node
	return nil
}

func (p *recordingPresence) Offline(_ context.Context, user string) error {
	p.offline <- user
	return nil
}

func TestPresenceFollowsSessions(t *testing.T) {
	pres := &recordingPresence{online: map[string]string{}, offline: make(chan string, 4)}
	s, err := NewServer(Options{NodeID: "gw-9"}, Deps{Gateway: storage.NewMemory(), Auth: PlainAuthenticator{}, Presence: pres})
	require.NoError(t, err)
	defer s.Shutdown(context.Background())

	a, _ := mustRegister(t, s.ConnMgr(), "")
	b, _ := mustRegister(t, s.ConnMgr(), "")
	require.NoError(t, s.BindUser(context.Background(), a, "u1"))
	require.NoError(t, s.BindUser(context.Background(), b, "u1"))
	pres.mu.Lock()
	assert.Equal(t, "gw-9", pres.online["u1"])
	pres.mu.Unlock()

	s.ConnMgr().Remove(a, "test")
	select {
	case u := <-pres.offline:
		t.Fatalf("unexpected offline for %s", u)
	case <-time.After(50 * time.Millisecond):
	}

	s.ConnMgr().Remove(b, "test")
	select {
	case u := <-pres.offline:
		assert.Equal(t, "u1", u)
	case <-time.After(time.Second):
		t.Fatal("offline not reported")
	}
}

func TestNewServerRequiresDeps(t *testing.T) {
	_, err := NewServer(Options{}, Deps{Auth: PlainAuthenticator{}})
	assert.True(t, errors.Is(err, errs.ErrArgs))
	_, err = NewServer(Options{}, Deps{Gateway: storage.NewMemory()})
	assert.True(t, errors.Is(err, errs.ErrArgs))
}
