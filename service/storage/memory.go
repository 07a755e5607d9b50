package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"ChatHub/module/chat/model"
	"ChatHub/tools/errs"
)

// MemoryGateway 进程内实现：单机调试与测试用，可注入故障
type MemoryGateway struct {
	mu         sync.RWMutex
	messages   []*model.ChatMessage
	groups     map[string]map[string]struct{}
	lastActive map[string]int64

	saveErr  error
	groupErr error
	clock    func() time.Time
}

func NewMemory() *MemoryGateway {
	return &MemoryGateway{
		groups:     make(map[string]map[string]struct{}),
		lastActive: make(map[string]int64),
		clock:      time.Now,
	}
}

// FailSave 之后的 SaveMessage 都返回 err；nil 恢复
func (g *MemoryGateway) FailSave(err error) {
	g.mu.Lock()
	g.saveErr = err
	g.mu.Unlock()
}

// FailGroups 之后的 GroupMembers 都返回 err；nil 恢复
func (g *MemoryGateway) FailGroups(err error) {
	g.mu.Lock()
	g.groupErr = err
	g.mu.Unlock()
}

// SetGroup 覆盖群成员
func (g *MemoryGateway) SetGroup(groupID string, members ...string) {
	set := make(map[string]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	g.mu.Lock()
	g.groups[groupID] = set
	g.mu.Unlock()
}

func (g *MemoryGateway) AddMember(groupID, userID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	set := g.groups[groupID]
	if set == nil {
		set = make(map[string]struct{})
		g.groups[groupID] = set
	}
	set[userID] = struct{}{}
}

func (g *MemoryGateway) RemoveMember(groupID, userID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.groups[groupID], userID)
}

func (g *MemoryGateway) SaveMessage(ctx context.Context, m *model.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err)
	}
	if m == nil || m.ID == "" {
		return errs.ErrArgs.WrapMsg("message without id")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.saveErr != nil {
		return g.saveErr
	}
	cp := *m
	g.messages = append(g.messages, &cp)
	g.lastActive[m.FromUser] = g.clock().Unix()
	return nil
}

func (g *MemoryGateway) GroupMembers(ctx context.Context, groupID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.groupErr != nil {
		return nil, g.groupErr
	}
	// 未知群与 Mongo/Postgres 一致：空成员集
	set := g.groups[groupID]
	out := make([]string, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	sort.Strings(out)
	return out, nil
}

// Messages 已落库消息的快照（按写入顺序）
func (g *MemoryGateway) Messages() []*model.ChatMessage {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*model.ChatMessage, len(g.messages))
	copy(out, g.messages)
	return out
}

// History 某会话最近 limit 条，按时间正序
func (g *MemoryGateway) History(chatIdentify string, limit int) []*model.ChatMessage {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*model.ChatMessage
	for i := len(g.messages) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if g.messages[i].ChatIdentify == chatIdentify {
			out = append(out, g.messages[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (g *MemoryGateway) LastActive(userID string) (int64, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ts, ok := g.lastActive[userID]
	return ts, ok
}
