package app

import (
	"sync"

	"github.com/dkeye/VoiceHub/internal/core"
	"github.com/dkeye/VoiceHub/internal/domain"
)

// GroupManagerImpl keeps groups alive while they have members.
type GroupManagerImpl struct {
	mu     sync.RWMutex
	groups map[core.GroupID]core.Group
}

func NewGroupManager() core.GroupManager {
	return &GroupManagerImpl{groups: make(map[core.GroupID]core.Group)}
}

func (f *GroupManagerImpl) get(id core.GroupID) (core.Group, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	g, ok := f.groups[id]
	return g, ok
}

func (f *GroupManagerImpl) Join(id core.GroupID, uid domain.UserID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[id]
	if !ok {
		g = core.NewGroup(id)
		f.groups[id] = g
	}
	return g.Add(uid)
}

// Members returns a copy of the group's members, nil for unknown groups.
func (f *GroupManagerImpl) Members(id core.GroupID) []domain.UserID {
	g, ok := f.get(id)
	if !ok {
		return nil
	}
	return g.Members()
}

func (f *GroupManagerImpl) Leave(id core.GroupID, uid domain.UserID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[id]
	if !ok {
		return false
	}
	removed := g.Remove(uid)
	if g.Count() == 0 {
		delete(f.groups, id)
	}
	return removed
}

func (f *GroupManagerImpl) List() []core.GroupInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.GroupInfo, 0, len(f.groups))
	for id, g := range f.groups {
		out = append(out, core.GroupInfo{ID: id, MemberCount: g.Count()})
	}
	return out
}
