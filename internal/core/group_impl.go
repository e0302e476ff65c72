package core

import (
	"sort"
	"sync"

	"github.com/dkeye/VoiceHub/internal/domain"
	"github.com/rs/zerolog/log"
)

// groupImpl is a threadsafe in-memory member set.
// It never touches transport resources, it only knows identities.
type groupImpl struct {
	id  GroupID
	mu  sync.RWMutex
	seq uint64
	// join order, used to keep snapshots stable
	members map[domain.UserID]uint64
}

func NewGroup(id GroupID) Group {
	return &groupImpl{
		id:      id,
		members: make(map[domain.UserID]uint64),
	}
}

func (g *groupImpl) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.members)
}

func (g *groupImpl) Add(uid domain.UserID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.members[uid]; ok {
		return false
	}
	g.seq++
	g.members[uid] = g.seq
	log.Debug().Str("module", "core.group").Str("group", string(g.id)).Str("user", string(uid)).Msg("member added")
	return true
}

func (g *groupImpl) Remove(uid domain.UserID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.members[uid]; !ok {
		return false
	}
	delete(g.members, uid)
	log.Debug().Str("module", "core.group").Str("group", string(g.id)).Str("user", string(uid)).Msg("member removed")
	return true
}

func (g *groupImpl) Members() []domain.UserID {
	type entry struct {
		uid domain.UserID
		seq uint64
	}
	g.mu.RLock()
	entries := make([]entry, 0, len(g.members))
	for uid, n := range g.members {
		entries = append(entries, entry{uid, n})
	}
	g.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]domain.UserID, len(entries))
	for i, e := range entries {
		out[i] = e.uid
	}
	return out
}
