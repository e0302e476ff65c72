// Package storage holds the persistence adapters behind core.Store.
package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/dkeye/VoiceHub/internal/core"
	"github.com/dkeye/VoiceHub/internal/domain"
)

type memberKey struct {
	uid domain.UserID
	sid domain.ServerID
}

// MemoryStore keeps every record in process memory. Values are copied on
// the way in and out so callers never share pointers with the store.
type MemoryStore struct {
	mu           sync.RWMutex
	identities   map[domain.UserID]*domain.Identity
	servers      map[domain.ServerID]*domain.Server
	channels     map[domain.ChannelID]*domain.Channel
	members      map[memberKey]*domain.Membership
	apps         map[memberKey]*domain.Application
	presence     map[domain.UserID]domain.Presence
	failPresence error
	failNth      int
	failNthErr   error
}

var _ core.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		identities: make(map[domain.UserID]*domain.Identity),
		servers:    make(map[domain.ServerID]*domain.Server),
		channels:   make(map[domain.ChannelID]*domain.Channel),
		members:    make(map[memberKey]*domain.Membership),
		apps:       make(map[memberKey]*domain.Application),
		presence:   make(map[domain.UserID]domain.Presence),
	}
}

// FailPresenceWrites makes PutPresence return err until called with nil.
// Used to exercise rollback paths.
func (s *MemoryStore) FailPresenceWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPresence = err
}

// FailNthPresenceWrite makes only the n-th PutPresence from now return err.
func (s *MemoryStore) FailNthPresenceWrite(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNth, s.failNthErr = n, err
}

func (s *MemoryStore) GetIdentity(_ context.Context, id domain.UserID) (*domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.identities[id]
	if !ok {
		return nil, domain.NotFound("storage.get_identity", "identity")
	}
	return u.Clone(), nil
}

func (s *MemoryStore) SaveIdentity(_ context.Context, u *domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[u.ID] = u.Clone()
	return nil
}

func (s *MemoryStore) GetServer(_ context.Context, id domain.ServerID) (*domain.Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	srv, ok := s.servers[id]
	if !ok {
		return nil, domain.NotFound("storage.get_server", "server")
	}
	return srv.Clone(), nil
}

func (s *MemoryStore) SaveServer(_ context.Context, srv *domain.Server) error {
	if err := srv.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servers[srv.ID] = srv.Clone()
	return nil
}

func (s *MemoryStore) GetChannel(_ context.Context, id domain.ChannelID) (*domain.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[id]
	if !ok {
		return nil, domain.NotFound("storage.get_channel", "channel")
	}
	return ch.Clone(), nil
}

func (s *MemoryStore) SaveChannel(_ context.Context, ch *domain.Channel) error {
	if err := ch.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch.ParentID != "" {
		parent, ok := s.channels[ch.ParentID]
		if !ok || parent.ServerID != ch.ServerID {
			return domain.Validation("storage.save_channel", "parent_other_server", "parent must belong to the same server")
		}
	}
	s.channels[ch.ID] = ch.Clone()
	return nil
}

func (s *MemoryStore) ListChannels(_ context.Context, sid domain.ServerID) ([]*domain.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Channel, 0)
	for _, ch := range s.channels {
		if ch.ServerID == sid {
			out = append(out, ch.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) GetMembership(_ context.Context, uid domain.UserID, sid domain.ServerID) (*domain.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[memberKey{uid, sid}]
	if !ok {
		return nil, domain.NotFound("storage.get_membership", "membership")
	}
	return m.Clone(), nil
}

func (s *MemoryStore) SaveMembership(_ context.Context, m *domain.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[memberKey{m.UserID, m.ServerID}] = m.Clone()
	return nil
}

func (s *MemoryStore) ListMemberships(_ context.Context, sid domain.ServerID) ([]*domain.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Membership, 0)
	for k, m := range s.members {
		if k.sid == sid {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *MemoryStore) GetApplication(_ context.Context, uid domain.UserID, sid domain.ServerID) (*domain.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.apps[memberKey{uid, sid}]
	if !ok {
		return nil, domain.NotFound("storage.get_application", "application")
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) CreateApplication(_ context.Context, a *domain.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memberKey{a.UserID, a.ServerID}
	if _, ok := s.apps[k]; ok {
		return domain.Conflict("storage.create_application", "application_pending", "application already pending")
	}
	cp := *a
	s.apps[k] = &cp
	return nil
}

func (s *MemoryStore) DeleteApplication(_ context.Context, uid domain.UserID, sid domain.ServerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memberKey{uid, sid}
	if _, ok := s.apps[k]; !ok {
		return domain.NotFound("storage.delete_application", "application")
	}
	delete(s.apps, k)
	return nil
}

func (s *MemoryStore) ListApplications(_ context.Context, sid domain.ServerID) ([]*domain.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Application, 0)
	for k, a := range s.apps {
		if k.sid == sid {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) GetPresence(_ context.Context, uid domain.UserID) (domain.Presence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presence[uid]
	if !ok {
		return domain.Presence{}, domain.NotFound("storage.get_presence", "presence")
	}
	return p, nil
}

func (s *MemoryStore) PutPresence(_ context.Context, p domain.Presence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPresence != nil {
		return s.failPresence
	}
	if s.failNth > 0 {
		s.failNth--
		if s.failNth == 0 {
			return s.failNthErr
		}
	}
	s.presence[p.UserID] = p
	return nil
}

// AllPresence copies every stored presence record.
func (s *MemoryStore) AllPresence() []domain.Presence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Presence, 0, len(s.presence))
	for _, p := range s.presence {
		out = append(out, p)
	}
	return out
}
