package app

import (
	"sync"
	"time"

	"github.com/dkeye/VoiceHub/internal/core"
	"github.com/dkeye/VoiceHub/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrAlreadyBound = &domain.Error{Kind: domain.KindConflict, Op: "registry.bind", Reason: "already_bound", Message: "identity has a live connection"}
	ErrConnInUse    = &domain.Error{Kind: domain.KindConflict, Op: "registry.bind", Reason: "connection_in_use", Message: "connection is bound to another identity"}
)

// Binding is the runtime link between an identity and its connection.
type Binding struct {
	UserID  domain.UserID
	ConnID  core.ConnID
	Conn    core.SignalConnection
	BoundAt time.Time
}

// Registry maps an identity to exactly one live connection and back.
type Registry struct {
	mu     sync.RWMutex
	byUser map[domain.UserID]*Binding
	byConn map[core.ConnID]*Binding
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[domain.UserID]*Binding),
		byConn: make(map[core.ConnID]*Binding),
	}
}

// Bind links uid to conn. It never replaces a live binding: when uid is
// already bound to another connection it returns that binding together with
// ErrAlreadyBound, and the caller must tear the prior one down first.
func (r *Registry) Bind(uid domain.UserID, cid core.ConnID, conn core.SignalConnection) (*Binding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.byConn[cid]; ok {
		if b.UserID == uid {
			return nil, nil
		}
		return nil, ErrConnInUse
	}
	if b, ok := r.byUser[uid]; ok {
		prior := *b
		return &prior, ErrAlreadyBound
	}
	b := &Binding{UserID: uid, ConnID: cid, Conn: conn, BoundAt: time.Now()}
	r.byUser[uid] = b
	r.byConn[cid] = b
	log.Info().Str("module", "app.registry").Str("user", string(uid)).Str("conn", string(cid)).Msg("bound connection")
	return nil, nil
}

// UnbindConn drops the binding owned by cid, if any.
func (r *Registry) UnbindConn(cid core.ConnID) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byConn[cid]
	if !ok {
		return Binding{}, false
	}
	delete(r.byConn, cid)
	if cur, ok := r.byUser[b.UserID]; ok && cur.ConnID == cid {
		delete(r.byUser, b.UserID)
	}
	log.Info().Str("module", "app.registry").Str("user", string(b.UserID)).Str("conn", string(cid)).Msg("unbound connection")
	return *b, true
}

func (r *Registry) UnbindUser(uid domain.UserID) (Binding, bool) {
	r.mu.RLock()
	b, ok := r.byUser[uid]
	r.mu.RUnlock()
	if !ok {
		return Binding{}, false
	}
	return r.UnbindConn(b.ConnID)
}

func (r *Registry) LookupUser(uid domain.UserID) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b, ok := r.byUser[uid]; ok {
		return *b, true
	}
	return Binding{}, false
}

func (r *Registry) LookupConn(cid core.ConnID) (domain.UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b, ok := r.byConn[cid]; ok {
		return b.UserID, true
	}
	return "", false
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// Snapshot copies every binding so callers can iterate without the lock.
func (r *Registry) Snapshot() []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Binding, 0, len(r.byUser))
	for _, b := range r.byUser {
		out = append(out, *b)
	}
	return out
}
