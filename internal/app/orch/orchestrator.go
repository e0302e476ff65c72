package orch

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/VoiceHub/internal/app"
	"github.com/dkeye/VoiceHub/internal/core"
	"github.com/dkeye/VoiceHub/internal/domain"
	"github.com/rs/zerolog/log"
)

const defaultStoreTimeout = 5 * time.Second

// Orchestrator is the session coordinator: it owns the
// connected -> server -> channel state machine of every identity.
type Orchestrator struct {
	Registry   *app.Registry
	Presence   *app.PresenceService
	Members    *app.MembershipManager
	Accrual    *app.AccrualEngine
	Relay      *app.Relay
	Notify     *app.Notifier
	Groups     core.GroupManager
	Identities core.IdentityStore
	Catalog    core.CatalogStore
	Auth       core.Authenticator
	Seq        *app.Sequencer

	StoreTimeout time.Duration

	scopes scopeIndex
}

type Deps struct {
	Store        core.Store
	Auth         core.Authenticator
	Clock        core.Clock
	Scheduler    core.Scheduler
	Policy       app.Policy
	Accrual      app.AccrualConfig
	StoreTimeout time.Duration
	// PrivateThreshold overrides the default level private channels need.
	PrivateThreshold domain.PermissionLevel
}

// New wires every component around one store.
func New(d Deps) *Orchestrator {
	if d.Clock == nil {
		d.Clock = core.RealClock{}
	}
	if d.StoreTimeout <= 0 {
		d.StoreTimeout = defaultStoreTimeout
	}
	reg := app.NewRegistry()
	notify := app.NewNotifier(reg, d.Policy)
	members := app.NewMembershipManager(d.Store, d.Store, d.Store, d.Clock)
	if d.PrivateThreshold.Valid() {
		members.PrivateThreshold = d.PrivateThreshold
	}
	groups := app.NewGroupManager()

	o := &Orchestrator{
		Registry:     reg,
		Presence:     app.NewPresenceService(d.Store, d.Clock),
		Members:      members,
		Accrual:      app.NewAccrualEngine(d.Accrual, d.Scheduler, d.Store, members),
		Relay:        app.NewRelay(reg, groups, notify),
		Notify:       notify,
		Groups:       groups,
		Identities:   d.Store,
		Catalog:      d.Store,
		Auth:         d.Auth,
		Seq:          app.NewSequencer(),
		StoreTimeout: d.StoreTimeout,
		scopes:       scopeIndex{m: make(map[domain.UserID]domain.Location)},
	}
	o.Accrual.OnTick(o.onAccrualTick)
	return o
}

func (o *Orchestrator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.StoreTimeout)
}

func (o *Orchestrator) connected(uid domain.UserID) bool {
	_, ok := o.Registry.LookupUser(uid)
	return ok
}

func (o *Orchestrator) requireConnected(op string, uid domain.UserID) error {
	if !o.connected(uid) {
		return domain.Conflict(op, "not_connected", "identity is not connected")
	}
	return nil
}

// fail normalizes err for the caller and logs internal failures with context.
func (o *Orchestrator) fail(op string, uid domain.UserID, err error) error {
	e := domain.Normalize(op, err)
	if e.Kind == domain.KindInternal {
		log.Error().Err(err).Str("module", "orch").Str("op", op).Str("user", string(uid)).Msg("operation failed")
	} else {
		log.Debug().Str("module", "orch").Str("op", op).Str("user", string(uid)).Str("kind", e.Kind.String()).Str("reason", e.Reason).Msg("operation rejected")
	}
	return e
}

func (o *Orchestrator) getServer(ctx context.Context, op string, sid domain.ServerID) (*domain.Server, error) {
	srv, err := o.Catalog.GetServer(ctx, sid)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return nil, domain.NotFound(op, "server")
		}
		return nil, domain.Internal(op, err)
	}
	return srv, nil
}

func (o *Orchestrator) getChannel(ctx context.Context, op string, cid domain.ChannelID) (*domain.Channel, error) {
	ch, err := o.Catalog.GetChannel(ctx, cid)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return nil, domain.NotFound(op, "channel")
		}
		return nil, domain.Internal(op, err)
	}
	return ch, nil
}

// scopeIndex mirrors the occupant sets and audiences an identity is in.
// Teardown uses it so runtime state is cleared even when presence cannot
// be read.
type scopeIndex struct {
	mu sync.Mutex
	m  map[domain.UserID]domain.Location
}

func (s *scopeIndex) get(uid domain.UserID) (domain.Location, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.m[uid]
	return l, ok
}

func (s *scopeIndex) set(uid domain.UserID, l domain.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[uid] = l
}

func (s *scopeIndex) clearChannel(uid domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.m[uid]; ok {
		l.ChannelID = ""
		s.m[uid] = l
	}
}

func (s *scopeIndex) drop(uid domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, uid)
}
