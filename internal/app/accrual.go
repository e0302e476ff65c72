package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/VoiceHub/internal/core"
	"github.com/dkeye/VoiceHub/internal/domain"
	"github.com/rs/zerolog/log"
)

type AccrualConfig struct {
	Interval  time.Duration
	XPPerTick int64
	Leveling  domain.Leveling
}

func DefaultAccrualConfig() AccrualConfig {
	return AccrualConfig{
		Interval:  time.Hour,
		XPPerTick: 5,
		Leveling:  domain.Leveling{BaseXP: 5, GrowthRate: 1.02},
	}
}

// AccrualKey identifies one channel-occupancy session.
type AccrualKey struct {
	UserID    domain.UserID
	ServerID  domain.ServerID
	ChannelID domain.ChannelID
}

// TickFunc receives every timer fire. gen identifies the timer so the
// receiver can drop fires from a timer that has been replaced meanwhile.
type TickFunc func(key AccrualKey, gen uint64)

type accrualTimer struct {
	key  AccrualKey
	gen  uint64
	stop func()
}

// AccrualEngine runs one timer per occupied channel and applies XP and
// contribution gains. Timer lifecycle is driven by the coordinator.
type AccrualEngine struct {
	cfg        AccrualConfig
	sched      core.Scheduler
	identities core.IdentityStore
	members    *MembershipManager

	mu     sync.Mutex
	gen    uint64
	timers map[domain.UserID]*accrualTimer
	onTick TickFunc
}

func NewAccrualEngine(cfg AccrualConfig, sched core.Scheduler, identities core.IdentityStore, members *MembershipManager) *AccrualEngine {
	if sched == nil {
		sched = core.TickerScheduler{}
	}
	return &AccrualEngine{
		cfg:        cfg,
		sched:      sched,
		identities: identities,
		members:    members,
		timers:     make(map[domain.UserID]*accrualTimer),
	}
}

func (e *AccrualEngine) Config() AccrualConfig { return e.cfg }

// OnTick sets the receiver of timer fires.
func (e *AccrualEngine) OnTick(fn TickFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTick = fn
}

// Start cancels any timer the identity still has and starts a new one.
func (e *AccrualEngine) Start(key AccrualKey) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if old, ok := e.timers[key.UserID]; ok {
		old.stop()
		delete(e.timers, key.UserID)
	}
	e.gen++
	t := &accrualTimer{key: key, gen: e.gen}
	e.timers[key.UserID] = t
	gen := t.gen
	t.stop = e.sched.Every(e.cfg.Interval, func() { e.fire(key, gen) })
	log.Debug().Str("module", "app.accrual").Str("user", string(key.UserID)).Str("channel", string(key.ChannelID)).Uint64("gen", gen).Msg("timer started")
	return gen
}

func (e *AccrualEngine) fire(key AccrualKey, gen uint64) {
	e.mu.Lock()
	fn := e.onTick
	e.mu.Unlock()
	if fn != nil {
		fn(key, gen)
	}
}

// Stop cancels the identity's timer, if any.
func (e *AccrualEngine) Stop(uid domain.UserID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.timers[uid]
	if !ok {
		return false
	}
	t.stop()
	delete(e.timers, uid)
	log.Debug().Str("module", "app.accrual").Str("user", string(uid)).Str("channel", string(t.key.ChannelID)).Msg("timer stopped")
	return true
}

// StopAll cancels every timer, used on shutdown.
func (e *AccrualEngine) StopAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for uid, t := range e.timers {
		t.stop()
		delete(e.timers, uid)
	}
}

// Current reports whether gen is still the live timer for key.
func (e *AccrualEngine) Current(key AccrualKey, gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.timers[key.UserID]
	return ok && t.gen == gen && t.key == key
}

func (e *AccrualEngine) Active(uid domain.UserID) (AccrualKey, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.timers[uid]
	if !ok {
		return AccrualKey{}, false
	}
	return t.key, true
}

func (e *AccrualEngine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.timers)
}

// AccrualResult is what the owning connection is told after a tick.
type AccrualResult struct {
	Identity     *domain.Identity
	LevelsGained int
	Contributed  bool
}

// Accrue applies one tick of XP to uid and, when uid is a member of sid,
// the same amount of contribution.
func (e *AccrualEngine) Accrue(ctx context.Context, uid domain.UserID, sid domain.ServerID) (AccrualResult, error) {
	const op = "accrual.accrue"
	u, err := e.identities.GetIdentity(ctx, uid)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return AccrualResult{}, domain.NotFound(op, "identity")
		}
		return AccrualResult{}, domain.Internal(op, err)
	}
	level, xp, gained := e.cfg.Leveling.Accrue(u.Level, u.XP, e.cfg.XPPerTick)
	u.Level, u.XP = level, xp
	if err := e.identities.SaveIdentity(ctx, u); err != nil {
		return AccrualResult{}, domain.Internal(op, err)
	}
	res := AccrualResult{Identity: u, LevelsGained: gained}
	if e.members != nil {
		ok, err := e.members.Contribute(ctx, uid, sid, e.cfg.XPPerTick)
		if err != nil {
			return res, err
		}
		res.Contributed = ok
	}
	ev := log.Debug()
	if gained > 0 {
		ev = log.Info()
	}
	ev.Str("module", "app.accrual").Str("user", string(uid)).Int("level", level).Int64("xp", xp).Int("levels_gained", gained).Msg("accrued")
	return res, nil
}
