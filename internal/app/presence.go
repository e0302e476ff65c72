package app

import (
	"context"
	"errors"

	"github.com/dkeye/VoiceHub/internal/core"
	"github.com/dkeye/VoiceHub/internal/domain"
)

// PresenceService is the single source of truth for where identities are.
// Callers must not cache the returned values.
type PresenceService struct {
	store core.PresenceStore
	clock core.Clock
}

func NewPresenceService(store core.PresenceStore, clock core.Clock) *PresenceService {
	if clock == nil {
		clock = core.RealClock{}
	}
	return &PresenceService{store: store, clock: clock}
}

// Get returns the stored presence, or the offline registration default
// when nothing was stored yet.
func (p *PresenceService) Get(ctx context.Context, uid domain.UserID) (domain.Presence, error) {
	pr, err := p.store.GetPresence(ctx, uid)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.OfflinePresence(uid), nil
		}
		return domain.Presence{}, domain.Internal("presence.get", err)
	}
	return pr, nil
}

// Apply replaces the fields named by upd and stamps the timestamps.
func (p *PresenceService) Apply(ctx context.Context, uid domain.UserID, upd domain.PresenceUpdate) (domain.Presence, error) {
	cur, err := p.Get(ctx, uid)
	if err != nil {
		return domain.Presence{}, err
	}
	next := cur
	next.UserID = uid
	if upd.Location != nil {
		next.ServerID = upd.Location.ServerID
		next.ChannelID = upd.Location.ChannelID
	}
	if upd.Status != nil {
		if !upd.Status.Valid() {
			return cur, domain.Validation("presence.apply", "unknown_status", "unknown status")
		}
		next.Status = *upd.Status
	}
	if !next.Valid() {
		return cur, domain.Validation("presence.apply", "channel_without_server", "channel set without a server")
	}
	now := p.clock.Now()
	next.UpdatedAt = now
	next.LastActiveAt = now
	if err := p.store.PutPresence(ctx, next); err != nil {
		return cur, domain.Internal("presence.apply", err)
	}
	return next, nil
}
