package orch

import (
	"context"
	"errors"

	"github.com/dkeye/VoiceHub/internal/app"
	"github.com/dkeye/VoiceHub/internal/core"
	"github.com/dkeye/VoiceHub/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

// ConnectUser authenticates token and binds the identity to conn. A live
// connection of the same identity is force-disconnected first.
func (o *Orchestrator) ConnectUser(ctx context.Context, cid core.ConnID, conn core.SignalConnection, token string) (*ConnectEvent, error) {
	const op = "connectUser"
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	if token == "" {
		return nil, o.fail(op, "", domain.Validation(op, "missing_token", "session token is required"))
	}
	uid, err := o.Auth.Resolve(ctx, token)
	if err != nil || uid == "" {
		log.Warn().Err(err).Str("module", "orch").Str("conn", string(cid)).Msg("token rejected")
		return nil, domain.Denied(op, "unauthenticated", "invalid session token")
	}
	if bound, ok := o.Registry.LookupConn(cid); ok && bound != uid {
		return nil, o.fail(op, uid, domain.Conflict(op, "connection_in_use", "connection already authenticated as another identity"))
	}

	unlock := o.Seq.Lock(uid)
	defer unlock()

	u, err := o.Identities.GetIdentity(ctx, uid)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return nil, o.fail(op, uid, domain.NotFound(op, "identity"))
		}
		return nil, o.fail(op, uid, domain.Internal(op, err))
	}

	if bound, ok := o.Registry.LookupConn(cid); ok && bound == uid {
		pres, err := o.Presence.Get(ctx, uid)
		if err != nil {
			return nil, o.fail(op, uid, err)
		}
		ev := &ConnectEvent{User: u, Presence: pres}
		o.Notify.SendConn(uid, conn, app.Event{Type: EvUserConnect, Data: ev})
		return ev, nil
	}

	for attempt := 0; ; attempt++ {
		prior, err := o.Registry.Bind(uid, cid, conn)
		if err == nil {
			break
		}
		if errors.Is(err, app.ErrAlreadyBound) && prior != nil && attempt == 0 {
			o.replaceLocked(ctx, *prior)
			continue
		}
		return nil, o.fail(op, uid, err)
	}

	pres, err := o.Presence.Get(ctx, uid)
	if err != nil {
		o.Registry.UnbindConn(cid)
		return nil, o.fail(op, uid, err)
	}
	status := pres.Status
	if status == domain.StatusOffline || !status.Valid() {
		status = domain.StatusOnline
		if u.Status.Valid() && u.Status != domain.StatusOffline {
			status = u.Status
		}
	}
	pres, err = o.Presence.Apply(ctx, uid, domain.PresenceUpdate{Location: domain.Nowhere(), Status: &status})
	if err != nil {
		o.Registry.UnbindConn(cid)
		return nil, o.fail(op, uid, err)
	}

	ev := &ConnectEvent{User: u, Presence: pres}
	o.Notify.SendConn(uid, conn, app.Event{Type: EvUserConnect, Data: ev})
	log.Info().Str("module", "orch").Str("user", string(uid)).Str("conn", string(cid)).Msg("user connected")
	return ev, nil
}

// replaceLocked tears down a stale connection of the identity whose lock is
// held. Teardown completes even when the notice cannot be delivered.
func (o *Orchestrator) replaceLocked(ctx context.Context, prior app.Binding) {
	log.Warn().Str("module", "orch").Str("user", string(prior.UserID)).Str("conn", string(prior.ConnID)).Msg("replacing live connection")
	o.Notify.SendConn(prior.UserID, prior.Conn, app.Event{Type: EvUserDisconnect, Data: DisconnectEvent{Reason: "replaced"}})
	if err := o.teardownLocked(ctx, prior.UserID, prior.ConnID); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("user", string(prior.UserID)).Msg("teardown of replaced connection incomplete")
	}
	prior.Conn.Close()
}

// Disconnect runs the full teardown for a closed transport. Connections
// that were already replaced or never bound are ignored.
func (o *Orchestrator) Disconnect(ctx context.Context, cid core.ConnID) error {
	const op = "disconnect"
	uid, ok := o.Registry.LookupConn(cid)
	if !ok {
		return nil
	}
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	unlock := o.Seq.Lock(uid)
	defer unlock()
	if cur, ok := o.Registry.LookupConn(cid); !ok || cur != uid {
		return nil
	}
	if err := o.teardownLocked(ctx, uid, cid); err != nil {
		return o.fail(op, uid, err)
	}
	log.Info().Str("module", "orch").Str("user", string(uid)).Str("conn", string(cid)).Msg("user disconnected")
	return nil
}

// teardownLocked cascades leaveServer, drops the binding and marks the
// identity offline. Runtime state is always cleared; the returned error
// only reports presence writes that failed.
func (o *Orchestrator) teardownLocked(ctx context.Context, uid domain.UserID, cid core.ConnID) error {
	var errs []error
	if err := o.leaveServerLocked(ctx, uid); err != nil {
		errs = append(errs, err)
	}
	o.Accrual.Stop(uid)
	o.Relay.LeaveAll(uid)
	o.Registry.UnbindConn(cid)

	offline := domain.StatusOffline
	if _, err := o.Presence.Apply(ctx, uid, domain.PresenceUpdate{Location: domain.Nowhere(), Status: &offline}); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Shutdown disconnects every bound connection.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	var wg conc.WaitGroup
	for _, b := range o.Registry.Snapshot() {
		wg.Go(func() {
			o.Notify.SendConn(b.UserID, b.Conn, app.Event{Type: EvUserDisconnect, Data: DisconnectEvent{Reason: "shutdown"}})
			if err := o.Disconnect(ctx, b.ConnID); err != nil {
				log.Error().Err(err).Str("module", "orch").Str("user", string(b.UserID)).Msg("shutdown teardown")
			}
			b.Conn.Close()
		})
	}
	wg.Wait()
	o.Accrual.StopAll()
	log.Info().Str("module", "orch").Msg("all sessions closed")
}
