package orch

import (
	"context"
	"errors"

	"github.com/dkeye/VoiceHub/internal/app"
	"github.com/dkeye/VoiceHub/internal/core"
	"github.com/dkeye/VoiceHub/internal/domain"
	"github.com/rs/zerolog/log"
)

// JoinServer moves the identity into sid and its lobby. On any rejection
// the identity's presence is left untouched.
func (o *Orchestrator) JoinServer(ctx context.Context, uid domain.UserID, sid domain.ServerID) (*ServerSnapshot, error) {
	const op = "connectServer"
	if sid == "" {
		return nil, o.fail(op, uid, domain.Validation(op, "missing_server", "serverId is required"))
	}
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	unlock := o.Seq.Lock(uid)
	defer unlock()

	if err := o.requireConnected(op, uid); err != nil {
		return nil, o.fail(op, uid, err)
	}
	srv, err := o.getServer(ctx, op, sid)
	if err != nil {
		return nil, o.fail(op, uid, err)
	}
	pres, err := o.Presence.Get(ctx, uid)
	if err != nil {
		return nil, o.fail(op, uid, err)
	}

	if loc, ok := o.scopes.get(uid); ok && pres.ServerID == sid && loc.ServerID == sid {
		snap, err := o.snapshot(ctx, srv)
		if err != nil {
			return nil, o.fail(op, uid, err)
		}
		o.Notify.SendTo(uid, app.Event{Type: EvServerUpdate, Data: snap})
		return snap, nil
	}

	if err := o.Members.CanEnter(ctx, uid, srv); err != nil {
		return nil, o.fail(op, uid, err)
	}
	lobby, err := o.lobbyOf(ctx, op, srv)
	if err != nil {
		return nil, o.fail(op, uid, err)
	}

	if err := o.joinServerLocked(ctx, uid, srv, lobby, pres); err != nil {
		return nil, o.fail(op, uid, err)
	}

	snap, err := o.snapshot(ctx, srv)
	if err != nil {
		return nil, o.fail(op, uid, err)
	}
	o.Notify.Broadcast(o.Groups.Members(core.ServerGroup(sid)), "", app.Event{Type: EvServerUpdate, Data: snap})
	log.Info().Str("module", "orch").Str("user", string(uid)).Str("server", string(sid)).Msg("joined server")
	return snap, nil
}

// lobbyOf resolves the lobby a join lands in. A lobby that is missing or
// belongs elsewhere is a catalog inconsistency.
func (o *Orchestrator) lobbyOf(ctx context.Context, op string, srv *domain.Server) (*domain.Channel, error) {
	lobby, err := o.getChannel(ctx, op, srv.LobbyID)
	if err != nil {
		return nil, domain.Internal(op, err)
	}
	if lobby.ServerID != srv.ID || !lobby.IsLobby {
		return nil, domain.Internal(op, errors.New("lobby channel does not belong to server"))
	}
	return lobby, nil
}

// joinServerLocked leaves the previous server, enters srv and lands in the
// lobby. The membership is created only once the identity is in. Any
// failure puts the identity back where it was.
func (o *Orchestrator) joinServerLocked(ctx context.Context, uid domain.UserID, srv *domain.Server, lobby *domain.Channel, pres domain.Presence) error {
	prev := o.currentLocation(pres, uid)
	if prev.ServerID == "" {
		prev = domain.Location{ServerID: pres.ServerID, ChannelID: pres.ChannelID}
	}
	if prev.ServerID != "" {
		if err := o.leaveServerLocked(ctx, uid); err != nil {
			o.restoreLocation(ctx, uid, prev)
			return err
		}
	}

	o.Groups.Join(core.ServerGroup(srv.ID), uid)
	o.scopes.set(uid, domain.Location{ServerID: srv.ID})
	next, err := o.Presence.Apply(ctx, uid, domain.PresenceUpdate{Location: domain.At(srv.ID, "")})
	if err != nil {
		o.Groups.Leave(core.ServerGroup(srv.ID), uid)
		o.scopes.drop(uid)
		o.restoreLocation(ctx, uid, prev)
		return err
	}

	_, err = o.joinChannelLocked(ctx, uid, srv, lobby, next)
	if err == nil {
		_, err = o.Members.EnsureMembership(ctx, uid, srv.ID)
	}
	if err != nil {
		if rbErr := o.leaveServerLocked(ctx, uid); rbErr != nil {
			log.Error().Err(rbErr).Str("module", "orch").Str("user", string(uid)).Msg("rollback of server join failed")
		}
		o.restoreLocation(ctx, uid, prev)
		return err
	}
	return nil
}

// restoreLocation puts the identity back into prev after a failed server
// switch: audience, occupant set, timer and presence. RTC rooms are not
// rejoined.
func (o *Orchestrator) restoreLocation(ctx context.Context, uid domain.UserID, prev domain.Location) {
	if prev.ServerID == "" {
		o.scopes.drop(uid)
		return
	}
	o.Groups.Join(core.ServerGroup(prev.ServerID), uid)
	o.scopes.set(uid, prev)
	if prev.ChannelID != "" {
		if o.Groups.Join(core.ChannelGroup(prev.ChannelID), uid) {
			o.cue(prev.ChannelID, uid, CueJoin)
		}
		o.Accrual.Start(app.AccrualKey{UserID: uid, ServerID: prev.ServerID, ChannelID: prev.ChannelID})
	}
	if _, err := o.Presence.Apply(ctx, uid, domain.PresenceUpdate{Location: domain.At(prev.ServerID, prev.ChannelID)}); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("user", string(uid)).Str("server", string(prev.ServerID)).Msg("restoring presence failed")
	}
	o.broadcastServer(ctx, prev.ServerID)
	log.Warn().Str("module", "orch").Str("user", string(uid)).Str("server", string(prev.ServerID)).Str("channel", string(prev.ChannelID)).Msg("server switch rolled back")
}

// LeaveServer leaves sid, cascading the channel leave first. Leaving a
// server the identity is not in is a no-op.
func (o *Orchestrator) LeaveServer(ctx context.Context, uid domain.UserID, sid domain.ServerID) error {
	const op = "disconnectServer"
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	unlock := o.Seq.Lock(uid)
	defer unlock()

	pres, err := o.Presence.Get(ctx, uid)
	if err != nil {
		return o.fail(op, uid, err)
	}
	loc, _ := o.scopes.get(uid)
	if sid != "" && pres.ServerID != sid && loc.ServerID != sid {
		return nil
	}
	if err := o.leaveServerLocked(ctx, uid); err != nil {
		return o.fail(op, uid, err)
	}
	o.Notify.SendTo(uid, app.Event{Type: EvServerUpdate, Data: nil})
	return nil
}

// leaveServerLocked clears the channel first, then the audience, and
// writes presence last. The old audience gets a fresh snapshot.
func (o *Orchestrator) leaveServerLocked(ctx context.Context, uid domain.UserID) error {
	pres, perr := o.Presence.Get(ctx, uid)
	loc, _ := o.scopes.get(uid)
	sid := loc.ServerID
	if sid == "" {
		sid = pres.ServerID
	}
	if sid == "" {
		return perr
	}

	var errs []error
	if perr != nil {
		errs = append(errs, perr)
	}
	if _, err := o.leaveChannelLocked(ctx, uid, sid); err != nil {
		errs = append(errs, err)
	}
	o.Groups.Leave(core.ServerGroup(sid), uid)
	o.scopes.drop(uid)
	if _, err := o.Presence.Apply(ctx, uid, domain.PresenceUpdate{Location: domain.Nowhere()}); err != nil {
		errs = append(errs, err)
	}

	o.broadcastServer(ctx, sid)
	log.Info().Str("module", "orch").Str("user", string(uid)).Str("server", string(sid)).Msg("left server")
	return errors.Join(errs...)
}
