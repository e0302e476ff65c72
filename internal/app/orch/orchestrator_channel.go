package orch

import (
	"context"
	"errors"

	"github.com/dkeye/VoiceHub/internal/app"
	"github.com/dkeye/VoiceHub/internal/core"
	"github.com/dkeye/VoiceHub/internal/domain"
	"github.com/rs/zerolog/log"
)

// currentLocation prefers the runtime scope and falls back to presence.
func (o *Orchestrator) currentLocation(pres domain.Presence, uid domain.UserID) domain.Location {
	if loc, ok := o.scopes.get(uid); ok {
		return loc
	}
	return domain.Location{ServerID: pres.ServerID, ChannelID: pres.ChannelID}
}

// JoinChannel moves the identity into a channel of its current server.
func (o *Orchestrator) JoinChannel(ctx context.Context, uid domain.UserID, cid domain.ChannelID) (*ChannelEvent, error) {
	const op = "connectChannel"
	if cid == "" {
		return nil, o.fail(op, uid, domain.Validation(op, "missing_channel", "channelId is required"))
	}
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	unlock := o.Seq.Lock(uid)
	defer unlock()

	if err := o.requireConnected(op, uid); err != nil {
		return nil, o.fail(op, uid, err)
	}
	ch, err := o.getChannel(ctx, op, cid)
	if err != nil {
		return nil, o.fail(op, uid, err)
	}
	pres, err := o.Presence.Get(ctx, uid)
	if err != nil {
		return nil, o.fail(op, uid, err)
	}
	loc := o.currentLocation(pres, uid)
	if loc.ServerID == "" {
		return nil, o.fail(op, uid, domain.Conflict(op, "not_in_server", "join a server first"))
	}
	if ch.ServerID != loc.ServerID {
		return nil, o.fail(op, uid, domain.Denied(op, "cross_server", "channel belongs to another server"))
	}

	ev := &ChannelEvent{ServerID: ch.ServerID, ChannelID: ch.ID}
	if loc.ChannelID == ch.ID && pres.ChannelID == ch.ID {
		o.Notify.SendTo(uid, app.Event{Type: EvChannelConnect, Data: ev})
		return ev, nil
	}

	srv, err := o.getServer(ctx, op, ch.ServerID)
	if err != nil {
		return nil, o.fail(op, uid, err)
	}
	if err := o.Members.CanEnter(ctx, uid, srv); err != nil {
		return nil, o.fail(op, uid, err)
	}
	if err := o.Members.CanEnterChannel(ctx, uid, srv, ch); err != nil {
		return nil, o.fail(op, uid, err)
	}

	if _, err := o.joinChannelLocked(ctx, uid, srv, ch, pres); err != nil {
		return nil, o.fail(op, uid, err)
	}
	o.Notify.SendTo(uid, app.Event{Type: EvChannelConnect, Data: ev})
	o.broadcastServer(ctx, srv.ID)
	return ev, nil
}

// joinChannelLocked performs the atomic leave+join. The old timer is
// stopped and the old occupant set left before the new one is entered.
// On failure the identity is put back where its presence says it is.
func (o *Orchestrator) joinChannelLocked(ctx context.Context, uid domain.UserID, srv *domain.Server, ch *domain.Channel, pres domain.Presence) (domain.Presence, error) {
	loc := o.currentLocation(pres, uid)
	prev := loc.ChannelID
	if prev == "" {
		prev = pres.ChannelID
	}
	if prev == ch.ID && pres.ChannelID == ch.ID {
		return pres, nil
	}

	o.Accrual.Stop(uid)
	if prev != "" {
		o.Relay.LeaveRoom(uid, prev)
		if o.Groups.Leave(core.ChannelGroup(prev), uid) {
			o.cue(prev, uid, CueLeave)
		}
	}

	o.Groups.Join(core.ChannelGroup(ch.ID), uid)
	o.scopes.set(uid, domain.Location{ServerID: srv.ID, ChannelID: ch.ID})
	o.Accrual.Start(app.AccrualKey{UserID: uid, ServerID: srv.ID, ChannelID: ch.ID})

	next, err := o.Presence.Apply(ctx, uid, domain.PresenceUpdate{Location: domain.At(srv.ID, ch.ID)})
	if err != nil {
		// presence still holds the previous location; put the runtime back
		o.Accrual.Stop(uid)
		o.Groups.Leave(core.ChannelGroup(ch.ID), uid)
		o.scopes.set(uid, domain.Location{ServerID: srv.ID, ChannelID: prev})
		if prev != "" {
			o.Groups.Join(core.ChannelGroup(prev), uid)
			o.Accrual.Start(app.AccrualKey{UserID: uid, ServerID: srv.ID, ChannelID: prev})
			o.cue(prev, uid, CueJoin)
		}
		log.Error().Err(err).Str("module", "orch").Str("user", string(uid)).Str("channel", string(ch.ID)).Msg("channel join rolled back")
		return pres, err
	}

	o.cue(ch.ID, uid, CueJoin)
	log.Info().Str("module", "orch").Str("user", string(uid)).Str("from", string(prev)).Str("channel", string(ch.ID)).Msg("joined channel")
	return next, nil
}

// LeaveChannel returns the identity to its server with no channel.
// Leaving a channel the identity is not in is a no-op.
func (o *Orchestrator) LeaveChannel(ctx context.Context, uid domain.UserID, cid domain.ChannelID) error {
	const op = "disconnectChannel"
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	unlock := o.Seq.Lock(uid)
	defer unlock()

	pres, err := o.Presence.Get(ctx, uid)
	if err != nil {
		return o.fail(op, uid, err)
	}
	loc := o.currentLocation(pres, uid)
	if loc.ChannelID == "" && pres.ChannelID == "" {
		return nil
	}
	if cid != "" && loc.ChannelID != cid && pres.ChannelID != cid {
		return nil
	}
	sid := loc.ServerID
	if sid == "" {
		sid = pres.ServerID
	}
	if _, err := o.leaveChannelLocked(ctx, uid, sid); err != nil {
		return o.fail(op, uid, err)
	}
	o.broadcastServer(ctx, sid)
	return nil
}

// leaveChannelLocked stops the timer, leaves the RTC room and the occupant
// set, then writes presence. It returns the channel that was left.
func (o *Orchestrator) leaveChannelLocked(ctx context.Context, uid domain.UserID, sid domain.ServerID) (domain.ChannelID, error) {
	loc, _ := o.scopes.get(uid)
	ch := loc.ChannelID
	var perr error
	if ch == "" {
		var pres domain.Presence
		pres, perr = o.Presence.Get(ctx, uid)
		ch = pres.ChannelID
	}
	if ch == "" {
		o.Accrual.Stop(uid)
		return "", perr
	}

	o.Accrual.Stop(uid)
	o.Relay.LeaveRoom(uid, ch)
	if o.Groups.Leave(core.ChannelGroup(ch), uid) {
		o.cue(ch, uid, CueLeave)
	}
	o.scopes.clearChannel(uid)

	var errs []error
	if perr != nil {
		errs = append(errs, perr)
	}
	if _, err := o.Presence.Apply(ctx, uid, domain.PresenceUpdate{Location: domain.At(sid, "")}); err != nil {
		errs = append(errs, err)
	}
	o.Notify.SendTo(uid, app.Event{Type: EvChannelDisconnect, Data: ChannelEvent{ServerID: sid, ChannelID: ch}})
	log.Info().Str("module", "orch").Str("user", string(uid)).Str("channel", string(ch)).Msg("left channel")
	return ch, errors.Join(errs...)
}
