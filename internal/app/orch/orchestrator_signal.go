package orch

import (
	"context"
	"encoding/json"

	"github.com/dkeye/VoiceHub/internal/app"
	"github.com/dkeye/VoiceHub/internal/domain"
)

// RelaySignal forwards an offer, answer or ICE candidate to a peer.
func (o *Orchestrator) RelaySignal(ctx context.Context, from, to domain.UserID, kind app.SignalKind, payload json.RawMessage) error {
	const op = "relay"
	if err := o.requireConnected(op, from); err != nil {
		return o.fail(op, from, err)
	}
	if err := o.Relay.Relay(ctx, from, to, kind, payload); err != nil {
		return o.fail(op, from, err)
	}
	return nil
}

// JoinRoom admits the identity to the RTC room of the channel it occupies.
func (o *Orchestrator) JoinRoom(ctx context.Context, uid domain.UserID, ch domain.ChannelID) error {
	const op = "RTCJoin"
	if ch == "" {
		return o.fail(op, uid, domain.Validation(op, "missing_channel", "channelId is required"))
	}
	unlock := o.Seq.Lock(uid)
	defer unlock()

	if err := o.requireConnected(op, uid); err != nil {
		return o.fail(op, uid, err)
	}
	loc, ok := o.scopes.get(uid)
	if !ok || loc.ChannelID != ch {
		return o.fail(op, uid, domain.Denied(op, "not_in_channel", "join the channel first"))
	}
	o.Relay.JoinRoom(uid, ch)
	return nil
}

func (o *Orchestrator) LeaveRoom(ctx context.Context, uid domain.UserID, ch domain.ChannelID) error {
	unlock := o.Seq.Lock(uid)
	defer unlock()
	o.Relay.LeaveRoom(uid, ch)
	return nil
}
