package orch

import (
	"context"

	"github.com/dkeye/VoiceHub/internal/app"
	"github.com/dkeye/VoiceHub/internal/core"
	"github.com/dkeye/VoiceHub/internal/domain"
)

type PresenceEvent struct {
	UserID domain.UserID `json:"userId"`
	Status domain.Status `json:"status"`
}

// UpdateUser renames the identity. The caller gets userUpdate and the
// current server audience a fresh snapshot.
func (o *Orchestrator) UpdateUser(ctx context.Context, uid domain.UserID, displayName string) (*domain.Identity, error) {
	const op = "updateUser"
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	unlock := o.Seq.Lock(uid)
	defer unlock()

	if err := o.requireConnected(op, uid); err != nil {
		return nil, o.fail(op, uid, err)
	}
	u, err := o.Identities.GetIdentity(ctx, uid)
	if err != nil {
		return nil, o.fail(op, uid, err)
	}
	if err := u.SetDisplayName(displayName); err != nil {
		return nil, o.fail(op, uid, err)
	}
	if err := o.Identities.SaveIdentity(ctx, u); err != nil {
		return nil, o.fail(op, uid, domain.Internal(op, err))
	}
	o.Notify.SendTo(uid, app.Event{Type: EvUserUpdate, Data: u})
	if loc, ok := o.scopes.get(uid); ok {
		o.broadcastServer(ctx, loc.ServerID)
	}
	return u, nil
}

// UpdatePresence sets the user-chosen status. Offline is reserved for
// disconnects.
func (o *Orchestrator) UpdatePresence(ctx context.Context, uid domain.UserID, raw string) (domain.Presence, error) {
	const op = "updatePresence"
	status, err := domain.ParseStatus(raw)
	if err != nil {
		return domain.Presence{}, o.fail(op, uid, err)
	}
	if status == domain.StatusOffline {
		return domain.Presence{}, o.fail(op, uid, domain.Validation(op, "offline_reserved", "offline cannot be set while connected"))
	}
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	unlock := o.Seq.Lock(uid)
	defer unlock()

	if err := o.requireConnected(op, uid); err != nil {
		return domain.Presence{}, o.fail(op, uid, err)
	}
	u, err := o.Identities.GetIdentity(ctx, uid)
	if err != nil {
		return domain.Presence{}, o.fail(op, uid, err)
	}
	u.Status = status
	if err := o.Identities.SaveIdentity(ctx, u); err != nil {
		return domain.Presence{}, o.fail(op, uid, domain.Internal(op, err))
	}
	pres, err := o.Presence.Apply(ctx, uid, domain.PresenceUpdate{Status: &status})
	if err != nil {
		return domain.Presence{}, o.fail(op, uid, err)
	}

	ev := app.Event{Type: EvUserPresenceUpdate, Data: PresenceEvent{UserID: uid, Status: status}}
	recipients := []domain.UserID{uid}
	if pres.ServerID != "" {
		recipients = withMember(o.Groups.Members(core.ServerGroup(pres.ServerID)), uid)
	}
	o.Notify.Broadcast(recipients, "", ev)
	return pres, nil
}

// SetNickname changes the per-server nickname of the caller.
func (o *Orchestrator) SetNickname(ctx context.Context, uid domain.UserID, sid domain.ServerID, nick string) (*domain.Membership, error) {
	const op = "updateMember"
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
	ms, err := o.Members.SetNickname(ctx, uid, sid, nick)
	if err != nil {
		return nil, o.fail(op, uid, err)
	}
	snap, err := o.snapshot(ctx, srv)
	if err != nil {
		return nil, o.fail(op, uid, err)
	}
	o.Notify.Broadcast(withMember(o.Groups.Members(core.ServerGroup(sid)), uid), "", app.Event{Type: EvServerUpdate, Data: snap})
	return ms, nil
}

func withMember(uids []domain.UserID, uid domain.UserID) []domain.UserID {
	for _, u := range uids {
		if u == uid {
			return uids
		}
	}
	return append(uids, uid)
}
