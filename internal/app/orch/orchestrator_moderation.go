package orch

import (
	"context"

	"github.com/dkeye/VoiceHub/internal/app"
	"github.com/dkeye/VoiceHub/internal/domain"
	"github.com/rs/zerolog/log"
)

type ApplicationResult struct {
	ServerID domain.ServerID `json:"serverId"`
	UserID   domain.UserID   `json:"userId"`
	Accepted bool            `json:"accepted"`
}

type BlockEvent struct {
	ServerID domain.ServerID `json:"serverId"`
	UserID   domain.UserID   `json:"userId"`
	Blocked  bool            `json:"blocked"`
}

// ApplyToServer files a join request for a private or invisible server.
func (o *Orchestrator) ApplyToServer(ctx context.Context, uid domain.UserID, sid domain.ServerID, note string) (*domain.Application, error) {
	const op = "applyServer"
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
	a, err := o.Members.Apply(ctx, uid, sid, note)
	if err != nil {
		return nil, o.fail(op, uid, err)
	}
	o.Notify.SendTo(uid, app.Event{Type: EvApplicationCreated, Data: a})
	return a, nil
}

func (o *Orchestrator) ListApplications(ctx context.Context, actor domain.UserID, sid domain.ServerID) ([]*domain.Application, error) {
	const op = "listApplications"
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()
	if err := o.requireConnected(op, actor); err != nil {
		return nil, o.fail(op, actor, err)
	}
	apps, err := o.Members.ListApplications(ctx, actor, sid)
	if err != nil {
		return nil, o.fail(op, actor, err)
	}
	o.Notify.SendTo(actor, app.Event{Type: EvApplications, Data: apps})
	return apps, nil
}

// AcceptApplication promotes the applicant to member. It runs under the
// applicant's critical section since the applicant's membership changes.
func (o *Orchestrator) AcceptApplication(ctx context.Context, actor, uid domain.UserID, sid domain.ServerID) (*domain.Membership, error) {
	const op = "acceptApplication"
	return o.resolveApplication(ctx, op, actor, uid, sid, true)
}

func (o *Orchestrator) RejectApplication(ctx context.Context, actor, uid domain.UserID, sid domain.ServerID) error {
	const op = "rejectApplication"
	_, err := o.resolveApplication(ctx, op, actor, uid, sid, false)
	return err
}

func (o *Orchestrator) resolveApplication(ctx context.Context, op string, actor, uid domain.UserID, sid domain.ServerID, accept bool) (*domain.Membership, error) {
	if uid == "" || sid == "" {
		return nil, o.fail(op, actor, domain.Validation(op, "missing_field", "serverId and userId are required"))
	}
	if err := o.requireConnected(op, actor); err != nil {
		return nil, o.fail(op, actor, err)
	}
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	unlock := o.Seq.Lock(uid)
	defer unlock()

	var ms *domain.Membership
	var err error
	if accept {
		ms, err = o.Members.Accept(ctx, actor, uid, sid)
	} else {
		err = o.Members.Reject(ctx, actor, uid, sid)
	}
	if err != nil {
		return nil, o.fail(op, actor, err)
	}
	ev := app.Event{Type: EvApplicationResult, Data: ApplicationResult{ServerID: sid, UserID: uid, Accepted: accept}}
	o.Notify.Broadcast(withMember([]domain.UserID{uid}, actor), "", ev)
	return ms, nil
}

// BlockMember sets the block flag of target in sid. A blocked target that
// is in the server is taken out through the leaveServer cascade.
func (o *Orchestrator) BlockMember(ctx context.Context, actor, target domain.UserID, sid domain.ServerID, blocked bool) (*domain.Membership, error) {
	const op = "blockMember"
	if target == "" || sid == "" {
		return nil, o.fail(op, actor, domain.Validation(op, "missing_field", "serverId and userId are required"))
	}
	if actor == target {
		return nil, o.fail(op, actor, domain.Validation(op, "self_block", "cannot block yourself"))
	}
	if err := o.requireConnected(op, actor); err != nil {
		return nil, o.fail(op, actor, err)
	}
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	unlock := o.Seq.Lock(target)
	defer unlock()

	ms, err := o.Members.SetBlocked(ctx, actor, target, sid, blocked)
	if err != nil {
		return nil, o.fail(op, actor, err)
	}
	ev := app.Event{Type: EvMemberBlocked, Data: BlockEvent{ServerID: sid, UserID: target, Blocked: blocked}}
	o.Notify.Broadcast([]domain.UserID{target, actor}, "", ev)

	if blocked {
		pres, perr := o.Presence.Get(ctx, target)
		loc, ok := o.scopes.get(target)
		if (ok && loc.ServerID == sid) || (perr == nil && pres.ServerID == sid) {
			if err := o.leaveServerLocked(ctx, target); err != nil {
				log.Error().Err(err).Str("module", "orch").Str("user", string(target)).Msg("kick after block incomplete")
			}
			o.Notify.SendTo(target, app.Event{Type: EvServerUpdate, Data: nil})
		}
	}
	return ms, nil
}
