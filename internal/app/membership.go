package app

import (
	"context"
	"errors"

	"github.com/dkeye/VoiceHub/internal/core"
	"github.com/dkeye/VoiceHub/internal/domain"
	"github.com/rs/zerolog/log"
)

// MembershipManager owns server memberships, permission levels and the
// visibility rules applied on entry.
type MembershipManager struct {
	catalog core.CatalogStore
	members core.MembershipStore
	apps    core.ApplicationStore
	clock   core.Clock

	// PrivateThreshold is the level private channels require when the
	// server does not configure its own.
	PrivateThreshold domain.PermissionLevel
}

func NewMembershipManager(catalog core.CatalogStore, members core.MembershipStore, apps core.ApplicationStore, clock core.Clock) *MembershipManager {
	if clock == nil {
		clock = core.RealClock{}
	}
	return &MembershipManager{
		catalog:          catalog,
		members:          members,
		apps:             apps,
		clock:            clock,
		PrivateThreshold: domain.LevelMember,
	}
}

// Get returns the membership and whether it exists.
func (m *MembershipManager) Get(ctx context.Context, uid domain.UserID, sid domain.ServerID) (*domain.Membership, bool, error) {
	ms, err := m.members.GetMembership(ctx, uid, sid)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, domain.Internal("membership.get", err)
	}
	return ms, true, nil
}

// List returns every membership of sid ordered by user id.
func (m *MembershipManager) List(ctx context.Context, sid domain.ServerID) ([]*domain.Membership, error) {
	list, err := m.members.ListMemberships(ctx, sid)
	if err != nil {
		return nil, domain.Internal("membership.list", err)
	}
	return list, nil
}

func (m *MembershipManager) server(ctx context.Context, op string, sid domain.ServerID) (*domain.Server, error) {
	srv, err := m.catalog.GetServer(ctx, sid)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NotFound(op, "server")
		}
		return nil, domain.Internal(op, err)
	}
	return srv, nil
}

func effectiveLevel(srv *domain.Server, uid domain.UserID, ms *domain.Membership) domain.PermissionLevel {
	if srv != nil && srv.OwnerID == uid {
		return domain.LevelOwner
	}
	if ms == nil || !ms.Level.Valid() {
		return domain.LevelGuest
	}
	return ms.Level
}

// EnsureMembership returns the membership, creating a guest one on first
// join. Blocked identities get domain.KindBlocked.
func (m *MembershipManager) EnsureMembership(ctx context.Context, uid domain.UserID, sid domain.ServerID) (*domain.Membership, error) {
	const op = "membership.ensure"
	srv, err := m.server(ctx, op, sid)
	if err != nil {
		return nil, err
	}
	ms, found, err := m.Get(ctx, uid, sid)
	if err != nil {
		return nil, err
	}
	if found {
		if ms.Blocked {
			return nil, domain.Blocked(op)
		}
		if srv.OwnerID == uid && ms.Level != domain.LevelOwner {
			ms.Level = domain.LevelOwner
			if err := m.members.SaveMembership(ctx, ms); err != nil {
				return nil, domain.Internal(op, err)
			}
		}
		return ms, nil
	}

	ms = domain.NewMembership(uid, sid, effectiveLevel(srv, uid, nil), m.clock.Now())
	if err := m.members.SaveMembership(ctx, ms); err != nil {
		return nil, domain.Internal(op, err)
	}
	log.Info().Str("module", "app.membership").Str("user", string(uid)).Str("server", string(sid)).Str("level", ms.Level.String()).Msg("membership created")
	return ms, nil
}

// PermissionLevel never fails: anything unknown is a guest.
func (m *MembershipManager) PermissionLevel(ctx context.Context, uid domain.UserID, sid domain.ServerID) domain.PermissionLevel {
	srv, _ := m.catalog.GetServer(ctx, sid)
	ms, _, err := m.Get(ctx, uid, sid)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.membership").Str("user", string(uid)).Msg("permission lookup failed, treating as guest")
		ms = nil
	}
	return effectiveLevel(srv, uid, ms)
}

// CanEnter evaluates server visibility against the identity's membership.
func (m *MembershipManager) CanEnter(ctx context.Context, uid domain.UserID, srv *domain.Server) error {
	const op = "membership.can_enter"
	ms, found, err := m.Get(ctx, uid, srv.ID)
	if err != nil {
		return err
	}
	if found && ms.Blocked {
		return domain.Blocked(op)
	}
	level := effectiveLevel(srv, uid, ms)
	switch srv.Visibility {
	case domain.ServerPublic:
		return nil
	case domain.ServerPrivate:
		if found || level > domain.LevelGuest {
			return nil
		}
		return domain.Denied(op, "private_server", "server is private")
	case domain.ServerInvisible:
		if level > domain.LevelGuest && (found || srv.OwnerID == uid) {
			return nil
		}
		return domain.Denied(op, "visibility_denied", "server is not visible")
	}
	return domain.Denied(op, "visibility_denied", "unknown server visibility")
}

// CanEnterChannel applies the channel-level rules on top of CanEnter.
func (m *MembershipManager) CanEnterChannel(ctx context.Context, uid domain.UserID, srv *domain.Server, ch *domain.Channel) error {
	const op = "membership.can_enter_channel"
	if ch.IsLobby {
		return nil
	}
	if ch.IsCategory {
		return domain.Validation(op, "not_joinable", "categories cannot be joined")
	}
	switch ch.Visibility {
	case domain.ChannelReadonly:
		return domain.Denied(op, "readonly_channel", "channel is read-only")
	case domain.ChannelPrivate:
		need := srv.MemberThreshold
		if !need.Valid() {
			need = m.PrivateThreshold
		}
		if m.PermissionLevel(ctx, uid, srv.ID) < need {
			return domain.Denied(op, "private_channel", "channel is private")
		}
	}
	return nil
}

func (m *MembershipManager) requireLevel(ctx context.Context, op string, actor domain.UserID, sid domain.ServerID, min domain.PermissionLevel) error {
	if m.PermissionLevel(ctx, actor, sid) < min {
		return domain.Denied(op, "insufficient_level", "requires "+min.String())
	}
	return nil
}

// Apply files a join request for a non-public server.
func (m *MembershipManager) Apply(ctx context.Context, uid domain.UserID, sid domain.ServerID, note string) (*domain.Application, error) {
	const op = "membership.apply"
	srv, err := m.server(ctx, op, sid)
	if err != nil {
		return nil, err
	}
	if srv.Visibility == domain.ServerPublic {
		return nil, domain.Validation(op, "public_server", "public servers need no application")
	}
	ms, found, err := m.Get(ctx, uid, sid)
	if err != nil {
		return nil, err
	}
	if found && ms.Blocked {
		return nil, domain.Blocked(op)
	}
	if effectiveLevel(srv, uid, ms) > domain.LevelGuest {
		return nil, domain.Validation(op, "already_member", "already a member")
	}
	app, err := domain.NewApplication(uid, sid, note, m.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := m.apps.CreateApplication(ctx, app); err != nil {
		if domain.KindOf(err) == domain.KindConflict {
			return nil, domain.Conflict(op, "application_pending", "an application is already pending")
		}
		return nil, domain.Internal(op, err)
	}
	log.Info().Str("module", "app.membership").Str("user", string(uid)).Str("server", string(sid)).Msg("application filed")
	return app, nil
}

func (m *MembershipManager) ListApplications(ctx context.Context, actor domain.UserID, sid domain.ServerID) ([]*domain.Application, error) {
	const op = "membership.list_applications"
	if _, err := m.server(ctx, op, sid); err != nil {
		return nil, err
	}
	if err := m.requireLevel(ctx, op, actor, sid, domain.LevelModerator); err != nil {
		return nil, err
	}
	apps, err := m.apps.ListApplications(ctx, sid)
	if err != nil {
		return nil, domain.Internal(op, err)
	}
	return apps, nil
}

// Accept promotes the applicant to member and removes the application.
func (m *MembershipManager) Accept(ctx context.Context, actor, uid domain.UserID, sid domain.ServerID) (*domain.Membership, error) {
	const op = "membership.accept"
	if err := m.requireLevel(ctx, op, actor, sid, domain.LevelModerator); err != nil {
		return nil, err
	}
	if _, err := m.apps.GetApplication(ctx, uid, sid); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NotFound(op, "application")
		}
		return nil, domain.Internal(op, err)
	}
	ms, found, err := m.Get(ctx, uid, sid)
	if err != nil {
		return nil, err
	}
	if !found {
		ms = domain.NewMembership(uid, sid, domain.LevelMember, m.clock.Now())
	}
	if ms.Blocked {
		return nil, domain.Blocked(op)
	}
	if ms.Level < domain.LevelMember {
		ms.Level = domain.LevelMember
	}
	if err := m.members.SaveMembership(ctx, ms); err != nil {
		return nil, domain.Internal(op, err)
	}
	if err := m.apps.DeleteApplication(ctx, uid, sid); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, domain.Internal(op, err)
	}
	log.Info().Str("module", "app.membership").Str("actor", string(actor)).Str("user", string(uid)).Str("server", string(sid)).Msg("application accepted")
	return ms, nil
}

func (m *MembershipManager) Reject(ctx context.Context, actor, uid domain.UserID, sid domain.ServerID) error {
	const op = "membership.reject"
	if err := m.requireLevel(ctx, op, actor, sid, domain.LevelModerator); err != nil {
		return err
	}
	if err := m.apps.DeleteApplication(ctx, uid, sid); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NotFound(op, "application")
		}
		return domain.Internal(op, err)
	}
	return nil
}

// SetBlocked blocks or unblocks target. The actor must be a moderator
// ranked strictly above the target.
func (m *MembershipManager) SetBlocked(ctx context.Context, actor, target domain.UserID, sid domain.ServerID, blocked bool) (*domain.Membership, error) {
	const op = "membership.set_blocked"
	srv, err := m.server(ctx, op, sid)
	if err != nil {
		return nil, err
	}
	if actor == target {
		return nil, domain.Validation(op, "self_block", "cannot block yourself")
	}
	if err := m.requireLevel(ctx, op, actor, sid, domain.LevelModerator); err != nil {
		return nil, err
	}
	ms, found, err := m.Get(ctx, target, sid)
	if err != nil {
		return nil, err
	}
	if m.PermissionLevel(ctx, actor, sid) <= effectiveLevel(srv, target, ms) {
		return nil, domain.Denied(op, "insufficient_level", "target outranks actor")
	}
	if !found {
		ms = domain.NewMembership(target, sid, domain.LevelGuest, m.clock.Now())
	}
	ms.Blocked = blocked
	if err := m.members.SaveMembership(ctx, ms); err != nil {
		return nil, domain.Internal(op, err)
	}
	log.Info().Str("module", "app.membership").Str("actor", string(actor)).Str("user", string(target)).Bool("blocked", blocked).Msg("block flag changed")
	return ms, nil
}

func (m *MembershipManager) SetNickname(ctx context.Context, uid domain.UserID, sid domain.ServerID, nick string) (*domain.Membership, error) {
	const op = "membership.set_nickname"
	ms, found, err := m.Get(ctx, uid, sid)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.NotFound(op, "membership")
	}
	if err := ms.SetNickname(nick); err != nil {
		return nil, err
	}
	if err := m.members.SaveMembership(ctx, ms); err != nil {
		return nil, domain.Internal(op, err)
	}
	return ms, nil
}

// Contribute adds delta to the membership's contribution counter when the
// membership exists. It reports whether anything was written.
func (m *MembershipManager) Contribute(ctx context.Context, uid domain.UserID, sid domain.ServerID, delta int64) (bool, error) {
	ms, found, err := m.Get(ctx, uid, sid)
	if err != nil || !found {
		return false, err
	}
	ms.Contribution += delta
	if err := m.members.SaveMembership(ctx, ms); err != nil {
		return false, domain.Internal("membership.contribute", err)
	}
	return true, nil
}
