package core

import (
	"context"

	"github.com/dkeye/VoiceHub/internal/domain"
)

// The persistence collaborator. Implementations return domain.NotFound
// errors for missing records and may fail with any other error, which the
// app layer normalizes into domain.KindInternal.

type IdentityStore interface {
	GetIdentity(ctx context.Context, id domain.UserID) (*domain.Identity, error)
	SaveIdentity(ctx context.Context, u *domain.Identity) error
}

type CatalogStore interface {
	GetServer(ctx context.Context, id domain.ServerID) (*domain.Server, error)
	SaveServer(ctx context.Context, s *domain.Server) error
	GetChannel(ctx context.Context, id domain.ChannelID) (*domain.Channel, error)
	SaveChannel(ctx context.Context, c *domain.Channel) error
	// ListChannels returns the server's channels ordered by position.
	ListChannels(ctx context.Context, sid domain.ServerID) ([]*domain.Channel, error)
}

type MembershipStore interface {
	GetMembership(ctx context.Context, uid domain.UserID, sid domain.ServerID) (*domain.Membership, error)
	SaveMembership(ctx context.Context, m *domain.Membership) error
	ListMemberships(ctx context.Context, sid domain.ServerID) ([]*domain.Membership, error)
}

type ApplicationStore interface {
	GetApplication(ctx context.Context, uid domain.UserID, sid domain.ServerID) (*domain.Application, error)
	// CreateApplication fails with domain.KindConflict when one is outstanding.
	CreateApplication(ctx context.Context, a *domain.Application) error
	DeleteApplication(ctx context.Context, uid domain.UserID, sid domain.ServerID) error
	ListApplications(ctx context.Context, sid domain.ServerID) ([]*domain.Application, error)
}

type PresenceStore interface {
	GetPresence(ctx context.Context, uid domain.UserID) (domain.Presence, error)
	PutPresence(ctx context.Context, p domain.Presence) error
}

// Store is everything the coordinator needs from persistence.
type Store interface {
	IdentityStore
	CatalogStore
	MembershipStore
	ApplicationStore
	PresenceStore
}
