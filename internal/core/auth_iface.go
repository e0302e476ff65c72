package core

import (
	"context"

	"github.com/dkeye/VoiceHub/internal/domain"
)

//go:generate mockgen -destination=mocks/mock_authenticator.go -package=mocks github.com/dkeye/VoiceHub/internal/core Authenticator

// Authenticator resolves a session token to the identity it was issued for.
type Authenticator interface {
	Resolve(ctx context.Context, token string) (domain.UserID, error)
}
