// Package auth resolves session tokens to identities.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/VoiceHub/internal/core"
	"github.com/dkeye/VoiceHub/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

var ErrInvalidToken = errors.New("invalid session token")

// Claims is the session token body; the subject is the identity id.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuthenticator verifies HMAC-signed session tokens.
type JWTAuthenticator struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

var _ core.Authenticator = (*JWTAuthenticator)(nil)

func NewJWTAuthenticator(secret, issuer string, ttl time.Duration) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

func (a *JWTAuthenticator) Resolve(_ context.Context, token string) (domain.UserID, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	}, jwt.WithIssuer(a.issuer), jwt.WithTimeFunc(a.now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		log.Debug().Err(err).Str("module", "adapters.auth").Msg("token rejected")
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	uid := domain.UserID(claims.Subject)
	if err := domain.ValidateUserID(uid); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return uid, nil
}

// Issue signs a token for uid, used by the token command and tests.
func (a *JWTAuthenticator) Issue(uid domain.UserID, name string) (string, error) {
	now := a.now()
	claims := Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(uid),
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
