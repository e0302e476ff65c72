package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestJWTAuthenticator_IssueResolve(t *testing.T) {
	a := NewJWTAuthenticator("s3cret", "voicehub", time.Hour)
	tok, err := a.Issue("user-u", "U")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	uid, err := a.Resolve(context.Background(), tok)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if uid != "user-u" {
		t.Errorf("Resolve() = %q", uid)
	}
}

func TestJWTAuthenticator_Rejects(t *testing.T) {
	a := NewJWTAuthenticator("s3cret", "voicehub", time.Hour)
	good, _ := a.Issue("user-u", "")

	other := NewJWTAuthenticator("different", "voicehub", time.Hour)
	forged, _ := other.Issue("user-u", "")

	wrongIssuer, _ := NewJWTAuthenticator("s3cret", "elsewhere", time.Hour).Issue("user-u", "")

	expiredIssuer := NewJWTAuthenticator("s3cret", "voicehub", time.Minute)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, _ := expiredIssuer.Issue("user-u", "")

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"wrong secret", forged},
		{"wrong issuer", wrongIssuer},
		{"expired", expired},
		{"truncated", good[:len(good)-4]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Resolve(context.Background(), tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("Resolve() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}
