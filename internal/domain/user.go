// Package domain contains entity without logic, just meta-data
package domain

import "unicode/utf8"

const (
	MaxUserIDLen      = 64
	MaxDisplayNameLen = 36
)

type UserID string

// Identity is an authenticated account as seen by the realtime core.
type Identity struct {
	ID          UserID `json:"id"`
	DisplayName string `json:"displayName"`
	Level       int    `json:"level"`
	XP          int64  `json:"xp"`
	Status      Status `json:"status"`
}

// NewIdentity is a tiny helper to avoid ad-hoc struct literals in adapters.
// A fresh account starts at level 1 and offline.
func NewIdentity(id UserID, displayName string) (*Identity, error) {
	if err := ValidateUserID(id); err != nil {
		return nil, err
	}
	u := &Identity{ID: id, Level: 1, Status: StatusOffline}
	if err := u.SetDisplayName(displayName); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *Identity) SetDisplayName(name string) error {
	if len(name) == 0 {
		return Validation("identity.name", "display_name_empty", "display name is empty")
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLen {
		return Validation("identity.name", "display_name_too_long", "display name is too long")
	}
	u.DisplayName = name
	return nil
}

func ValidateUserID(id UserID) error {
	if id == "" {
		return Validation("identity.id", "user_id_empty", "user id is empty")
	}
	if len(id) > MaxUserIDLen {
		return Validation("identity.id", "user_id_too_long", "user id is too long")
	}
	return nil
}

func (u *Identity) Clone() *Identity {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
