package domain

import (
	"time"
	"unicode/utf8"
)

// PermissionLevel is the ordinal standing of a member inside a server.
type PermissionLevel int

const (
	LevelGuest PermissionLevel = iota + 1
	LevelMember
	LevelModerator
	LevelSeniorModerator
	LevelAdmin
	LevelOwner
)

const MaxNicknameLen = 32

func (l PermissionLevel) Valid() bool { return l >= LevelGuest && l <= LevelOwner }

func (l PermissionLevel) String() string {
	switch l {
	case LevelGuest:
		return "guest"
	case LevelMember:
		return "member"
	case LevelModerator:
		return "moderator"
	case LevelSeniorModerator:
		return "senior_moderator"
	case LevelAdmin:
		return "admin"
	case LevelOwner:
		return "owner"
	}
	return "unknown"
}

// Membership is an identity's standing in one server.
// It survives disconnects: nickname and contribution are kept.
type Membership struct {
	UserID       UserID          `json:"userId"`
	ServerID     ServerID        `json:"serverId"`
	Level        PermissionLevel `json:"level"`
	Contribution int64           `json:"contribution"`
	Nickname     string          `json:"nickname,omitempty"`
	Blocked      bool            `json:"blocked"`
	JoinedAt     time.Time       `json:"joinedAt"`
}

func NewMembership(uid UserID, sid ServerID, level PermissionLevel, now time.Time) *Membership {
	return &Membership{UserID: uid, ServerID: sid, Level: level, JoinedAt: now}
}

func (m *Membership) SetNickname(nick string) error {
	if utf8.RuneCountInString(nick) > MaxNicknameLen {
		return Validation("membership.nickname", "nickname_too_long", "nickname is too long")
	}
	m.Nickname = nick
	return nil
}

func (m *Membership) Clone() *Membership {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

const MaxApplicationNoteLen = 500

// Application is a pending join request for a non-public server.
type Application struct {
	UserID    UserID    `json:"userId"`
	ServerID  ServerID  `json:"serverId"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewApplication(uid UserID, sid ServerID, note string, now time.Time) (*Application, error) {
	if len(note) > MaxApplicationNoteLen {
		return nil, Validation("application.new", "note_too_long", "application note is too long")
	}
	return &Application{UserID: uid, ServerID: sid, Note: note, CreatedAt: now}, nil
}
