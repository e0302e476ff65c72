package domain

import "time"

type Status string

const (
	StatusOnline  Status = "online"
	StatusDND     Status = "dnd"
	StatusIdle    Status = "idle"
	StatusOffline Status = "offline"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusDND, StatusIdle, StatusOffline:
		return true
	}
	return false
}

func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", Validation("presence.status", "unknown_status", "unknown status "+raw)
	}
	return s, nil
}

// Presence is where and how an identity currently is.
// Empty ServerID/ChannelID mean "none".
type Presence struct {
	UserID       UserID    `json:"userId"`
	ServerID     ServerID  `json:"serverId,omitempty"`
	ChannelID    ChannelID `json:"channelId,omitempty"`
	Status       Status    `json:"status"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// OfflinePresence is the record every account starts with.
func OfflinePresence(uid UserID) Presence {
	return Presence{UserID: uid, Status: StatusOffline}
}

// Valid reports whether the nesting invariant holds.
func (p Presence) Valid() bool {
	return p.ChannelID == "" || p.ServerID != ""
}

// Location is the full (server, channel) pair of a presence.
// The zero value means "nowhere".
type Location struct {
	ServerID  ServerID
	ChannelID ChannelID
}

// PresenceUpdate replaces whole fields: a nil field is left untouched,
// a non-nil Location replaces both ids (zero Location clears them).
type PresenceUpdate struct {
	Location *Location
	Status   *Status
}

func At(server ServerID, channel ChannelID) *Location {
	return &Location{ServerID: server, ChannelID: channel}
}

func Nowhere() *Location { return &Location{} }

func WithStatus(s Status) *Status { return &s }
