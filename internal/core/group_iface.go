package core

import "github.com/dkeye/VoiceHub/internal/domain"

// GroupID names a broadcast scope: a channel's occupants, a server's
// audience or a signaling room.
type GroupID string

func ChannelGroup(id domain.ChannelID) GroupID { return GroupID("channel:" + id) }
func ServerGroup(id domain.ServerID) GroupID   { return GroupID("server:" + id) }
func RTCGroup(id domain.ChannelID) GroupID     { return GroupID("rtc:" + id) }

// Group is a concurrency-safe set of identities. Members returns a copy so
// callers can broadcast while the set is being modified.
type Group interface {
	Add(uid domain.UserID) bool
	Remove(uid domain.UserID) bool
	Count() int
	Members() []domain.UserID
}

type GroupInfo struct {
	ID          GroupID `json:"id"`
	MemberCount int     `json:"memberCount"`
}

type GroupManager interface {
	// Join adds uid to the group, creating it when needed.
	Join(id GroupID, uid domain.UserID) bool
	// Leave removes uid from the group and drops the group once empty.
	Leave(id GroupID, uid domain.UserID) bool
	Members(id GroupID) []domain.UserID
	List() []GroupInfo
}
