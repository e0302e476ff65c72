package testutil

import (
	"context"
	"testing"

	"github.com/dkeye/VoiceHub/internal/core"
	"github.com/dkeye/VoiceHub/internal/domain"
)

// Fixture ids. Server S is public with lobby L, voice channels C2 and C3,
// a private channel P, a readonly channel R and a category K. Server H is
// private, server V is invisible; both are owned by "owner".
const (
	ServerS  domain.ServerID  = "srv-public"
	LobbyL   domain.ChannelID = "ch-lobby"
	ChanC2   domain.ChannelID = "ch-c2"
	ChanC3   domain.ChannelID = "ch-c3"
	ChanP    domain.ChannelID = "ch-private"
	ChanR    domain.ChannelID = "ch-readonly"
	ChanK    domain.ChannelID = "ch-category"
	ServerH  domain.ServerID  = "srv-private"
	LobbyH   domain.ChannelID = "ch-lobby-h"
	ServerV  domain.ServerID  = "srv-invisible"
	LobbyV   domain.ChannelID = "ch-lobby-v"
	Owner    domain.UserID    = "owner"
	UserU    domain.UserID    = "user-u"
	UserW    domain.UserID    = "user-w"
	UserX    domain.UserID    = "user-x"
	Stranger domain.UserID    = "stranger"
)

// SeedStore writes the fixture catalog and identities into store.
func SeedStore(t *testing.T, store core.Store) {
	t.Helper()
	ctx := context.Background()

	for _, id := range []domain.UserID{Owner, UserU, UserW, UserX, Stranger} {
		u, err := domain.NewIdentity(id, string(id))
		if err != nil {
			t.Fatalf("NewIdentity(%s) error = %v", id, err)
		}
		if err := store.SaveIdentity(ctx, u); err != nil {
			t.Fatalf("SaveIdentity(%s) error = %v", id, err)
		}
	}

	servers := []*domain.Server{
		{ID: ServerS, Name: "Public", OwnerID: Owner, Visibility: domain.ServerPublic, LobbyID: LobbyL},
		{ID: ServerH, Name: "Hidden", OwnerID: Owner, Visibility: domain.ServerPrivate, LobbyID: LobbyH},
		{ID: ServerV, Name: "Invisible", OwnerID: Owner, Visibility: domain.ServerInvisible, LobbyID: LobbyV},
	}
	for _, s := range servers {
		if err := store.SaveServer(ctx, s); err != nil {
			t.Fatalf("SaveServer(%s) error = %v", s.ID, err)
		}
	}

	channels := []*domain.Channel{
		{ID: LobbyL, ServerID: ServerS, Name: "Lobby", Visibility: domain.ChannelPublic, IsLobby: true, Position: 0},
		{ID: ChanK, ServerID: ServerS, Name: "Voice", Visibility: domain.ChannelPublic, IsCategory: true, Position: 1},
		{ID: ChanC2, ServerID: ServerS, ParentID: ChanK, Name: "C2", Visibility: domain.ChannelPublic, Position: 2},
		{ID: ChanC3, ServerID: ServerS, ParentID: ChanK, Name: "C3", Visibility: domain.ChannelPublic, Position: 3},
		{ID: ChanP, ServerID: ServerS, Name: "Staff", Visibility: domain.ChannelPrivate, Position: 4},
		{ID: ChanR, ServerID: ServerS, Name: "Announcements", Visibility: domain.ChannelReadonly, Position: 5},
		{ID: LobbyH, ServerID: ServerH, Name: "Lobby", Visibility: domain.ChannelPublic, IsLobby: true},
		{ID: LobbyV, ServerID: ServerV, Name: "Lobby", Visibility: domain.ChannelPublic, IsLobby: true},
	}
	for _, c := range channels {
		if err := store.SaveChannel(ctx, c); err != nil {
			t.Fatalf("SaveChannel(%s) error = %v", c.ID, err)
		}
	}
}
