package main

import (
	"context"
	"fmt"

	"github.com/dkeye/VoiceHub/internal/core"
	"github.com/dkeye/VoiceHub/internal/domain"
	"github.com/google/uuid"
)

func ensureIdentity(ctx context.Context, store core.IdentityStore, uid domain.UserID, name string) error {
	if _, err := store.GetIdentity(ctx, uid); err == nil {
		return nil
	} else if domain.KindOf(err) != domain.KindNotFound {
		return fmt.Errorf("lookup identity %s: %w", uid, err)
	}
	u, err := domain.NewIdentity(uid, name)
	if err != nil {
		return err
	}
	return store.SaveIdentity(ctx, u)
}

// seedDemo creates the given identities and a public server owned by the
// first of them: a lobby plus a voice category with two rooms.
func seedDemo(ctx context.Context, store core.Store, users []string) (domain.ServerID, error) {
	if len(users) == 0 {
		return "", fmt.Errorf("at least one demo user is required")
	}
	for _, name := range users {
		if err := ensureIdentity(ctx, store, domain.UserID(name), name); err != nil {
			return "", err
		}
	}

	sid := domain.ServerID(uuid.NewString())
	lobby := domain.ChannelID(uuid.NewString())
	category := domain.ChannelID(uuid.NewString())
	if err := store.SaveServer(ctx, &domain.Server{
		ID:         sid,
		Name:       "Demo",
		OwnerID:    domain.UserID(users[0]),
		Visibility: domain.ServerPublic,
		LobbyID:    lobby,
	}); err != nil {
		return "", err
	}
	channels := []*domain.Channel{
		{ID: lobby, ServerID: sid, Name: "Lobby", Visibility: domain.ChannelPublic, IsLobby: true},
		{ID: category, ServerID: sid, Name: "Voice", Visibility: domain.ChannelPublic, IsCategory: true, Position: 1},
		{ID: domain.ChannelID(uuid.NewString()), ServerID: sid, ParentID: category, Name: "General", Visibility: domain.ChannelPublic, Position: 2},
		{ID: domain.ChannelID(uuid.NewString()), ServerID: sid, ParentID: category, Name: "Gaming", Visibility: domain.ChannelPublic, Position: 3},
	}
	for _, ch := range channels {
		if err := store.SaveChannel(ctx, ch); err != nil {
			return "", err
		}
	}
	return sid, nil
}
