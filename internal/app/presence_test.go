package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/VoiceHub/internal/adapters/storage"
	"github.com/dkeye/VoiceHub/internal/app"
	"github.com/dkeye/VoiceHub/internal/domain"
	"github.com/dkeye/VoiceHub/internal/testutil"
)

func TestPresence_DefaultsToOffline(t *testing.T) {
	p := app.NewPresenceService(storage.NewMemoryStore(), testutil.FixedClock())
	got, err := p.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != domain.StatusOffline || got.ServerID != "" || got.ChannelID != "" {
		t.Fatalf("Get() = %+v, want offline nowhere", got)
	}
}

func TestPresence_ApplyReplacesWholeLocation(t *testing.T) {
	ctx := context.Background()
	clock := testutil.FixedClock()
	p := app.NewPresenceService(storage.NewMemoryStore(), clock)

	if _, err := p.Apply(ctx, "u1", domain.PresenceUpdate{Location: domain.At("s1", "c1"), Status: domain.WithStatus(domain.StatusOnline)}); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Minute)
	got, err := p.Apply(ctx, "u1", domain.PresenceUpdate{Location: domain.At("s1", "")})
	if err != nil {
		t.Fatal(err)
	}
	if got.ChannelID != "" || got.ServerID != "s1" {
		t.Errorf("location = %q/%q, want s1/none", got.ServerID, got.ChannelID)
	}
	if got.Status != domain.StatusOnline {
		t.Errorf("status = %q, want untouched online", got.Status)
	}
	if !got.UpdatedAt.Equal(clock.Now()) || !got.LastActiveAt.Equal(clock.Now()) {
		t.Errorf("timestamps not stamped: %+v", got)
	}
}

func TestPresence_RejectsInvalid(t *testing.T) {
	ctx := context.Background()
	p := app.NewPresenceService(storage.NewMemoryStore(), testutil.FixedClock())

	tests := []struct {
		name string
		upd  domain.PresenceUpdate
	}{
		{"channel without server", domain.PresenceUpdate{Location: domain.At("", "c1")}},
		{"unknown status", domain.PresenceUpdate{Status: domain.WithStatus("away")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Apply(ctx, "u1", tt.upd)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("Apply() error = %v, want validation", err)
			}
		})
	}
}

func TestPresence_StoreFailureIsInternal(t *testing.T) {
	store := storage.NewMemoryStore()
	store.FailPresenceWrites(errors.New("disk full"))
	p := app.NewPresenceService(store, testutil.FixedClock())

	_, err := p.Apply(context.Background(), "u1", domain.PresenceUpdate{Location: domain.At("s1", "")})
	if domain.KindOf(err) != domain.KindInternal {
		t.Fatalf("KindOf = %v, want internal", domain.KindOf(err))
	}
}
