package orch_test

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/VoiceHub/internal/adapters/auth"
	"github.com/dkeye/VoiceHub/internal/adapters/storage"
	"github.com/dkeye/VoiceHub/internal/app"
	"github.com/dkeye/VoiceHub/internal/app/orch"
	"github.com/dkeye/VoiceHub/internal/domain"
	"github.com/dkeye/VoiceHub/internal/testutil"
)

func TestScenario_OverSQLite(t *testing.T) {
	ctx := context.Background()
	store, err := storage.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	testutil.SeedStore(t, store)

	issuer := auth.NewJWTAuthenticator("secret", "voicehub", time.Hour)
	sched := testutil.NewManualScheduler()
	o := orch.New(orch.Deps{
		Store:     store,
		Auth:      issuer,
		Clock:     testutil.FixedClock(),
		Scheduler: sched,
		Policy:    app.LenientPolicy{},
		Accrual:   app.DefaultAccrualConfig(),
	})

	tok, _ := issuer.Issue(testutil.UserU, "U")
	conn := testutil.NewRecordingConn()
	if _, err := o.ConnectUser(ctx, "c1", conn, tok); err != nil {
		t.Fatalf("ConnectUser() error = %v", err)
	}
	if _, err := o.JoinServer(ctx, testutil.UserU, testutil.ServerS); err != nil {
		t.Fatalf("JoinServer() error = %v", err)
	}
	if _, err := o.JoinChannel(ctx, testutil.UserU, testutil.ChanC2); err != nil {
		t.Fatalf("JoinChannel() error = %v", err)
	}

	p, err := store.GetPresence(ctx, testutil.UserU)
	if err != nil || p.ServerID != testutil.ServerS || p.ChannelID != testutil.ChanC2 {
		t.Fatalf("stored presence = %+v, %v", p, err)
	}

	sched.FireAll()
	sched.FireAll()
	u, _ := store.GetIdentity(ctx, testutil.UserU)
	if u.Level != 2 || u.XP != 4 {
		t.Errorf("identity after two ticks = level %d xp %d, want 2/4", u.Level, u.XP)
	}
	ms, err := store.GetMembership(ctx, testutil.UserU, testutil.ServerS)
	if err != nil || ms.Contribution != 10 {
		t.Errorf("membership = %+v, %v", ms, err)
	}

	if err := o.Disconnect(ctx, "c1"); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	p, _ = store.GetPresence(ctx, testutil.UserU)
	if p.Status != domain.StatusOffline || p.ServerID != "" || p.ChannelID != "" {
		t.Errorf("presence after disconnect = %+v", p)
	}
	if sched.Active() != 0 {
		t.Errorf("%d timers left", sched.Active())
	}
}
