package app_test

import (
	"context"
	"sync"
	"testing"

	"github.com/dkeye/VoiceHub/internal/adapters/storage"
	"github.com/dkeye/VoiceHub/internal/app"
	"github.com/dkeye/VoiceHub/internal/domain"
	"github.com/dkeye/VoiceHub/internal/testutil"
)

func newAccrual(t *testing.T) (*app.AccrualEngine, *testutil.ManualScheduler, *storage.MemoryStore, *app.MembershipManager) {
	t.Helper()
	store := storage.NewMemoryStore()
	testutil.SeedStore(t, store)
	members := app.NewMembershipManager(store, store, store, testutil.FixedClock())
	sched := testutil.NewManualScheduler()
	return app.NewAccrualEngine(app.DefaultAccrualConfig(), sched, store, members), sched, store, members
}

func TestAccrual_StartReplacesPriorTimer(t *testing.T) {
	e, sched, _, _ := newAccrual(t)
	k1 := app.AccrualKey{UserID: testutil.UserU, ServerID: testutil.ServerS, ChannelID: testutil.ChanC2}
	k2 := app.AccrualKey{UserID: testutil.UserU, ServerID: testutil.ServerS, ChannelID: testutil.ChanC3}

	g1 := e.Start(k1)
	g2 := e.Start(k2)
	if sched.Active() != 1 || e.ActiveCount() != 1 {
		t.Fatalf("active timers = %d/%d, want 1", sched.Active(), e.ActiveCount())
	}
	if e.Current(k1, g1) {
		t.Error("replaced timer still current")
	}
	if !e.Current(k2, g2) {
		t.Error("new timer not current")
	}
	if key, ok := e.Active(testutil.UserU); !ok || key != k2 {
		t.Errorf("Active() = %+v, %v", key, ok)
	}

	if !e.Stop(testutil.UserU) || sched.Active() != 0 {
		t.Fatal("Stop() left a timer behind")
	}
	if e.Stop(testutil.UserU) {
		t.Error("second Stop() reported a timer")
	}
}

func TestAccrual_FireCallsOnTick(t *testing.T) {
	e, sched, _, _ := newAccrual(t)
	var mu sync.Mutex
	var got []uint64
	e.OnTick(func(_ app.AccrualKey, gen uint64) {
		mu.Lock()
		got = append(got, gen)
		mu.Unlock()
	})
	gen := e.Start(app.AccrualKey{UserID: testutil.UserU, ServerID: testutil.ServerS, ChannelID: testutil.ChanC2})
	sched.FireAll()
	sched.FireAll()
	if len(got) != 2 || got[0] != gen {
		t.Fatalf("ticks = %v, want two of gen %d", got, gen)
	}
}

func TestAccrual_AccrueLevelsAndContribution(t *testing.T) {
	ctx := context.Background()
	e, _, store, members := newAccrual(t)
	if _, err := members.EnsureMembership(ctx, testutil.UserU, testutil.ServerS); err != nil {
		t.Fatal(err)
	}

	// requiredXp(1) = ceil(5 * 1.02) = 6
	res, err := e.Accrue(ctx, testutil.UserU, testutil.ServerS)
	if err != nil {
		t.Fatalf("Accrue() error = %v", err)
	}
	if res.Identity.Level != 1 || res.Identity.XP != 5 || res.LevelsGained != 0 || !res.Contributed {
		t.Fatalf("first tick = %+v / %+v", res, res.Identity)
	}
	res, err = e.Accrue(ctx, testutil.UserU, testutil.ServerS)
	if err != nil {
		t.Fatal(err)
	}
	if res.Identity.Level != 2 || res.Identity.XP != 4 || res.LevelsGained != 1 {
		t.Fatalf("second tick = %+v", res.Identity)
	}

	u, _ := store.GetIdentity(ctx, testutil.UserU)
	if u.Level != 2 || u.XP != 4 {
		t.Errorf("persisted identity = %+v", u)
	}
	ms, _, _ := members.Get(ctx, testutil.UserU, testutil.ServerS)
	if ms.Contribution != 10 {
		t.Errorf("contribution = %d, want 10", ms.Contribution)
	}
}

func TestAccrual_NoMembershipNoContribution(t *testing.T) {
	e, _, _, members := newAccrual(t)
	res, err := e.Accrue(context.Background(), testutil.UserW, testutil.ServerS)
	if err != nil {
		t.Fatal(err)
	}
	if res.Contributed {
		t.Error("contribution written without membership")
	}
	if _, found, _ := members.Get(context.Background(), testutil.UserW, testutil.ServerS); found {
		t.Error("Accrue created a membership")
	}
}

func TestAccrual_UnknownIdentity(t *testing.T) {
	e, _, _, _ := newAccrual(t)
	if _, err := e.Accrue(context.Background(), "ghost", testutil.ServerS); domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("Accrue(ghost) error = %v, want not found", err)
	}
}
