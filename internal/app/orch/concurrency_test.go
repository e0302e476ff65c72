package orch_test

import (
	"context"
	"sync"
	"testing"

	"github.com/dkeye/VoiceHub/internal/core"
	"github.com/dkeye/VoiceHub/internal/domain"
	"github.com/dkeye/VoiceHub/internal/testutil"
)

var everyone = []domain.UserID{testutil.Owner, testutil.UserU, testutil.UserW, testutil.UserX, testutil.Stranger}

func assertGone(t *testing.T, h *harness, uid domain.UserID) {
	t.Helper()
	for _, ch := range []domain.ChannelID{testutil.LobbyL, testutil.ChanC2, testutil.ChanC3} {
		if contains(h.occupants(ch), uid) {
			t.Errorf("%s still occupies %s", uid, ch)
		}
		if contains(h.o.Groups.Members(core.RTCGroup(ch)), uid) {
			t.Errorf("%s still in rtc room %s", uid, ch)
		}
	}
	if contains(h.o.Groups.Members(core.ServerGroup(testutil.ServerS)), uid) {
		t.Errorf("%s still in the audience", uid)
	}
	if _, ok := h.o.Accrual.Active(uid); ok {
		t.Errorf("%s still has an accrual timer", uid)
	}
	if _, ok := h.o.Registry.LookupUser(uid); ok {
		t.Errorf("%s still bound", uid)
	}
	p := h.presence(uid)
	if p.ServerID != "" || p.ChannelID != "" {
		t.Errorf("presence of %s = %+v", uid, p)
	}
}

func TestDisconnect_CascadeCompleteUnderInterleaving(t *testing.T) {
	for round := 0; round < 20; round++ {
		h := newHarness(t)
		for _, uid := range everyone {
			h.connect(uid)
			h.joinServer(uid, testutil.ServerS)
		}

		ctx := context.Background()
		var wg sync.WaitGroup
		for _, uid := range everyone {
			wg.Add(3)
			go func() {
				defer wg.Done()
				for i := 0; i < 10; i++ {
					ch := testutil.ChanC2
					if i%2 == 1 {
						ch = testutil.ChanC3
					}
					_, _ = h.o.JoinChannel(ctx, uid, ch)
					_ = h.o.JoinRoom(ctx, uid, ch)
				}
			}()
			go func() {
				defer wg.Done()
				for i := 0; i < 5; i++ {
					h.sched.FireAll()
				}
			}()
			go func() {
				defer wg.Done()
				_ = h.o.Disconnect(ctx, connID(uid))
			}()
		}
		wg.Wait()

		for _, uid := range everyone {
			assertGone(t, h, uid)
		}
		if h.sched.Active() != 0 {
			t.Fatalf("round %d: %d timers leaked", round, h.sched.Active())
		}
		for _, p := range h.store.AllPresence() {
			if !p.Valid() {
				t.Fatalf("round %d: presence breaks nesting: %+v", round, p)
			}
		}
		if h.o.Seq.Len() != 0 {
			t.Fatalf("round %d: sequencer holds %d entries", round, h.o.Seq.Len())
		}
	}
}

func TestConnectUser_ConcurrentSingleBinding(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conns := make([]*testutil.RecordingConn, 16)
	var wg sync.WaitGroup
	for i := range conns {
		conns[i] = testutil.NewRecordingConn()
		wg.Add(1)
		go func() {
			defer wg.Done()
			cid := core.ConnID("c" + string(rune('a'+i)))
			if _, err := h.o.ConnectUser(ctx, cid, conns[i], "tok-"+string(testutil.UserU)); err != nil {
				t.Errorf("ConnectUser(%s) error = %v", cid, err)
			}
		}()
	}
	wg.Wait()

	if h.o.Registry.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", h.o.Registry.Count())
	}
	open := 0
	for _, c := range conns {
		if !c.Closed() {
			open++
		}
	}
	if open != 1 {
		t.Fatalf("%d connections left open, want 1", open)
	}
}

func TestShutdown_ClosesEverything(t *testing.T) {
	h := newHarness(t)
	for _, uid := range everyone {
		h.connect(uid)
		h.joinServer(uid, testutil.ServerS)
	}
	h.joinChannel(testutil.UserU, testutil.ChanC2)

	h.o.Shutdown(context.Background())

	for _, uid := range everyone {
		if !h.conns[uid].Closed() {
			t.Errorf("connection of %s still open", uid)
		}
		assertGone(t, h, uid)
	}
	if h.sched.Active() != 0 {
		t.Errorf("%d timers after shutdown", h.sched.Active())
	}
}
