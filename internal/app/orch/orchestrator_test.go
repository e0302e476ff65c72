package orch_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dkeye/VoiceHub/internal/app/orch"
	"github.com/dkeye/VoiceHub/internal/core"
	"github.com/dkeye/VoiceHub/internal/domain"
	"github.com/dkeye/VoiceHub/internal/testutil"
)

func TestScenario_LobbyThenChannelThenDisconnect(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	conn := h.connect(testutil.UserU)

	snap := h.joinServer(testutil.UserU, testutil.ServerS)
	if !contains(snap.Occupants(testutil.LobbyL), testutil.UserU) {
		t.Fatalf("snapshot lobby occupants = %v, want U", snap.Occupants(testutil.LobbyL))
	}
	msg, ok := conn.Last(orch.EvServerUpdate)
	if !ok {
		t.Fatal("no serverUpdate delivered")
	}
	if got := decode[orch.ServerSnapshot](t, msg); !contains(got.Occupants(testutil.LobbyL), testutil.UserU) {
		t.Fatalf("serverUpdate lobby occupants = %v", got.Occupants(testutil.LobbyL))
	}
	if st, _ := h.o.StateOf(ctx, testutil.UserU); st != orch.InChannel {
		t.Errorf("state = %v, want IN_CHANNEL (lobby)", st)
	}

	conn.Reset()
	h.joinChannel(testutil.UserU, testutil.ChanC2)

	if contains(h.occupants(testutil.LobbyL), testutil.UserU) {
		t.Error("U still in lobby")
	}
	if !contains(h.occupants(testutil.ChanC2), testutil.UserU) {
		t.Error("U not in C2")
	}
	got := cues(t, conn, testutil.UserU)
	want := []orch.CueEvent{
		{Cue: orch.CueLeave, UserID: testutil.UserU, ChannelID: testutil.LobbyL},
		{Cue: orch.CueJoin, UserID: testutil.UserU, ChannelID: testutil.ChanC2},
	}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("cues = %+v, want %+v", got, want)
	}
	if _, ok := conn.Last(orch.EvChannelConnect); !ok {
		t.Error("no channelConnect")
	}

	if err := h.o.Disconnect(ctx, connID(testutil.UserU)); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	p := h.presence(testutil.UserU)
	if p.ServerID != "" || p.ChannelID != "" || p.Status != domain.StatusOffline {
		t.Fatalf("presence after disconnect = %+v", p)
	}
	if h.sched.Active() != 0 || h.o.Accrual.ActiveCount() != 0 {
		t.Errorf("timers left: scheduler=%d engine=%d", h.sched.Active(), h.o.Accrual.ActiveCount())
	}
	if contains(h.occupants(testutil.ChanC2), testutil.UserU) {
		t.Error("U still occupies C2")
	}
	if st, _ := h.o.StateOf(ctx, testutil.UserU); st != orch.Disconnected {
		t.Errorf("state = %v, want DISCONNECTED", st)
	}
}

func TestJoinChannel_Idempotent(t *testing.T) {
	h := newHarness(t)
	conn := h.connect(testutil.UserU)
	h.joinServer(testutil.UserU, testutil.ServerS)
	h.joinChannel(testutil.UserU, testutil.ChanC2)
	before := h.presence(testutil.UserU)
	conn.Reset()

	h.joinChannel(testutil.UserU, testutil.ChanC2)

	if after := h.presence(testutil.UserU); after != before {
		t.Errorf("presence changed: %+v -> %+v", before, after)
	}
	if occ := h.occupants(testutil.ChanC2); len(occ) != 1 {
		t.Errorf("C2 occupants = %v", occ)
	}
	if h.sched.Active() != 1 {
		t.Errorf("timers = %d, want 1", h.sched.Active())
	}
	if len(cues(t, conn, testutil.UserU)) != 0 {
		t.Error("repeated join emitted cues")
	}
	if _, ok := conn.Last(orch.EvChannelConnect); !ok {
		t.Error("repeated join did not confirm with channelConnect")
	}
}

func TestJoinServer_IdempotentAndLeaves(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.connect(testutil.UserU)
	h.joinServer(testutil.UserU, testutil.ServerS)
	h.joinChannel(testutil.UserU, testutil.ChanC2)

	h.joinServer(testutil.UserU, testutil.ServerS)
	if p := h.presence(testutil.UserU); p.ChannelID != testutil.ChanC2 {
		t.Fatalf("re-joining the same server moved U: %+v", p)
	}

	if err := h.o.LeaveChannel(ctx, testutil.UserU, testutil.ChanC2); err != nil {
		t.Fatal(err)
	}
	if err := h.o.LeaveChannel(ctx, testutil.UserU, testutil.ChanC2); err != nil {
		t.Fatalf("second LeaveChannel() error = %v", err)
	}
	if p := h.presence(testutil.UserU); p.ServerID != testutil.ServerS || p.ChannelID != "" {
		t.Fatalf("presence = %+v, want in server without channel", p)
	}
	if h.sched.Active() != 0 {
		t.Error("leaving the channel left its timer")
	}

	if err := h.o.LeaveServer(ctx, testutil.UserU, testutil.ServerS); err != nil {
		t.Fatal(err)
	}
	if err := h.o.LeaveServer(ctx, testutil.UserU, testutil.ServerS); err != nil {
		t.Fatalf("second LeaveServer() error = %v", err)
	}
	if st, _ := h.o.StateOf(ctx, testutil.UserU); st != orch.Connected {
		t.Fatalf("state = %v, want CONNECTED", st)
	}
}

func TestJoinServer_SwitchServersCascades(t *testing.T) {
	h := newHarness(t)
	h.connect(testutil.Owner)
	h.joinServer(testutil.Owner, testutil.ServerS)
	h.joinChannel(testutil.Owner, testutil.ChanC2)

	h.joinServer(testutil.Owner, testutil.ServerH)

	if contains(h.occupants(testutil.ChanC2), testutil.Owner) {
		t.Error("owner still in C2 after switching servers")
	}
	if contains(h.o.Groups.Members(core.ServerGroup(testutil.ServerS)), testutil.Owner) {
		t.Error("owner still in the audience of S")
	}
	if p := h.presence(testutil.Owner); p.ServerID != testutil.ServerH || p.ChannelID != testutil.LobbyH {
		t.Fatalf("presence = %+v", p)
	}
	if h.sched.Active() != 1 {
		t.Errorf("timers = %d, want 1", h.sched.Active())
	}
}

func TestJoin_Rejections(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.connect(testutil.UserU)

	_, err := h.o.JoinChannel(ctx, testutil.UserU, testutil.ChanC2)
	assertKind(t, err, domain.KindConflict, "not_in_server")

	_, err = h.o.JoinServer(ctx, testutil.UserU, testutil.ServerH)
	assertKind(t, err, domain.KindPermissionDenied, "private_server")
	_, err = h.o.JoinServer(ctx, testutil.UserU, "nope")
	assertKind(t, err, domain.KindNotFound, "")
	if p := h.presence(testutil.UserU); p.ServerID != "" {
		t.Fatalf("rejected join changed presence: %+v", p)
	}

	h.joinServer(testutil.UserU, testutil.ServerS)
	_, err = h.o.JoinChannel(ctx, testutil.UserU, testutil.LobbyH)
	assertKind(t, err, domain.KindPermissionDenied, "cross_server")
	_, err = h.o.JoinChannel(ctx, testutil.UserU, testutil.ChanR)
	assertKind(t, err, domain.KindPermissionDenied, "readonly_channel")
	_, err = h.o.JoinChannel(ctx, testutil.UserU, testutil.ChanK)
	assertKind(t, err, domain.KindValidation, "not_joinable")
	if p := h.presence(testutil.UserU); p.ChannelID != testutil.LobbyL {
		t.Fatalf("rejected channel join moved U: %+v", p)
	}

	_, err = h.o.JoinServer(ctx, testutil.Stranger, testutil.ServerS)
	assertKind(t, err, domain.KindConflict, "not_connected")
}

func TestJoinServer_BlockedLeavesPresenceUntouched(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	ms := domain.NewMembership(testutil.UserU, testutil.ServerS, domain.LevelMember, testutil.FixedClock().Now())
	ms.Blocked = true
	if err := h.store.SaveMembership(ctx, ms); err != nil {
		t.Fatal(err)
	}
	h.connect(testutil.UserU)
	before := h.presence(testutil.UserU)

	_, err := h.o.JoinServer(ctx, testutil.UserU, testutil.ServerS)
	assertKind(t, err, domain.KindBlocked, "")
	if after := h.presence(testutil.UserU); after != before {
		t.Fatalf("presence changed: %+v -> %+v", before, after)
	}
	if contains(h.o.Groups.Members(core.ServerGroup(testutil.ServerS)), testutil.UserU) {
		t.Error("blocked identity joined the audience")
	}
}

func TestConnectUser_ForcedReplacement(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	first := h.connectAs(testutil.UserU, "c1")
	h.joinServer(testutil.UserU, testutil.ServerS)
	h.joinChannel(testutil.UserU, testutil.ChanC2)

	second := h.connectAs(testutil.UserU, "c2")

	msg, ok := first.Last(orch.EvUserDisconnect)
	if !ok || decode[orch.DisconnectEvent](t, msg).Reason != "replaced" {
		t.Fatalf("first connection notice = %+v, %v", msg, ok)
	}
	if !first.Closed() {
		t.Error("first connection not closed")
	}
	if contains(h.occupants(testutil.ChanC2), testutil.UserU) {
		t.Error("replaced session still occupies C2")
	}
	if h.sched.Active() != 0 {
		t.Error("replaced session left its timer")
	}
	if b, ok := h.o.Registry.LookupUser(testutil.UserU); !ok || b.ConnID != "c2" {
		t.Fatalf("binding = %+v, %v", b, ok)
	}
	if _, ok := second.Last(orch.EvUserConnect); !ok {
		t.Error("new connection got no userConnect")
	}

	// the old transport's read loop ends later; it must not touch the new session
	if err := h.o.Disconnect(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	if _, ok := h.o.Registry.LookupUser(testutil.UserU); !ok {
		t.Fatal("late disconnect of the replaced connection unbound the new one")
	}
	if p := h.presence(testutil.UserU); p.Status != domain.StatusOnline {
		t.Errorf("status = %v", p.Status)
	}
}

func TestConnectUser_BadToken(t *testing.T) {
	h := newHarness(t)
	_, err := h.o.ConnectUser(context.Background(), "c1", testutil.NewRecordingConn(), "garbage")
	assertKind(t, err, domain.KindPermissionDenied, "unauthenticated")
	_, err = h.o.ConnectUser(context.Background(), "c1", testutil.NewRecordingConn(), "")
	assertKind(t, err, domain.KindValidation, "missing_token")
	_, err = h.o.ConnectUser(context.Background(), "c1", testutil.NewRecordingConn(), "tok-ghost")
	assertKind(t, err, domain.KindNotFound, "")
	if h.o.Registry.Count() != 0 {
		t.Fatal("failed connects left bindings")
	}
}

func TestJoinChannel_RollbackOnPresenceFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.connect(testutil.UserU)
	h.joinServer(testutil.UserU, testutil.ServerS)

	h.store.FailPresenceWrites(errors.New("store down"))
	_, err := h.o.JoinChannel(ctx, testutil.UserU, testutil.ChanC2)
	assertKind(t, err, domain.KindInternal, "")
	h.store.FailPresenceWrites(nil)

	if contains(h.occupants(testutil.ChanC2), testutil.UserU) {
		t.Error("failed join left U in C2")
	}
	if !contains(h.occupants(testutil.LobbyL), testutil.UserU) {
		t.Error("U not restored to the lobby")
	}
	if p := h.presence(testutil.UserU); p.ChannelID != testutil.LobbyL {
		t.Errorf("presence = %+v", p)
	}
	if key, ok := h.o.Accrual.Active(testutil.UserU); !ok || key.ChannelID != testutil.LobbyL || h.sched.Active() != 1 {
		t.Errorf("timer after rollback = %+v, %v (%d scheduled)", key, ok, h.sched.Active())
	}
}

func TestJoinServer_RollbackOnPresenceFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.connect(testutil.UserU)

	h.store.FailPresenceWrites(errors.New("store down"))
	_, err := h.o.JoinServer(ctx, testutil.UserU, testutil.ServerS)
	assertKind(t, err, domain.KindInternal, "")
	h.store.FailPresenceWrites(nil)

	if contains(h.o.Groups.Members(core.ServerGroup(testutil.ServerS)), testutil.UserU) {
		t.Error("failed join left U in the audience")
	}
	if contains(h.occupants(testutil.LobbyL), testutil.UserU) {
		t.Error("failed join left U in the lobby")
	}
	if h.sched.Active() != 0 {
		t.Error("failed join left a timer")
	}
	if p := h.presence(testutil.UserU); p.ServerID != "" || !p.Valid() {
		t.Errorf("presence = %+v", p)
	}
}

func TestJoinServer_FailedSwitchKeepsPreviousLocation(t *testing.T) {
	const broken domain.ServerID = "srv-broken"
	storeDown := errors.New("store down")

	tests := []struct {
		name   string
		uid    domain.UserID
		target domain.ServerID
		arm    func(t *testing.T, h *harness)
	}{
		{"lobby missing", testutil.UserU, broken, func(t *testing.T, h *harness) {
			srv := &domain.Server{ID: broken, Name: "Broken", OwnerID: testutil.Owner, Visibility: domain.ServerPublic, LobbyID: "ch-missing"}
			if err := h.store.SaveServer(context.Background(), srv); err != nil {
				t.Fatal(err)
			}
		}},
		{"old channel write fails", testutil.Owner, testutil.ServerH, func(t *testing.T, h *harness) { h.store.FailNthPresenceWrite(1, storeDown) }},
		{"old server write fails", testutil.Owner, testutil.ServerH, func(t *testing.T, h *harness) { h.store.FailNthPresenceWrite(2, storeDown) }},
		{"new server write fails", testutil.Owner, testutil.ServerH, func(t *testing.T, h *harness) { h.store.FailNthPresenceWrite(3, storeDown) }},
		{"new lobby write fails", testutil.Owner, testutil.ServerH, func(t *testing.T, h *harness) { h.store.FailNthPresenceWrite(4, storeDown) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			h.connect(tt.uid)
			h.joinServer(tt.uid, testutil.ServerS)
			h.joinChannel(tt.uid, testutil.ChanC2)
			tt.arm(t, h)

			_, err := h.o.JoinServer(ctx, tt.uid, tt.target)
			assertKind(t, err, domain.KindInternal, "")

			if p := h.presence(tt.uid); p.ServerID != testutil.ServerS || p.ChannelID != testutil.ChanC2 {
				t.Errorf("presence = %+v, want S/C2", p)
			}
			if !contains(h.occupants(testutil.ChanC2), tt.uid) {
				t.Error("not back in C2")
			}
			if !contains(h.o.Groups.Members(core.ServerGroup(testutil.ServerS)), tt.uid) {
				t.Error("not back in the S audience")
			}
			if contains(h.o.Groups.Members(core.ServerGroup(tt.target)), tt.uid) {
				t.Error("left in the target audience")
			}
			if key, ok := h.o.Accrual.Active(tt.uid); !ok || key.ChannelID != testutil.ChanC2 || h.sched.Active() != 1 {
				t.Errorf("timer = %+v, %v (%d scheduled)", key, ok, h.sched.Active())
			}
			if _, found, _ := h.o.Members.Get(ctx, tt.uid, tt.target); found {
				t.Error("membership created for a failed join")
			}
		})
	}
}

func TestBroadcast_AudienceSeesOthers(t *testing.T) {
	h := newHarness(t)
	w := h.connect(testutil.UserW)
	h.joinServer(testutil.UserW, testutil.ServerS)
	h.connect(testutil.UserU)
	h.joinServer(testutil.UserU, testutil.ServerS)
	w.Reset()

	h.joinChannel(testutil.UserU, testutil.ChanC2)

	msg, ok := w.Last(orch.EvServerUpdate)
	if !ok {
		t.Fatal("audience got no serverUpdate")
	}
	snap := decode[orch.ServerSnapshot](t, msg)
	if !contains(snap.Occupants(testutil.ChanC2), testutil.UserU) || contains(snap.Occupants(testutil.LobbyL), testutil.UserU) {
		t.Errorf("snapshot does not reflect the move: %+v", snap.Channels)
	}
	leaves := cues(t, w, testutil.UserU)
	if len(leaves) != 1 || leaves[0].Cue != orch.CueLeave {
		t.Errorf("lobby occupant cues = %+v, want one leave", leaves)
	}
}
