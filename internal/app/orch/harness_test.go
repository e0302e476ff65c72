package orch_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/dkeye/VoiceHub/internal/adapters/storage"
	"github.com/dkeye/VoiceHub/internal/app"
	"github.com/dkeye/VoiceHub/internal/app/orch"
	"github.com/dkeye/VoiceHub/internal/core"
	"github.com/dkeye/VoiceHub/internal/core/mocks"
	"github.com/dkeye/VoiceHub/internal/domain"
	"github.com/dkeye/VoiceHub/internal/testutil"
	"go.uber.org/mock/gomock"
)

type harness struct {
	t     *testing.T
	o     *orch.Orchestrator
	store *storage.MemoryStore
	sched *testutil.ManualScheduler
	conns map[domain.UserID]*testutil.RecordingConn
}

// newHarness wires an orchestrator over the seeded memory store. Tokens
// of the form "tok-<uid>" resolve to <uid>.
func newHarness(t *testing.T) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	auth := mocks.NewMockAuthenticator(ctrl)
	auth.EXPECT().Resolve(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, token string) (domain.UserID, error) {
		uid, ok := strings.CutPrefix(token, "tok-")
		if !ok {
			return "", errors.New("bad token")
		}
		return domain.UserID(uid), nil
	}).AnyTimes()

	store := storage.NewMemoryStore()
	testutil.SeedStore(t, store)
	sched := testutil.NewManualScheduler()
	o := orch.New(orch.Deps{
		Store:     store,
		Auth:      auth,
		Clock:     testutil.FixedClock(),
		Scheduler: sched,
		Policy:    app.LenientPolicy{},
		Accrual:   app.DefaultAccrualConfig(),
	})
	return &harness{t: t, o: o, store: store, sched: sched, conns: make(map[domain.UserID]*testutil.RecordingConn)}
}

func connID(uid domain.UserID) core.ConnID { return core.ConnID("conn-" + string(uid)) }

func (h *harness) connect(uid domain.UserID) *testutil.RecordingConn {
	h.t.Helper()
	return h.connectAs(uid, connID(uid))
}

func (h *harness) connectAs(uid domain.UserID, cid core.ConnID) *testutil.RecordingConn {
	h.t.Helper()
	conn := testutil.NewRecordingConn()
	if _, err := h.o.ConnectUser(context.Background(), cid, conn, "tok-"+string(uid)); err != nil {
		h.t.Fatalf("ConnectUser(%s) error = %v", uid, err)
	}
	h.conns[uid] = conn
	return conn
}

func (h *harness) joinServer(uid domain.UserID, sid domain.ServerID) *orch.ServerSnapshot {
	h.t.Helper()
	snap, err := h.o.JoinServer(context.Background(), uid, sid)
	if err != nil {
		h.t.Fatalf("JoinServer(%s, %s) error = %v", uid, sid, err)
	}
	return snap
}

func (h *harness) joinChannel(uid domain.UserID, cid domain.ChannelID) {
	h.t.Helper()
	if _, err := h.o.JoinChannel(context.Background(), uid, cid); err != nil {
		h.t.Fatalf("JoinChannel(%s, %s) error = %v", uid, cid, err)
	}
}

func (h *harness) presence(uid domain.UserID) domain.Presence {
	h.t.Helper()
	p, err := h.o.Presence.Get(context.Background(), uid)
	if err != nil {
		h.t.Fatal(err)
	}
	return p
}

func (h *harness) occupants(ch domain.ChannelID) []domain.UserID {
	return h.o.Groups.Members(core.ChannelGroup(ch))
}

func contains(uids []domain.UserID, uid domain.UserID) bool {
	for _, u := range uids {
		if u == uid {
			return true
		}
	}
	return false
}

func decode[T any](t *testing.T, m testutil.Message) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(m.Data, &v); err != nil {
		t.Fatalf("decode %s: %v", m.Type, err)
	}
	return v
}

func cues(t *testing.T, conn *testutil.RecordingConn, uid domain.UserID) []orch.CueEvent {
	t.Helper()
	var out []orch.CueEvent
	for _, m := range conn.OfType(orch.EvChannelCue) {
		c := decode[orch.CueEvent](t, m)
		if c.UserID == uid {
			out = append(out, c)
		}
	}
	return out
}

func assertKind(t *testing.T, err error, kind domain.Kind, reason string) {
	t.Helper()
	var de *domain.Error
	if !errors.As(err, &de) {
		t.Fatalf("error = %v, want %v/%s", err, kind, reason)
	}
	if de.Kind != kind || (reason != "" && de.Reason != reason) {
		t.Fatalf("error = %v (%v/%s), want %v/%s", err, de.Kind, de.Reason, kind, reason)
	}
}
