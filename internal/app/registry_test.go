package app_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dkeye/VoiceHub/internal/app"
	"github.com/dkeye/VoiceHub/internal/core"
	"github.com/dkeye/VoiceHub/internal/domain"
	"github.com/dkeye/VoiceHub/internal/testutil"
)

func TestRegistry_BindLookupUnbind(t *testing.T) {
	r := app.NewRegistry()
	conn := testutil.NewRecordingConn()

	if prior, err := r.Bind("u1", "c1", conn); err != nil || prior != nil {
		t.Fatalf("Bind() = %v, %v; want nil, nil", prior, err)
	}
	if prior, err := r.Bind("u1", "c1", conn); err != nil || prior != nil {
		t.Fatalf("repeated Bind() = %v, %v; want idempotent", prior, err)
	}
	if _, err := r.Bind("u2", "c1", conn); !errors.Is(err, app.ErrConnInUse) {
		t.Fatalf("Bind(other user, same conn) error = %v, want ErrConnInUse", err)
	}

	b, ok := r.LookupUser("u1")
	if !ok || b.ConnID != "c1" {
		t.Fatalf("LookupUser() = %+v, %v", b, ok)
	}
	if uid, ok := r.LookupConn("c1"); !ok || uid != "u1" {
		t.Fatalf("LookupConn() = %q, %v", uid, ok)
	}

	if _, ok := r.UnbindConn("c1"); !ok {
		t.Fatal("UnbindConn() found nothing")
	}
	if _, ok := r.LookupUser("u1"); ok {
		t.Error("identity still bound after UnbindConn")
	}
	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0", r.Count())
	}
}

func TestRegistry_SecondBindReturnsPrior(t *testing.T) {
	r := app.NewRegistry()
	first := testutil.NewRecordingConn()
	if _, err := r.Bind("u1", "c1", first); err != nil {
		t.Fatal(err)
	}

	prior, err := r.Bind("u1", "c2", testutil.NewRecordingConn())
	if !errors.Is(err, app.ErrAlreadyBound) {
		t.Fatalf("Bind() error = %v, want ErrAlreadyBound", err)
	}
	if prior == nil || prior.ConnID != "c1" {
		t.Fatalf("prior = %+v, want binding of c1", prior)
	}
	if domain.KindOf(err) != domain.KindConflict {
		t.Errorf("KindOf = %v, want conflict", domain.KindOf(err))
	}
	if b, _ := r.LookupUser("u1"); b.ConnID != "c1" {
		t.Errorf("live binding replaced: %+v", b)
	}
}

func TestRegistry_ConcurrentDoubleBind(t *testing.T) {
	r := app.NewRegistry()
	const n = 64

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.Bind("u1", core.ConnID(fmt.Sprintf("c%d", i)), testutil.NewRecordingConn())
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("%d binds succeeded, want exactly 1", winners)
	}
	if len(r.Snapshot()) != 1 {
		t.Fatalf("Snapshot() has %d bindings", len(r.Snapshot()))
	}
}

func TestRegistry_UnbindStaleConnKeepsNewBinding(t *testing.T) {
	r := app.NewRegistry()
	if _, err := r.Bind("u1", "c1", testutil.NewRecordingConn()); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.UnbindUser("u1"); !ok {
		t.Fatal("UnbindUser() found nothing")
	}
	if _, err := r.Bind("u1", "c2", testutil.NewRecordingConn()); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.UnbindConn("c1"); ok {
		t.Fatal("UnbindConn(stale) reported a binding")
	}
	if b, ok := r.LookupUser("u1"); !ok || b.ConnID != "c2" {
		t.Fatalf("LookupUser() = %+v, %v; want c2", b, ok)
	}
}
