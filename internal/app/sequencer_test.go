package app_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/VoiceHub/internal/app"
)

func TestSequencer_SerializesSameIdentity(t *testing.T) {
	s := app.NewSequencer()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.Lock("u1")
			defer unlock()
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Fatalf("%d goroutines inside the section at once", maxInside)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d after all sections left", s.Len())
	}
}

func TestSequencer_IndependentIdentities(t *testing.T) {
	s := app.NewSequencer()
	unlock := s.Lock("u1")
	defer unlock()

	done := make(chan struct{})
	go func() {
		s.Lock("u2")()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("u2 blocked behind u1")
	}
}

func TestSequencer_UnlockIsIdempotent(t *testing.T) {
	s := app.NewSequencer()
	unlock := s.Lock("u1")
	unlock()
	unlock()
	if s.Len() != 0 {
		t.Fatalf("Len() = %d", s.Len())
	}
}
