package signal

import (
	"testing"
	"time"
)

func TestRateLimiter_SlidingWindow(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	if !rl.Allow("u") || !rl.Allow("u") {
		t.Fatal("first two attempts rejected")
	}
	if rl.Allow("u") {
		t.Fatal("third attempt inside the window allowed")
	}
	if !rl.Allow("w") {
		t.Fatal("keys are not independent")
	}

	now = now.Add(61 * time.Second)
	if !rl.Allow("u") {
		t.Fatal("attempt after the window rejected")
	}

	rl.Allow("u")
	rl.Forget("u")
	if !rl.Allow("u") {
		t.Fatal("Forget did not reset history")
	}
}
