package app

import (
	"testing"
	"time"
)

func TestCallRateLimiter_Window(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewCallRateLimiter(2, 10*time.Second)
	rl.now = func() time.Time { return now }

	if !rl.Allow("alice") || !rl.Allow("alice") {
		t.Fatal("first two calls should be allowed")
	}
	if rl.Allow("alice") {
		t.Error("third call inside the window should be denied")
	}
	if !rl.Allow("bob") {
		t.Error("limits are per user")
	}

	now = now.Add(11 * time.Second)
	if !rl.Allow("alice") {
		t.Error("call after the window should be allowed")
	}
}

func TestCallRateLimiter_Forget(t *testing.T) {
	rl := NewCallRateLimiter(1, time.Hour)
	rl.Allow("alice")
	if rl.Allow("alice") {
		t.Fatal("second call should be denied")
	}
	rl.Forget("alice")
	if !rl.Allow("alice") {
		t.Error("call after Forget should be allowed")
	}
}

func TestCallRateLimiter_DisabledAndNil(t *testing.T) {
	var nilLimiter *CallRateLimiter
	if !nilLimiter.Allow("alice") {
		t.Error("nil limiter should allow")
	}
	nilLimiter.Forget("alice")

	off := NewCallRateLimiter(0, time.Second)
	for i := 0; i < 10; i++ {
		if !off.Allow("alice") {
			t.Fatal("limit 0 should allow everything")
		}
	}
}
