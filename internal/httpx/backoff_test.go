package httpx

import (
	"testing"
	"time"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, time.Second, 0)
	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for attempt, w := range want {
		if got := b.ForAttempt(attempt); got != w {
			t.Fatalf("ForAttempt(%d) = %v, want %v", attempt, got, w)
		}
	}
	if got := b.ForAttempt(200); got != time.Second {
		t.Fatalf("large attempt = %v, want cap", got)
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, time.Second, 0.5)
	for i := 0; i < 100; i++ {
		got := b.ForAttempt(0)
		if got < 50*time.Millisecond || got > 150*time.Millisecond {
			t.Fatalf("jittered delay %v out of bounds", got)
		}
	}
}

func TestBackoffDefaults(t *testing.T) {
	b := NewBackoff(0, 0, -1)
	if b.BaseDelay != 50*time.Millisecond || b.MaxDelay != time.Second || b.Jitter != 0 {
		t.Fatalf("unexpected defaults: %+v", b)
	}
}
