package ratelimit

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"strconv"
	"testing"
	"time"
)

// fakeClock records sleeps instead of performing them.
type fakeClock struct {
	now    time.Time
	slept  []time.Duration
	sleepE error
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if c.sleepE != nil {
		return c.sleepE
	}
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	return nil
}

func headersFor(remaining int, resetAt time.Time) http.Header {
	h := http.Header{}
	h.Set("x-rate-limit-remaining", strconv.Itoa(remaining))
	h.Set("x-rate-limit-reset", strconv.FormatInt(resetAt.Unix(), 10))
	return h
}

func TestTracker_Observe(t *testing.T) {
	clock := newFakeClock()
	tr := NewTracker(15, 5*time.Second, 15*time.Minute, clock, nil)

	if got := tr.Remaining(); got != 15 {
		t.Fatalf("initial remaining = %d, want 15", got)
	}

	tr.Observe(headersFor(7, clock.Now().Add(10*time.Minute)))
	if got := tr.Remaining(); got != 7 {
		t.Errorf("remaining = %d, want 7", got)
	}
	if got := tr.ResetDelta(); got != 10*time.Minute {
		t.Errorf("reset delta = %v, want 10m", got)
	}

	// Latest observation wins even if it raises the count.
	tr.Observe(headersFor(12, clock.Now().Add(5*time.Minute)))
	if got := tr.Remaining(); got != 12 {
		t.Errorf("remaining after second observe = %d, want 12", got)
	}
}

func TestTracker_ObserveIgnoresGarbage(t *testing.T) {
	tr := NewTracker(15, 0, 0, newFakeClock(), nil)

	h := http.Header{}
	h.Set("x-rate-limit-remaining", "not-a-number")
	h.Set("x-rate-limit-reset", "also-not")
	tr.Observe(h)

	if got := tr.Remaining(); got != 15 {
		t.Errorf("remaining = %d, want untouched 15", got)
	}
	if got := tr.ResetDelta(); got != 0 {
		t.Errorf("reset delta = %v, want 0", got)
	}
}

func TestTracker_Decrement(t *testing.T) {
	tr := NewTracker(2, 0, 0, newFakeClock(), nil)
	tr.Decrement()
	tr.Decrement()
	tr.Decrement() // floored
	if got := tr.Remaining(); got != 0 {
		t.Errorf("remaining = %d, want 0", got)
	}
}

func TestTracker_WaitIfNeeded(t *testing.T) {
	t.Run("above threshold skips waiting", func(t *testing.T) {
		clock := newFakeClock()
		tr := NewTracker(15, 5*time.Second, 15*time.Minute, clock, nil)

		if err := tr.WaitIfNeeded(context.Background(), 3, time.Hour); err != nil {
			t.Fatalf("WaitIfNeeded: %v", err)
		}
		if len(clock.slept) != 0 {
			t.Errorf("slept %v, want no sleep", clock.slept)
		}
	})

	t.Run("waits reset delta plus margin", func(t *testing.T) {
		clock := newFakeClock()
		tr := NewTracker(15, 5*time.Second, 15*time.Minute, clock, nil)
		tr.Observe(headersFor(2, clock.Now().Add(3*time.Minute)))

		if err := tr.WaitIfNeeded(context.Background(), 3, time.Hour); err != nil {
			t.Fatalf("WaitIfNeeded: %v", err)
		}
		if len(clock.slept) != 1 || clock.slept[0] != 3*time.Minute+5*time.Second {
			t.Errorf("slept %v, want [3m5s]", clock.slept)
		}
		if got := tr.Remaining(); got != 15 {
			t.Errorf("remaining after reset = %d, want budget 15", got)
		}
	})

	t.Run("unknown reset time uses conservative wait", func(t *testing.T) {
		clock := newFakeClock()
		tr := NewTracker(15, 5*time.Second, 15*time.Minute, clock, nil)
		h := http.Header{}
		h.Set("x-rate-limit-remaining", "0")
		tr.Observe(h)

		if err := tr.WaitIfNeeded(context.Background(), 3, time.Hour); err != nil {
			t.Fatalf("WaitIfNeeded: %v", err)
		}
		if len(clock.slept) != 1 || clock.slept[0] != 15*time.Minute {
			t.Errorf("slept %v, want [15m]", clock.slept)
		}
	})

	t.Run("wait beyond ceiling fails without sleeping", func(t *testing.T) {
		clock := newFakeClock()
		tr := NewTracker(15, 5*time.Second, 15*time.Minute, clock, nil)
		tr.Observe(headersFor(0, clock.Now().Add(30*time.Minute)))

		err := tr.WaitIfNeeded(context.Background(), 3, 20*time.Minute)
		if !errors.Is(err, ErrCannotWait) {
			t.Fatalf("err = %v, want ErrCannotWait", err)
		}
		if len(clock.slept) != 0 {
			t.Errorf("slept %v, want no sleep", clock.slept)
		}
		if got := tr.Remaining(); got != 0 {
			t.Errorf("remaining = %d, want still 0", got)
		}
	})

	t.Run("zero ceiling fails immediately", func(t *testing.T) {
		clock := newFakeClock()
		tr := NewTracker(15, 0, 15*time.Minute, clock, nil)
		tr.Observe(headersFor(1, clock.Now().Add(time.Second)))

		if err := tr.WaitIfNeeded(context.Background(), 3, 0); !errors.Is(err, ErrCannotWait) {
			t.Fatalf("err = %v, want ErrCannotWait", err)
		}
	})
}

func TestRetryWait(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for attempt := 0; attempt < 10; attempt++ {
		reset := 90 * time.Second
		got := RetryWait(attempt, reset, rng)

		backoff := time.Duration(1<<uint(attempt)) * time.Second
		if backoff > maxBackoff || attempt >= 6 {
			backoff = maxBackoff
		}
		min := reset + backoff
		max := min + time.Duration(float64(backoff)*0.3)
		if got < min || got >= max {
			t.Errorf("attempt %d: wait %v outside [%v, %v)", attempt, got, min, max)
		}
	}
}

func TestRetryWait_NegativeReset(t *testing.T) {
	got := RetryWait(0, -time.Minute, rand.New(rand.NewSource(1)))
	if got < time.Second {
		t.Errorf("wait %v, want at least the base backoff", got)
	}
}
