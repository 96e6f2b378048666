package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Response header names used by the primary upstream.
const (
	headerRemaining = "x-rate-limit-remaining"
	headerReset     = "x-rate-limit-reset"
)

// ErrCannotWait is returned when the wait required to proceed would
// exceed the caller's ceiling. Callers distinguish it from generic
// failures so they can schedule a later run instead of blocking.
var ErrCannotWait = errors.New("rate limit wait exceeds ceiling")

// Tracker tracks the remaining call budget and reset time for one
// rate-limited upstream connection. It is safe for concurrent use;
// observation order is preserved by the mutex.
type Tracker struct {
	mu               sync.Mutex
	remaining        int
	resetAt          time.Time // zero means unknown
	budget           int
	resetMargin      time.Duration
	conservativeWait time.Duration
	clock            Clock
	log              logrus.FieldLogger
}

// NewTracker creates a tracker with the given initial budget.
func NewTracker(budget int, resetMargin, conservativeWait time.Duration, clock Clock, log logrus.FieldLogger) *Tracker {
	if budget <= 0 {
		budget = 15
	}
	if clock == nil {
		clock = NewClock()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Tracker{
		remaining:        budget,
		budget:           budget,
		resetMargin:      resetMargin,
		conservativeWait: conservativeWait,
		clock:            clock,
		log:              log,
	}
}

// Observe updates the tracker from an upstream response's headers.
// The latest observation wins unconditionally.
func (t *Tracker) Observe(headers http.Header) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if v := headers.Get(headerRemaining); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			t.remaining = n
			t.log.WithField("remaining", n).Debug("rate limit remaining observed")
		}
	}
	if v := headers.Get(headerReset); v != "" {
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			t.resetAt = time.Unix(ts, 0)
			t.log.WithField("reset_at", t.resetAt).Debug("rate limit reset observed")
		}
	}
}

// ShouldWait reports whether a caller must wait before the next call.
func (t *Tracker) ShouldWait(threshold int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining <= threshold
}

// Remaining returns the current call budget.
func (t *Tracker) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// ResetDelta returns the time until the budget resets, or zero when
// the reset time is unknown or already past.
func (t *Tracker) ResetDelta() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resetDeltaLocked()
}

func (t *Tracker) resetDeltaLocked() time.Duration {
	if t.resetAt.IsZero() {
		return 0
	}
	d := t.resetAt.Sub(t.clock.Now())
	if d < 0 {
		return 0
	}
	return d
}

// WaitIfNeeded sleeps until the budget resets when the remaining call
// count is at or below threshold. The sleep never exceeds maxWait: if
// the required wait is longer, WaitIfNeeded returns ErrCannotWait
// without sleeping at all. maxWait of zero therefore converts any
// required wait into an immediate failure.
func (t *Tracker) WaitIfNeeded(ctx context.Context, threshold int, maxWait time.Duration) error {
	t.mu.Lock()
	if t.remaining > threshold {
		t.mu.Unlock()
		return nil
	}

	var wait time.Duration
	if !t.resetAt.IsZero() {
		wait = t.resetDeltaLocked() + t.resetMargin
	} else {
		wait = t.conservativeWait
	}
	t.mu.Unlock()

	if wait > maxWait {
		return fmt.Errorf("%w: need %s, ceiling %s", ErrCannotWait, wait, maxWait)
	}

	t.log.WithFields(logrus.Fields{
		"remaining": t.Remaining(),
		"wait":      wait,
	}).Warn("rate limit budget low, waiting for reset")

	if err := t.clock.Sleep(ctx, wait); err != nil {
		return err
	}

	t.mu.Lock()
	t.remaining = t.budget
	t.resetAt = time.Time{}
	t.mu.Unlock()

	t.log.Info("rate limit reset complete")
	return nil
}

// Decrement records one consumed call, floored at zero.
func (t *Tracker) Decrement() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.remaining > 0 {
		t.remaining--
	}
}
