// Package throttle rate-limits calls against the upstream applicant source.
package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/hirewire/scout/errors"
)

// Limiter enforces max calls per time window using a sliding window.
// A zero or negative maxCallsPerMinute disables limiting entirely.
type Limiter struct {
	maxCallsPerMinute int
	window            time.Duration
	mu                sync.Mutex
	callTimes         []time.Time
	timeNow           func() time.Time // Injectable for testing
}

// NewLimiter creates a rate limiter with real time
func NewLimiter(maxCallsPerMinute int) *Limiter {
	return NewLimiterWithClock(maxCallsPerMinute, time.Now)
}

// NewLimiterWithClock creates a rate limiter with injectable clock (for testing)
func NewLimiterWithClock(maxCallsPerMinute int, timeNow func() time.Time) *Limiter {
	capacity := maxCallsPerMinute
	if capacity < 0 {
		capacity = 0
	}
	return &Limiter{
		maxCallsPerMinute: maxCallsPerMinute,
		window:            60 * time.Second,
		callTimes:         make([]time.Time, 0, capacity),
		timeNow:           timeNow,
	}
}

// Allow checks if a call is allowed under rate limits.
// Returns an error wrapping errors.ErrRateLimited if the limit is exceeded.
func (r *Limiter) Allow() error {
	if r.maxCallsPerMinute <= 0 {
		return nil // Unlimited
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.timeNow()
	r.removeExpiredCalls(now)

	if len(r.callTimes) >= r.maxCallsPerMinute {
		err := errors.Wrapf(errors.ErrRateLimited, "%d calls in window (limit: %d)",
			len(r.callTimes), r.maxCallsPerMinute)
		err = errors.WithDetailf(err, "Max calls per minute: %d", r.maxCallsPerMinute)
		return err
	}

	r.callTimes = append(r.callTimes, now)
	return nil
}

// Wait blocks until a call is allowed under rate limits.
// Returns an error if the context is cancelled first.
func (r *Limiter) Wait(ctx context.Context) error {
	for {
		if err := r.Allow(); err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
			// Retry after short delay
		}
	}
}

// removeExpiredCalls removes call timestamps that are outside the sliding window.
// Must be called with lock held.
func (r *Limiter) removeExpiredCalls(now time.Time) {
	cutoff := now.Add(-r.window)

	// Timestamps are ordered, so expired entries sit at the front
	expired := 0
	for _, callTime := range r.callTimes {
		if !callTime.After(cutoff) {
			expired++
		} else {
			break
		}
	}

	r.callTimes = r.callTimes[expired:]
}

// Reset clears the rate limiter state
func (r *Limiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.callTimes = r.callTimes[:0]
}

// Stats returns current rate limiter statistics
func (r *Limiter) Stats() (callsInWindow int, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxCallsPerMinute <= 0 {
		return 0, 0
	}

	now := r.timeNow()
	r.removeExpiredCalls(now)

	callsInWindow = len(r.callTimes)
	remaining = r.maxCallsPerMinute - callsInWindow
	if remaining < 0 {
		remaining = 0
	}

	return callsInWindow, remaining
}
