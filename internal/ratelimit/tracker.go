// Package ratelimit tracks the upstream API quota as observed from
// response metadata, so the request scheduler never free-runs past it.
package ratelimit

import (
	"sync"
	"time"
)

const (
	// DefaultLimit seeds the tracker before the first response is observed
	DefaultLimit = 100

	// localWindow is the fallback tracking window used when the upstream
	// gives no reset time
	localWindow = time.Minute

	// resetBuffer is added on top of an upstream-provided reset time
	resetBuffer = time.Second

	// minWait is the floor applied to waits derived from local tracking,
	// so a silent upstream never causes a busy loop
	minWait = 2 * time.Second
)

// Metadata carries the rate-limit fields attached to an upstream response.
// A nil *Metadata means the response carried no rate-limit information.
type Metadata struct {
	Limit     int
	Remaining int
	ResetAt   *time.Time
}

// Tracker holds the current view of the upstream quota: the ceiling and
// remaining count as last reported, plus a locally tracked per-window
// counter used when the upstream omits its headers. Upstream headers are
// the authoritative signal when present.
type Tracker struct {
	mu sync.Mutex

	limit              int
	remaining          int
	resetAt            *time.Time
	requestsThisWindow int
	windowStart        time.Time

	now func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithInitialLimit sets the quota ceiling assumed before the first
// response is observed.
func WithInitialLimit(limit int) Option {
	return func(t *Tracker) {
		if limit >= 1 {
			t.limit = limit
			t.remaining = limit
		}
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker creates a tracker seeded with DefaultLimit.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		limit:     DefaultLimit,
		remaining: DefaultLimit,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.windowStart = t.now()
	return t
}

// Observe updates the tracked quota from the most recent response. When md
// is nil the prior upstream values are kept and only the local per-window
// counter advances. Observe never fails.
func (t *Tracker) Observe(md *Metadata) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollWindowLocked()
	t.requestsThisWindow++

	if md == nil {
		return
	}
	if md.Limit >= 1 {
		t.limit = md.Limit
	}
	if md.Remaining >= 0 {
		t.remaining = md.Remaining
	}
	if md.ResetAt != nil {
		reset := *md.ResetAt
		t.resetAt = &reset
	}
}

// ShouldThrottle reports whether the next request should be delayed: true
// when the upstream-reported remaining count is at or below the safety
// buffer, or when the local per-window counter has reached the
// safety-adjusted limit.
func (t *Tracker) ShouldThrottle(safetyBufferFraction float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollWindowLocked()

	if float64(t.remaining) <= float64(t.limit)*safetyBufferFraction {
		return true
	}
	windowCap := int(float64(t.limit) * (1 - safetyBufferFraction))
	return t.requestsThisWindow >= windowCap
}

// WaitDuration returns how long the caller should suspend before the next
// request. An upstream reset time in the future wins; otherwise the
// remainder of the local tracking window applies, floored at minWait.
func (t *Tracker) WaitDuration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if t.resetAt != nil && t.resetAt.After(now) {
		return t.resetAt.Sub(now) + resetBuffer
	}

	wait := localWindow - now.Sub(t.windowStart)
	if wait < minWait {
		return minWait
	}
	return wait
}

// Snapshot is a point-in-time copy of the tracked state, for logs and the
// status endpoint.
type Snapshot struct {
	Limit              int        `json:"limit"`
	Remaining          int        `json:"remaining"`
	ResetAt            *time.Time `json:"reset_at,omitempty"`
	RequestsThisWindow int        `json:"requests_this_window"`
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		Limit:              t.limit,
		Remaining:          t.remaining,
		RequestsThisWindow: t.requestsThisWindow,
	}
	if t.resetAt != nil {
		reset := *t.resetAt
		s.ResetAt = &reset
	}
	return s
}

// rollWindowLocked starts a fresh local window once the current one has
// elapsed. Callers must hold t.mu.
func (t *Tracker) rollWindowLocked() {
	now := t.now()
	if now.Sub(t.windowStart) >= localWindow {
		t.windowStart = now
		t.requestsThisWindow = 0
	}
}
