// Package guard enforces trigger deduplication and per-unit mutual
// exclusion for sync operations. Both structures are process-local: they
// convert redelivered triggers and overlapping runs within one instance
// into cheap no-ops, and deliberately do not coordinate across instances.
package guard

import (
	"sync"
	"time"
)

// DefaultRetention is how long a trigger execution identifier is
// remembered for deduplication.
const DefaultRetention = 2 * time.Hour

// Guard tracks recently seen trigger execution identifiers and the set of
// logical sync units currently in flight.
type Guard struct {
	mu        sync.Mutex
	retention time.Duration
	now       func() time.Time

	// seen maps executionID to when it was first processed. Entries older
	// than the retention window are evicted lazily on each lookup.
	seen map[string]time.Time

	// active holds the syncID of every unit currently executing.
	// Membership is the sole source of truth for mutual exclusion.
	active map[string]struct{}
}

// Option configures a Guard.
type Option func(*Guard)

// WithRetention overrides the ledger retention window.
func WithRetention(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.retention = d
		}
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		g.now = now
	}
}

// New creates a guard with the default retention window.
func New(opts ...Option) *Guard {
	g := &Guard{
		retention: DefaultRetention,
		now:       time.Now,
		seen:      make(map[string]time.Time),
		active:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// IsDuplicateTrigger reports whether executionID has already been
// processed within the retention window, recording it on first sight. An
// empty executionID is a manual invocation and is never deduplicated.
func (g *Guard) IsDuplicateTrigger(executionID string) bool {
	if executionID == "" {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for id, firstSeen := range g.seen {
		if now.Sub(firstSeen) > g.retention {
			delete(g.seen, id)
		}
	}

	if _, ok := g.seen[executionID]; ok {
		return true
	}
	g.seen[executionID] = now
	return false
}

// TryAcquire marks syncID as in flight. It returns false without
// acquiring when the unit is already running.
func (g *Guard) TryAcquire(syncID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.active[syncID]; ok {
		return false
	}
	g.active[syncID] = struct{}{}
	return true
}

// Release removes syncID from the active set. Callers must arrange for
// Release to run on every exit path of the guarded operation, typically
// with defer immediately after a successful TryAcquire.
func (g *Guard) Release(syncID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, syncID)
}

// Active returns the syncIDs currently in flight, for the status
// endpoint.
func (g *Guard) Active() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ids := make([]string, 0, len(g.active))
	for id := range g.active {
		ids = append(ids, id)
	}
	return ids
}
