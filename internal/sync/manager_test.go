package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ukasha007/mizuho-algolia/internal/config"
	"github.com/Ukasha007/mizuho-algolia/internal/guard"
	"github.com/Ukasha007/mizuho-algolia/internal/index"
	"github.com/Ukasha007/mizuho-algolia/internal/reconcile"
	"github.com/Ukasha007/mizuho-algolia/internal/source"
	"github.com/Ukasha007/mizuho-algolia/internal/status"
)

// fakeLister serves a canned ListResult, optionally blocking until
// released so tests can hold a sync in flight.
type fakeLister struct {
	mu      sync.Mutex
	result  *source.ListResult
	err     error
	block   chan struct{}
	calls   int
	started chan struct{}
}

func (f *fakeLister) ListEntries(ctx context.Context, _ source.Scope, _ int) (*source.ListResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeLister) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func entriesFor(collection string, ids ...string) []source.Entry {
	entries := make([]source.Entry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, source.Entry{
			ID:         id,
			Collection: collection,
			Title:      "entry " + id,
			UpdatedAt:  time.Unix(1700000000, 0),
		})
	}
	return entries
}

func newTestManager(t *testing.T, lister Lister, idx index.Index) (Manager, status.StatusPersistence) {
	t.Helper()

	statusSvc := status.NewFileStatusPersistence(t.TempDir())
	reconciler := reconcile.New(idx)
	m := NewDefaultManager(lister, idx, guard.New(), reconciler, statusSvc)
	return m, statusSvc
}

func TestSyncUnitHappyPath(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	idx := index.NewInMemoryIndex()

	// Pre-existing record that disappeared from the source: an orphan.
	require.NoError(t, idx.SaveObjects(ctx, []index.Record{
		{ObjectID: "products/stale", Collection: "products"},
	}))

	lister := &fakeLister{result: &source.ListResult{
		Entries:    entriesFor("products", "1", "2", "3"),
		TotalPages: 1,
	}}
	m, statusSvc := newTestManager(t, lister, idx)

	unit := &config.UnitConfig{Name: "products", Collection: "products"}
	result, syncErr := m.SyncUnit(ctx, unit, Trigger{Manual: true})
	require.Nil(t, syncErr)
	require.NotNil(t, result)

	assert.False(t, result.Skipped)
	assert.Equal(t, 3, result.EntryCount)
	require.NotNil(t, result.Reconcile)
	assert.Equal(t, 1, result.Reconcile.DeletedCount)

	// The stale record is gone, the fetched ones are present.
	assert.Equal(t, 3, idx.Len())
	_, ok := idx.Get("products/stale")
	assert.False(t, ok)
	_, ok = idx.Get("products/1")
	assert.True(t, ok)

	// Status reflects the completed sync.
	st, err := statusSvc.LoadStatus(ctx, "products")
	require.NoError(t, err)
	assert.Equal(t, status.SyncPhaseComplete, st.Phase)
	assert.Equal(t, 3, st.EntryCount)
	assert.Equal(t, 1, st.OrphansDeleted)
	assert.Equal(t, 0, st.AttemptCount)
	require.NotNil(t, st.LastSyncTime)
}

func TestSyncUnitEchoFieldMismatchDoesNotOrphan(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	idx := index.NewInMemoryIndex()

	// Upstream omits the collection echo field and reports a different
	// region than the unit's scope.
	lister := &fakeLister{result: &source.ListResult{
		Entries: []source.Entry{
			{ID: "1", Region: "us", Title: "one", UpdatedAt: time.Unix(1700000000, 0)},
			{ID: "2", Region: "us", Title: "two", UpdatedAt: time.Unix(1700000000, 0)},
		},
		TotalPages: 1,
	}}
	m, _ := newTestManager(t, lister, idx)

	unit := &config.UnitConfig{Name: "products-jp", Collection: "products", Region: "jp"}

	// The records land inside the unit's browse scope regardless of what
	// the payload claimed.
	result, syncErr := m.SyncUnit(ctx, unit, Trigger{Manual: true})
	require.Nil(t, syncErr)
	require.NotNil(t, result.Reconcile)
	assert.Equal(t, 0, result.Reconcile.OrphanCount)

	rec, ok := idx.Get("products/1")
	require.True(t, ok)
	assert.Equal(t, "products", rec.Collection)
	assert.Equal(t, "jp", rec.Region)

	// A second pass sees its own records, not a unit full of orphans.
	result, syncErr = m.SyncUnit(ctx, unit, Trigger{Manual: true})
	require.Nil(t, syncErr)
	require.NotNil(t, result.Reconcile)
	assert.Equal(t, 0, result.Reconcile.OrphanCount)
	assert.Equal(t, 2, idx.Len())
}

func TestSyncUnitDuplicateTriggerSkipped(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	idx := index.NewInMemoryIndex()
	lister := &fakeLister{result: &source.ListResult{
		Entries:    entriesFor("products", "1"),
		TotalPages: 1,
	}}
	m, _ := newTestManager(t, lister, idx)

	unit := &config.UnitConfig{Name: "products", Collection: "products"}
	trigger := Trigger{ExecutionID: "exec-123"}

	first, syncErr := m.SyncUnit(ctx, unit, trigger)
	require.Nil(t, syncErr)
	assert.False(t, first.Skipped)

	second, syncErr := m.SyncUnit(ctx, unit, trigger)
	require.Nil(t, syncErr)
	assert.True(t, second.Skipped)
	assert.Equal(t, ReasonDuplicateTrigger, second.SkipReason)

	// The fetch only ran once.
	assert.Equal(t, 1, lister.callCount())
}

func TestSyncUnitManualTriggersNeverDeduplicated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	idx := index.NewInMemoryIndex()
	lister := &fakeLister{result: &source.ListResult{
		Entries:    entriesFor("products", "1"),
		TotalPages: 1,
	}}
	m, _ := newTestManager(t, lister, idx)

	unit := &config.UnitConfig{Name: "products", Collection: "products"}

	for i := 0; i < 3; i++ {
		result, syncErr := m.SyncUnit(ctx, unit, Trigger{Manual: true})
		require.Nil(t, syncErr)
		assert.False(t, result.Skipped)
	}
	assert.Equal(t, 3, lister.callCount())
}

func TestSyncUnitContentionSkipped(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	idx := index.NewInMemoryIndex()

	lister := &fakeLister{
		result:  &source.ListResult{Entries: entriesFor("products", "1"), TotalPages: 1},
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	m, _ := newTestManager(t, lister, idx)

	unit := &config.UnitConfig{Name: "products", Collection: "products"}

	done := make(chan *Result, 1)
	go func() {
		result, _ := m.SyncUnit(ctx, unit, Trigger{})
		done <- result
	}()

	// Wait until the first sync holds the unit's slot.
	<-lister.started

	second, syncErr := m.SyncUnit(ctx, unit, Trigger{})
	require.Nil(t, syncErr)
	assert.True(t, second.Skipped)
	assert.Equal(t, ReasonAlreadyInProgress, second.SkipReason)

	close(lister.block)
	first := <-done
	require.NotNil(t, first)
	assert.False(t, first.Skipped)

	// The slot is free again after the first sync finishes.
	third, syncErr := m.SyncUnit(ctx, unit, Trigger{})
	require.Nil(t, syncErr)
	assert.False(t, third.Skipped)
}

func TestSyncUnitFetchFailureMarksFailed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	idx := index.NewInMemoryIndex()
	lister := &fakeLister{err: errors.New("upstream unavailable")}
	m, statusSvc := newTestManager(t, lister, idx)

	unit := &config.UnitConfig{Name: "products", Collection: "products"}
	result, syncErr := m.SyncUnit(ctx, unit, Trigger{})
	assert.Nil(t, result)
	require.NotNil(t, syncErr)
	assert.Equal(t, StageFetch, syncErr.Stage)
	assert.ErrorContains(t, syncErr.Err, "upstream unavailable")

	st, err := statusSvc.LoadStatus(ctx, "products")
	require.NoError(t, err)
	assert.Equal(t, status.SyncPhaseFailed, st.Phase)
	assert.Equal(t, 1, st.AttemptCount)
}

func TestSyncUnitPartialFetchWithholdsDeletion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	idx := index.NewInMemoryIndex()

	// Records that would be orphans if reconciliation ran.
	require.NoError(t, idx.SaveObjects(ctx, []index.Record{
		{ObjectID: "products/old-1", Collection: "products"},
		{ObjectID: "products/old-2", Collection: "products"},
	}))

	lister := &fakeLister{result: &source.ListResult{
		Entries:     entriesFor("products", "1"),
		TotalPages:  3,
		FailedPages: 2,
	}}
	m, statusSvc := newTestManager(t, lister, idx)

	unit := &config.UnitConfig{Name: "products", Collection: "products"}
	result, syncErr := m.SyncUnit(ctx, unit, Trigger{})
	require.Nil(t, syncErr)
	require.NotNil(t, result)

	assert.Equal(t, 2, result.FailedPages)
	assert.Nil(t, result.Reconcile, "partial fetch must not reconcile")

	// Nothing was deleted.
	_, ok := idx.Get("products/old-1")
	assert.True(t, ok)
	_, ok = idx.Get("products/old-2")
	assert.True(t, ok)

	st, err := statusSvc.LoadStatus(ctx, "products")
	require.NoError(t, err)
	assert.Equal(t, status.SyncPhaseComplete, st.Phase)
	assert.Equal(t, 2, st.FailedPages)
}

func TestSyncUnitThresholdAbortSurfaced(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	idx := index.NewInMemoryIndex()

	// Ten indexed records, the fetch returns only two: 80% orphans.
	var seeded []index.Record
	for i := 0; i < 10; i++ {
		seeded = append(seeded, index.Record{
			ObjectID:   fmt.Sprintf("products/%d", i),
			Collection: "products",
		})
	}
	require.NoError(t, idx.SaveObjects(ctx, seeded))

	lister := &fakeLister{result: &source.ListResult{
		Entries:    entriesFor("products", "0", "1"),
		TotalPages: 1,
	}}
	m, statusSvc := newTestManager(t, lister, idx)

	unit := &config.UnitConfig{Name: "products", Collection: "products"}
	result, syncErr := m.SyncUnit(ctx, unit, Trigger{})
	assert.Nil(t, result)
	require.NotNil(t, syncErr)
	assert.Equal(t, StageReconcile, syncErr.Stage)

	var thresholdErr *reconcile.ThresholdError
	require.ErrorAs(t, syncErr.Err, &thresholdErr)
	assert.True(t, thresholdErr.Report.Aborted)
	assert.Equal(t, 8, thresholdErr.Report.OrphanCount)

	// Nothing was deleted.
	assert.Equal(t, 10, idx.Len())

	st, err := statusSvc.LoadStatus(ctx, "products")
	require.NoError(t, err)
	assert.Equal(t, status.SyncPhaseFailed, st.Phase)
}

func TestSyncUnitRegionScopedReconcile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	idx := index.NewInMemoryIndex()

	// A record from another region must not be counted as an orphan.
	require.NoError(t, idx.SaveObjects(ctx, []index.Record{
		{ObjectID: "products/us-1", Collection: "products", Region: "us"},
		{ObjectID: "products/jp-stale", Collection: "products", Region: "jp"},
	}))

	entries := entriesFor("products", "jp-1")
	entries[0].Region = "jp"
	lister := &fakeLister{result: &source.ListResult{Entries: entries, TotalPages: 1}}
	m, _ := newTestManager(t, lister, idx)

	unit := &config.UnitConfig{Name: "products-jp", Collection: "products", Region: "jp"}
	result, syncErr := m.SyncUnit(ctx, unit, Trigger{})
	require.Nil(t, syncErr)
	require.NotNil(t, result.Reconcile)
	assert.Equal(t, 1, result.Reconcile.DeletedCount)

	// The other region's record survived.
	_, ok := idx.Get("products/us-1")
	assert.True(t, ok)
	_, ok = idx.Get("products/jp-stale")
	assert.False(t, ok)
}
