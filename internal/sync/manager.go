package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Ukasha007/mizuho-algolia/internal/config"
	"github.com/Ukasha007/mizuho-algolia/internal/guard"
	"github.com/Ukasha007/mizuho-algolia/internal/index"
	"github.com/Ukasha007/mizuho-algolia/internal/reconcile"
	"github.com/Ukasha007/mizuho-algolia/internal/source"
	"github.com/Ukasha007/mizuho-algolia/internal/status"
	"github.com/Ukasha007/mizuho-algolia/internal/telemetry"
)

// Skip reason constants
const (
	// ReasonDuplicateTrigger means the trigger's execution identifier was
	// already processed within the retention window
	ReasonDuplicateTrigger = "duplicate-trigger"

	// ReasonAlreadyInProgress means a sync for the same unit is in flight
	ReasonAlreadyInProgress = "sync-already-in-progress"
)

// Stage constants for structured errors
const (
	// StageFetch covers the paginated content fetch
	StageFetch = "fetch"

	// StageIndex covers writing records to the search index
	StageIndex = "index"

	// StageReconcile covers orphan computation and deletion
	StageReconcile = "reconcile"
)

// Trigger describes what started a sync.
type Trigger struct {
	// ExecutionID is the idempotency key of the upstream trigger. Empty
	// for manual invocations, which are never deduplicated.
	ExecutionID string

	// Manual marks operator-initiated syncs for logging.
	Manual bool
}

// Result contains the result of a sync operation. Either Skipped is set
// with a reason, or the counts describe a completed sync.
type Result struct {
	Unit        string            `json:"unit"`
	Skipped     bool              `json:"skipped,omitempty"`
	SkipReason  string            `json:"skipReason,omitempty"`
	EntryCount  int               `json:"entryCount"`
	FailedPages int               `json:"failedPages,omitempty"`
	Reconcile   *reconcile.Report `json:"reconcile,omitempty"`
}

// Error represents a structured sync error naming the stage that failed
type Error struct {
	Err     error
	Message string
	Stage   string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Manager manages synchronization operations for sync units
type Manager interface {
	// SyncUnit executes the complete sync operation for one unit.
	// A skipped sync returns a Result with Skipped set and a nil error.
	SyncUnit(ctx context.Context, unit *config.UnitConfig, trigger Trigger) (*Result, *Error)
}

// Lister fetches every entry in a scope.
type Lister interface {
	ListEntries(ctx context.Context, scope source.Scope, priority int) (*source.ListResult, error)
}

// defaultManager is the default implementation of Manager
type defaultManager struct {
	lister     Lister
	index      index.Index
	guard      *guard.Guard
	reconciler *reconcile.Reconciler
	statusSvc  status.StatusPersistence
	logger     *slog.Logger
	now        func() time.Time

	syncMetrics      *telemetry.SyncMetrics
	reconcileMetrics *telemetry.ReconcileMetrics
}

// ManagerOption configures the sync manager
type ManagerOption func(*defaultManager)

// WithSyncMetrics sets the sync metrics
func WithSyncMetrics(metrics *telemetry.SyncMetrics) ManagerOption {
	return func(m *defaultManager) {
		m.syncMetrics = metrics
	}
}

// WithReconcileMetrics sets the reconciliation metrics
func WithReconcileMetrics(metrics *telemetry.ReconcileMetrics) ManagerOption {
	return func(m *defaultManager) {
		m.reconcileMetrics = metrics
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *defaultManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *defaultManager) {
		m.now = now
	}
}

// NewDefaultManager creates a new sync manager
func NewDefaultManager(
	lister Lister,
	idx index.Index,
	g *guard.Guard,
	reconciler *reconcile.Reconciler,
	statusSvc status.StatusPersistence,
	opts ...ManagerOption,
) Manager {
	m := &defaultManager{
		lister:     lister,
		index:      idx,
		guard:      g,
		reconciler: reconciler,
		statusSvc:  statusSvc,
		logger:     slog.Default(),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// SyncUnit executes the complete sync operation for one unit
func (m *defaultManager) SyncUnit(ctx context.Context, unit *config.UnitConfig, trigger Trigger) (*Result, *Error) {
	logger := m.logger.With("unit", unit.Name)

	if m.guard.IsDuplicateTrigger(trigger.ExecutionID) {
		logger.Info("skipping redelivered trigger", "execution_id", trigger.ExecutionID)
		return &Result{Unit: unit.Name, Skipped: true, SkipReason: ReasonDuplicateTrigger}, nil
	}

	if !m.guard.TryAcquire(unit.Name) {
		logger.Info("skipping trigger, sync already in progress")
		return &Result{Unit: unit.Name, Skipped: true, SkipReason: ReasonAlreadyInProgress}, nil
	}
	defer m.guard.Release(unit.Name)

	startTime := m.now()
	logger.Info("starting sync",
		"collection", unit.Collection,
		"region", unit.Region,
		"manual", trigger.Manual)

	m.markSyncing(ctx, unit.Name)

	result, syncErr := m.performSync(ctx, unit, logger)

	duration := m.now().Sub(startTime)
	if syncErr != nil {
		m.markFailed(ctx, unit.Name, syncErr.Message)
		m.syncMetrics.RecordSyncDuration(ctx, unit.Name, duration, false)
		return nil, syncErr
	}

	m.markComplete(ctx, unit.Name, result)
	m.syncMetrics.RecordSyncDuration(ctx, unit.Name, duration, true)
	m.syncMetrics.RecordEntriesTotal(ctx, unit.Name, int64(result.EntryCount))
	m.syncMetrics.RecordFailedPages(ctx, unit.Name, int64(result.FailedPages))
	if result.Reconcile != nil {
		m.reconcileMetrics.RecordOrphansDeleted(ctx, unit.Name, int64(result.Reconcile.DeletedCount))
	}

	logger.Info("sync complete",
		"entries", result.EntryCount,
		"failed_pages", result.FailedPages,
		"duration", duration)

	return result, nil
}

// performSync runs the fetch, index, reconcile pipeline for a unit
func (m *defaultManager) performSync(ctx context.Context, unit *config.UnitConfig, logger *slog.Logger) (*Result, *Error) {
	scope := source.Scope{Collection: unit.Collection, Region: unit.Region}

	listResult, err := m.lister.ListEntries(ctx, scope, unit.Priority)
	if err != nil {
		return nil, &Error{
			Err:     err,
			Message: fmt.Sprintf("Fetch failed: %v", err),
			Stage:   StageFetch,
		}
	}

	records := ToRecords(unit, listResult.Entries)
	if err := m.index.SaveObjects(ctx, records); err != nil {
		return nil, &Error{
			Err:     err,
			Message: fmt.Sprintf("Index write failed: %v", err),
			Stage:   StageIndex,
		}
	}

	result := &Result{
		Unit:        unit.Name,
		EntryCount:  len(records),
		FailedPages: listResult.FailedPages,
	}

	// A known-partial fetch must never translate into index deletions.
	if listResult.Partial() {
		logger.Warn("fetch was partial, withholding orphan deletion",
			"failed_pages", listResult.FailedPages,
			"total_pages", listResult.TotalPages)
		return result, nil
	}

	report, err := m.reconcileIndex(ctx, unit, records)
	if err != nil {
		var thresholdErr *reconcile.ThresholdError
		if errors.As(err, &thresholdErr) {
			m.reconcileMetrics.RecordAbort(ctx, unit.Name)
			result.Reconcile = thresholdErr.Report
		}
		return nil, &Error{
			Err:     err,
			Message: fmt.Sprintf("Reconciliation failed: %v", err),
			Stage:   StageReconcile,
		}
	}
	result.Reconcile = report

	return result, nil
}

// reconcileIndex diffs the fetched identifier set against the index
func (m *defaultManager) reconcileIndex(
	ctx context.Context, unit *config.UnitConfig, records []index.Record,
) (*reconcile.Report, error) {
	indexedIDs, err := m.index.BrowseAllIDs(ctx, BuildFilter(unit))
	if err != nil {
		return nil, fmt.Errorf("failed to browse indexed records: %w", err)
	}

	sourceIDs := make([]string, 0, len(records))
	for _, rec := range records {
		sourceIDs = append(sourceIDs, rec.ObjectID)
	}

	return m.reconciler.Reconcile(ctx, sourceIDs, indexedIDs)
}

// markSyncing persists the Syncing phase immediately so it's visible
func (m *defaultManager) markSyncing(ctx context.Context, unitName string) {
	syncStatus, err := m.statusSvc.LoadStatus(ctx, unitName)
	if err != nil {
		m.logger.Warn("failed to load sync status", "unit", unitName, "error", err)
		syncStatus = &status.SyncStatus{}
	}

	now := m.now()
	syncStatus.Phase = status.SyncPhaseSyncing
	syncStatus.Message = "Sync in progress"
	syncStatus.LastAttempt = &now
	syncStatus.AttemptCount++

	if err := m.statusSvc.SaveStatus(ctx, unitName, syncStatus); err != nil {
		m.logger.Warn("failed to persist syncing status", "unit", unitName, "error", err)
	}
}

func (m *defaultManager) markFailed(ctx context.Context, unitName, message string) {
	syncStatus, err := m.statusSvc.LoadStatus(ctx, unitName)
	if err != nil {
		m.logger.Warn("failed to load sync status", "unit", unitName, "error", err)
		syncStatus = &status.SyncStatus{}
	}

	syncStatus.Phase = status.SyncPhaseFailed
	syncStatus.Message = message

	if err := m.statusSvc.SaveStatus(ctx, unitName, syncStatus); err != nil {
		m.logger.Error("failed to persist failed status", "unit", unitName, "error", err)
	}
}

func (m *defaultManager) markComplete(ctx context.Context, unitName string, result *Result) {
	syncStatus, err := m.statusSvc.LoadStatus(ctx, unitName)
	if err != nil {
		m.logger.Warn("failed to load sync status", "unit", unitName, "error", err)
		syncStatus = &status.SyncStatus{}
	}

	now := m.now()
	syncStatus.Phase = status.SyncPhaseComplete
	syncStatus.Message = "Sync completed successfully"
	syncStatus.LastSyncTime = &now
	syncStatus.EntryCount = result.EntryCount
	syncStatus.FailedPages = result.FailedPages
	syncStatus.AttemptCount = 0
	if result.Reconcile != nil {
		syncStatus.OrphansDeleted = result.Reconcile.DeletedCount
	}

	if err := m.statusSvc.SaveStatus(ctx, unitName, syncStatus); err != nil {
		m.logger.Error("failed to persist completed status", "unit", unitName, "error", err)
	}
}
