// Package reconcile computes and deletes orphaned search records: records
// still present in the index whose identifiers have disappeared from the
// source of truth. A safety threshold guards against wiping the index
// when a transient partial fetch makes the source look empty.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// DefaultSafetyThreshold is the maximum fraction of indexed records that
// may be deleted in one pass before the operation aborts.
const DefaultSafetyThreshold = 0.6

// Deleter removes records from the search index by identifier.
type Deleter interface {
	DeleteObjects(ctx context.Context, ids []string) error
}

// Report summarizes one reconciliation pass. It is returned and logged,
// never persisted.
type Report struct {
	SourceCount     int     `json:"source_count"`
	IndexCount      int     `json:"index_count"`
	OrphanCount     int     `json:"orphan_count"`
	DeletedCount    int     `json:"deleted_count"`
	SafetyThreshold float64 `json:"safety_threshold"`
	Aborted         bool    `json:"aborted"`
}

// ThresholdError signals that the orphan fraction exceeded the safety
// threshold. It carries the full report so operators can see the counts;
// it must be surfaced loudly, never swallowed.
type ThresholdError struct {
	Report *Report
}

func (e *ThresholdError) Error() string {
	return fmt.Sprintf(
		"refusing to delete %d of %d indexed records (%.0f%% exceeds %.0f%% safety threshold)",
		e.Report.OrphanCount,
		e.Report.IndexCount,
		100*float64(e.Report.OrphanCount)/float64(e.Report.IndexCount),
		100*e.Report.SafetyThreshold,
	)
}

// Reconciler diffs the source-of-truth identifier set against the index
// and deletes what disappeared, within the safety threshold.
type Reconciler struct {
	deleter   Deleter
	logger    *slog.Logger
	threshold float64
	dryRun    bool
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithSafetyThreshold overrides the default deletion threshold.
func WithSafetyThreshold(fraction float64) Option {
	return func(r *Reconciler) {
		if fraction > 0 && fraction <= 1 {
			r.threshold = fraction
		}
	}
}

// WithDryRun computes the orphan set without deleting anything.
func WithDryRun(dryRun bool) Option {
	return func(r *Reconciler) {
		r.dryRun = dryRun
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a reconciler deleting through the given deleter.
func New(deleter Deleter, opts ...Option) *Reconciler {
	r := &Reconciler{
		deleter:   deleter,
		logger:    slog.Default(),
		threshold: DefaultSafetyThreshold,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile computes orphanIDs = indexedIDs - sourceIDs and deletes them
// unless the deletion fraction exceeds the safety threshold, in which
// case it returns a *ThresholdError and deletes nothing. An empty index
// is a no-op.
func (r *Reconciler) Reconcile(ctx context.Context, sourceIDs, indexedIDs []string) (*Report, error) {
	report := &Report{
		SourceCount:     len(sourceIDs),
		IndexCount:      len(indexedIDs),
		SafetyThreshold: r.threshold,
	}

	if len(indexedIDs) == 0 {
		return report, nil
	}

	source := make(map[string]struct{}, len(sourceIDs))
	for _, id := range sourceIDs {
		source[id] = struct{}{}
	}

	var orphans []string
	for _, id := range indexedIDs {
		if _, ok := source[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)
	report.OrphanCount = len(orphans)

	if len(orphans) == 0 {
		return report, nil
	}

	fraction := float64(len(orphans)) / float64(len(indexedIDs))
	if fraction > r.threshold {
		report.Aborted = true
		r.logger.Error("reconciliation aborted, orphan fraction exceeds safety threshold",
			"orphans", report.OrphanCount,
			"indexed", report.IndexCount,
			"fraction", fraction,
			"threshold", r.threshold)
		return report, &ThresholdError{Report: report}
	}

	if r.dryRun {
		r.logger.Info("dry run, skipping orphan deletion",
			"orphans", report.OrphanCount,
			"indexed", report.IndexCount)
		return report, nil
	}

	if err := r.deleter.DeleteObjects(ctx, orphans); err != nil {
		return report, fmt.Errorf("failed to delete %d orphaned records: %w", len(orphans), err)
	}
	report.DeletedCount = len(orphans)

	r.logger.Info("reconciliation complete",
		"source", report.SourceCount,
		"indexed", report.IndexCount,
		"deleted", report.DeletedCount)
	return report, nil
}
