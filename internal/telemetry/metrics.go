// Package telemetry provides OpenTelemetry instrumentation for the sync server.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// SyncMetricsMeterName is the name used for the sync metrics meter
	SyncMetricsMeterName = "github.com/Ukasha007/mizuho-algolia/sync"

	// ReconcileMetricsMeterName is the name used for the reconcile metrics meter
	ReconcileMetricsMeterName = "github.com/Ukasha007/mizuho-algolia/reconcile"

	// SchedulerMetricsMeterName is the name used for the scheduler metrics meter
	SchedulerMetricsMeterName = "github.com/Ukasha007/mizuho-algolia/scheduler"
)

// SyncMetrics holds the OpenTelemetry instruments for sync operation metrics
type SyncMetrics struct {
	syncDuration metric.Float64Histogram
	entriesTotal metric.Int64Gauge
	failedPages  metric.Int64Counter
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	syncDuration, err := meter.Float64Histogram(
		"mizuho_sync_duration_seconds",
		metric.WithDescription("Duration of sync operations in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	entriesTotal, err := meter.Int64Gauge(
		"mizuho_sync_entries_total",
		metric.WithDescription("Number of entries indexed per sync unit"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	failedPages, err := meter.Int64Counter(
		"mizuho_sync_failed_pages_total",
		metric.WithDescription("Pages that failed to fetch after all retries"),
		metric.WithUnit("{page}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		syncDuration: syncDuration,
		entriesTotal: entriesTotal,
		failedPages:  failedPages,
	}, nil
}

// RecordSyncDuration records the duration of a sync operation for a unit
func (m *SyncMetrics) RecordSyncDuration(ctx context.Context, unitName string, duration time.Duration, success bool) {
	if m == nil || m.syncDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("unit", unitName),
		attribute.Bool("success", success),
	}

	m.syncDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordEntriesTotal records the number of entries indexed for a unit
func (m *SyncMetrics) RecordEntriesTotal(ctx context.Context, unitName string, count int64) {
	if m == nil || m.entriesTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("unit", unitName),
	}

	m.entriesTotal.Record(ctx, count, metric.WithAttributes(attrs...))
}

// RecordFailedPages counts pages that failed terminally during a sync
func (m *SyncMetrics) RecordFailedPages(ctx context.Context, unitName string, count int64) {
	if m == nil || m.failedPages == nil || count == 0 {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("unit", unitName),
	}

	m.failedPages.Add(ctx, count, metric.WithAttributes(attrs...))
}

// ReconcileMetrics holds the OpenTelemetry instruments for reconciliation metrics
type ReconcileMetrics struct {
	orphansDeleted metric.Int64Counter
	abortsTotal    metric.Int64Counter
}

// NewReconcileMetrics creates a new ReconcileMetrics instance with the given
// meter provider. If provider is nil, it returns nil (no-op metrics).
func NewReconcileMetrics(provider metric.MeterProvider) (*ReconcileMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(ReconcileMetricsMeterName)

	orphansDeleted, err := meter.Int64Counter(
		"mizuho_reconcile_orphans_deleted_total",
		metric.WithDescription("Stale records removed from the index"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	abortsTotal, err := meter.Int64Counter(
		"mizuho_reconcile_aborts_total",
		metric.WithDescription("Reconciliations aborted by the safety threshold"),
		metric.WithUnit("{reconciliation}"),
	)
	if err != nil {
		return nil, err
	}

	return &ReconcileMetrics{
		orphansDeleted: orphansDeleted,
		abortsTotal:    abortsTotal,
	}, nil
}

// RecordOrphansDeleted counts stale records removed for a unit
func (m *ReconcileMetrics) RecordOrphansDeleted(ctx context.Context, unitName string, count int64) {
	if m == nil || m.orphansDeleted == nil || count == 0 {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("unit", unitName),
	}

	m.orphansDeleted.Add(ctx, count, metric.WithAttributes(attrs...))
}

// RecordAbort counts a reconciliation stopped by the safety threshold
func (m *ReconcileMetrics) RecordAbort(ctx context.Context, unitName string) {
	if m == nil || m.abortsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("unit", unitName),
	}

	m.abortsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}
