package app

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/Ukasha007/mizuho-algolia/internal/config"
	"github.com/Ukasha007/mizuho-algolia/internal/guard"
	"github.com/Ukasha007/mizuho-algolia/internal/httpclient"
	"github.com/Ukasha007/mizuho-algolia/internal/index"
	"github.com/Ukasha007/mizuho-algolia/internal/ratelimit"
	"github.com/Ukasha007/mizuho-algolia/internal/reconcile"
	"github.com/Ukasha007/mizuho-algolia/internal/scheduler"
	"github.com/Ukasha007/mizuho-algolia/internal/source"
	"github.com/Ukasha007/mizuho-algolia/internal/status"
	pkgsync "github.com/Ukasha007/mizuho-algolia/internal/sync"
	"github.com/Ukasha007/mizuho-algolia/internal/telemetry"
	"github.com/Ukasha007/mizuho-algolia/internal/versions"
)

// runtimeDeps holds the wired components shared by the serve and sync
// commands.
type runtimeDeps struct {
	cfg           *config.Config
	scheduler     *scheduler.Scheduler
	guard         *guard.Guard
	service       *pkgsync.Service
	meterProvider metric.MeterProvider
}

// buildDeps constructs the full component graph from configuration.
func buildDeps(ctx context.Context, cfg *config.Config) (*runtimeDeps, error) {
	token, err := cfg.Source.GetToken()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source credentials: %w", err)
	}

	apiKey, err := cfg.Index.GetAPIKey()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve index credentials: %w", err)
	}

	meterProvider, err := telemetry.NewMeterProvider(ctx, cfg.Telemetry, versions.GetVersionInfo().Version)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	syncMetrics, err := telemetry.NewSyncMetrics(meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync metrics: %w", err)
	}
	reconcileMetrics, err := telemetry.NewReconcileMetrics(meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create reconcile metrics: %w", err)
	}

	// One tracker and one scheduler serve every unit so the upstream rate
	// limit is respected globally.
	tracker := ratelimit.NewTracker()
	schedOpts := []scheduler.Option{
		scheduler.WithSafetyBuffer(cfg.GetSafetyBuffer()),
	}
	if cfg.Scheduler != nil {
		if cfg.Scheduler.InterRequestDelay != "" {
			delay, err := time.ParseDuration(cfg.Scheduler.InterRequestDelay)
			if err != nil {
				return nil, fmt.Errorf("invalid inter-request delay: %w", err)
			}
			schedOpts = append(schedOpts, scheduler.WithInterRequestDelay(delay))
		}
		if cfg.Scheduler.RetryBudget > 0 {
			schedOpts = append(schedOpts, scheduler.WithRetryBudget(cfg.Scheduler.RetryBudget))
		}
	}
	sched := scheduler.New(tracker, schedOpts...)

	sourceHTTP := httpclient.NewDefaultClient(0,
		httpclient.WithHeader("Authorization", "Bearer "+token),
	)
	srcClient := source.NewClient(sourceHTTP, sched, cfg.Source.Endpoint,
		source.WithPerPage(cfg.Source.GetPerPage()),
	)

	indexHTTP := httpclient.NewDefaultClient(0,
		httpclient.WithHeader("X-Algolia-API-Key", apiKey),
		httpclient.WithHeader("X-Algolia-Application-Id", cfg.Index.AppID),
	)
	idx := index.NewHTTPIndex(indexHTTP, cfg.Index.Endpoint, cfg.Index.IndexName)

	g := guard.New()

	reconcileOpts := []reconcile.Option{
		reconcile.WithSafetyThreshold(cfg.GetSafetyThreshold()),
	}
	if cfg.Reconcile != nil && cfg.Reconcile.DryRun {
		reconcileOpts = append(reconcileOpts, reconcile.WithDryRun(true))
	}
	reconciler := reconcile.New(idx, reconcileOpts...)

	statusSvc := status.NewFileStatusPersistence(cfg.GetStatusDir())

	manager := pkgsync.NewDefaultManager(srcClient, idx, g, reconciler, statusSvc,
		pkgsync.WithSyncMetrics(syncMetrics),
		pkgsync.WithReconcileMetrics(reconcileMetrics),
	)

	return &runtimeDeps{
		cfg:           cfg,
		scheduler:     sched,
		guard:         g,
		service:       pkgsync.NewService(manager, cfg, statusSvc),
		meterProvider: meterProvider,
	}, nil
}
