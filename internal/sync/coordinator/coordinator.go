// Package coordinator provides the ticker-driven background loop that
// periodically syncs every configured unit.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/Ukasha007/mizuho-algolia/internal/config"
	pkgsync "github.com/Ukasha007/mizuho-algolia/internal/sync"
)

const (
	// defaultSyncInterval is used when no sync policy is configured
	defaultSyncInterval = 30 * time.Minute

	// intervalJitterFraction is the maximum random offset applied to the
	// sync interval, as a fraction of the interval
	intervalJitterFraction = 0.1
)

// Coordinator manages background synchronization scheduling for all units
type Coordinator interface {
	// Start begins background sync coordination.
	// Blocks until context is cancelled.
	Start(ctx context.Context) error

	// Stop gracefully stops the coordinator
	Stop() error
}

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	service  *pkgsync.Service
	interval time.Duration
	logger   *slog.Logger

	// Lifecycle management
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *defaultCoordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a new coordinator syncing through the given service
func New(service *pkgsync.Service, cfg *config.Config, opts ...Option) (Coordinator, error) {
	interval := defaultSyncInterval
	if cfg.SyncPolicy != nil && cfg.SyncPolicy.Interval != "" {
		parsed, err := time.ParseDuration(cfg.SyncPolicy.Interval)
		if err != nil {
			return nil, errors.New("invalid sync policy interval: " + err.Error())
		}
		interval = parsed
	}

	c := &defaultCoordinator{
		service:  service,
		interval: interval,
		logger:   slog.Default(),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// jitteredInterval returns the sync interval with a random offset applied.
// The jitter spreads instances out so they do not hit the content API at
// the same instant.
func (c *defaultCoordinator) jitteredInterval() time.Duration {
	jitterRange := int64(float64(c.interval) * intervalJitterFraction)
	if jitterRange <= 0 {
		return c.interval
	}
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for scheduling jitter
	offset := time.Duration(rand.Int64N(2*jitterRange)) - time.Duration(jitterRange)
	return c.interval + offset
}

// Start begins background sync coordination for all units
func (c *defaultCoordinator) Start(ctx context.Context) error {
	c.logger.Info("Starting background sync coordinator",
		"unit_count", len(c.service.Units()),
		"base_interval", c.interval)

	coordCtx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	defer func() {
		close(c.done)
		c.logger.Info("Background sync coordinator shutting down")
	}()

	// Sync once at startup so a fresh instance converges immediately
	c.syncAllUnits(coordCtx)

	ticker := time.NewTicker(c.jitteredInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.syncAllUnits(coordCtx)

			// Recalculate interval with new jitter for the next iteration
			ticker.Reset(c.jitteredInterval())
		case <-coordCtx.Done():
			c.logger.Info("Sync coordinator stopping")
			return nil
		}
	}
}

// Stop gracefully stops the coordinator
func (c *defaultCoordinator) Stop() error {
	if c.cancelFunc != nil {
		c.logger.Info("Stopping sync coordinator")
		c.cancelFunc()
		// Wait for coordinator to finish
		<-c.done
	}
	return nil
}

// syncAllUnits runs one periodic sync pass over every configured unit
func (c *defaultCoordinator) syncAllUnits(ctx context.Context) {
	startTime := time.Now()

	results, err := c.service.SyncAll(ctx, pkgsync.Trigger{})
	if err != nil {
		c.logger.Error("Periodic sync pass finished with errors", "error", err)
	}

	synced, skipped := 0, 0
	for _, result := range results {
		if result.Skipped {
			skipped++
			continue
		}
		synced++
	}

	c.logger.Info("Periodic sync pass complete",
		"synced", synced,
		"skipped", skipped,
		"duration", time.Since(startTime))
}
