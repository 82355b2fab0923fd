package sync

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/Ukasha007/mizuho-algolia/internal/config"
	"github.com/Ukasha007/mizuho-algolia/internal/status"
)

// maxConcurrentSyncs bounds the fan-out of SyncAll. Page requests still
// serialize through the shared scheduler, so this only caps bookkeeping
// overhead, not upstream load.
const maxConcurrentSyncs = 4

// UnknownUnitError signals a sync request for a unit that is not configured.
type UnknownUnitError struct {
	Unit string
}

func (e *UnknownUnitError) Error() string {
	return fmt.Sprintf("unknown sync unit '%s'", e.Unit)
}

// Service exposes unit-level sync operations to the HTTP API and the
// background coordinator.
type Service struct {
	manager   Manager
	cfg       *config.Config
	statusSvc status.StatusPersistence
}

// NewService creates a sync service over the given manager and configuration.
func NewService(manager Manager, cfg *config.Config, statusSvc status.StatusPersistence) *Service {
	return &Service{
		manager:   manager,
		cfg:       cfg,
		statusSvc: statusSvc,
	}
}

// SyncUnit syncs one unit by name.
func (s *Service) SyncUnit(ctx context.Context, name string, trigger Trigger) (*Result, error) {
	unit := s.cfg.GetUnit(name)
	if unit == nil {
		return nil, &UnknownUnitError{Unit: name}
	}

	result, syncErr := s.manager.SyncUnit(ctx, unit, trigger)
	if syncErr != nil {
		return nil, syncErr
	}
	return result, nil
}

// SyncAll syncs every configured unit concurrently and returns the
// per-unit results ordered by unit name. The first sync error is
// returned after all units have finished.
func (s *Service) SyncAll(ctx context.Context, trigger Trigger) ([]*Result, error) {
	results := make([]*Result, len(s.cfg.Units))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentSyncs)

	for i := range s.cfg.Units {
		unit := &s.cfg.Units[i]
		g.Go(func() error {
			// Derive a per-unit execution identifier so the dedup ledger
			// suppresses redelivery of the whole trigger without collapsing
			// the units of one run into each other.
			unitTrigger := trigger
			if trigger.ExecutionID != "" {
				unitTrigger.ExecutionID = fmt.Sprintf("%s/%s", trigger.ExecutionID, unit.Name)
			}

			result, syncErr := s.manager.SyncUnit(gctx, unit, unitTrigger)
			if syncErr != nil {
				return syncErr
			}
			results[i] = result
			return nil
		})
	}

	err := g.Wait()

	// Drop slots of units that failed before producing a result, then
	// order the survivors by unit name.
	compact := results[:0]
	for _, r := range results {
		if r != nil {
			compact = append(compact, r)
		}
	}
	sort.Slice(compact, func(i, j int) bool {
		return compact[i].Unit < compact[j].Unit
	})

	return compact, err
}

// Status returns the persisted sync status for every unit.
func (s *Service) Status(ctx context.Context) (map[string]*status.SyncStatus, error) {
	return s.statusSvc.LoadAllStatus(ctx)
}

// Units returns the configured sync units.
func (s *Service) Units() []config.UnitConfig {
	return s.cfg.Units
}
