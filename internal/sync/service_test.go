package sync

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ukasha007/mizuho-algolia/internal/config"
	"github.com/Ukasha007/mizuho-algolia/internal/status"
)

// recordingManager records the triggers it receives per unit.
type recordingManager struct {
	mu       sync.Mutex
	triggers map[string][]Trigger
	errs     map[string]*Error
}

func newRecordingManager() *recordingManager {
	return &recordingManager{triggers: make(map[string][]Trigger)}
}

func (m *recordingManager) SyncUnit(_ context.Context, unit *config.UnitConfig, trigger Trigger) (*Result, *Error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.triggers[unit.Name] = append(m.triggers[unit.Name], trigger)
	if err, ok := m.errs[unit.Name]; ok {
		return nil, err
	}
	return &Result{Unit: unit.Name, EntryCount: 1}, nil
}

func serviceConfig() *config.Config {
	return &config.Config{
		Units: []config.UnitConfig{
			{Name: "products-jp", Collection: "products", Region: "jp"},
			{Name: "pages", Collection: "pages"},
		},
	}
}

func TestServiceSyncUnitKnown(t *testing.T) {
	t.Parallel()

	manager := newRecordingManager()
	svc := NewService(manager, serviceConfig(), status.NewFileStatusPersistence(t.TempDir()))

	result, err := svc.SyncUnit(context.Background(), "pages", Trigger{Manual: true})
	require.NoError(t, err)
	assert.Equal(t, "pages", result.Unit)

	require.Len(t, manager.triggers["pages"], 1)
	assert.True(t, manager.triggers["pages"][0].Manual)
}

func TestServiceSyncUnitUnknown(t *testing.T) {
	t.Parallel()

	svc := NewService(newRecordingManager(), serviceConfig(), status.NewFileStatusPersistence(t.TempDir()))

	_, err := svc.SyncUnit(context.Background(), "missing", Trigger{})
	require.Error(t, err)

	var unknownErr *UnknownUnitError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "missing", unknownErr.Unit)
}

func TestServiceSyncAll(t *testing.T) {
	t.Parallel()

	manager := newRecordingManager()
	svc := NewService(manager, serviceConfig(), status.NewFileStatusPersistence(t.TempDir()))

	results, err := svc.SyncAll(context.Background(), Trigger{ExecutionID: "exec-1"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Results are ordered by unit name.
	assert.Equal(t, "pages", results[0].Unit)
	assert.Equal(t, "products-jp", results[1].Unit)

	// Each unit received a derived execution identifier.
	require.Len(t, manager.triggers["pages"], 1)
	assert.Equal(t, "exec-1/pages", manager.triggers["pages"][0].ExecutionID)
	require.Len(t, manager.triggers["products-jp"], 1)
	assert.Equal(t, "exec-1/products-jp", manager.triggers["products-jp"][0].ExecutionID)
}

func TestServiceSyncAllWithoutExecutionID(t *testing.T) {
	t.Parallel()

	manager := newRecordingManager()
	svc := NewService(manager, serviceConfig(), status.NewFileStatusPersistence(t.TempDir()))

	_, err := svc.SyncAll(context.Background(), Trigger{Manual: true})
	require.NoError(t, err)

	assert.Empty(t, manager.triggers["pages"][0].ExecutionID)
	assert.Empty(t, manager.triggers["products-jp"][0].ExecutionID)
}

func TestServiceSyncAllSurfacesErrors(t *testing.T) {
	t.Parallel()

	manager := newRecordingManager()
	manager.errs = map[string]*Error{
		"pages": {Message: "Fetch failed: boom", Stage: StageFetch},
	}
	svc := NewService(manager, serviceConfig(), status.NewFileStatusPersistence(t.TempDir()))

	results, err := svc.SyncAll(context.Background(), Trigger{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Fetch failed")

	// The healthy unit still produced a result.
	require.Len(t, results, 1)
	assert.Equal(t, "products-jp", results[0].Unit)
}

func TestServiceSyncAllOrdersSurvivorsAcrossFailures(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Units: []config.UnitConfig{
			{Name: "zebra", Collection: "zebra"},
			{Name: "alpha", Collection: "alpha"},
			{Name: "mid", Collection: "mid"},
			{Name: "beta", Collection: "beta"},
		},
	}
	manager := newRecordingManager()
	manager.errs = map[string]*Error{
		"alpha": {Message: "Fetch failed: boom", Stage: StageFetch},
		"mid":   {Message: "Fetch failed: boom", Stage: StageFetch},
	}
	svc := NewService(manager, cfg, status.NewFileStatusPersistence(t.TempDir()))

	results, err := svc.SyncAll(context.Background(), Trigger{})
	require.Error(t, err)

	// Failed units leave no result slots; the survivors come back sorted
	// by unit name regardless of where the failures sat.
	require.Len(t, results, 2)
	assert.Equal(t, "beta", results[0].Unit)
	assert.Equal(t, "zebra", results[1].Unit)
}

func TestServiceUnits(t *testing.T) {
	t.Parallel()

	svc := NewService(newRecordingManager(), serviceConfig(), status.NewFileStatusPersistence(t.TempDir()))
	units := svc.Units()
	require.Len(t, units, 2)
	assert.Equal(t, "products-jp", units[0].Name)
}
