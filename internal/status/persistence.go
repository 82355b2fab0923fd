// Package status provides sync status tracking and persistence per sync unit.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// StatusFileName is the name of the status file
	StatusFileName = "status.json"
)

// StatusPersistence defines the interface for sync status persistence
//
//nolint:revive // This name is fine
type StatusPersistence interface {
	// SaveStatus saves the sync status to persistent storage for a specific unit
	SaveStatus(ctx context.Context, unitName string, status *SyncStatus) error

	// LoadStatus loads the sync status from persistent storage for a specific unit
	// Returns an empty SyncStatus if the file doesn't exist (first run)
	LoadStatus(ctx context.Context, unitName string) (*SyncStatus, error)

	// LoadAllStatus loads sync status for all units
	LoadAllStatus(ctx context.Context) (map[string]*SyncStatus, error)
}

// fileStatusPersistence implements StatusPersistence using local filesystem
type fileStatusPersistence struct {
	basePath string
}

// NewFileStatusPersistence creates a new file-based status persistence.
// basePath is the base directory where per-unit status files will be stored.
func NewFileStatusPersistence(basePath string) StatusPersistence {
	return &fileStatusPersistence{
		basePath: basePath,
	}
}

// SaveStatus saves the sync status to a JSON file in a unit-specific directory
func (f *fileStatusPersistence) SaveStatus(_ context.Context, unitName string, status *SyncStatus) error {
	unitDir := filepath.Join(f.basePath, unitName)
	if err := os.MkdirAll(unitDir, 0750); err != nil {
		return fmt.Errorf("failed to create status directory for unit '%s': %w", unitName, err)
	}

	filePath := filepath.Join(unitDir, StatusFileName)

	// Pretty printed so operators can read the file directly
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status data for unit '%s': %w", unitName, err)
	}

	// Write to temporary file first for atomic operation
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary status file for unit '%s': %w", unitName, err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename status file for unit '%s': %w", unitName, err)
	}

	return nil
}

// LoadStatus loads the sync status from a JSON file for a specific unit.
// Returns an empty SyncStatus if the file doesn't exist.
func (f *fileStatusPersistence) LoadStatus(_ context.Context, unitName string) (*SyncStatus, error) {
	unitDir := filepath.Join(f.basePath, unitName)
	filePath := filepath.Join(unitDir, StatusFileName)

	// #nosec G304 -- filePath is constructed from trusted internal sources (basePath + validated unitName)
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			// First run
			return &SyncStatus{}, nil
		}
		return nil, fmt.Errorf("failed to read status file for unit '%s': %w", unitName, err)
	}

	var status SyncStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status data for unit '%s': %w", unitName, err)
	}

	return &status, nil
}

// LoadAllStatus loads sync status for all units
func (f *fileStatusPersistence) LoadAllStatus(ctx context.Context) (map[string]*SyncStatus, error) {
	result := make(map[string]*SyncStatus)

	entries, err := os.ReadDir(f.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			// Base directory doesn't exist yet, return empty map
			return result, nil
		}
		return nil, fmt.Errorf("failed to read status directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		unitName := entry.Name()
		status, err := f.LoadStatus(ctx, unitName)
		if err != nil {
			// Skip unreadable units so one corrupt file doesn't hide the rest
			continue
		}

		result[unitName] = status
	}

	return result, nil
}
