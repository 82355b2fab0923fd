package index

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// InMemoryIndex is an Index held in process memory, used by tests and
// local development.
type InMemoryIndex struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewInMemoryIndex creates an empty in-memory index.
func NewInMemoryIndex() *InMemoryIndex {
	return &InMemoryIndex{
		records: make(map[string]Record),
	}
}

// SaveObjects writes or replaces records.
func (i *InMemoryIndex) SaveObjects(_ context.Context, records []Record) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, rec := range records {
		i.records[rec.ObjectID] = rec
	}
	return nil
}

// DeleteObjects removes records by identifier.
func (i *InMemoryIndex) DeleteObjects(_ context.Context, ids []string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, id := range ids {
		delete(i.records, id)
	}
	return nil
}

// BrowseAllIDs enumerates indexed identifiers matching the filter.
func (i *InMemoryIndex) BrowseAllIDs(_ context.Context, filter string) ([]string, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	var ids []string
	for id, rec := range i.records {
		if matchesFilter(rec, filter) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Get returns a stored record, for tests.
func (i *InMemoryIndex) Get(id string) (Record, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	rec, ok := i.records[id]
	return rec, ok
}

// Len returns the number of stored records.
func (i *InMemoryIndex) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.records)
}

// matchesFilter evaluates a conjunction of "attribute:value" clauses
// against the filterable record attributes.
func matchesFilter(rec Record, filter string) bool {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return true
	}

	for _, clause := range strings.Split(filter, " AND ") {
		attr, value, ok := strings.Cut(strings.TrimSpace(clause), ":")
		if !ok {
			return false
		}
		switch attr {
		case "collection":
			if rec.Collection != value {
				return false
			}
		case "region":
			if rec.Region != value {
				return false
			}
		default:
			return false
		}
	}
	return true
}
