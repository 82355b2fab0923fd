// Package index defines the narrow contract this service needs from the
// hosted search index: batched writes, batched deletes, and enumeration
// of indexed identifiers for reconciliation.
package index

import "context"

// DefaultBatchSize is the number of records sent per batch write.
const DefaultBatchSize = 1000

// Record is one searchable object. ObjectID is the stable identifier
// reconciliation diffs against.
type Record struct {
	ObjectID   string   `json:"objectID"`
	Collection string   `json:"collection"`
	Region     string   `json:"region,omitempty"`
	Title      string   `json:"title"`
	Body       string   `json:"body,omitempty"`
	URL        string   `json:"url,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	UpdatedAt  int64    `json:"updated_at,omitempty"`
}

// Index is the search index contract.
type Index interface {
	// SaveObjects writes or replaces records.
	SaveObjects(ctx context.Context, records []Record) error

	// DeleteObjects removes records by identifier. Unknown identifiers
	// are ignored.
	DeleteObjects(ctx context.Context, ids []string) error

	// BrowseAllIDs enumerates all indexed identifiers matching the scope
	// filter, e.g. "collection:products AND region:jp". An empty filter
	// matches everything.
	BrowseAllIDs(ctx context.Context, filter string) ([]string, error)
}
