package index

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/Ukasha007/mizuho-algolia/internal/httpclient"
)

// Batch actions understood by the index batch endpoint.
const (
	actionUpdateObject = "updateObject"
	actionDeleteObject = "deleteObject"
)

// HTTPIndex talks to a hosted search index over its REST API
// (batch writes and cursor-paginated browse).
type HTTPIndex struct {
	client    httpclient.Client
	endpoint  string
	indexName string
	batchSize int
}

// HTTPIndexOption configures an HTTPIndex.
type HTTPIndexOption func(*HTTPIndex)

// WithBatchSize overrides the default write batch size.
func WithBatchSize(n int) HTTPIndexOption {
	return func(i *HTTPIndex) {
		if n >= 1 {
			i.batchSize = n
		}
	}
}

// NewHTTPIndex creates an index client for the named index at the given
// base endpoint. The httpclient carries the credential headers.
func NewHTTPIndex(client httpclient.Client, endpoint, indexName string, opts ...HTTPIndexOption) *HTTPIndex {
	i := &HTTPIndex{
		client:    client,
		endpoint:  endpoint,
		indexName: indexName,
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

type batchOperation struct {
	Action string `json:"action"`
	Body   any    `json:"body"`
}

type batchRequest struct {
	Requests []batchOperation `json:"requests"`
}

// SaveObjects writes records in batches.
func (i *HTTPIndex) SaveObjects(ctx context.Context, records []Record) error {
	for start := 0; start < len(records); start += i.batchSize {
		end := start + i.batchSize
		if end > len(records) {
			end = len(records)
		}

		ops := make([]batchOperation, 0, end-start)
		for _, rec := range records[start:end] {
			ops = append(ops, batchOperation{Action: actionUpdateObject, Body: rec})
		}
		if err := i.postBatch(ctx, ops); err != nil {
			return fmt.Errorf("failed to save records %d-%d: %w", start, end-1, err)
		}
	}
	return nil
}

// DeleteObjects removes records by identifier in batches.
func (i *HTTPIndex) DeleteObjects(ctx context.Context, ids []string) error {
	for start := 0; start < len(ids); start += i.batchSize {
		end := start + i.batchSize
		if end > len(ids) {
			end = len(ids)
		}

		ops := make([]batchOperation, 0, end-start)
		for _, id := range ids[start:end] {
			ops = append(ops, batchOperation{
				Action: actionDeleteObject,
				Body:   map[string]string{"objectID": id},
			})
		}
		if err := i.postBatch(ctx, ops); err != nil {
			return fmt.Errorf("failed to delete records %d-%d: %w", start, end-1, err)
		}
	}
	return nil
}

func (i *HTTPIndex) postBatch(ctx context.Context, ops []batchOperation) error {
	body, err := json.Marshal(batchRequest{Requests: ops})
	if err != nil {
		return fmt.Errorf("failed to marshal batch request: %w", err)
	}

	batchURL := fmt.Sprintf("%s/1/indexes/%s/batch", i.endpoint, url.PathEscape(i.indexName))
	if _, err := i.client.Post(ctx, batchURL, body); err != nil {
		return err
	}
	return nil
}

type browseRequest struct {
	Filters              string   `json:"filters,omitempty"`
	AttributesToRetrieve []string `json:"attributesToRetrieve"`
	Cursor               string   `json:"cursor,omitempty"`
	HitsPerPage          int      `json:"hitsPerPage,omitempty"`
}

type browseResponse struct {
	Hits []struct {
		ObjectID string `json:"objectID"`
	} `json:"hits"`
	Cursor string `json:"cursor"`
}

// BrowseAllIDs walks the browse cursor until exhaustion, returning every
// indexed identifier matching the filter.
func (i *HTTPIndex) BrowseAllIDs(ctx context.Context, filter string) ([]string, error) {
	browseURL := fmt.Sprintf("%s/1/indexes/%s/browse", i.endpoint, url.PathEscape(i.indexName))

	var ids []string
	cursor := ""
	for {
		body, err := json.Marshal(browseRequest{
			Filters:              filter,
			AttributesToRetrieve: []string{"objectID"},
			Cursor:               cursor,
			HitsPerPage:          1000,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal browse request: %w", err)
		}

		resp, err := i.client.Post(ctx, browseURL, body)
		if err != nil {
			return nil, fmt.Errorf("browse request failed: %w", err)
		}

		var page browseResponse
		if err := json.Unmarshal(resp.Body, &page); err != nil {
			return nil, fmt.Errorf("failed to parse browse response: %w", err)
		}

		for _, hit := range page.Hits {
			ids = append(ids, hit.ObjectID)
		}

		if page.Cursor == "" {
			return ids, nil
		}
		cursor = page.Cursor
	}
}
