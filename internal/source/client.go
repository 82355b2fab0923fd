// Package source fetches content entries from the upstream content API.
// Every page request goes through the request scheduler, so concurrent
// sync units share one rate-limited request stream.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/Ukasha007/mizuho-algolia/internal/httpclient"
	"github.com/Ukasha007/mizuho-algolia/internal/scheduler"
)

// DefaultPerPage is the page size requested from the content API.
const DefaultPerPage = 100

// Client lists content entries through the scheduler.
type Client struct {
	http     httpclient.Client
	sched    *scheduler.Scheduler
	logger   *slog.Logger
	endpoint string
	perPage  int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithPerPage overrides the page size.
func WithPerPage(n int) ClientOption {
	return func(c *Client) {
		if n >= 1 {
			c.perPage = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a content API client dispatching through sched.
func NewClient(httpClient httpclient.Client, sched *scheduler.Scheduler, endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		http:     httpClient,
		sched:    sched,
		logger:   slog.Default(),
		endpoint: endpoint,
		perPage:  DefaultPerPage,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListEntries fetches every page of entries in scope. The first page is
// fetched alone to learn the page count, then the remaining pages are
// enqueued together and collected as they complete. Failed pages are
// counted, not fatal: the caller decides what a partial result permits.
func (c *Client) ListEntries(ctx context.Context, scope Scope, priority int) (*ListResult, error) {
	first, err := c.fetchPage(ctx, scope, 1, priority)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch first page for %s: %w", scope.Collection, err)
	}

	result := &ListResult{
		Entries:    first.Items,
		TotalPages: first.TotalPages,
	}
	if first.TotalPages <= 1 {
		return result, nil
	}

	// Fan in the remaining pages through the shared scheduler.
	type pending struct {
		page   int
		handle *scheduler.Handle
	}
	handles := make([]pending, 0, first.TotalPages-1)
	for page := 2; page <= first.TotalPages; page++ {
		handles = append(handles, pending{
			page:   page,
			handle: c.enqueuePage(scope, page, priority),
		})
	}

	for _, p := range handles {
		resp, err := p.handle.Wait(ctx)
		if err != nil {
			// One bad page does not abort the batch; the incomplete set is
			// flagged so the caller can withhold destructive reconciliation.
			c.logger.Error("page fetch failed terminally",
				"collection", scope.Collection,
				"page", p.page,
				"error", err)
			result.FailedPages++
			continue
		}

		var parsed listPage
		if err := json.Unmarshal(resp.Body, &parsed); err != nil {
			c.logger.Error("failed to parse page response",
				"collection", scope.Collection,
				"page", p.page,
				"error", err)
			result.FailedPages++
			continue
		}
		result.Entries = append(result.Entries, parsed.Items...)
	}

	return result, nil
}

// fetchPage fetches a single page synchronously through the scheduler.
func (c *Client) fetchPage(ctx context.Context, scope Scope, page, priority int) (*listPage, error) {
	resp, err := c.enqueuePage(scope, page, priority).Wait(ctx)
	if err != nil {
		return nil, err
	}

	var parsed listPage
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse page %d: %w", page, err)
	}
	return &parsed, nil
}

func (c *Client) enqueuePage(scope Scope, page, priority int) *scheduler.Handle {
	pageURL := c.pageURL(scope, page)
	return c.sched.Enqueue(&scheduler.Request{
		Key: fmt.Sprintf("%s page %d", scope.Collection, page),
		Do: func(ctx context.Context) (*scheduler.Response, error) {
			resp, err := c.http.Get(ctx, pageURL)
			if err != nil {
				return nil, err
			}
			return &scheduler.Response{
				Body:      resp.Body,
				RateLimit: resp.RateLimit(),
			}, nil
		},
	}, scheduler.WithPriority(priority))
}

func (c *Client) pageURL(scope Scope, page int) string {
	q := url.Values{}
	q.Set("collection", scope.Collection)
	if scope.Region != "" {
		q.Set("region", scope.Region)
	}
	q.Set("page", fmt.Sprintf("%d", page))
	q.Set("per_page", fmt.Sprintf("%d", c.perPage))
	return fmt.Sprintf("%s/v1/entries?%s", c.endpoint, q.Encode())
}
