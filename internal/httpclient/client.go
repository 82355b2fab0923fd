// Package httpclient provides HTTP client functionality for API operations
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Ukasha007/mizuho-algolia/internal/ratelimit"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 10 * time.Second

	// MaxResponseSize is the maximum allowed response size (100MB)
	MaxResponseSize = 100 * 1024 * 1024

	// UserAgent is the user agent string for HTTP requests
	UserAgent = "mizuho-sync/1.0"

	// defaultRetryAfter applies when a 429 response omits the Retry-After
	// header
	defaultRetryAfter = 5 * time.Second
)

// Response is an HTTP response body together with the headers the caller
// may need (rate-limit metadata in particular).
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// RateLimit extracts the rate-limit metadata attached to the response,
// nil when none is present.
func (r *Response) RateLimit() *ratelimit.Metadata {
	if r == nil {
		return nil
	}
	return ratelimit.FromHeaders(r.Header)
}

// Client is an interface for HTTP operations
type Client interface {
	// Get performs an HTTP GET request
	Get(ctx context.Context, url string) (*Response, error)

	// Post performs an HTTP POST request with a JSON body
	Post(ctx context.Context, url string, body []byte) (*Response, error)
}

// DefaultClient is the default HTTP client implementation
type DefaultClient struct {
	client  *http.Client
	headers map[string]string
}

// ClientOption configures a DefaultClient.
type ClientOption func(*DefaultClient)

// WithHeader sets a header on every request, e.g. an API key.
func WithHeader(key, value string) ClientOption {
	return func(c *DefaultClient) {
		c.headers[key] = value
	}
}

// NewDefaultClient creates a new default HTTP client with the specified timeout
// If timeout is 0, uses DefaultTimeout
func NewDefaultClient(timeout time.Duration, opts ...ClientOption) Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	c := &DefaultClient{
		client: &http.Client{
			Timeout: timeout,
		},
		headers: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get performs an HTTP GET request
func (c *DefaultClient) Get(ctx context.Context, url string) (*Response, error) {
	return c.do(ctx, http.MethodGet, url, nil)
}

// Post performs an HTTP POST request with a JSON body
func (c *DefaultClient) Post(ctx context.Context, url string, body []byte) (*Response, error) {
	return c.do(ctx, http.MethodPost, url, body)
}

func (c *DefaultClient) do(ctx context.Context, method, url string, body []byte) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	// Execute request
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// A distinguishable "too many requests" shape: the caller's retry
	// policy treats this differently from other failures.
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &ratelimit.RetryAfterError{RetryAfter: retryAfter(resp.Header)}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, NewHTTPError(resp.StatusCode, url, resp.Status)
	}

	// Check Content-Length header if available
	if resp.ContentLength > MaxResponseSize {
		return nil, fmt.Errorf("response size %d bytes exceeds maximum allowed size of %d bytes",
			resp.ContentLength, MaxResponseSize)
	}

	// Read response body with size limit
	limitedReader := io.LimitReader(resp.Body, MaxResponseSize+1)
	data, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > MaxResponseSize {
		return nil, fmt.Errorf("response size exceeds maximum allowed size of %d bytes", MaxResponseSize)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       data,
		Header:     resp.Header,
	}, nil
}

// retryAfter parses the Retry-After header, in seconds.
func retryAfter(h http.Header) time.Duration {
	if v, err := strconv.Atoi(h.Get("Retry-After")); err == nil && v > 0 {
		return time.Duration(v) * time.Second
	}
	return defaultRetryAfter
}
