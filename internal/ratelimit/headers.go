package ratelimit

import (
	"net/http"
	"strconv"
	"time"
)

// Standard rate-limit header names used by the content API.
const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// FromHeaders extracts rate-limit metadata from response headers. Returns
// nil when the response carries no rate-limit information, so callers can
// feed the result straight into Tracker.Observe.
func FromHeaders(h http.Header) *Metadata {
	limitStr := h.Get(HeaderLimit)
	remainingStr := h.Get(HeaderRemaining)
	if limitStr == "" && remainingStr == "" {
		return nil
	}

	md := &Metadata{Limit: -1, Remaining: -1}
	if v, err := strconv.Atoi(limitStr); err == nil {
		md.Limit = v
	}
	if v, err := strconv.Atoi(remainingStr); err == nil {
		md.Remaining = v
	}
	// Reset is a unix timestamp in seconds.
	if v, err := strconv.ParseInt(h.Get(HeaderReset), 10, 64); err == nil && v > 0 {
		reset := time.Unix(v, 0)
		md.ResetAt = &reset
	}
	return md
}

// RetryAfterError signals an explicit "too many requests" rejection from
// the upstream, carrying the delay it asked us to honor.
type RetryAfterError struct {
	RetryAfter time.Duration
}

func (e *RetryAfterError) Error() string {
	return "rate limited by upstream, retry after " + e.RetryAfter.String()
}
