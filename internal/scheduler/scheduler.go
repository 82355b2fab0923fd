// Package scheduler serializes outbound API calls through a single
// priority-ordered dispatch loop that respects the upstream rate limit.
// Many logical callers enqueue concurrently; one drain loop owns the
// physical request stream.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/Ukasha007/mizuho-algolia/internal/ratelimit"
)

const (
	// DefaultRetryBudget is the total number of executions a request gets
	// before it fails terminally.
	DefaultRetryBudget = 3

	// DefaultSafetyBuffer is the fraction of the quota kept in reserve.
	DefaultSafetyBuffer = 0.05

	// DefaultInterRequestDelay spaces consecutive dispatches to avoid
	// bursting the upstream.
	DefaultInterRequestDelay = 100 * time.Millisecond

	// defaultRetryBaseDelay seeds the exponential backoff for transient
	// failures; defaultRetryMaxDelay caps it.
	defaultRetryBaseDelay = 500 * time.Millisecond
	defaultRetryMaxDelay  = 30 * time.Second

	// rateLimitRetryBuffer is added on top of an upstream-provided
	// retry-after delay.
	rateLimitRetryBuffer = time.Second
)

// Request describes one outbound call. Do performs the call and returns
// the response together with any rate-limit metadata the upstream
// attached; it must honor ctx cancellation.
type Request struct {
	// Key identifies the request in logs and terminal errors.
	Key string

	Do func(ctx context.Context) (*Response, error)
}

// Response is the outcome of a dispatched request.
type Response struct {
	Body []byte

	// RateLimit is the metadata extracted from the response, nil when the
	// upstream attached none. It is fed into the tracker after success.
	RateLimit *ratelimit.Metadata
}

// ExhaustedError is the terminal error a request fails with once its
// retry budget is used up.
type ExhaustedError struct {
	Key      string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("request %q failed after %d attempts: %v", e.Key, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Handle is the completion future returned by Enqueue.
type Handle struct {
	once sync.Once
	done chan struct{}
	resp *Response
	err  error
}

// Wait blocks until the request reaches a terminal state or ctx is done.
func (h *Handle) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-h.done:
		return h.resp, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// complete transitions the handle to a terminal state. Terminal states
// are final; later calls are no-ops.
func (h *Handle) complete(resp *Response, err error) {
	h.once.Do(func() {
		h.resp = resp
		h.err = err
		close(h.done)
	})
}

// Scheduler owns the pending queue, the quota tracker, and the single
// drain loop.
type Scheduler struct {
	tracker *ratelimit.Tracker
	logger  *slog.Logger

	mu       sync.Mutex
	pending  pendingQueue
	seq      uint64
	draining bool
	wake     chan struct{}

	safetyBuffer      float64
	interRequestDelay time.Duration
	retryBudget       int
	retryBaseDelay    time.Duration
	retryMaxDelay     time.Duration

	// sleep is the only suspension point of the drain loop; overridable
	// in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSafetyBuffer sets the fraction of the quota kept in reserve before
// throttling kicks in.
func WithSafetyBuffer(fraction float64) Option {
	return func(s *Scheduler) {
		if fraction >= 0 && fraction < 1 {
			s.safetyBuffer = fraction
		}
	}
}

// WithInterRequestDelay sets the fixed spacing between dispatches.
func WithInterRequestDelay(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.interRequestDelay = d
		}
	}
}

// WithRetryBudget sets the default total execution count per request.
func WithRetryBudget(n int) Option {
	return func(s *Scheduler) {
		if n >= 1 {
			s.retryBudget = n
		}
	}
}

// WithLogger sets the logger used by the drain loop.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a scheduler draining against the given quota tracker.
func New(tracker *ratelimit.Tracker, opts ...Option) *Scheduler {
	s := &Scheduler{
		tracker:           tracker,
		logger:            slog.Default(),
		wake:              make(chan struct{}, 1),
		safetyBuffer:      DefaultSafetyBuffer,
		interRequestDelay: DefaultInterRequestDelay,
		retryBudget:       DefaultRetryBudget,
		retryBaseDelay:    defaultRetryBaseDelay,
		retryMaxDelay:     defaultRetryMaxDelay,
		sleep:             sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnqueueOption configures a single enqueued request.
type EnqueueOption func(*queuedRequest)

// WithPriority sets the request priority; higher is served first.
func WithPriority(p int) EnqueueOption {
	return func(q *queuedRequest) {
		q.priority = p
	}
}

// WithRetries overrides the scheduler-wide retry budget for one request.
func WithRetries(n int) EnqueueOption {
	return func(q *queuedRequest) {
		if n >= 1 {
			q.retriesLeft = n
		}
	}
}

// Enqueue adds a request to the pending set and returns its completion
// handle. Non-blocking; safe to call from many goroutines.
func (s *Scheduler) Enqueue(req *Request, opts ...EnqueueOption) *Handle {
	item := &queuedRequest{
		req:         req,
		handle:      &Handle{done: make(chan struct{})},
		enqueuedAt:  time.Now(),
		retriesLeft: s.retryBudget,
		backoff: &backoff.ExponentialBackOff{
			InitialInterval:     s.retryBaseDelay,
			RandomizationFactor: 0,
			Multiplier:          2,
			MaxInterval:         s.retryMaxDelay,
		},
	}
	for _, opt := range opts {
		opt(item)
	}

	s.mu.Lock()
	item.seq = s.seq
	s.seq++
	heap.Push(&s.pending, item)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}

	return item.handle
}

// Run is the sole drain loop. While work is pending it suspends on
// rate-limit waits, then dequeues the highest-priority request,
// dispatches it, and applies the retry policy. A second concurrent Run
// is a no-op. Run returns when ctx is cancelled, failing any
// still-pending handles with the context error.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return nil
	}
	s.draining = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.draining = false
		s.mu.Unlock()
	}()

	for {
		if !s.hasPending() {
			select {
			case <-s.wake:
				continue
			case <-ctx.Done():
				s.failPending(ctx.Err())
				return ctx.Err()
			}
		}

		// Suspend before dequeuing, so requests arriving during a long
		// rate-limit wait compete on priority for the next dispatch slot.
		if s.tracker.ShouldThrottle(s.safetyBuffer) {
			wait := s.tracker.WaitDuration()
			s.logger.Info("rate limit reached, suspending dispatch",
				"pending", s.PendingCount(),
				"wait", wait)
			if err := s.sleep(ctx, wait); err != nil {
				s.failPending(err)
				return err
			}
			continue
		}

		item := s.pop()
		if item == nil {
			continue
		}

		if err := s.dispatch(ctx, item); err != nil {
			// Context cancelled mid-flight: the current item and everything
			// still queued fail with the context error.
			item.handle.complete(nil, err)
			s.failPending(err)
			return err
		}
	}
}

// dispatch executes one request and applies the retry policy. It returns
// a non-nil error only when ctx is done.
func (s *Scheduler) dispatch(ctx context.Context, item *queuedRequest) error {
	item.attempts++
	resp, err := item.req.Do(ctx)
	if err == nil {
		if resp != nil {
			s.tracker.Observe(resp.RateLimit)
		}
		item.handle.complete(resp, nil)
		return s.sleep(ctx, s.interRequestDelay)
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	var rateLimited *ratelimit.RetryAfterError
	if errors.As(err, &rateLimited) {
		// The rejection itself counted against the quota window.
		s.tracker.Observe(nil)

		if item.rateLimited {
			item.retriesLeft--
		} else {
			item.rateLimited = true
		}
		if item.retriesLeft <= 0 {
			s.fail(item, err)
			return nil
		}

		wait := rateLimited.RetryAfter + rateLimitRetryBuffer
		s.logger.Warn("request rejected by upstream rate limit",
			"request", item.req.Key,
			"retry_after", wait,
			"retries_left", item.retriesLeft)
		if err := s.sleep(ctx, wait); err != nil {
			return err
		}
		s.requeue(item)
		return nil
	}

	// Generic transient failure: exponential backoff, one budget slot per
	// attempt.
	item.retriesLeft--
	if item.retriesLeft <= 0 {
		s.fail(item, err)
		return nil
	}

	wait := item.backoff.NextBackOff()
	s.logger.Warn("request failed, backing off",
		"request", item.req.Key,
		"error", err,
		"backoff", wait,
		"attempt", item.attempts,
		"retries_left", item.retriesLeft)
	if err := s.sleep(ctx, wait); err != nil {
		return err
	}
	s.requeue(item)
	return nil
}

func (s *Scheduler) fail(item *queuedRequest, cause error) {
	terminal := &ExhaustedError{
		Key:      item.req.Key,
		Attempts: item.attempts,
		Err:      cause,
	}
	s.logger.Error("request failed terminally",
		"request", item.req.Key,
		"attempts", item.attempts,
		"error", cause)
	item.handle.complete(nil, terminal)
}

func (s *Scheduler) hasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Len() > 0
}

func (s *Scheduler) pop() *queuedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending.Len() == 0 {
		return nil
	}
	return heap.Pop(&s.pending).(*queuedRequest)
}

// requeue puts a retry-scheduled request back into the pending set. The
// original sequence number is kept so it does not lose its FIFO position
// among equal priorities.
func (s *Scheduler) requeue(item *queuedRequest) {
	s.mu.Lock()
	heap.Push(&s.pending, item)
	s.mu.Unlock()
}

// failPending rejects every still-queued request. Called once when the
// drain loop exits.
func (s *Scheduler) failPending(cause error) {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, item := range pending {
		item.handle.complete(nil, cause)
	}
}

// PendingCount reports the number of queued requests, for the status
// endpoint.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Len()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
