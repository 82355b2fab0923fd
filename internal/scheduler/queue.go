package scheduler

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// queuedRequest is one pending outbound call. It is only ever touched by
// the enqueue path (before it is visible to the heap) and by the single
// drain loop, so it carries no lock of its own.
type queuedRequest struct {
	req         *Request
	handle      *Handle
	priority    int
	seq         uint64
	enqueuedAt  time.Time
	retriesLeft int
	attempts    int

	// rateLimited records that this request has already been rejected once
	// with an explicit "too many requests" signal. The first such rejection
	// does not consume retry budget; later ones do.
	rateLimited bool

	backoff *backoff.ExponentialBackOff
}

// pendingQueue orders requests by descending priority, with FIFO among
// equal priorities (stable via the enqueue sequence number).
type pendingQueue []*queuedRequest

func (q pendingQueue) Len() int { return len(q) }

func (q pendingQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q pendingQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *pendingQueue) Push(x any) {
	*q = append(*q, x.(*queuedRequest))
}

func (q *pendingQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}
