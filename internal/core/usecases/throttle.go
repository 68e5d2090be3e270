package usecases

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tsig-uy/mapgate/internal/pkg/metrics"
)

// ErrThrottleCleared is returned for operations that were still queued
// when the throttler was cleared.
var ErrThrottleCleared = errors.New("throttled operation discarded")

// Throttler bounds the number of concurrently in-flight feature-info
// requests and paces dispatch of queued overflow, so bursts of map
// clicks do not trip the WMS server's rate limiting.
//
// Operations submitted while capacity is free run immediately; the rest
// queue FIFO and are dispatched as slots release, with a minimum spacing
// between consecutive dispatches pulled from the queue. One instance per
// map session.
type Throttler struct {
	limit   int
	spacing time.Duration

	mu       sync.Mutex
	inflight map[string]struct{}
	queue    []*waiter
	draining bool
}

type waiter struct {
	id      string
	ready   chan struct{} // closed on dispatch
	dropped chan struct{} // closed by Clear
}

// NewThrottler creates a throttler with the given concurrency limit and
// dispatch spacing.
func NewThrottler(limit int, spacing time.Duration) *Throttler {
	if limit <= 0 {
		limit = 1
	}
	return &Throttler{
		limit:    limit,
		spacing:  spacing,
		inflight: make(map[string]struct{}),
	}
}

// Submit runs op within the concurrency budget. It blocks while queued;
// a cleared queue returns ErrThrottleCleared, a cancelled context
// returns ctx.Err(). The ticket is always released when op settles.
func (t *Throttler) Submit(ctx context.Context, requestID string, op func(context.Context) error) error {
	t.mu.Lock()
	if len(t.inflight) < t.limit && len(t.queue) == 0 {
		t.inflight[requestID] = struct{}{}
		t.updateGauges()
		t.mu.Unlock()
		return t.run(ctx, requestID, op)
	}

	w := &waiter{id: requestID, ready: make(chan struct{}), dropped: make(chan struct{})}
	t.queue = append(t.queue, w)
	t.updateGauges()
	t.mu.Unlock()

	select {
	case <-w.ready:
		return t.run(ctx, requestID, op)
	case <-w.dropped:
		return ErrThrottleCleared
	case <-ctx.Done():
		if t.removeQueued(w) {
			metrics.ThrottleRejected.Inc()
			return ctx.Err()
		}
		// Lost the race with a concurrent dispatch; the slot is ours
		// now and must be given back.
		t.release(requestID)
		return ctx.Err()
	}
}

// Clear discards every queued operation. In-flight operations are not
// affected; their tickets release normally on settle.
func (t *Throttler) Clear() {
	t.mu.Lock()
	dropped := t.queue
	t.queue = nil
	t.updateGauges()
	t.mu.Unlock()

	for _, w := range dropped {
		close(w.dropped)
		metrics.ThrottleRejected.Inc()
	}
}

// Pending reports how many operations currently hold a ticket.
func (t *Throttler) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}

// QueueLen reports how many operations are waiting for a ticket.
func (t *Throttler) QueueLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

func (t *Throttler) run(ctx context.Context, requestID string, op func(context.Context) error) error {
	defer t.release(requestID)
	return op(ctx)
}

func (t *Throttler) release(requestID string) {
	t.mu.Lock()
	delete(t.inflight, requestID)
	t.updateGauges()
	t.mu.Unlock()
	go t.drain()
}

// drain dispatches queued waiters while capacity is free, pacing
// consecutive dispatches by the configured spacing. Only one drain loop
// runs at a time.
func (t *Throttler) drain() {
	t.mu.Lock()
	if t.draining {
		t.mu.Unlock()
		return
	}
	t.draining = true
	t.mu.Unlock()

	for {
		t.mu.Lock()
		if len(t.queue) == 0 || len(t.inflight) >= t.limit {
			t.draining = false
			t.mu.Unlock()
			return
		}
		w := t.queue[0]
		t.queue = t.queue[1:]
		t.inflight[w.id] = struct{}{}
		t.updateGauges()
		t.mu.Unlock()

		close(w.ready)

		if t.spacing > 0 {
			time.Sleep(t.spacing)
		}
	}
}

// removeQueued takes w out of the queue if it has not been dispatched
// yet; it reports whether the waiter was still queued.
func (t *Throttler) removeQueued(w *waiter) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, q := range t.queue {
		if q == w {
			t.queue = append(t.queue[:i], t.queue[i+1:]...)
			t.updateGauges()
			return true
		}
	}
	return false
}

// updateGauges must be called with t.mu held.
func (t *Throttler) updateGauges() {
	metrics.ThrottleInflight.Set(float64(len(t.inflight)))
	metrics.ThrottleQueued.Set(float64(len(t.queue)))
}
