// Package queue provides the unbounded FIFO used between a producer that
// must never block (a socket reader, a merge path) and a single consumer
// goroutine.
package queue

import (
	"context"
	"sync"
)

// Queue is a thread-safe FIFO queue.
//
// The queue is unbounded so producers never block. Bounding, where needed,
// is the producer's job.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in consumer loops (prevents goroutine hangs on context cancellation).
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	signal chan struct{} // Signals item availability (buffered, size 1)
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		items:  make([]T, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an item to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *Queue[T]) Enqueue(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, item)

	// Non-blocking: buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (zero, false) if queue is empty.
func (q *Queue[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	item := q.items[0]

	// Zero the slot so the backing array does not pin the item for GC
	q.items[0] = zero

	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	return item, true
}

// Dequeue removes and returns the front item, waiting until one is
// available. Returns (zero, false) when ctx is done or the queue is closed
// and drained.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, bool) {
	for {
		if item, ok := q.TryDequeue(); ok {
			return item, true
		}

		q.mu.Lock()
		drained := q.closed && len(q.items) == 0
		q.mu.Unlock()

		var zero T
		if drained {
			return zero, false
		}

		select {
		case <-ctx.Done():
			return zero, false
		case <-q.signal:
		}
	}
}

// Len returns the current queue length.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close signals that no more items will be enqueued.
// Items already queued can still be dequeued.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal) // Wakes all waiters
}
