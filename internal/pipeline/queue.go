// Package pipeline implements the bounded single-producer single-consumer
// queues that couple the radio driver to the protocol engine (RX path) and
// the protocol engine to the channel manager (TX path). Overflow always
// drops the newest enqueue and bumps a counter — it never blocks the
// producer, per spec.md §3 and §4.4.
package pipeline

import "sync"

// Queue is a bounded FIFO. TryPush is wait-free enough for an
// interrupt-servicing goroutine: it takes one mutex, never allocates beyond
// the fixed backing array, and never blocks on a full queue.
type Queue[T any] struct {
	mu       sync.Mutex
	notEmpty chan struct{}
	buf      []T
	head     int
	count    int
	dropped  uint64
	closed   bool
}

// NewQueue constructs a bounded queue of the given capacity.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue[T]{
		buf:      make([]T, capacity),
		notEmpty: make(chan struct{}, 1),
	}
}

// TryPush enqueues v. On overflow it drops v (the newest item), increments
// the drop counter, and returns false — the caller never blocks.
func (q *Queue[T]) TryPush(v T) bool {
	q.mu.Lock()
	if q.count == len(q.buf) {
		q.dropped++
		q.mu.Unlock()
		return false
	}
	idx := (q.head + q.count) % len(q.buf)
	q.buf[idx] = v
	q.count++
	q.mu.Unlock()

	select {
	case q.notEmpty <- struct{}{}:
	default:
	}
	return true
}

// TryPop removes and returns the oldest item without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

func (q *Queue[T]) popLocked() (T, bool) {
	var zero T
	if q.count == 0 {
		return zero, false
	}
	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return v, true
}

// Len reports the number of items currently queued.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Dropped reports the cumulative number of TryPush calls that overflowed.
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Closed reports whether Close has been called; Pop calls return
// immediately with ok=false once closed and drained.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
