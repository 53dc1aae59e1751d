package pipeline

import "context"

// Pop blocks until an item is available, the queue is closed, or ctx is
// cancelled. Used by the RX-processing worker (spec.md §5: "may block on RX
// queue wait").
func (q *Queue[T]) Pop(ctx context.Context) (T, bool) {
	for {
		if v, ok := q.TryPop(); ok {
			return v, true
		}
		if q.Closed() {
			var zero T
			return zero, false
		}
		select {
		case <-q.notEmpty:
		case <-ctx.Done():
			var zero T
			return zero, false
		}
	}
}

// Close marks the queue closed; blocked and future Pop calls return
// ok=false once drained. Close does not discard already-queued items.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.notEmpty <- struct{}{}:
	default:
	}
}
