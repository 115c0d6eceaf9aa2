package valve

import (
	"sync"
	"time"
)

// queue is an unbounded FIFO. Pushes never block; pops either return
// immediately or wait up to a timeout.
type queue[T any] struct {
	mu     sync.Mutex
	items  []T
	signal chan struct{}
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{signal: make(chan struct{}, 1)}
}

func (q *queue[T]) push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *queue[T]) tryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return v, true
}

// popTimeout waits at most d for an item.
func (q *queue[T]) popTimeout(d time.Duration) (T, bool) {
	if v, ok := q.tryPop(); ok {
		return v, true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-q.signal:
			if v, ok := q.tryPop(); ok {
				return v, true
			}
		case <-timer.C:
			return q.tryPop()
		}
	}
}

// drain removes and returns everything queued, oldest first.
func (q *queue[T]) drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	return items
}

func (q *queue[T]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
