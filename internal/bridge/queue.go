package bridge

import (
	"context"
	"sync"
)

// Queue is a bounded FIFO. Push blocks while the queue is full and Pop
// blocks while it is empty; neither drops nor duplicates items.
type Queue[T any] struct {
	items     chan T
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue returns a queue holding at most capacity items (minimum 1).
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{
		items: make(chan T, capacity),
		done:  make(chan struct{}),
	}
}

// Push appends v, blocking while the queue is full.
func (q *Queue[T]) Push(ctx context.Context, v T) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case q.items <- v:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop removes the oldest item, blocking while the queue is empty. Once the
// queue is closed, Pop returns ErrQueueClosed.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-q.done:
		return zero, ErrQueueClosed
	default:
	}
	select {
	case v := <-q.items:
		return v, nil
	case <-q.done:
		return zero, ErrQueueClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Close permanently closes the queue and wakes every blocked caller.
func (q *Queue[T]) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

// Closed reports whether Close was called.
func (q *Queue[T]) Closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

func (q *Queue[T]) Len() int { return len(q.items) }
func (q *Queue[T]) Cap() int { return cap(q.items) }
