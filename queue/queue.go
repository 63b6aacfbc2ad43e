// Package queue provides the closeable hand-off queue that connects two
// adjacent pipeline stages.
//
// A Queue is open until Close is called. Producers block in Push while a
// bounded queue is full; consumers block in Pop while the queue is open and
// empty. Once closed, no further pushes succeed, but buffered items remain
// poppable; Pop reports end-of-stream only when the queue is closed and
// empty. All methods are safe for concurrent use by any number of producers
// and consumers.
package queue

import (
	"context"
	"errors"
	"iter"
	"sync"
)

var ErrQueueClosed = errors.New("queue closed")

type Queue[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	items    []T
	capacity int
	closed   bool
}

// New returns an open queue. A capacity of zero or less makes it unbounded.
func New[T any](capacity int) *Queue[T] {
	q := &Queue[T]{capacity: capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Push appends item, blocking while the queue is at capacity. It returns
// ErrQueueClosed if the queue is (or becomes) closed before the item is
// accepted, and ctx.Err() if ctx ends first.
func (q *Queue[T]) Push(ctx context.Context, item T) error {
	stop := q.wakeOnDone(ctx)
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for !q.closed && q.full() {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.notFull.Wait()
	}
	if q.closed {
		return ErrQueueClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	q.items = append(q.items, item)
	q.notEmpty.Broadcast()
	return nil
}

// Pop removes the oldest item. ok is false once the queue is closed and
// drained, or when ctx is done; callers tell the two apart with ctx.Err().
func (q *Queue[T]) Pop(ctx context.Context) (item T, ok bool) {
	stop := q.wakeOnDone(ctx)
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if ctx.Err() != nil {
			return item, false
		}
		if len(q.items) > 0 {
			break
		}
		if q.closed {
			return item, false
		}
		q.notEmpty.Wait()
	}

	var zero T
	item = q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	q.notFull.Broadcast()
	return item, true
}

// Close stops accepting pushes and wakes every blocked producer and
// consumer. Only the first call succeeds; later calls return
// ErrQueueClosed.
func (q *Queue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
	return nil
}

// Drain yields items until end-of-stream. The sequence is single-pass.
func (q *Queue[T]) Drain(ctx context.Context) iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			item, ok := q.Pop(ctx)
			if !ok || !yield(item) {
				return
			}
		}
	}
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue[T]) full() bool {
	return q.capacity > 0 && len(q.items) >= q.capacity
}

// wakeOnDone broadcasts to all waiters when ctx ends so they can observe
// the cancellation.
func (q *Queue[T]) wakeOnDone(ctx context.Context) func() bool {
	return context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.notEmpty.Broadcast()
		q.notFull.Broadcast()
		q.mu.Unlock()
	})
}
