// Package queue provides a bounded FIFO for passing values between tasks.
// Every operation is bounded by a caller-supplied timeout; a zero timeout
// never blocks.
package queue

import (
	"sync"
	"sync/atomic"
	"time"
)

type Queue[T any] struct {
	ch        chan T
	done      chan struct{}
	closeOnce sync.Once
	drops     atomic.Uint32
}

// New returns a queue holding at most n items. n <= 0 is coerced to 1.
func New[T any](n int) *Queue[T] {
	if n <= 0 {
		n = 1
	}
	return &Queue[T]{
		ch:   make(chan T, n),
		done: make(chan struct{}),
	}
}

// Send enqueues v, waiting at most timeout for space. It returns false if
// the queue stayed full or has been closed; the value is then dropped and
// counted.
func (q *Queue[T]) Send(v T, timeout time.Duration) bool {
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.ch <- v:
		return true
	default:
	}
	if timeout <= 0 {
		q.drops.Add(1)
		return false
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case q.ch <- v:
		return true
	case <-q.done:
		return false
	case <-t.C:
		q.drops.Add(1)
		return false
	}
}

// Receive dequeues the oldest item, waiting at most timeout.
func (q *Queue[T]) Receive(timeout time.Duration) (T, bool) {
	var zero T
	select {
	case <-q.done:
		return zero, false
	default:
	}
	select {
	case v := <-q.ch:
		return v, true
	default:
	}
	if timeout <= 0 {
		return zero, false
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case v := <-q.ch:
		return v, true
	case <-q.done:
		return zero, false
	case <-t.C:
		return zero, false
	}
}

// TryReceive is Receive with a zero timeout.
func (q *Queue[T]) TryReceive() (T, bool) { return q.Receive(0) }

func (q *Queue[T]) Len() int { return len(q.ch) }
func (q *Queue[T]) Cap() int { return cap(q.ch) }

// Drops reports sends rejected because the queue was full.
func (q *Queue[T]) Drops() uint32 { return q.drops.Load() }

// Close tears the queue down. Pending items are abandoned and every later
// Send or Receive fails. Safe to call more than once.
func (q *Queue[T]) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

func (q *Queue[T]) Closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}
