// Package queue implements the bounded outbound FIFO that sits between
// application sends and the requester worker.
package queue

import (
	"time"

	"github.com/tzrikka/link/pkg/link"
)

// Queue is a bounded, thread-safe FIFO of pending send-values. It is backed
// by a buffered channel: multiple goroutines may call Push concurrently
// (the application, via a supervisor's Send), while a single goroutine (the
// requester) calls Pop.
type Queue struct {
	ch chan link.SendValue
}

// New returns a [Queue] with the given capacity. A capacity of zero or
// less is treated as 1, since an outbound queue with no buffering at all
// would make every Push block on the requester's pace.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan link.SendValue, capacity)}
}

// Push enqueues v. It reports false, without blocking, when the queue is
// full: the drop-newest-on-full back-pressure signal the caller relies on.
func (q *Queue) Push(v link.SendValue) bool {
	select {
	case q.ch <- v:
		return true
	default:
		return false
	}
}

// Pop blocks until a value is available or timeout elapses, whichever
// comes first. It reports ok false on timeout, the normal case that lets
// the requester re-check its stop flag between dequeue attempts.
func (q *Queue) Pop(timeout time.Duration) (v link.SendValue, ok bool) {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case v = <-q.ch:
		return v, true
	case <-t.C:
		return nil, false
	}
}

// Len reports the number of values currently buffered. It is a snapshot;
// under concurrent Push/Pop it may be stale by the time the caller acts on it.
func (q *Queue) Len() int { return len(q.ch) }

// Cap reports the queue's capacity.
func (q *Queue) Cap() int { return cap(q.ch) }
