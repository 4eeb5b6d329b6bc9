// Package queue implements the cross-thread event queue attached to one
// reactor: a multi-producer/single-consumer task queue whose tasks run on
// the owning worker's goroutine. Grounded on the teacher's
// internal/concurrency/lock_free_queue.go ring-buffer shape, but backed by
// github.com/eapache/queue (declared in the teacher's go.mod, never wired)
// for the actual storage, and a wake channel standing in for the source's
// eventfd-based reactor wakeup (util/event_queue.cc).
package queue

import (
	"sync"

	eapacheq "github.com/eapache/queue"
)

// Task is a unit of cross-thread work, e.g. Link (hand a new connection to
// a worker) or Listen (register a listener on a worker's reactor).
type Task func()

// Queue is safe for concurrent Push from any goroutine; Drain must only be
// called from the single consumer goroutine (the owning worker's loop).
type Queue struct {
	mu     sync.Mutex
	q      *eapacheq.Queue
	wake   chan struct{}
	notify func()
}

// New creates an empty cross-thread queue.
func New() *Queue {
	return &Queue{
		q:    eapacheq.New(),
		wake: make(chan struct{}, 1),
	}
}

// SetNotify installs a callback invoked synchronously on every Push, in
// addition to the Wake channel. The owning Worker wires this to its
// reactor's eventfd-backed Wake so a blocked epoll_wait notices new
// cross-thread work without a second polling loop.
func (q *Queue) SetNotify(fn func()) {
	q.mu.Lock()
	q.notify = fn
	q.mu.Unlock()
}

// Push enqueues a task and wakes the consumer. Safe from any goroutine.
func (q *Queue) Push(t Task) {
	q.mu.Lock()
	q.q.Add(t)
	notify := q.notify
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
	if notify != nil {
		notify()
	}
}

// Wake returns a one-slot channel that Push signals on every enqueue. The
// rpc worker does not select on it; it is woken through the SetNotify
// callback (the reactor's eventfd) instead.
func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}

// Drain removes and runs every pending task. Must be called only from the
// consumer goroutine.
func (q *Queue) Drain() {
	for {
		q.mu.Lock()
		if q.q.Length() == 0 {
			q.mu.Unlock()
			return
		}
		t := q.q.Remove().(Task)
		q.mu.Unlock()
		t()
	}
}

// PushSync enqueues a task and blocks until it has run — used by
// Server.Start to synchronously register listeners on a worker's reactor
// when the caller supplied no reactor of its own (spec.md §4.6).
func (q *Queue) PushSync(t Task) {
	done := make(chan struct{})
	q.Push(func() {
		t()
		close(done)
	})
	<-done
}
