package orchestrator

import (
	"sync"

	"github.com/MalakaSupun/startmate/internal/hire"
)

// Trigger is one unit of work: process this event now.
//
// The same event may be triggered many times (fresh poll, duplicate
// detection, retry re-enqueue); processing is idempotent so that is safe.
type Trigger struct {
	Event hire.Event

	// Token correlates everything this trigger caused in the audit trail.
	// Poll cycles mint one token per cycle; retries inherit the token of
	// the trigger that scheduled them.
	Token string
}

// triggerQueue is a thread-safe FIFO queue of triggers.
//
// Unbounded: retry re-enqueues must never block a worker. The signal
// channel enables context-aware waiting in worker loops; its buffer of one
// coalesces bursts of enqueues.
type triggerQueue struct {
	mu       sync.Mutex
	triggers []Trigger
	closed   bool
	signal   chan struct{}
}

func newTriggerQueue() *triggerQueue {
	return &triggerQueue{
		triggers: make([]Trigger, 0, 64),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds a trigger to the back of the queue.
// Thread-safe. Returns false if the queue is closed.
func (q *triggerQueue) Enqueue(t Trigger) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.triggers = append(q.triggers, t)

	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
func (q *triggerQueue) TryDequeue() (Trigger, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.triggers) == 0 {
		return Trigger{}, false
	}

	t := q.triggers[0]

	// Zero the slot so the backing array does not retain the event's
	// attribute map after dequeue.
	q.triggers[0] = Trigger{}

	if len(q.triggers) == 1 {
		q.triggers = q.triggers[:0]
	} else {
		q.triggers = q.triggers[1:]
	}

	return t, true
}

// Wait returns a channel that signals when triggers may be available.
// The channel closes when the queue closes, waking all waiters.
func (q *triggerQueue) Wait() <-chan struct{} {
	return q.signal
}

// Closed reports whether Close has been called.
func (q *triggerQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the current queue length.
func (q *triggerQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.triggers)
}

// Close marks the queue closed and wakes all waiters.
func (q *triggerQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
