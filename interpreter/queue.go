package interpreter

import (
	"fmt"
	"sync"
)

// State is the worker's position in its lifecycle.
type State int32

const (
	StateIdle State = iota
	StateDispatching
	StateDraining
	StateShuttingDown
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatching:
		return "dispatching"
	case StateDraining:
		return "draining"
	case StateShuttingDown:
		return "shutting down"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// submission is one queued execution. It lives only inside the queue and the
// worker, and is dropped once dispatched.
type submission struct {
	seq        uint64
	script     *Script
	onComplete func(exitCode int)
	// onDrop runs instead of onComplete when the submission is discarded.
	onDrop func()
}

// queue is an unbounded FIFO with a single consumer. push never blocks; next
// parks the consumer until an item arrives or the queue is closed and empty.
type queue struct {
	mu     sync.Mutex
	items  []*submission
	seq    uint64
	closed bool
	wake   chan struct{}
}

func newQueue() *queue {
	return &queue{wake: make(chan struct{}, 1)}
}

// push appends sub and assigns its sequence number. It fails once the queue
// is closed.
func (q *queue) push(sub *submission) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrInvalidState
	}
	q.seq++
	sub.seq = q.seq
	q.items = append(q.items, sub)
	q.mu.Unlock()

	q.signal()
	return nil
}

// next returns the oldest submission, blocking while the queue is open and
// empty. ok is false once the queue is closed and drained.
func (q *queue) next() (sub *submission, ok bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			sub = q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return sub, true
		}
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		q.mu.Unlock()
		<-q.wake
	}
}

// close stops further pushes. With discard set the pending items are removed
// and returned so the caller can account for them.
func (q *queue) close(discard bool) []*submission {
	q.mu.Lock()
	q.closed = true
	var dropped []*submission
	if discard {
		dropped = q.items
		q.items = nil
	}
	q.mu.Unlock()

	q.signal()
	return dropped
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
