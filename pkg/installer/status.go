package installer

import (
	"context"
	"sync"
)

// statusQueue is the StatusReceiver handed to Commit. It buffers every
// signal so a terminal status delivered early is never lost.
type statusQueue struct {
	mu      sync.Mutex
	pending []SessionStatus
	signal  chan struct{}
}

func newStatusQueue() *statusQueue {
	return &statusQueue{signal: make(chan struct{}, 1)}
}

func (q *statusQueue) Deliver(status SessionStatus) {
	q.mu.Lock()
	q.pending = append(q.pending, status)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// next blocks for the next signal in delivery order.
func (q *statusQueue) next(ctx context.Context) (SessionStatus, error) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			s := q.pending[0]
			q.pending = q.pending[1:]
			q.mu.Unlock()
			return s, nil
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-ctx.Done():
			return SessionStatus{}, ctx.Err()
		}
	}
}

// peekTerminal reports whether a terminal status is already queued.
func (q *statusQueue) peekTerminal() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, s := range q.pending {
		if s.Code != StatusPendingUserAction {
			return true
		}
	}
	return false
}

// awaitTerminal skips further user-action requests and returns the result.
func (q *statusQueue) awaitTerminal(ctx context.Context) (SessionStatus, error) {
	for {
		s, err := q.next(ctx)
		if err != nil {
			return SessionStatus{}, err
		}
		if s.Code != StatusPendingUserAction {
			return s, nil
		}
	}
}
