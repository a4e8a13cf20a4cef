package jsonrpc2

import (
	"context"
	"encoding/json"
	"sync"
)

// eventQueue is an unbounded FIFO of notification params. push never blocks,
// so a slow consumer can't stall the reader loop.
type eventQueue struct {
	mu      sync.Mutex
	items   []json.RawMessage
	ready   chan struct{}
	done    chan struct{}
	doneErr error
	once    sync.Once
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

func (q *eventQueue) push(params json.RawMessage) {
	q.mu.Lock()
	q.items = append(q.items, params)
	q.mu.Unlock()
	q.signal()
}

func (q *eventQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// pop blocks until an event is available. Once the queue is closed and
// drained it returns the error passed to close.
func (q *eventQueue) pop(ctx context.Context) (json.RawMessage, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return item, nil
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-q.done:
			q.mu.Lock()
			empty := len(q.items) == 0
			q.mu.Unlock()
			if empty {
				return nil, q.doneErr
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// close marks the queue done. Queued events can still be popped.
func (q *eventQueue) close(err error) {
	q.once.Do(func() {
		q.mu.Lock()
		q.doneErr = err
		q.mu.Unlock()
		close(q.done)
	})
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
