package jsonrpc2

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// outcome is what a pending call resolves with: a response message or a
// session error.
type outcome struct {
	msg *Message
	err error
}

type pendingCall struct {
	req       *Request
	done      chan outcome
	timestamp time.Time
}

// pendingTable maps outstanding request ids to their result slot. All methods
// are safe for concurrent use.
type pendingTable struct {
	mu        sync.Mutex
	calls     map[uint64]*pendingCall
	abandoned map[uint64]struct{}
	closed    error
}

// register allocates the result slot for req.ID. It fails once the table has
// been closed by failAll.
func (p *pendingTable) register(req *Request) (*pendingCall, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed != nil {
		return nil, &NotRunningError{Cause: p.closed}
	}
	if p.calls == nil {
		p.calls = map[uint64]*pendingCall{}
	}
	if _, ok := p.calls[req.ID]; ok {
		return nil, fmt.Errorf("jsonrpc2: request id %d is already pending", req.ID)
	}
	call := &pendingCall{
		req:       req,
		done:      make(chan outcome, 1),
		timestamp: time.Now(),
	}
	p.calls[req.ID] = call
	return call, nil
}

// resolve removes the slot for id and completes it with msg. A response for an
// id that was abandoned by its caller is dropped, any other unknown id is a
// ProtocolError.
func (p *pendingTable) resolve(id uint64, msg *Message) error {
	p.mu.Lock()
	call, ok := p.calls[id]
	if ok {
		delete(p.calls, id)
	} else if _, late := p.abandoned[id]; late {
		delete(p.abandoned, id)
		p.mu.Unlock()
		logger.Printf("dropping late response for abandoned request #%d", id)
		return nil
	}
	p.mu.Unlock()

	if !ok {
		return &ProtocolError{
			Reason:  fmt.Sprintf("response for unknown request id %d", id),
			Message: msg,
		}
	}
	call.done <- outcome{msg: msg}
	return nil
}

// abandon removes a slot whose caller stopped waiting.
func (p *pendingTable) abandon(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.calls[id]; !ok {
		return
	}
	delete(p.calls, id)
	if p.closed != nil {
		return
	}
	if p.abandoned == nil {
		p.abandoned = map[uint64]struct{}{}
	}
	p.abandoned[id] = struct{}{}
}

// failAll closes the table and completes every pending slot with err.
func (p *pendingTable) failAll(err error) {
	p.mu.Lock()
	if p.closed == nil {
		p.closed = err
	}
	calls := p.calls
	p.calls = nil
	p.abandoned = nil
	p.mu.Unlock()

	for _, call := range calls {
		call.done <- outcome{err: err}
	}
}

func (p *pendingTable) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// oldest returns up to num of the longest waiting calls, oldest first.
func (p *pendingTable) oldest(num int) pendingQueue {
	p.mu.Lock()
	defer p.mu.Unlock()
	return pendingOldest(p.calls, num)
}

type pendingItem struct {
	req       *Request
	timestamp time.Time
}

type pendingQueue []pendingItem

func (q pendingQueue) Len() int {
	return len(q)
}

func (q pendingQueue) Less(i, j int) bool {
	return q[i].timestamp.Before(q[j].timestamp)
}

func (q pendingQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
}

func pendingOldest(pending map[uint64]*pendingCall, num int) pendingQueue {
	if num > len(pending) {
		num = len(pending)
	}
	queue := make(pendingQueue, 0, len(pending))
	for _, p := range pending {
		queue = append(queue, pendingItem{
			p.req, p.timestamp,
		})
	}
	sort.Sort(queue)
	return queue[:num]
}
