package jsonrpc2

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
)

// Service represents a remote service that can be called.
type Service interface {
	Call(ctx context.Context, result interface{}, method string, params ...interface{}) error
}

var _ Service = &Remote{}

// Remote is a client session attached to a Codec. It owns the reader loop
// that routes responses to pending calls and notifications to the event
// queue.
//
// A Remote is RUNNING from NewRemote until the stream ends, the remote
// violates the protocol, or Close is called. After that it is stopped for
// good and every call fails with a NotRunningError.
type Remote struct {
	Client Client

	codec   Codec
	pending pendingTable
	events  *eventQueue

	mu        sync.Mutex
	err       error
	done      chan struct{}
	closeOnce sync.Once
}

// NewRemote starts a session on codec and its reader loop.
func NewRemote(codec Codec) *Remote {
	r := &Remote{
		codec:  codec,
		events: newEventQueue(),
		done:   make(chan struct{}),
	}
	go r.serve()
	return r
}

// Attach starts a session over the output (r) and input (w) streams of a
// remote process.
func Attach(r io.Reader, w io.Writer) *Remote {
	return NewRemote(IOCodec(r, w))
}

func (r *Remote) serve() {
	for {
		msg, err := r.codec.ReadMessage()
		select {
		case <-r.done:
			// Closed while reading, drop whatever was read.
			return
		default:
		}
		if err != nil {
			r.stop(readError(err))
			return
		}
		if err := r.route(msg); err != nil {
			r.stop(err)
			return
		}
	}
}

func readError(err error) error {
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return err
	}
	if err == io.EOF {
		return ErrConnectionClosed
	}
	return &closedError{cause: err}
}

// closedError is a read failure other than a clean EOF. It matches
// ErrConnectionClosed.
type closedError struct {
	cause error
}

func (err *closedError) Error() string        { return ErrConnectionClosed.Error() + ": " + err.cause.Error() }
func (err *closedError) Is(target error) bool { return target == ErrConnectionClosed }
func (err *closedError) Unwrap() error        { return err.cause }

func (r *Remote) route(msg *Message) error {
	if msg.IsResponse() {
		id, err := msg.ResponseID()
		if err != nil {
			return &ProtocolError{Reason: err.Error(), Message: msg}
		}
		return r.pending.resolve(id, msg)
	}
	if msg.IsEvent() {
		if len(msg.Params) == 0 {
			return &ProtocolError{Reason: "event without params", Message: msg}
		}
		r.events.push(msg.Params)
		return nil
	}
	return &ProtocolError{Reason: "unrecognized message", Message: msg}
}

// stop moves the remote to the stopped state. Only the first call has an
// effect.
func (r *Remote) stop(err error) {
	r.mu.Lock()
	if r.err != nil {
		r.mu.Unlock()
		return
	}
	r.err = err
	close(r.done)
	r.mu.Unlock()

	if err == ErrConnectionClosed || err == ErrCancelled {
		logger.Printf("Remote stopped: %s", err)
	} else {
		logger.Printf("Remote stopped with error: %s", err)
	}
	r.pending.failAll(err)
	r.events.close(err)
}

// Close stops the session, fails every pending call with ErrCancelled and
// closes the codec if it can be closed. Close may be called on a remote that
// already stopped on its own, to release the codec.
//
// A codec that is not an io.Closer cannot be interrupted: the reader loop
// stays blocked in ReadMessage until the codec returns, and whatever it
// returns after Close is dropped.
func (r *Remote) Close() error {
	r.stop(ErrCancelled)
	var err error
	r.closeOnce.Do(func() {
		if c, ok := r.codec.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}

// Done is closed when the remote stops.
func (r *Remote) Done() <-chan struct{} {
	return r.done
}

// Err returns the error that stopped the remote, or nil while it is running.
func (r *Remote) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Running reports whether the reader loop is still running.
func (r *Remote) Running() bool {
	return r.Err() == nil
}

// Wait blocks until the remote stops and returns the reason.
func (r *Remote) Wait() error {
	<-r.done
	return r.Err()
}

// Pending returns the number of calls waiting for a response.
func (r *Remote) Pending() int {
	return r.pending.len()
}

// Stale returns up to num of the longest waiting requests, oldest first.
func (r *Remote) Stale(num int) []*Request {
	queue := r.pending.oldest(num)
	reqs := make([]*Request, 0, len(queue))
	for _, item := range queue {
		reqs = append(reqs, item.req)
	}
	return reqs
}

// NextEvent blocks until the next event notification arrives and returns its
// params verbatim. Events are returned in the order they were received. Once
// the remote has stopped and all queued events are consumed, the stop error
// is returned.
func (r *Remote) NextEvent(ctx context.Context) (json.RawMessage, error) {
	return r.events.pop(ctx)
}

// Call invokes method with positional params and unmarshals the result into
// result, which may be nil to discard it.
func (r *Remote) Call(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	if err := r.checkRunning(); err != nil {
		return err
	}
	req, err := r.Client.Request(method, params...)
	if err != nil {
		return err
	}
	return r.do(ctx, req, result)
}

// CallNamed invokes method with named params.
func (r *Remote) CallNamed(ctx context.Context, result interface{}, method string, params map[string]interface{}) error {
	if err := r.checkRunning(); err != nil {
		return err
	}
	req, err := r.Client.RequestNamed(method, params)
	if err != nil {
		return err
	}
	return r.do(ctx, req, result)
}

// CallRaw invokes method with positional params and returns the result as
// received.
func (r *Remote) CallRaw(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	var result json.RawMessage
	if err := r.Call(ctx, &result, method, params...); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Remote) checkRunning() error {
	if err := r.Err(); err != nil {
		return &NotRunningError{Cause: err}
	}
	return nil
}

func (r *Remote) do(ctx context.Context, req *Request, result interface{}) error {
	call, err := r.pending.register(req)
	if err != nil {
		return err
	}
	if err := r.codec.WriteMessage(req); err != nil {
		r.pending.abandon(req.ID)
		var encodeErr *EncodeError
		if errors.As(err, &encodeErr) {
			return err
		}
		return &WriteError{Request: req, Cause: err}
	}

	var out outcome
	select {
	case out = <-call.done:
	case <-ctx.Done():
		r.pending.abandon(req.ID)
		return ctx.Err()
	}
	if out.err != nil {
		return out.err
	}

	resp := out.msg
	if len(resp.Error) > 0 && string(resp.Error) != "null" {
		return newRPCError(req, resp.Error)
	}
	if result == nil || len(resp.Result) == 0 {
		return nil
	}
	if raw, ok := result.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], resp.Result...)
		return nil
	}
	if string(resp.Result) == "null" {
		return nil
	}
	return json.Unmarshal(resp.Result, result)
}
