package jsonrpc2

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vipnode/stdiorpc/internal/pretty"
)

// ErrConnectionClosed is the terminal error when the remote process closes
// its output stream. Every call still pending at that point fails with it.
var ErrConnectionClosed = errors.New("jsonrpc2: connection closed")

// ErrCancelled is the terminal error after Remote.Close.
var ErrCancelled = errors.New("jsonrpc2: remote cancelled")

// ErrNotRunning matches (with errors.Is) any NotRunningError.
var ErrNotRunning = errors.New("jsonrpc2: remote not running")

// NotRunningError is returned by calls made after the remote stopped. Cause
// is the error that stopped it.
type NotRunningError struct {
	Cause error
}

func (err *NotRunningError) Error() string {
	if err.Cause == nil {
		return ErrNotRunning.Error()
	}
	return fmt.Sprintf("%s: %s", ErrNotRunning, err.Cause)
}

func (err *NotRunningError) Is(target error) bool { return target == ErrNotRunning }
func (err *NotRunningError) Unwrap() error        { return err.Cause }

// EncodeError is returned when a request can't be represented as JSON.
type EncodeError struct {
	Method string
	Cause  error
}

func (err *EncodeError) Error() string {
	return fmt.Sprintf("jsonrpc2: failed to encode %q request: %s", err.Method, err.Cause)
}

func (err *EncodeError) Unwrap() error { return err.Cause }

// DecodeError is returned when a line read from the remote is not valid JSON.
// Stream framing can't be trusted after that, so it stops the session.
type DecodeError struct {
	Line  []byte
	Cause error
}

func (err *DecodeError) Error() string {
	return fmt.Sprintf("jsonrpc2: failed to decode line %q: %s", abbrev(err.Line), err.Cause)
}

func (err *DecodeError) Unwrap() error { return err.Cause }

// ProtocolError is a well-formed message that doesn't fit the session state,
// such as a response for an id that was never sent.
type ProtocolError struct {
	Reason  string
	Message *Message
}

func (err *ProtocolError) Error() string {
	if err.Message == nil {
		return fmt.Sprintf("jsonrpc2: protocol error: %s", err.Reason)
	}
	return fmt.Sprintf("jsonrpc2: protocol error: %s: %s", err.Reason, abbrev([]byte(err.Message.String())))
}

// WriteError is returned when a request could not be written to the remote.
// It only affects the call that failed to write.
type WriteError struct {
	Request *Request
	Cause   error
}

func (err *WriteError) Error() string {
	return fmt.Sprintf("jsonrpc2: failed to write %s: %s", err.Request, err.Cause)
}

func (err *WriteError) Unwrap() error { return err.Cause }

// RPCError is a structured error returned by the server for one call. Raw is
// the error body exactly as received.
type RPCError struct {
	Method  string
	ID      uint64
	Code    int
	Message string
	Data    json.RawMessage
	Raw     json.RawMessage
}

func newRPCError(req *Request, raw json.RawMessage) *RPCError {
	err := &RPCError{
		Method: req.Method,
		ID:     req.ID,
		Raw:    raw,
	}
	var body ErrResponse
	if json.Unmarshal(raw, &body) == nil {
		err.Code = body.Code
		err.Message = body.Message
		err.Data = body.Data
	}
	return err
}

func (err *RPCError) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("rpc error in %s#%d: %s", err.Method, err.ID, err.Raw)
	}
	return fmt.Sprintf("rpc error in %s#%d: %d: %s", err.Method, err.ID, err.Code, err.Message)
}

func (err *RPCError) ErrorCode() int {
	return err.Code
}

const abbrevLimit = 200

func abbrev(line []byte) string {
	return pretty.Abbrev(string(line), abbrevLimit).String()
}
