package jsonrpc2

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

const Version = "2.0"

// EventMethod is the method name of server-initiated notifications.
const EventMethod = "event"

const (
	ErrCodeParse          = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternal       = -32603
	ErrCodeServer         = -32000
)

// Request is an outgoing call. Params holds an already encoded JSON array or
// object.
type Request struct {
	Version string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      uint64          `json:"id"`
}

func (r *Request) String() string {
	return fmt.Sprintf("%s#%d", r.Method, r.ID)
}

// Message is any incoming line: a response (has ID) or a notification (has
// Method and no ID). Fields are kept raw so payloads are passed on verbatim.
type Message struct {
	ID      json.RawMessage `json:"id,omitempty"`
	Version string          `json:"jsonrpc,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// IsResponse reports whether the message carries an id field.
func (msg *Message) IsResponse() bool {
	return len(msg.ID) > 0
}

// IsEvent reports whether the message is an event notification.
func (msg *Message) IsEvent() bool {
	return !msg.IsResponse() && msg.Method == EventMethod
}

// ResponseID parses the numeric id of a response.
func (msg *Message) ResponseID() (uint64, error) {
	raw := bytes.TrimSpace(msg.ID)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("response id is null")
	}
	id, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("response id is not a positive integer: %s", raw)
	}
	return id, nil
}

func (msg *Message) String() string {
	out, err := json.Marshal(msg)
	if err != nil {
		return fmt.Sprintf("<invalid message: %s>", err)
	}
	return string(out)
}

// ErrResponse is the conventional JSON-RPC error object.
type ErrResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (err *ErrResponse) Error() string {
	return fmt.Sprintf("%d: %s", err.Code, err.Message)
}

func (err *ErrResponse) ErrorCode() int {
	return err.Code
}
