package jsonrpc2

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"reflect"
	"sync"
)

// Codec is an abstraction for receiving and sending JSONRPC messages.
// ReadMessage is only called by the Remote's reader loop, WriteMessage may be
// called concurrently.
type Codec interface {
	ReadMessage() (*Message, error)
	WriteMessage(*Request) error
}

// Encode serializes a request as one compact JSON line, newline included.
func Encode(req *Request) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(req); err != nil {
		return nil, &EncodeError{Method: req.Method, Cause: err}
	}
	return buf.Bytes(), nil
}

// Decode parses a single line into a Message. Keys are matched exactly, so
// "Result" or "METHOD" are ignored rather than taken for "result" or "method".
func Decode(line []byte) (*Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return nil, &DecodeError{Line: line, Cause: err}
	}
	msg := Message{
		ID:     fields["id"],
		Params: fields["params"],
		Result: fields["result"],
		Error:  fields["error"],
	}
	if err := decodeString(fields["jsonrpc"], &msg.Version); err != nil {
		return nil, &DecodeError{Line: line, Cause: err}
	}
	if err := decodeString(fields["method"], &msg.Method); err != nil {
		return nil, &DecodeError{Line: line, Cause: err}
	}
	return &msg, nil
}

func decodeString(raw json.RawMessage, s *string) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, s)
}

var _ Codec = &lineCodec{}

// IOCodec returns a Codec that frames newline-delimited JSON over a reader
// (the remote's output) and a writer (the remote's input).
func IOCodec(r io.Reader, w io.Writer) *lineCodec {
	codec := &lineCodec{
		r: bufio.NewReader(r),
		w: w,
	}
	if c, ok := w.(io.Closer); ok {
		codec.closers = append(codec.closers, c)
	}
	if c, ok := r.(io.Closer); ok && !sameCloser(c, codec.closers) {
		codec.closers = append(codec.closers, c)
	}
	return codec
}

type lineCodec struct {
	r       *bufio.Reader
	closers []io.Closer

	mu sync.Mutex
	w  io.Writer
}

func (codec *lineCodec) ReadMessage() (*Message, error) {
	for {
		line, err := codec.r.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) == 0 {
			if err != nil {
				return nil, err
			}
			continue
		}
		// A trailing line without a newline is still a message, the EOF
		// surfaces on the next read.
		return Decode(line)
	}
}

func (codec *lineCodec) WriteMessage(req *Request) error {
	data, err := Encode(req)
	if err != nil {
		return err
	}
	codec.mu.Lock()
	defer codec.mu.Unlock()
	_, err = codec.w.Write(data)
	return err
}

// Close closes the underlying reader and writer if they are closable.
func (codec *lineCodec) Close() error {
	var firstErr error
	for _, c := range codec.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// sameCloser avoids closing a duplex stream (such as a net.Conn) twice.
func sameCloser(c io.Closer, closers []io.Closer) bool {
	if !reflect.TypeOf(c).Comparable() {
		return false
	}
	for _, other := range closers {
		if reflect.TypeOf(other) == reflect.TypeOf(c) && other == c {
			return true
		}
	}
	return false
}

func marshalParams(v interface{}) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
