// Package fakeserver is an in-process stand-in for a line-delimited JSONRPC
// server process such as deltachat-rpc-server. It serves methods registered
// from Go receivers and can emit event notifications, which is enough to
// exercise a jsonrpc2.Remote end to end without spawning anything.
package fakeserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/vipnode/stdiorpc/jsonrpc2"
)

// ErrNotServing is returned by Emit before Serve was called.
var ErrNotServing = errors.New("fakeserver: not serving")

type request struct {
	ID      json.RawMessage `json:"id,omitempty"`
	Version string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type response struct {
	ID      json.RawMessage       `json:"id"`
	Version string                `json:"jsonrpc"`
	Result  json.RawMessage       `json:"result,omitempty"`
	Error   *jsonrpc2.ErrResponse `json:"error,omitempty"`
}

type notification struct {
	Version string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

// EventParams is the params payload of an event notification.
type EventParams struct {
	ContextID uint32      `json:"contextId"`
	Event     interface{} `json:"event"`
}

// Server contains the method registry.
type Server struct {
	// Sequential handles one request at a time, in order. By default every
	// request is handled in its own goroutine, so responses can be out of
	// order.
	Sequential bool

	registry map[string]Method

	mu sync.Mutex
	w  io.Writer
}

// Register adds valid methods from the receiver to the registry with the given
// prefix. Method names are converted to snake_case.
func (s *Server) Register(prefix string, receiver interface{}) error {
	if s.registry == nil {
		s.registry = map[string]Method{}
	}

	methods, err := Methods(receiver)
	if err != nil {
		return err
	}
	for name, m := range methods {
		s.registry[prefix+name] = m
	}
	return nil
}

// handle runs a single request and builds its response.
func (s *Server) handle(ctx context.Context, req *request) *response {
	r := &response{
		ID:      req.ID,
		Version: jsonrpc2.Version,
	}
	m, ok := s.registry[req.Method]
	if !ok {
		r.Error = &jsonrpc2.ErrResponse{
			Code:    jsonrpc2.ErrCodeMethodNotFound,
			Message: fmt.Sprintf("method not found: %s", req.Method),
		}
		return r
	}
	res, err := m.CallJSON(ctx, req.Params)
	if err != nil {
		code := jsonrpc2.ErrCodeInternal
		if _, ok := err.(ErrInvalidParams); ok {
			code = jsonrpc2.ErrCodeInvalidParams
		}
		r.Error = &jsonrpc2.ErrResponse{
			Code:    code,
			Message: err.Error(),
		}
		return r
	}
	if r.Result, err = json.Marshal(res); err != nil {
		r.Error = &jsonrpc2.ErrResponse{
			Code:    jsonrpc2.ErrCodeServer,
			Message: fmt.Sprintf("failed to encode response: %s", err),
		}
	}
	return r
}

// Serve reads requests from r and writes responses and events to w, one JSON
// document per line, until r ends. Requests without an id get no response.
func (s *Server) Serve(r io.Reader, w io.Writer) error {
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	defer wg.Wait()

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			var req request
			if jsonErr := json.Unmarshal(line, &req); jsonErr != nil {
				s.write(&response{
					ID:      json.RawMessage("null"),
					Version: jsonrpc2.Version,
					Error: &jsonrpc2.ErrResponse{
						Code:    jsonrpc2.ErrCodeParse,
						Message: jsonErr.Error(),
					},
				})
			} else if s.Sequential {
				s.serveRequest(ctx, &req)
			} else {
				wg.Add(1)
				go func() {
					defer wg.Done()
					s.serveRequest(ctx, &req)
				}()
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (s *Server) serveRequest(ctx context.Context, req *request) {
	resp := s.handle(ctx, req)
	if len(req.ID) == 0 {
		return
	}
	s.write(resp)
}

// Emit sends an event notification for the given context (account) id.
func (s *Server) Emit(contextID uint32, event interface{}) error {
	return s.write(&notification{
		Version: jsonrpc2.Version,
		Method:  jsonrpc2.EventMethod,
		Params: EventParams{
			ContextID: contextID,
			Event:     event,
		},
	})
}

// WriteLine writes a raw line to the client, for simulating misbehaving
// servers.
func (s *Server) WriteLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return ErrNotServing
	}
	_, err := io.WriteString(s.w, line+"\n")
	return err
}

func (s *Server) write(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return ErrNotServing
	}
	_, err = s.w.Write(data)
	return err
}

// Pipe serves s in-process over a pair of pipes and returns a Remote attached
// to the other end. Closing the Remote ends the serve loop.
func (s *Server) Pipe() *jsonrpc2.Remote {
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	s.mu.Lock()
	s.w = respW
	s.mu.Unlock()

	go func() {
		if err := s.Serve(reqR, respW); err != nil {
			respW.CloseWithError(err)
			return
		}
		respW.Close()
	}()
	return jsonrpc2.Attach(respR, reqW)
}
