package jsonrpc2

import (
	"sync/atomic"
)

// Client allocates request ids and builds requests. The zero value is ready
// to use, the first id is 1.
type Client struct {
	id uint64
}

// NextID returns the next request id, safe for concurrent use.
func (c *Client) NextID() uint64 {
	return atomic.AddUint64(&c.id, 1)
}

// Request builds a request with positional params. No params encodes as an
// empty array.
func (c *Client) Request(method string, params ...interface{}) (*Request, error) {
	if params == nil {
		params = []interface{}{}
	}
	return c.newRequest(method, params)
}

// RequestNamed builds a request with named params. A nil map encodes as an
// empty object.
func (c *Client) RequestNamed(method string, params map[string]interface{}) (*Request, error) {
	if params == nil {
		params = map[string]interface{}{}
	}
	return c.newRequest(method, params)
}

func (c *Client) newRequest(method string, params interface{}) (*Request, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, &EncodeError{Method: method, Cause: err}
	}
	return &Request{
		Version: Version,
		Method:  method,
		Params:  raw,
		ID:      c.NextID(),
	}, nil
}
