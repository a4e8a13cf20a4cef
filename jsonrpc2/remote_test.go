package jsonrpc2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func TestRemoteCall(t *testing.T) {
	remote, peer := newTestRemote(t)

	var g errgroup.Group
	var got int
	g.Go(func() error {
		return remote.Call(context.Background(), &got, "add_account")
	})

	line := peer.readLine()
	if want := `{"jsonrpc":"2.0","method":"add_account","params":[],"id":1}` + "\n"; line != want {
		t.Errorf("wrong request on the wire:\n   got: %s\n  want: %s", line, want)
	}
	peer.send(`{"id":1,"result":42}`)

	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if want := 42; got != want {
		t.Errorf("got: %d; want %d", got, want)
	}
	if got := remote.Pending(); got != 0 {
		t.Errorf("got %d pending calls; want 0", got)
	}
}

func TestRemoteCallNamed(t *testing.T) {
	remote, peer := newTestRemote(t)

	var g errgroup.Group
	var got string
	g.Go(func() error {
		return remote.CallNamed(context.Background(), &got, "set_config", map[string]interface{}{
			"key":   "addr",
			"value": "bot@example.org",
		})
	})

	req := peer.readRequest()
	if got, want := string(req.Params), `{"key":"addr","value":"bot@example.org"}`; got != want {
		t.Errorf("got params: %s; want %s", got, want)
	}
	peer.send(`{"id":%d,"result":"ok"}`, req.ID)

	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if got != "ok" {
		t.Errorf("got: %q; want %q", got, "ok")
	}
}

func TestRemoteCallRaw(t *testing.T) {
	remote, peer := newTestRemote(t)

	var g errgroup.Group
	var got json.RawMessage
	g.Go(func() (err error) {
		got, err = remote.CallRaw(context.Background(), "get_system_info")
		return err
	})
	req := peer.readRequest()
	peer.send(`{"id":%d,"result":{"deltachat_core_version":"v1.0", "arch":64}}`, req.ID)

	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if want := `{"deltachat_core_version":"v1.0", "arch":64}`; string(got) != want {
		t.Errorf("got: %s; want %s", got, want)
	}
}

func TestRemoteIDsIncrease(t *testing.T) {
	remote, peer := newTestRemote(t)

	go func() {
		for i := 0; i < 20; i++ {
			req := peer.readRequest()
			peer.send(`{"id":%d,"result":%d}`, req.ID, req.ID)
		}
	}()

	var last uint64
	for i := 0; i < 20; i++ {
		var id uint64
		if err := remote.Call(context.Background(), &id, "echo_id", i); err != nil {
			t.Fatal(err)
		}
		if id <= last {
			t.Fatalf("id did not increase: %d after %d", id, last)
		}
		last = id
	}
	if last != 20 {
		t.Errorf("got last id %d; want 20", last)
	}
}

func TestRemoteEventBeforeResponse(t *testing.T) {
	remote, peer := newTestRemote(t)

	var g errgroup.Group
	g.Go(func() error {
		return remote.Call(context.Background(), nil, "start_io", 1)
	})
	req := peer.readRequest()

	want := `{"contextId":1,"event":{"type":"Info","msg":"hi"}}`
	peer.send(`{"method":"event","params":%s}`, want)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := remote.NextEvent(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != want {
		t.Errorf("got: %s; want %s", got, want)
	}

	peer.send(`{"id":%d,"result":null}`, req.ID)
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestRemoteOutOfOrder(t *testing.T) {
	remote, peer := newTestRemote(t)
	remote.Client.id = 4

	var g errgroup.Group
	for _, method := range []string{"first", "second"} {
		method := method
		g.Go(func() error {
			var got string
			if err := remote.Call(context.Background(), &got, method); err != nil {
				return err
			}
			if got != method {
				return fmt.Errorf("call %q received result %q", method, got)
			}
			return nil
		})
	}

	reqs := map[uint64]*Request{}
	for i := 0; i < 2; i++ {
		req := peer.readRequest()
		reqs[req.ID] = req
	}
	if _, ok := reqs[5]; !ok {
		t.Fatalf("missing request id 5: %v", reqs)
	}
	if _, ok := reqs[6]; !ok {
		t.Fatalf("missing request id 6: %v", reqs)
	}

	// Answer in reverse order.
	peer.send(`{"id":6,"result":%q}`, reqs[6].Method)
	peer.send(`{"id":5,"result":%q}`, reqs[5].Method)

	if err := g.Wait(); err != nil {
		t.Error(err)
	}
}

func TestRemoteRPCError(t *testing.T) {
	remote, peer := newTestRemote(t)

	errc := make(chan error, 1)
	go func() {
		var result interface{}
		errc <- remote.Call(context.Background(), &result, "no_such_method", "arg")
	}()
	req := peer.readRequest()

	body := `{"code":-32601,"message":"Method not found","data":{"method":"no_such_method"}}`
	peer.send(`{"jsonrpc":"2.0","id":%d,"error":%s}`, req.ID, body)

	err := <-errc
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got: %v", err)
	}
	if got := string(rpcErr.Raw); got != body {
		t.Errorf("error body not preserved:\n   got: %s\n  want: %s", got, body)
	}
	if rpcErr.Method != "no_such_method" || rpcErr.ID != req.ID {
		t.Errorf("wrong call details on error: %+v", rpcErr)
	}
	if got, want := rpcErr.ErrorCode(), ErrCodeMethodNotFound; got != want {
		t.Errorf("got code %d; want %d", got, want)
	}
	if got, want := string(rpcErr.Data), `{"method":"no_such_method"}`; got != want {
		t.Errorf("got data %s; want %s", got, want)
	}

	// Per-call errors leave the session running.
	if !remote.Running() {
		t.Errorf("remote stopped after rpc error: %v", remote.Err())
	}
}

func TestRemoteErrorWinsOverResult(t *testing.T) {
	remote, peer := newTestRemote(t)

	errc := make(chan error, 1)
	var got int
	go func() {
		errc <- remote.Call(context.Background(), &got, "both")
	}()
	req := peer.readRequest()
	peer.send(`{"id":%d,"result":1,"error":{"code":1,"message":"nope"}}`, req.ID)

	var rpcErr *RPCError
	if err := <-errc; !errors.As(err, &rpcErr) {
		t.Errorf("expected RPCError, got: %v", err)
	}
	if got != 0 {
		t.Errorf("result was set alongside an error: %d", got)
	}
}

func TestRemoteUnknownID(t *testing.T) {
	remote, peer := newTestRemote(t)

	errc := make(chan error, 1)
	go func() {
		errc <- remote.Call(context.Background(), nil, "pending")
	}()
	peer.readRequest()
	peer.send(`{"id":99,"result":true}`)

	err := remote.Wait()
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("expected ProtocolError, got: %v", err)
	}
	if remote.Running() {
		t.Error("remote still running after protocol error")
	}
	if err := <-errc; !errors.As(err, &protoErr) {
		t.Errorf("pending call: expected ProtocolError, got: %v", err)
	}

	err = remote.Call(context.Background(), nil, "after")
	if !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning, got: %v", err)
	}
	if !errors.As(err, &protoErr) {
		t.Errorf("expected the stop cause to be kept, got: %v", err)
	}
}

func TestRemoteFatalMessages(t *testing.T) {
	testcases := []struct {
		line    string
		wantErr interface{}
	}{
		{`{"id":1,"result":`, &DecodeError{}},
		{`not json`, &DecodeError{}},
		{`{"method":"ping","params":[]}`, &ProtocolError{}},
		{`{"result":1}`, &ProtocolError{}},
		{`{"id":null,"error":{"code":-32700,"message":"Parse error"}}`, &ProtocolError{}},
		{`{"id":"abc","result":1}`, &ProtocolError{}},
		{`{"METHOD":"event","PARAMS":{"contextId":0,"event":{"type":"Info"}}}`, &ProtocolError{}},
		{`{"method":"event"}`, &ProtocolError{}},
		{`{"method":5,"params":{}}`, &DecodeError{}},
	}

	for i, tc := range testcases {
		remote, peer := newTestRemote(t)
		peer.send("%s", tc.line)

		err := remote.Wait()
		target := reflect.New(reflect.TypeOf(tc.wantErr))
		if !errors.As(err, target.Interface()) {
			t.Errorf("[case %d] %s: got %T (%v); want %T", i, tc.line, err, err, tc.wantErr)
		}
	}
}

func TestRemoteExactKeys(t *testing.T) {
	remote, peer := newTestRemote(t)

	var g errgroup.Group
	var got int
	g.Go(func() error {
		return remote.Call(context.Background(), &got, "get_answer")
	})
	req := peer.readRequest()
	peer.send(`{"id":%d,"result":42,"Result":7,"ERROR":{"code":1,"message":"no"}}`, req.ID)

	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if want := 42; got != want {
		t.Errorf("got: %d; want %d", got, want)
	}
	if !remote.Running() {
		t.Errorf("remote stopped: %v", remote.Err())
	}
}

// readOnlyCodec has no Close, so the Remote can't interrupt its reads.
type readOnlyCodec struct {
	in chan *Message
}

func (c *readOnlyCodec) ReadMessage() (*Message, error) {
	msg, ok := <-c.in
	if !ok {
		return nil, io.EOF
	}
	return msg, nil
}

func (c *readOnlyCodec) WriteMessage(*Request) error {
	return nil
}

func TestRemoteCloseUnclosableCodec(t *testing.T) {
	codec := &readOnlyCodec{in: make(chan *Message)}
	remote := NewRemote(codec)
	defer close(codec.in)

	if err := remote.Close(); err != nil {
		t.Fatal(err)
	}

	// The reader is still blocked in ReadMessage, this unblocks it.
	event := &Message{Method: EventMethod, Params: json.RawMessage(`{"contextId":0,"event":{"type":"Info"}}`)}
	select {
	case codec.in <- event:
	case <-time.After(time.Second * 2):
		t.Fatal("reader loop is not reading")
	}

	select {
	case codec.in <- event:
		t.Error("reader loop kept reading after Close")
	case <-time.After(time.Millisecond * 50):
	}

	if _, err := remote.NextEvent(context.Background()); err != ErrCancelled {
		t.Errorf("got: %v; want %v", err, ErrCancelled)
	}
}

func TestRemoteConnectionClosed(t *testing.T) {
	remote, peer := newTestRemote(t)

	const numCalls = 5
	errs := make(chan error, numCalls)
	for i := 0; i < numCalls; i++ {
		go func(i int) {
			errs <- remote.Call(context.Background(), nil, "never_answered", i)
		}(i)
	}
	for i := 0; i < numCalls; i++ {
		peer.readRequest()
	}
	peer.send(`{"method":"event","params":{"contextId":0,"event":{"type":"Info","msg":"bye"}}}`)
	peer.out.Close()

	for i := 0; i < numCalls; i++ {
		select {
		case err := <-errs:
			if !errors.Is(err, ErrConnectionClosed) {
				t.Errorf("got: %v; want %v", err, ErrConnectionClosed)
			}
		case <-time.After(time.Second * 2):
			t.Fatal("pending call did not fail after connection closed")
		}
	}

	// Events read before the end are still delivered, then the queue ends.
	ctx := context.Background()
	if _, err := remote.NextEvent(ctx); err != nil {
		t.Errorf("lost queued event: %s", err)
	}
	if _, err := remote.NextEvent(ctx); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("got: %v; want %v", err, ErrConnectionClosed)
	}
	if err := remote.Call(ctx, nil, "after"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("got: %v; want %v", err, ErrNotRunning)
	}
}

func TestRemoteEventsFIFO(t *testing.T) {
	remote, peer := newTestRemote(t)

	const numEvents = 50
	const numCalls = 10

	var g errgroup.Group
	for i := 0; i < numCalls; i++ {
		i := i
		g.Go(func() error {
			var got int
			if err := remote.Call(context.Background(), &got, "square", i); err != nil {
				return err
			}
			if got != i*i {
				return fmt.Errorf("square(%d) = %d", i, got)
			}
			return nil
		})
	}

	var reqs []*Request
	for i := 0; i < numCalls; i++ {
		reqs = append(reqs, peer.readRequest())
	}
	for i := 0; i < numEvents; i++ {
		peer.send(`{"method":"event","params":{"contextId":1,"event":{"type":"Info","seq":%d}}}`, i)
		if i%5 == 0 && len(reqs) > 0 {
			req := reqs[len(reqs)-1]
			reqs = reqs[:len(reqs)-1]
			var args []int
			if err := json.Unmarshal(req.Params, &args); err != nil {
				t.Fatal(err)
			}
			peer.send(`{"id":%d,"result":%d}`, req.ID, args[0]*args[0])
		}
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for i := 0; i < numEvents; i++ {
		raw, err := remote.NextEvent(ctx)
		if err != nil {
			t.Fatal(err)
		}
		var params struct {
			Event struct {
				Seq int `json:"seq"`
			} `json:"event"`
		}
		if err := json.Unmarshal(raw, &params); err != nil {
			t.Fatal(err)
		}
		if params.Event.Seq != i {
			t.Fatalf("event out of order: got seq %d; want %d", params.Event.Seq, i)
		}
	}
}

func TestRemoteClose(t *testing.T) {
	remote, peer := newTestRemote(t)

	errc := make(chan error, 1)
	go func() {
		errc <- remote.Call(context.Background(), nil, "slow")
	}()
	peer.readRequest()

	if err := remote.Close(); err != nil {
		t.Fatal(err)
	}
	if err := <-errc; err != ErrCancelled {
		t.Errorf("got: %v; want %v", err, ErrCancelled)
	}
	if got := remote.Err(); got != ErrCancelled {
		t.Errorf("got: %v; want %v", got, ErrCancelled)
	}
	err := remote.Call(context.Background(), nil, "after")
	if !errors.Is(err, ErrNotRunning) || !errors.Is(err, ErrCancelled) {
		t.Errorf("got: %v; want not running caused by cancel", err)
	}
	if _, err := remote.NextEvent(context.Background()); err != ErrCancelled {
		t.Errorf("got: %v; want %v", err, ErrCancelled)
	}
}

func TestRemoteAbandonedCall(t *testing.T) {
	remote, peer := newTestRemote(t)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- remote.Call(ctx, nil, "slow")
	}()
	req := peer.readRequest()
	if got := remote.Stale(10); len(got) != 1 || got[0].ID != req.ID {
		t.Errorf("wrong stale requests: %v", got)
	}
	cancel()
	if err := <-errc; err != context.Canceled {
		t.Fatalf("got: %v; want %v", err, context.Canceled)
	}
	if got := remote.Pending(); got != 0 {
		t.Errorf("abandoned call leaked: %d pending", got)
	}

	// The late answer is dropped without stopping the session.
	peer.send(`{"id":%d,"result":"late"}`, req.ID)

	var g errgroup.Group
	var got string
	g.Go(func() error {
		return remote.Call(context.Background(), &got, "next")
	})
	next := peer.readRequest()
	peer.send(`{"id":%d,"result":"fresh"}`, next.ID)
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if got != "fresh" {
		t.Errorf("got: %q; want %q", got, "fresh")
	}
}

func TestRemoteConcurrentWrites(t *testing.T) {
	remote, peer := newTestRemote(t)

	const numCalls = 50
	var mu sync.Mutex
	seen := map[uint64]bool{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < numCalls; i++ {
			// Every line must decode on its own, interleaved writes would not.
			req := peer.readRequest()
			mu.Lock()
			seen[req.ID] = true
			mu.Unlock()
			peer.send(`{"id":%d,"result":%q}`, req.ID, req.Params)
		}
	}()

	var g errgroup.Group
	for i := 0; i < numCalls; i++ {
		i := i
		g.Go(func() error {
			payload := fmt.Sprintf("payload-%d-%0200d", i, i)
			var got string
			if err := remote.Call(context.Background(), &got, "echo", payload); err != nil {
				return err
			}
			if want := fmt.Sprintf("[%q]", payload); got != want {
				return fmt.Errorf("got: %s; want %s", got, want)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	<-done

	var ids []int
	for id := range seen {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	if len(ids) != numCalls || ids[0] != 1 || ids[numCalls-1] != numCalls {
		t.Errorf("ids not unique and contiguous: %v", ids)
	}
}
