package jsonrpc2

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"testing"
)

// testPeer plays the server end of a Remote under test: it reads the
// requests the Remote writes and sends raw lines back.
type testPeer struct {
	t   *testing.T
	in  *bufio.Reader
	out io.WriteCloser
}

func newTestRemote(t *testing.T) (*Remote, *testPeer) {
	t.Helper()
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	remote := Attach(respR, reqW)
	peer := &testPeer{
		t:   t,
		in:  bufio.NewReader(reqR),
		out: respW,
	}
	t.Cleanup(func() {
		remote.Close()
		respW.Close()
		reqR.Close()
	})
	return remote, peer
}

// readLine returns the next raw request line, newline included.
func (p *testPeer) readLine() string {
	p.t.Helper()
	line, err := p.in.ReadString('\n')
	if err != nil {
		p.t.Fatalf("peer failed to read request: %s", err)
	}
	return line
}

func (p *testPeer) readRequest() *Request {
	p.t.Helper()
	var req Request
	if err := json.Unmarshal([]byte(p.readLine()), &req); err != nil {
		p.t.Fatalf("peer received invalid request: %s", err)
	}
	return &req
}

func (p *testPeer) send(format string, args ...interface{}) {
	p.t.Helper()
	if _, err := fmt.Fprintf(p.out, format+"\n", args...); err != nil {
		p.t.Fatalf("peer failed to send: %s", err)
	}
}

func assertEqualJSON(t *testing.T, a, b interface{}, format string, args ...interface{}) {
	t.Helper()

	aa, err := json.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	bb, err := json.Marshal(b)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Compare(aa, bb) != 0 {
		prefix := fmt.Sprintf(format, args...)
		t.Errorf(prefix+"\n   got: %q\n  want: %q", aa, bb)
	}
}
