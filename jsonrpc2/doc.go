// Package jsonrpc2 implements the client side of JSONRPC 2.0 over a pair of
// byte streams, one JSON document per line, as spoken by long-running RPC
// server processes on their stdin/stdout.
//
// Codec is the transport and encoding. IOCodec frames newline-delimited JSON
// over any io.Reader/io.Writer pair.
//
// Client allocates request ids, starting at 1 and strictly increasing.
//
// Remote is a session on a Codec. NewRemote starts a reader loop which routes
// responses to the pending call with the matching id, in whatever order the
// server answers, and queues "event" notifications for NextEvent in the order
// they were received. Call takes any method name chosen by the caller, the
// method catalog is defined by the server.
//
// Malformed input, a response for an unknown id, or the end of the stream
// stop the Remote for good: every pending call fails with the same error and
// later calls fail with ErrNotRunning. RPCError is local to the call that
// received it.
package jsonrpc2
