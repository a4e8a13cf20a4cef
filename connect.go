package main

import (
	"context"
	"strings"

	"github.com/vipnode/stdiorpc/deltachat"
	"github.com/vipnode/stdiorpc/internal/fakeserver"
	"github.com/vipnode/stdiorpc/jsonrpc2"
	"github.com/vipnode/stdiorpc/rpcserver"
)

const fakeScheme = "fake://"

// session is a connected server, either a child process or the in-process
// fake.
type session interface {
	deltachat.Session
	CallNamed(ctx context.Context, result interface{}, method string, params map[string]interface{}) error
	Done() <-chan struct{}
	Close() error
}

var _ session = &jsonrpc2.Remote{}
var _ session = &rpcserver.Process{}

// connect starts the server named by --rpc-server. Cancelling ctx kills a
// spawned server.
func connect(ctx context.Context, options Options) (session, error) {
	if strings.HasPrefix(options.RPCServer, fakeScheme) {
		logger.Info("Using the in-process fake RPC server")
		chat := fakeserver.NewChat()
		return chat.Pipe(), nil
	}

	logger.Info("Starting RPC server:", options.RPCServer)
	p, err := rpcserver.Start(ctx, rpcserver.Config{
		Path:        options.RPCServer,
		AccountsDir: options.AccountsDir,
		Debug:       len(options.Verbose) >= len(logLevels),
	})
	if err != nil {
		return nil, err
	}
	logger.Debugf("RPC server running with pid %d", p.Pid())
	return p, nil
}
