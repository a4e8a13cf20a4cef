// Package rpcserver runs deltachat-rpc-server as a child process and attaches
// a jsonrpc2.Remote to its stdin and stdout.
package rpcserver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/OpenPeeDeeP/xdg"

	"github.com/vipnode/stdiorpc/jsonrpc2"
)

// DefaultPath is the server binary looked up in PATH when Config.Path is empty.
const DefaultPath = "deltachat-rpc-server"

// AccountsEnv is the environment variable the server reads its accounts
// directory from.
const AccountsEnv = "DC_ACCOUNTS_PATH"

// DefaultAccountsDir returns the accounts directory used when none is
// configured.
func DefaultAccountsDir() string {
	return xdg.New("deltachat", "stdiorpc").DataHome()
}

// Config describes how to start the server process.
type Config struct {
	// Path of the server binary, defaults to DefaultPath.
	Path string
	Args []string

	// AccountsDir is passed in AccountsEnv. Defaults to DefaultAccountsDir.
	AccountsDir string

	// Env entries (KEY=value) override the inherited environment.
	Env []string

	// Stderr receives the server's stderr. When nil, each line is logged.
	Stderr io.Writer

	// Debug logs every message going through the pipes.
	Debug bool
}

// Process is a running server with a Remote attached to its pipes.
type Process struct {
	*jsonrpc2.Remote

	cmd       *exec.Cmd
	stdin     io.WriteCloser
	exited    chan struct{}
	exitErr   error
	closeOnce sync.Once
}

// Start spawns the server. Cancelling ctx kills the process.
func Start(ctx context.Context, config Config) (*Process, error) {
	path := config.Path
	if path == "" {
		path = DefaultPath
	}
	accountsDir := config.AccountsDir
	if accountsDir == "" {
		accountsDir = DefaultAccountsDir()
	}

	cmd := exec.CommandContext(ctx, path, config.Args...)
	cmd.Env = setEnviron(os.Environ(), append([]string{AccountsEnv + "=" + accountsDir}, config.Env...)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}

	var stderrDone chan struct{}
	if config.Stderr != nil {
		cmd.Stderr = config.Stderr
	} else {
		stderr, err := cmd.StderrPipe()
		if err != nil {
			return nil, err
		}
		stderrDone = make(chan struct{})
		go func() {
			defer close(stderrDone)
			logLines(stderr)
		}()
	}

	logger.Printf("Starting %s with %s=%s", path, AccountsEnv, accountsDir)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", path, err)
	}

	var codec jsonrpc2.Codec = jsonrpc2.IOCodec(stdout, stdin)
	if config.Debug {
		codec = jsonrpc2.DebugCodec(path, codec)
	}

	p := &Process{
		Remote: jsonrpc2.NewRemote(codec),
		cmd:    cmd,
		stdin:  stdin,
		exited: make(chan struct{}),
	}
	go func() {
		// The stdout reader must be done before Wait closes the pipes.
		<-p.Remote.Done()
		if stderrDone != nil {
			<-stderrDone
		}
		p.exitErr = cmd.Wait()
		logger.Printf("Process %d exited: %v", cmd.Process.Pid, p.exitErr)
		close(p.exited)
	}()
	return p, nil
}

// Pid returns the process id of the server.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Wait blocks until the process exits and returns its exit status.
func (p *Process) Wait() error {
	<-p.exited
	return p.exitErr
}

// Exited is closed once the process has exited.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// Close stops the session and closes the server's stdin, which asks it to
// exit, then waits for it. A server that exits with an error after its input
// was closed is not reported as a failure.
func (p *Process) Close() error {
	var closeErr error
	p.closeOnce.Do(func() {
		closeErr = p.Remote.Close()
		if err := p.stdin.Close(); err != nil && !errors.Is(err, os.ErrClosed) && closeErr == nil {
			closeErr = err
		}
	})
	err := p.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		logger.Printf("Ignoring exit status after close: %s", exitErr)
		err = nil
	}
	if err != nil {
		return err
	}
	return closeErr
}

func logLines(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logger.Printf("stderr: %s", scanner.Text())
	}
}

// setEnviron returns environ with envs (KEY=value) added or replaced.
func setEnviron(environ []string, envs ...string) []string {
	envMap := make(map[string]string, len(environ)+len(envs))
	for _, list := range [][]string{environ, envs} {
		for _, e := range list {
			parts := strings.SplitN(e, "=", 2)
			if len(parts) == 2 {
				envMap[parts[0]] = parts[1]
			}
		}
	}
	out := make([]string, 0, len(envMap))
	for k, v := range envMap {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
