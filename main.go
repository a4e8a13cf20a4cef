package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/alexcesaro/log"
	flags "github.com/jessevdk/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/vipnode/stdiorpc/bot"
	"github.com/vipnode/stdiorpc/deltachat"
	"github.com/vipnode/stdiorpc/jsonrpc2"
	"github.com/vipnode/stdiorpc/rpcserver"
)

// Version of the binary, assigned during build.
var Version string = "dev"

// Options contains the flag options
type Options struct {
	Verbose []bool         `short:"v" long:"verbose" description:"Show verbose logging."`
	Version bool           `long:"version" description:"Print version and exit."`
	Config  flags.Filename `long:"config" description:"INI file with default option values."`
	LogFile string         `long:"logfile" description:"Also write logs to this file, rotated as it grows."`

	RPCServer   string        `long:"rpc-server" description:"Path of deltachat-rpc-server, or fake:// for an in-process fake." default:"deltachat-rpc-server"`
	AccountsDir string        `long:"accounts-dir" description:"Accounts directory passed to the server. (default: $XDG_DATA_HOME/deltachat/stdiorpc)"`
	Timeout     time.Duration `long:"timeout" description:"Timeout for a single call." default:"30s"`

	Info struct {
	} `command:"info" description:"Print the server's system info."`

	Call struct {
		Named bool `long:"named" description:"Send a single JSON object as named params."`
		Args  struct {
			Method string   `positional-arg-name:"method" description:"Method name, such as get_system_info." required:"yes"`
			Params []string `positional-arg-name:"params" description:"JSON values for each param. Values that are not valid JSON are sent as strings."`
		} `positional-args:"yes"`
	} `command:"call" description:"Call a method and print the result."`

	Bot struct {
		Addr     string `long:"addr" description:"Email address to configure a new account with."`
		Password string `long:"password" description:"Password to configure a new account with."`
	} `command:"bot" description:"Run an echo bot that answers every message with its own text."`
}

const callUsage = `Examples:
* Print all accounts:
  $ stdiorpc call get_all_account_ids

* Send a message to chat 10 of account 1:
  $ stdiorpc call misc_send_text_message 1 "hello" 10
`

func subcommand(cmd string, options Options, out io.Writer) error {
	switch cmd {
	case "info":
		return runInfo(options, out)
	case "call":
		return runCall(options, out)
	case "bot":
		return runBot(options)
	}
	return fmt.Errorf("unknown command: %s", cmd)
}

// configPath finds the --config value in args, so the file can be loaded
// before the remaining flags override it.
func configPath(args []string) string {
	for i, arg := range args {
		if arg == "--" {
			break
		}
		if strings.HasPrefix(arg, "--config=") {
			return arg[len("--config="):]
		}
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func main() {
	options := Options{}
	parser := flags.NewParser(&options, flags.Default)
	parser.SubcommandsOptional = true

	if path := configPath(os.Args[1:]); path != "" {
		if err := flags.NewIniParser(parser).ParseFile(path); err != nil {
			exit(1, "Failed to load config %s: %s\n", path, err)
		}
	}

	p, err := parser.Parse()
	if err != nil {
		if p == nil {
			fmt.Println(err)
		}
		if flagErr, ok := err.(*flags.Error); ok && flagErr.Type == flags.ErrHelp && parser.Active != nil {
			// Print additional usage help when run with --help
			switch parser.Active.Name {
			case "call":
				exit(0, callUsage)
			}
		}
		return
	}

	if options.Version {
		fmt.Println(Version)
		os.Exit(0)
	}

	logLevel := verbosityLevel(len(options.Verbose))
	var logWriter io.Writer = os.Stderr
	if options.LogFile != "" {
		logFile := &lumberjack.Logger{
			Filename:   options.LogFile,
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		}
		defer logFile.Close()
		logWriter = io.MultiWriter(os.Stderr, logFile)
	}

	SetLogger(newLogger(logWriter, len(options.Verbose)))
	if logLevel == log.Debug {
		// Enable logging from subpackages
		jsonrpc2.SetLogger(logWriter)
		rpcserver.SetLogger(logWriter)
		bot.SetLogger(logWriter)
	}

	cmd := "info"
	if parser.Active != nil {
		cmd = parser.Active.Name
	}
	err = subcommand(cmd, options, os.Stdout)
	if err == nil {
		return
	}

	err = explain(err)
	exit(2, "%s failed: %s\n", cmd, err)
}

// explain annotates err with a hint for the user, if it doesn't have one yet.
func explain(err error) error {
	var explained ErrExplain
	if errors.As(err, &explained) {
		return err
	}

	var execErr *exec.Error
	var rpcErr interface{ ErrorCode() int }
	var protocolErr *jsonrpc2.ProtocolError
	var decodeErr *jsonrpc2.DecodeError
	switch {
	case errors.As(err, &execErr):
		return ErrExplain{err, `Failed to start the RPC server. Make sure deltachat-rpc-server is installed and in your PATH, or point --rpc-server at it.`}
	case errors.Is(err, bot.ErrMissingCredentials):
		return ErrExplain{err, `The account needs to be configured. Pass --addr and --password.`}
	case errors.Is(err, jsonrpc2.ErrConnectionClosed):
		return ErrExplain{err, `The RPC server closed its output unexpectedly. Run with -vvv to see its logs.`}
	case errors.As(err, &protocolErr), errors.As(err, &decodeErr):
		return ErrExplain{err, `The RPC server sent a message that could not be understood. Make sure it speaks line-delimited JSONRPC 2.0.`}
	case errors.As(err, &rpcErr):
		switch rpcErr.ErrorCode() {
		case jsonrpc2.ErrCodeMethodNotFound:
			return ErrExplain{err, `Missing a required RPC method. Make sure deltachat-rpc-server is up to date.`}
		case jsonrpc2.ErrCodeInvalidParams:
			return ErrExplain{err, `The server rejected the params. Check their number, order and types.`}
		}
		return ErrExplain{err, fmt.Sprintf(`The server returned an error (code %d).`, rpcErr.ErrorCode())}
	case errors.Is(err, deltachat.ErrInvalidEvent):
		return ErrExplain{err, `The server sent an event that could not be decoded.`}
	}
	return ErrExplain{err, fmt.Sprintf(`Error type %T is missing an explanation. Please open an issue at https://github.com/vipnode/stdiorpc`, err)}
}

func exit(code int, format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(code)
}

// ErrExplain annotates an error with an explanation.
type ErrExplain struct {
	Cause       error
	Explanation string
}

func (err ErrExplain) Error() string {
	return fmt.Sprintf("%s\n -> %s", err.Cause, err.Explanation)
}

func (err ErrExplain) Unwrap() error {
	return err.Cause
}
