package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"

	"github.com/OpenPeeDeeP/xdg"
	"github.com/alexcesaro/log"
	"github.com/alexcesaro/log/golog"
	flags "github.com/jessevdk/go-flags"
	"github.com/vipnode/rpcclient/jsonrpc2"
	"github.com/vipnode/rpcclient/rpcclient"
	"github.com/vipnode/rpcclient/tracker"
	"github.com/vipnode/rpcclient/transport"
)

// Version of the binary, assigned during build.
var Version string = "dev"

// Options contains the flag options
type Options struct {
	Verbose []bool         `short:"v" long:"verbose" description:"Show verbose logging." no-ini:"true"`
	Version bool           `long:"version" description:"Print version and exit." no-ini:"true"`
	Config  flags.Filename `long:"config" description:"INI file with default option values. (default: $XDG_CONFIG_HOME/vipnode/rpcclient/config.ini)" no-ini:"true"`

	Call struct {
		ConnectionOptions
		Args struct {
			Method string   `positional-arg-name:"method" description:"JSONRPC method to call." required:"yes"`
			Params []string `positional-arg-name:"params" description:"Positional params as JSON literals; anything else is sent as a string."`
		} `positional-args:"yes"`
	} `command:"call" description:"Call a method and print its result."`

	Notify struct {
		ConnectionOptions
		Args struct {
			Method string   `positional-arg-name:"method" description:"JSONRPC method to notify." required:"yes"`
			Params []string `positional-arg-name:"params" description:"Positional params as JSON literals; anything else is sent as a string."`
		} `positional-args:"yes"`
	} `command:"notify" description:"Send a notification without waiting for a response."`

	Listen struct {
		ConnectionOptions
	} `command:"listen" description:"Print every message pushed by the server until interrupted."`
}

// configOptions is parsed ahead of everything else to find the INI file.
type configOptions struct {
	Config flags.Filename `long:"config"`
}

const callUsage = `Examples:
* Call a method with a string and a number:
  $ rpcclient call --url ws://localhost:8545/ echo hello 42

* Use the gobwas websocket implementation:
  $ rpcclient call --url ws://localhost:8545/ --backend gobwas eth_blockNumber
`

var logLevels = []log.Level{
	log.Warning,
	log.Info,
	log.Debug,
}

// findConfig returns the INI file to load, or "" when there is none.
func findConfig(args []string) (string, error) {
	pre := configOptions{}
	preParser := flags.NewParser(&pre, flags.IgnoreUnknown|flags.PassDoubleDash)
	if _, err := preParser.ParseArgs(args); err != nil {
		return "", err
	}
	if pre.Config != "" {
		return string(pre.Config), nil
	}
	return xdg.New("vipnode", "rpcclient").QueryConfig("config.ini"), nil
}

func parse(args []string, options *Options) (*flags.Parser, error) {
	parser := flags.NewParser(options, flags.Default)
	parser.SubcommandsOptional = true

	path, err := findConfig(args)
	if err != nil {
		return parser, err
	}
	if path != "" {
		if err := flags.NewIniParser(parser).ParseFile(path); err != nil {
			return parser, ErrExplain{err, fmt.Sprintf("Failed to load the config file %q.", path)}
		}
	}
	_, err = parser.ParseArgs(args)
	return parser, err
}

func main() {
	options := Options{}
	parser, err := parse(os.Args[1:], &options)
	if err != nil {
		if flagErr, ok := err.(*flags.Error); ok {
			if flagErr.Type == flags.ErrHelp && parser.Active != nil && parser.Active.Name == "call" {
				// Print additional usage help when run with --help
				exit(0, callUsage)
			}
			if flagErr.Type == flags.ErrHelp {
				return
			}
			// flags.Default already printed the error.
			os.Exit(1)
		}
		exit(1, "%s\n", err)
	}

	if options.Version {
		fmt.Println(Version)
		os.Exit(0)
	}
	if parser.Active == nil {
		parser.WriteHelp(os.Stderr)
		os.Exit(1)
	}

	// Figure out the log level
	numVerbose := len(options.Verbose)
	if numVerbose >= len(logLevels) {
		numVerbose = len(logLevels) - 1
	}

	logLevel := logLevels[numVerbose]
	logWriter := os.Stderr

	SetLogger(golog.New(logWriter, logLevel))
	if logLevel == log.Debug {
		// Enable logging from subpackages
		jsonrpc2.SetLogger(logWriter)
		transport.SetLogger(logWriter)
		tracker.SetLogger(logWriter)
		rpcclient.SetLogger(logWriter)
		debugMessages = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel on ctrl+c
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		for range sigCh {
			logger.Info("Shutting down...")
			cancel()
		}
	}()

	cmd := parser.Active.Name
	err = subcommand(ctx, cmd, options, os.Stdout)
	if err == nil {
		return
	}
	if err == io.EOF {
		exit(3, "Connection closed.\n")
	}
	exit(2, "%s failed: %s\n", cmd, explain(err))
}

// explain wraps err with guidance for the user, unless it already has some.
func explain(err error) error {
	switch typedErr := err.(type) {
	case ErrExplain:
		return err
	case net.Error:
		return ErrExplain{err, `Could not reach the server. Check the --url and that the server is up.`}
	case interface{ ErrorCode() int }:
		switch typedErr.ErrorCode() {
		case jsonrpc2.ErrCodeMethodNotFound:
			return ErrExplain{err, `The server does not provide this method.`}
		case jsonrpc2.ErrCodeInvalidParams:
			return ErrExplain{err, `The server rejected the params. PARAMS are parsed as JSON literals; quote strings that look like JSON.`}
		case jsonrpc2.ErrCodeTimeoutExceeded:
			return ErrExplain{err, `No response arrived in time. Raise --timeout if the method is slow.`}
		case jsonrpc2.ErrCodeConnectionLost:
			return ErrExplain{err, `The connection dropped before the server responded. Try again?`}
		case jsonrpc2.ErrCodeInvalidState:
			return ErrExplain{err, `The client was not connected when the message was sent.`}
		}
		return ErrExplain{err, fmt.Sprintf(`The server returned an error (code %d).`, typedErr.ErrorCode())}
	}
	return ErrExplain{err, fmt.Sprintf(`Error type %T is missing an explanation. Please open an issue at https://github.com/vipnode/rpcclient`, err)}
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
