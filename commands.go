package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/vipnode/rpcclient/events"
	"github.com/vipnode/rpcclient/jsonrpc2"
	"github.com/vipnode/rpcclient/jsonrpc2/ws"
	"github.com/vipnode/rpcclient/rpcclient"
	"github.com/vipnode/rpcclient/transport"
	"golang.org/x/sync/errgroup"
)

// debugMessages logs every message on the wire through the jsonrpc2 logger.
var debugMessages bool

// ConnectionOptions are shared by every subcommand.
type ConnectionOptions struct {
	URL     string        `long:"url" description:"WebSocket URL of the JSONRPC server, such as ws://localhost:8546/"`
	Backend string        `long:"backend" description:"WebSocket implementation. (gorilla|gobwas)" default:"gorilla"`
	Timeout time.Duration `long:"timeout" description:"How long to wait for connecting and for each response." default:"5s"`
	UUID    bool          `long:"uuid" description:"Use UUID request IDs instead of sequential numbers."`
}

// parseParams turns command line arguments into positional params. Valid
// JSON is sent as is, anything else as a JSON string.
func parseParams(args []string) []interface{} {
	params := make([]interface{}, 0, len(args))
	for _, arg := range args {
		if json.Valid([]byte(arg)) {
			params = append(params, json.RawMessage(arg))
			continue
		}
		params = append(params, arg)
	}
	return params
}

// dial connects a new client. The caller must Close it.
func dial(ctx context.Context, opts ConnectionOptions, config rpcclient.Config) (*rpcclient.Client, error) {
	if opts.URL == "" {
		return nil, ErrExplain{fmt.Errorf("missing server URL"), `Specify the server with --url="ws://..." or set url in the config file.`}
	}
	dialer, err := ws.Backend(opts.Backend)
	if err != nil {
		return nil, ErrExplain{err, `Pick one of the available --backend values.`}
	}

	if debugMessages {
		config.Transport = transport.Codec(func(ctx context.Context) (jsonrpc2.Codec, error) {
			codec, err := dialer.Dial(ctx, opts.URL)
			if err != nil {
				return nil, err
			}
			return jsonrpc2.DebugCodec(opts.URL, codec), nil
		})
	} else {
		config.Transport = transport.WebSocket(opts.URL, dialer)
	}
	config.MessageFilter = jsonrpc2.MatchID
	config.MessageTimeout = opts.Timeout
	config.UUIDRequestIDs = opts.UUID
	c, err := rpcclient.New(config)
	if err != nil {
		return nil, err
	}

	logger.Infof("Connecting to %s (%s)", opts.URL, opts.Backend)
	connectCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	if err := c.Connect(connectCtx); err != nil {
		c.Close()
		return nil, ErrExplain{err, fmt.Sprintf("Failed to connect to %s. Check the --url and that the server is up.", opts.URL)}
	}
	logger.Info("Connected.")
	return c, nil
}

func subcommand(ctx context.Context, cmd string, options Options, out io.Writer) error {
	switch cmd {
	case "call":
		return call(ctx, options.Call.ConnectionOptions, options.Call.Args.Method, options.Call.Args.Params, out)
	case "notify":
		return notify(ctx, options.Notify.ConnectionOptions, options.Notify.Args.Method, options.Notify.Args.Params)
	case "listen":
		return listen(ctx, options.Listen.ConnectionOptions, out)
	}
	return fmt.Errorf("unknown command: %s", cmd)
}

func call(ctx context.Context, opts ConnectionOptions, method string, args []string, out io.Writer) error {
	c, err := dial(ctx, opts, rpcclient.Config{})
	if err != nil {
		return err
	}
	defer c.Close()

	var result json.RawMessage
	if err := c.Call(ctx, &result, method, parseParams(args)...); err != nil {
		return err
	}
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	_, err = fmt.Fprintf(out, "%s\n", result)
	return err
}

func notify(ctx context.Context, opts ConnectionOptions, method string, args []string) error {
	c, err := dial(ctx, opts, rpcclient.Config{})
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Notify(method, parseParams(args)...)
}

// listen prints pushed messages until ctx is done or the server goes away.
func listen(ctx context.Context, opts ConnectionOptions, out io.Writer) error {
	c, err := dial(ctx, opts, rpcclient.Config{
		OnUnmatchedMessage: rpcclient.BroadcastUnmatched,
	})
	if err != nil {
		return err
	}
	defer c.Close()

	g, ctx := errgroup.WithContext(ctx)

	msgCh := make(chan *jsonrpc2.Message)
	sub := c.On(events.Message, func(e events.Event) {
		select {
		case msgCh <- e.Message:
		case <-ctx.Done():
		}
	})
	defer sub.Dispose()

	lostCh := make(chan error, 1)
	c.On(events.Disconnected, func(e events.Event) {
		select {
		case lostCh <- e.Err:
		default:
		}
	})

	g.Go(func() error {
		for {
			select {
			case msg := <-msgCh:
				if _, err := fmt.Fprintf(out, "%s\n", msg); err != nil {
					return err
				}
			case <-ctx.Done():
				return nil
			}
		}
	})
	g.Go(func() error {
		select {
		case err := <-lostCh:
			logger.Infof("Disconnected: %s", err)
			return err
		case <-ctx.Done():
			return nil
		}
	})
	return g.Wait()
}
