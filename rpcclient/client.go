// Package rpcclient is a JSONRPC client over an abstract transport. It
// correlates responses with requests through a caller-supplied filter,
// expires requests that get no response in time, and broadcasts connection
// lifecycle events.
package rpcclient

import (
	"context"

	"github.com/vipnode/rpcclient/events"
	"github.com/vipnode/rpcclient/jsonrpc2"
	"github.com/vipnode/rpcclient/tracker"
)

// Version of the module, assigned during build.
var Version string = "dev"

// Client is a JSONRPC client. Create it with New.
type Client struct {
	config   Config
	bus      *events.Bus
	conn     *connection
	pending  *tracker.Tracker
	requests jsonrpc2.Client
}

// New validates config and returns a client in the Disconnected state.
func New(config Config) (*Client, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config = config.withDefaults()

	c := &Client{
		config:   config,
		bus:      events.NewBus(),
		pending:  tracker.New(config.MessageTimeout, config.MessageCheckInterval),
		requests: jsonrpc2.Client{UUID: config.UUIDRequestIDs},
	}
	c.conn = newConnection(config.Transport, c.bus, c.connectionLost)
	config.Transport.OnMessage(c.handleMessage)
	config.Transport.OnError(c.transportError)
	return c, nil
}

// MustNew is like New but panics on an invalid configuration.
func MustNew(config Config) *Client {
	c, err := New(config)
	if err != nil {
		panic(err)
	}
	return c
}

// Version returns the module version.
func (c *Client) Version() string {
	return Version
}

// Connect opens the transport. See connection.Connect for the signals.
func (c *Client) Connect(ctx context.Context) error {
	return c.conn.Connect(ctx)
}

// Disconnect closes the transport. The disconnected event fires when the
// transport confirms.
func (c *Client) Disconnect() error {
	return c.conn.Disconnect()
}

// Connected is true only while the state is Connected.
func (c *Client) Connected() bool {
	return c.conn.Connected()
}

// State returns the current connection state. It changes on Connect and when
// the transport reports a disconnect, never on Disconnect alone.
func (c *Client) State() State {
	return c.conn.State()
}

// Pending returns the number of requests waiting for a response.
func (c *Client) Pending() int {
	return c.pending.Len()
}

// On subscribes handler to the named event. Dispose the subscription to stop
// receiving events.
func (c *Client) On(name string, handler events.Handler) *events.Subscription {
	return c.bus.On(name, handler)
}

// SendRequest sends req and returns a future for its response.
//
// When not connected the future is already rejected with
// jsonrpc2.ErrInvalidState and nothing is sent. Otherwise the request is
// tracked before it is sent, so even an immediate response is correlated.
// The future rejects with jsonrpc2.ErrTimeoutExceeded carrying req when no
// response arrives in time. If enableCallbacks is set, OnMatchedMessage runs
// before the future settles.
func (c *Client) SendRequest(req *jsonrpc2.Message, enableCallbacks bool) *tracker.Future {
	if !c.conn.Connected() {
		return tracker.Rejected(jsonrpc2.ErrInvalidState)
	}

	f := c.pending.Register(tracker.Registration{
		Message:           req,
		Filter:            c.config.MessageFilterFactory(req),
		TimeoutRejectWith: jsonrpc2.ErrTimeoutExceeded.WithData(req),
		Params: tracker.Params{
			EnableCallbacks: enableCallbacks,
		},
	})
	if err := c.config.Transport.Send(req); err != nil {
		c.pending.Reject(f, err)
		c.bus.Emit(events.Error, events.Event{Message: req, Err: err})
	}
	return f
}

// Call sends a request for method with positional params, waits for the
// response and decodes its result into result. Error responses are returned
// as jsonrpc2.Error values.
func (c *Client) Call(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	req, err := c.requests.Request(method, params...)
	if err != nil {
		return err
	}
	resp, err := c.SendRequest(req, false).Wait(ctx)
	if err != nil {
		return err
	}
	return resp.UnmarshalResult(result)
}

// SendEvent sends msg without expecting a response. It returns
// jsonrpc2.ErrInvalidState without sending when not connected, and nil on
// success; jsonrpc2.StatusOf turns the result into NoError. Transport
// errors are returned unmodified and also emitted as an error event.
func (c *Client) SendEvent(msg *jsonrpc2.Message) error {
	if !c.conn.Connected() {
		return jsonrpc2.ErrInvalidState
	}
	if err := c.config.Transport.Send(msg); err != nil {
		c.bus.Emit(events.Error, events.Event{Message: msg, Err: err})
		return err
	}
	return nil
}

// Notify sends a notification for method with positional params.
func (c *Client) Notify(method string, params ...interface{}) error {
	msg, err := c.requests.Notification(method, params...)
	if err != nil {
		return err
	}
	return c.SendEvent(msg)
}

// Close disconnects and rejects anything still pending with
// tracker.ErrClosed. The client can not be used afterwards.
func (c *Client) Close() error {
	err := c.conn.Disconnect()
	c.pending.Close()
	return err
}

func (c *Client) handleMessage(msg *jsonrpc2.Message) {
	e := MessageEvent{Message: msg, Emitter: c.bus}
	result := c.pending.Match(msg, func() {
		c.config.OnMatchedMessage(e)
	})
	if result == tracker.Unmatched {
		c.config.OnUnmatchedMessage(e)
	}
}

func (c *Client) connectionLost(reason error) {
	if c.config.KeepPendingOnDisconnect {
		return
	}
	n := c.pending.RejectAll(func(req *jsonrpc2.Message) error {
		return jsonrpc2.ErrConnectionLost.WithData(req)
	})
	if n > 0 {
		logger.Printf("Rejected %d pending requests: %v", n, reason)
	}
}

// transportError surfaces problems that did not end the connection, such as
// an inbound message that could not be decoded.
func (c *Client) transportError(err error) {
	c.bus.Emit(events.Error, events.Event{Err: err})
}
