package rpcclient

import (
	"context"
	"errors"
	"sync"

	"github.com/vipnode/rpcclient/events"
	"github.com/vipnode/rpcclient/jsonrpc2"
	"github.com/vipnode/rpcclient/transport"
)

// State is the connection state of a client.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// connection is the state machine around a transport. It only changes state
// on Connect and on signals from the transport; Disconnect just asks the
// transport to close and waits for it to report back.
type connection struct {
	transport transport.Provider
	emitter   events.Emitter

	// lost runs after the state becomes Disconnected and before the
	// disconnected signal is emitted.
	lost func(reason error)

	mu    sync.Mutex
	state State
	// epoch counts transport disconnects, so a Connect can tell that the
	// transport dropped while it was waiting.
	epoch uint64
	// replaced counts sessions that Connect moved past before their
	// disconnect was reported. Those reports do not change the state.
	replaced int
}

// errReplaced is the reason given to lost for requests sent on a session
// that a new Connect replaced.
var errReplaced = errors.New("rpcclient: connection replaced before it reported closing")

func newConnection(t transport.Provider, emitter events.Emitter, lost func(error)) *connection {
	c := &connection{
		transport: t,
		emitter:   emitter,
		lost:      lost,
	}
	t.OnDisconnect(c.handleDisconnect)
	return c
}

func (c *connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *connection) Connected() bool {
	return c.State() == Connected
}

// Connect emits connecting, waits for the transport and emits connected on
// success. A transport error is returned as is, after a connectionerror
// signal, and never leads to connected. Connect on a healthy connection is a
// no-op.
//
// If the previous connection is closed but has not reported it yet, as right
// after Disconnect, its requests are settled now and its late report only
// emits disconnected.
func (c *connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	replaced := false
	if c.state == Connected {
		if c.transport.IsConnected() {
			c.mu.Unlock()
			return nil
		}
		c.replaced++
		replaced = true
	}
	c.state = Connecting
	epoch := c.epoch
	c.mu.Unlock()

	if replaced && c.lost != nil {
		c.lost(errReplaced)
	}
	c.emitter.Emit(events.Connecting, events.Event{})

	err := c.transport.Connect(ctx)

	c.mu.Lock()
	if err != nil {
		if c.epoch == epoch && c.state == Connecting {
			c.state = Disconnected
		}
		c.mu.Unlock()
		logger.Printf("Connect failed: %s", err)
		c.emitter.Emit(events.ConnectionError, events.Event{Err: err})
		return err
	}
	if c.epoch != epoch {
		// The transport reported a disconnect while we were connecting.
		c.mu.Unlock()
		return jsonrpc2.ErrInvalidState
	}
	c.state = Connected
	c.mu.Unlock()

	logger.Printf("Connected")
	c.emitter.Emit(events.Connected, events.Event{})
	return nil
}

// Disconnect asks the transport to close. The disconnected signal comes from
// the transport.
func (c *connection) Disconnect() error {
	return c.transport.Disconnect()
}

func (c *connection) handleDisconnect(reason error) {
	c.mu.Lock()
	if c.replaced > 0 {
		c.replaced--
		c.mu.Unlock()
		logger.Printf("Replaced connection closed: %v", reason)
		c.emitter.Emit(events.Disconnected, events.Event{Err: reason})
		return
	}
	prev := c.state
	c.state = Disconnected
	c.epoch++
	c.mu.Unlock()

	logger.Printf("Disconnected (was %s): %v", prev, reason)
	if c.lost != nil {
		c.lost(reason)
	}
	c.emitter.Emit(events.Disconnected, events.Event{Err: reason})
}
