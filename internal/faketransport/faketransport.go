// Package faketransport is an in-memory transport.Provider for tests. Every
// side effect is recorded, and connection results, inbound messages and
// disconnects are driven by the test.
package faketransport

import (
	"context"
	"errors"
	"sync"

	"github.com/vipnode/rpcclient/jsonrpc2"
	"github.com/vipnode/rpcclient/transport"
)

// ErrDropped is the disconnect reason used by Drop when none is given.
var ErrDropped = errors.New("faketransport: connection dropped")

type call struct {
	Method string
	Args   []interface{}
}

type Calls []call

func Call(method string, args ...interface{}) call {
	return call{method, args}
}

var _ transport.Provider = &Transport{}

// Transport records calls and lets the test control the connection.
type Transport struct {
	// ConnectErr is returned by Connect when set.
	ConnectErr error
	// SendErr is returned by Send when set.
	SendErr error
	// BeforeConnect, if set, runs inside Connect before the result is
	// decided. Tests use it to inject events mid-connect.
	BeforeConnect func()
	// Reply, if set, is called for every sent message; a non-nil return is
	// delivered back as an inbound message before Send returns.
	Reply func(msg *jsonrpc2.Message) *jsonrpc2.Message
	// HoldDisconnect makes Disconnect only mark the transport closed; the
	// test reports the disconnect later with Drop.
	HoldDisconnect bool

	mu           sync.Mutex
	connected    bool
	calls        Calls
	sent         []*jsonrpc2.Message
	onMessage    func(*jsonrpc2.Message)
	onDisconnect func(error)
	onError      func(error)
}

func New() *Transport {
	return &Transport{}
}

func (t *Transport) record(method string, args ...interface{}) {
	t.mu.Lock()
	t.calls = append(t.calls, Call(method, args...))
	t.mu.Unlock()
}

func (t *Transport) Connect(ctx context.Context) error {
	t.record("Connect")
	if t.BeforeConnect != nil {
		t.BeforeConnect()
	}
	if t.ConnectErr != nil {
		return t.ConnectErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()
	return nil
}

// Disconnect mimics a real transport: the disconnect signal fires
// asynchronously through the handler.
func (t *Transport) Disconnect() error {
	t.record("Disconnect")
	t.mu.Lock()
	wasConnected := t.connected
	if t.HoldDisconnect {
		t.connected = false
	}
	t.mu.Unlock()
	if wasConnected && !t.HoldDisconnect {
		t.Drop(transport.ErrDisconnected)
	}
	return nil
}

func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *Transport) Send(msg *jsonrpc2.Message) error {
	t.record("Send", msg)
	if t.SendErr != nil {
		return t.SendErr
	}
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return transport.ErrNotConnected
	}
	t.sent = append(t.sent, msg)
	t.mu.Unlock()

	if t.Reply != nil {
		if resp := t.Reply(msg); resp != nil {
			t.Deliver(resp)
		}
	}
	return nil
}

func (t *Transport) OnMessage(fn func(*jsonrpc2.Message)) {
	t.mu.Lock()
	t.onMessage = fn
	t.mu.Unlock()
}

func (t *Transport) OnDisconnect(fn func(error)) {
	t.mu.Lock()
	t.onDisconnect = fn
	t.mu.Unlock()
}

func (t *Transport) OnError(fn func(error)) {
	t.mu.Lock()
	t.onError = fn
	t.mu.Unlock()
}

// Fail reports err to the error handler without ending the connection.
func (t *Transport) Fail(err error) {
	t.mu.Lock()
	fn := t.onError
	t.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// Deliver feeds msg to the message handler as if it arrived from the peer.
func (t *Transport) Deliver(msg *jsonrpc2.Message) {
	t.mu.Lock()
	fn := t.onMessage
	t.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

// Drop marks the transport disconnected and fires the disconnect handler
// with reason, or ErrDropped if reason is nil.
func (t *Transport) Drop(reason error) {
	if reason == nil {
		reason = ErrDropped
	}
	t.mu.Lock()
	t.connected = false
	fn := t.onDisconnect
	t.mu.Unlock()
	if fn != nil {
		fn(reason)
	}
}

// Sent returns the messages passed to Send while connected.
func (t *Transport) Sent() []*jsonrpc2.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*jsonrpc2.Message, len(t.sent))
	copy(out, t.sent)
	return out
}

// Calls returns every recorded call.
func (t *Transport) Calls() Calls {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(Calls, len(t.calls))
	copy(out, t.calls)
	return out
}

// Count returns how many times method was called.
func (c Calls) Count(method string) int {
	n := 0
	for _, call := range c {
		if call.Method == method {
			n++
		}
	}
	return n
}
