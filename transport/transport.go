// Package transport defines the channel rpcclient talks over and provides a
// Provider for any jsonrpc2.Codec.
package transport

import (
	"context"

	"github.com/vipnode/rpcclient/jsonrpc2"
)

// Provider is a bidirectional message channel. Payloads are passed through
// untouched.
//
// OnMessage, OnDisconnect and OnError handlers are set once, before Connect.
// The disconnect handler is called with the reason whenever an established
// connection ends, whether by Disconnect or by the remote side, exactly once
// per connection. A connection that is still closing after Disconnect may
// report after a later Connect has already succeeded.
//
// The error handler receives problems that do not end the connection, such
// as an inbound message that could not be decoded.
type Provider interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
	Send(msg *jsonrpc2.Message) error
	OnMessage(func(msg *jsonrpc2.Message))
	OnDisconnect(func(reason error))
	OnError(func(err error))
}
