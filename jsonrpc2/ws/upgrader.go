package ws

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/vipnode/rpcclient/jsonrpc2"
	"github.com/vipnode/rpcclient/jsonrpc2/ws/gobwas"
	"github.com/vipnode/rpcclient/jsonrpc2/ws/gorilla"
)

// Upgrader takes an HTTP request, upgrades it to a websocket server and
// returns a codec interface. This allows switching between different websocket
// implementations.
type Upgrader interface {
	Upgrade(*http.Request, http.ResponseWriter, http.Header) (jsonrpc2.Codec, error)
}

// Dialer opens a client-side websocket connection and returns a codec for it.
type Dialer interface {
	Dial(ctx context.Context, url string) (jsonrpc2.Codec, error)
}

// DialerFunc adapts a dial function into a Dialer.
type DialerFunc func(ctx context.Context, url string) (jsonrpc2.Codec, error)

func (fn DialerFunc) Dial(ctx context.Context, url string) (jsonrpc2.Codec, error) {
	return fn(ctx, url)
}

var (
	_ Upgrader = &gorilla.Upgrader{}
	_ Upgrader = &gobwas.Upgrader{}
)

var backends = map[string]Dialer{
	"gorilla": DialerFunc(gorilla.WebSocketDial),
	"gobwas":  DialerFunc(gobwas.WebSocketDial),
}

// DefaultBackend is used when no backend name is given.
const DefaultBackend = "gorilla"

// Backend returns the Dialer registered under name.
func Backend(name string) (Dialer, error) {
	if name == "" {
		name = DefaultBackend
	}
	d, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("unknown websocket backend %q (available: %v)", name, Backends())
	}
	return d, nil
}

// Backends returns the names of the available websocket implementations.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
