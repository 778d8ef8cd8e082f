package transport

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/vipnode/rpcclient/jsonrpc2"
	"github.com/vipnode/rpcclient/jsonrpc2/ws"
)

// ErrNotConnected is returned by Send when there is no open codec.
var ErrNotConnected = errors.New("transport: not connected")

// ErrDisconnected is the disconnect reason when Disconnect was called.
var ErrDisconnected = errors.New("transport: disconnected by client")

// DialFunc opens a new codec.
type DialFunc func(ctx context.Context) (jsonrpc2.Codec, error)

var _ Provider = &CodecProvider{}

// Codec returns a Provider that opens a codec with dial on every Connect and
// reads from it on a dedicated goroutine until it fails.
func Codec(dial DialFunc) *CodecProvider {
	return &CodecProvider{dial: dial}
}

// WebSocket returns a Provider for a websocket URL using the given backend
// dialer.
func WebSocket(url string, dialer ws.Dialer) *CodecProvider {
	return Codec(func(ctx context.Context) (jsonrpc2.Codec, error) {
		return dialer.Dial(ctx, url)
	})
}

// session is one dialed codec and its read loop.
type session struct {
	codec   jsonrpc2.Codec
	closing bool
}

// CodecProvider implements Provider on top of a jsonrpc2.Codec.
type CodecProvider struct {
	dial DialFunc

	mu           sync.Mutex
	current      *session
	onMessage    func(*jsonrpc2.Message)
	onDisconnect func(error)
	onError      func(error)
}

func (p *CodecProvider) OnMessage(fn func(*jsonrpc2.Message)) {
	p.mu.Lock()
	p.onMessage = fn
	p.mu.Unlock()
}

func (p *CodecProvider) OnDisconnect(fn func(error)) {
	p.mu.Lock()
	p.onDisconnect = fn
	p.mu.Unlock()
}

func (p *CodecProvider) OnError(fn func(error)) {
	p.mu.Lock()
	p.onError = fn
	p.mu.Unlock()
}

// active returns the current session unless it is closing.
func (p *CodecProvider) active() *session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil || p.current.closing {
		return nil
	}
	return p.current
}

// Connect dials a new codec. Connecting while already connected is a no-op.
// A session that is still closing after Disconnect does not count: it is
// replaced, and its read loop reports its own disconnect when it stops.
func (p *CodecProvider) Connect(ctx context.Context) error {
	if p.active() != nil {
		return nil
	}

	codec, err := p.dial(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.current != nil && !p.current.closing {
		// Lost a race with a concurrent Connect.
		p.mu.Unlock()
		codec.Close()
		return nil
	}
	s := &session{codec: codec}
	p.current = s
	p.mu.Unlock()

	go p.serve(s)
	return nil
}

// Disconnect closes the codec. The disconnect handler fires from the read
// loop once it stops, with ErrDisconnected as the reason.
func (p *CodecProvider) Disconnect() error {
	p.mu.Lock()
	s := p.current
	if s == nil || s.closing {
		p.mu.Unlock()
		return nil
	}
	s.closing = true
	p.mu.Unlock()
	return s.codec.Close()
}

func (p *CodecProvider) IsConnected() bool {
	return p.active() != nil
}

func (p *CodecProvider) Send(msg *jsonrpc2.Message) error {
	s := p.active()
	if s == nil {
		return ErrNotConnected
	}
	return s.codec.WriteMessage(msg)
}

// serve reads until the codec fails. Messages that could not be decoded are
// reported to the error handler and skipped. Every session reports exactly
// one disconnect.
func (p *CodecProvider) serve(s *session) {
	var reason error
	for {
		msg, err := s.codec.ReadMessage()
		var decodeErr *jsonrpc2.DecodeError
		if errors.As(err, &decodeErr) {
			logger.Printf("Skipping malformed message: %s", err)
			p.mu.Lock()
			fn := p.onError
			p.mu.Unlock()
			if fn != nil {
				fn(err)
			}
			continue
		}
		if err != nil {
			reason = err
			break
		}
		p.mu.Lock()
		fn := p.onMessage
		p.mu.Unlock()
		if fn != nil {
			fn(msg)
		}
	}

	p.mu.Lock()
	closing := s.closing
	if p.current == s {
		p.current = nil
	}
	fn := p.onDisconnect
	p.mu.Unlock()

	if closing {
		reason = ErrDisconnected
	} else {
		// Make sure the connection is released after a remote close.
		s.codec.Close()
	}
	if reason != ErrDisconnected && reason != io.EOF {
		logger.Printf("Read loop stopped: %s", reason)
	}
	if fn != nil {
		fn(reason)
	}
}
