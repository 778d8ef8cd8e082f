// Package echoserver is a websocket JSONRPC peer for tests. It answers
// registered methods, echoes params for "echo", and can push unsolicited
// messages or drop its connections on demand.
package echoserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/vipnode/rpcclient/jsonrpc2"
	"github.com/vipnode/rpcclient/jsonrpc2/ws"
)

// ErrNoReply makes a handler swallow the request without responding.
var ErrNoReply = errors.New("echoserver: no reply")

// HandlerFunc answers a call. Returning a jsonrpc2.Error sends it as the
// error response.
type HandlerFunc func(params json.RawMessage) (interface{}, error)

// Server is a running test peer.
type Server struct {
	// URL is the ws:// address to dial.
	URL string

	srv      *httptest.Server
	upgrader ws.Upgrader

	mu       sync.Mutex
	methods  map[string]HandlerFunc
	conns    map[jsonrpc2.Codec]struct{}
	received []*jsonrpc2.Message
	connCh   chan struct{}
}

// New starts a server using upgrader for the websocket handshake.
func New(upgrader ws.Upgrader) *Server {
	s := &Server{
		upgrader: upgrader,
		methods:  map[string]HandlerFunc{},
		conns:    map[jsonrpc2.Codec]struct{}{},
		connCh:   make(chan struct{}, 16),
	}
	s.Handle("echo", func(params json.RawMessage) (interface{}, error) {
		return params, nil
	})
	s.Handle("silence", func(json.RawMessage) (interface{}, error) {
		return nil, ErrNoReply
	})
	s.srv = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	s.URL = "ws" + strings.TrimPrefix(s.srv.URL, "http")
	return s
}

// Handle registers fn for method.
func (s *Server) Handle(method string, fn HandlerFunc) {
	s.mu.Lock()
	s.methods[method] = fn
	s.mu.Unlock()
}

// Connected is signalled once per accepted connection.
func (s *Server) Connected() <-chan struct{} {
	return s.connCh
}

// Received returns every message read so far, in order.
func (s *Server) Received() []*jsonrpc2.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*jsonrpc2.Message, len(s.received))
	copy(out, s.received)
	return out
}

// Push writes msg to every open connection.
func (s *Server) Push(msg *jsonrpc2.Message) error {
	for _, codec := range s.codecs() {
		if err := codec.WriteMessage(msg); err != nil {
			return err
		}
	}
	return nil
}

// DropAll closes every open connection from the server side.
func (s *Server) DropAll() {
	for _, codec := range s.codecs() {
		codec.Close()
	}
}

// Close drops all connections and stops the server.
func (s *Server) Close() {
	s.DropAll()
	s.srv.Close()
}

func (s *Server) codecs() []jsonrpc2.Codec {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]jsonrpc2.Codec, 0, len(s.conns))
	for codec := range s.conns {
		out = append(out, codec)
	}
	return out
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	codec, err := s.upgrader.Upgrade(r, w, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conns[codec] = struct{}{}
	s.mu.Unlock()
	select {
	case s.connCh <- struct{}{}:
	default:
	}

	defer func() {
		s.mu.Lock()
		delete(s.conns, codec)
		s.mu.Unlock()
		codec.Close()
	}()

	for {
		msg, err := codec.ReadMessage()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.received = append(s.received, msg)
		fn, ok := s.methods[msg.Method]
		s.mu.Unlock()

		if !msg.IsRequest() {
			continue
		}
		resp := &jsonrpc2.Message{ID: msg.ID, Version: jsonrpc2.Version}
		if !ok {
			e := jsonrpc2.ErrMethodNotFound.WithData(msg.Method)
			resp.Error = &e
		} else if err := reply(resp, fn, msg.Params); err == ErrNoReply {
			continue
		}
		if err := codec.WriteMessage(resp); err != nil {
			return
		}
	}
}

func reply(resp *jsonrpc2.Message, fn HandlerFunc, params json.RawMessage) error {
	result, err := fn(params)
	if err == ErrNoReply {
		return err
	}
	if err != nil {
		e := jsonrpc2.StatusOf(err)
		resp.Error = &e
		return nil
	}
	if resp.Result, err = json.Marshal(result); err != nil {
		e := jsonrpc2.ErrInternal.WithData(err.Error())
		resp.Error = &e
	}
	return nil
}
