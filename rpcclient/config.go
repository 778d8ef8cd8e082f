package rpcclient

import (
	"errors"
	"time"

	"github.com/vipnode/rpcclient/events"
	"github.com/vipnode/rpcclient/jsonrpc2"
	"github.com/vipnode/rpcclient/tracker"
	"github.com/vipnode/rpcclient/transport"
)

const (
	DefaultMessageCheckInterval = tracker.DefaultCheckInterval
	DefaultMessageTimeout       = tracker.DefaultTimeout
)

var (
	ErrMissingTransport = errors.New("rpcclient: required Transport is not set")
	ErrMissingFilter    = errors.New("rpcclient: one of MessageFilter or MessageFilterFactory is required")
	ErrAmbiguousFilter  = errors.New("rpcclient: MessageFilter and MessageFilterFactory are mutually exclusive")
	ErrInvalidInterval  = errors.New("rpcclient: MessageCheckInterval and MessageTimeout must not be negative")
)

// Filter reports whether candidate is the response to req.
type Filter func(req, candidate *jsonrpc2.Message) bool

// FilterFactory returns the predicate for a single request.
type FilterFactory func(req *jsonrpc2.Message) tracker.Predicate

// MessageEvent is passed to the message hooks. Emitter is the client's event
// bus, so hooks can broadcast the message themselves.
type MessageEvent struct {
	Message *jsonrpc2.Message
	Emitter events.Emitter
}

// Hook is called for inbound messages.
type Hook func(MessageEvent)

// Config is the client configuration. It is copied by New and not read
// again.
type Config struct {
	// Transport carries the messages. Required.
	Transport transport.Provider

	// MessageFilter correlates responses with requests. Exactly one of
	// MessageFilter and MessageFilterFactory is required;
	// jsonrpc2.MatchID is the usual choice.
	MessageFilter        Filter
	MessageFilterFactory FilterFactory

	// MessageCheckInterval is how often pending requests are checked for
	// expiry. Default 1s.
	MessageCheckInterval time.Duration
	// MessageTimeout is how long a request waits for its response.
	// Default 5s.
	MessageTimeout time.Duration

	// OnMatchedMessage runs for every inbound message that settled a
	// pending request. For requests sent with enableCallbacks it runs
	// before the request's future settles, otherwise after.
	OnMatchedMessage Hook
	// OnUnmatchedMessage runs for every other inbound message.
	OnUnmatchedMessage Hook

	// KeepPendingOnDisconnect leaves pending requests to time out when the
	// transport disconnects, instead of rejecting them with
	// jsonrpc2.ErrConnectionLost.
	KeepPendingOnDisconnect bool

	// UUIDRequestIDs makes Call use UUID request IDs instead of sequential
	// integers.
	UUIDRequestIDs bool
}

func (c Config) validate() error {
	if c.Transport == nil {
		return ErrMissingTransport
	}
	if c.MessageFilter == nil && c.MessageFilterFactory == nil {
		return ErrMissingFilter
	}
	if c.MessageFilter != nil && c.MessageFilterFactory != nil {
		return ErrAmbiguousFilter
	}
	if c.MessageCheckInterval < 0 || c.MessageTimeout < 0 {
		return ErrInvalidInterval
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.MessageCheckInterval == 0 {
		c.MessageCheckInterval = DefaultMessageCheckInterval
	}
	if c.MessageTimeout == 0 {
		c.MessageTimeout = DefaultMessageTimeout
	}
	if c.OnMatchedMessage == nil {
		c.OnMatchedMessage = func(MessageEvent) {}
	}
	if c.OnUnmatchedMessage == nil {
		c.OnUnmatchedMessage = func(MessageEvent) {}
	}
	if c.MessageFilterFactory == nil {
		filter := c.MessageFilter
		c.MessageFilterFactory = func(req *jsonrpc2.Message) tracker.Predicate {
			return func(candidate *jsonrpc2.Message) bool {
				return filter(req, candidate)
			}
		}
	}
	return c
}

// BroadcastUnmatched is an OnUnmatchedMessage hook that emits every
// uncorrelated message as a message event.
func BroadcastUnmatched(e MessageEvent) {
	e.Emitter.Emit(events.Message, events.Event{Message: e.Message})
}
