// Package events is a named signal bus with disposable subscriptions.
package events

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"
	"github.com/vipnode/rpcclient/jsonrpc2"
)

// Signal names emitted by rpcclient.
const (
	Connecting      = "connecting"
	Connected       = "connected"
	Disconnected    = "disconnected"
	ConnectionError = "connectionerror"
	Message         = "message"
	Error           = "error"
)

// Event is the payload delivered to handlers. Fields are set depending on
// the signal: Message for message events, Err for disconnects and errors.
type Event struct {
	Name    string
	Message *jsonrpc2.Message
	Err     error
}

// Handler receives events for the names it subscribed to.
type Handler func(Event)

// Emitter publishes events.
type Emitter interface {
	Emit(name string, e Event)
}

// Bus routes events by name. Handlers run synchronously, in subscription
// order, and events are delivered in the order they were emitted.
//
// Every subscription is a callback on the underlying EventBus topic of the
// same name. EventBus can not subscribe or unsubscribe from inside a handler,
// since it stays locked while publishing, so On and Dispose only record the
// change and the topic is brought up to date right before its next publish.
//
// Only one goroutine publishes at a time. Emit called while another emit is
// being delivered, including from inside a handler, queues the event and
// returns; the delivering goroutine publishes it next.
type Bus struct {
	bus evbus.Bus

	mu     sync.Mutex
	topics map[string][]*Subscription
	// installed counts the callbacks on the EventBus topic, dirty marks
	// topics whose subscriptions changed since.
	installed map[string]int
	dirty     map[string]bool
	queue     []Event
	draining  bool
}

var _ Emitter = &Bus{}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{
		bus:       evbus.New(),
		topics:    map[string][]*Subscription{},
		installed: map[string]int{},
		dirty:     map[string]bool{},
	}
}

// callback wraps a subscription for EventBus.
//
//go:noinline
func callback(sub *Subscription) func(Event) {
	return func(e Event) {
		if sub.isActive() {
			sub.handler(e)
		}
	}
}

// sync reinstalls the callbacks of name when its subscriptions changed. Only
// the draining goroutine calls it, never while EventBus is publishing.
//
// EventBus matches callbacks by code pointer and every callback shares one,
// so each Unsubscribe removes one installed callback and the topic is
// rebuilt in full.
func (b *Bus) sync(name string) {
	b.mu.Lock()
	if !b.dirty[name] {
		b.mu.Unlock()
		return
	}
	delete(b.dirty, name)
	subs := make([]*Subscription, len(b.topics[name]))
	copy(subs, b.topics[name])
	n := b.installed[name]
	b.installed[name] = len(subs)
	b.mu.Unlock()

	for i := 0; i < n; i++ {
		_ = b.bus.Unsubscribe(name, callback(nil))
	}
	for _, sub := range subs {
		_ = b.bus.Subscribe(name, callback(sub))
	}
}

// On subscribes handler to name. The handler is called until the returned
// subscription is disposed.
func (b *Bus) On(name string, handler Handler) *Subscription {
	sub := &Subscription{
		bus:     b,
		name:    name,
		handler: handler,
		active:  true,
	}
	b.mu.Lock()
	b.topics[name] = append(b.topics[name], sub)
	b.dirty[name] = true
	b.mu.Unlock()
	return sub
}

// Emit publishes e to the handlers of name. e.Name is set to name.
func (b *Bus) Emit(name string, e Event) {
	e.Name = name
	b.mu.Lock()
	b.queue = append(b.queue, e)
	if b.draining {
		b.mu.Unlock()
		return
	}
	b.draining = true
	b.mu.Unlock()
	b.drain()
}

// drain publishes queued events until the queue is empty. draining is
// cleared under the same lock that observes the empty queue, so an event
// queued by a concurrent Emit is never left behind.
func (b *Bus) drain() {
	done := false
	defer func() {
		if !done {
			// A handler panicked; let the next Emit take over.
			b.mu.Lock()
			b.draining = false
			b.mu.Unlock()
		}
	}()

	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.draining = false
			b.mu.Unlock()
			done = true
			return
		}
		next := b.queue[0]
		b.queue[0] = Event{}
		b.queue = b.queue[1:]
		b.mu.Unlock()

		b.sync(next.Name)
		b.bus.Publish(next.Name, next)
	}
}

// Len returns the number of active subscriptions for name.
func (b *Bus) Len(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[name])
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.topics[sub.name]
	for i, s := range subs {
		if s == sub {
			b.topics[sub.name] = append(subs[:i:i], subs[i+1:]...)
			b.dirty[sub.name] = true
			return
		}
	}
}

// Subscription is a handle returned by Bus.On.
type Subscription struct {
	bus     *Bus
	name    string
	handler Handler

	mu     sync.Mutex
	active bool
}

func (s *Subscription) isActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Dispose stops delivery to the handler. It is safe to call more than once,
// including from within the handler itself.
func (s *Subscription) Dispose() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	s.mu.Unlock()
	s.bus.remove(s)
}
