// Package tracker correlates inbound messages with pending requests.
//
// Every pending request is an entry with a filter predicate, a deadline and a
// Future. An entry is settled exactly once: whoever removes it from the
// tracked set (a match, the timeout sweep, or an explicit rejection) settles
// it, and every other path finds it gone and does nothing.
package tracker

import (
	"errors"
	"sync"
	"time"

	"github.com/vipnode/rpcclient/jsonrpc2"
)

const (
	DefaultTimeout       = 5 * time.Second
	DefaultCheckInterval = time.Second
)

// ErrClosed rejects requests that are still pending, or registered, after
// Close.
var ErrClosed = errors.New("tracker: closed")

// Predicate reports whether candidate is the response to a pending request.
type Predicate func(candidate *jsonrpc2.Message) bool

// Params are per-request options.
type Params struct {
	// EnableCallbacks runs the match callback before the future settles, so
	// the callback can prepare shared state before waiters observe the
	// response.
	EnableCallbacks bool
}

// Registration describes a request to track.
type Registration struct {
	Message *jsonrpc2.Message
	Filter  Predicate
	Params  Params

	// TimeoutRejectWith is the rejection used when the request expires.
	// Defaults to jsonrpc2.ErrTimeoutExceeded carrying Message as data.
	TimeoutRejectWith error
}

// Result is the outcome of Match.
type Result int

const (
	Unmatched Result = iota
	Matched
)

func (r Result) String() string {
	if r == Matched {
		return "matched"
	}
	return "unmatched"
}

type entry struct {
	Registration
	deadline time.Time
	future   *Future
}

func (e *entry) timeoutErr() error {
	if e.TimeoutRejectWith != nil {
		return e.TimeoutRejectWith
	}
	return jsonrpc2.ErrTimeoutExceeded.WithData(e.Message)
}

// Tracker owns the set of pending requests.
type Tracker struct {
	timeout  time.Duration
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	entries  []*entry // insertion order, oldest first
	sweeping bool
	stopCh   chan struct{}
	closed   bool
}

// New returns a tracker that expires requests after timeout, checking every
// interval. Zero values use DefaultTimeout and DefaultCheckInterval.
func New(timeout, interval time.Duration) *Tracker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return &Tracker{
		timeout:  timeout,
		interval: interval,
		now:      time.Now,
	}
}

// Register starts tracking a request and returns its future. The sweeper
// goroutine runs only while there are pending requests.
//
// Register panics if reg.Filter is nil.
func (t *Tracker) Register(reg Registration) *Future {
	if reg.Filter == nil {
		panic("tracker: Register called with a nil filter")
	}
	e := &entry{
		Registration: reg,
		deadline:     t.now().Add(t.timeout),
		future:       newFuture(),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		e.future.settle(nil, ErrClosed)
		return e.future
	}
	t.entries = append(t.entries, e)
	if !t.sweeping {
		t.sweeping = true
		t.stopCh = make(chan struct{})
		go t.sweeper(t.interval, t.stopCh)
	}
	return e.future
}

// Match finds the oldest pending request whose filter accepts candidate,
// removes it and resolves its future with candidate. onMatched, if not nil,
// runs once for a match: before the future settles when the request enabled
// callbacks, after it otherwise. Unmatched candidates change nothing.
//
// Filters run with the tracker locked and must not call back into it.
func (t *Tracker) Match(candidate *jsonrpc2.Message, onMatched func()) Result {
	t.mu.Lock()
	var found *entry
	for i, e := range t.entries {
		if e.Filter(candidate) {
			found = e
			t.removeAt(i)
			break
		}
	}
	t.mu.Unlock()

	if found == nil {
		return Unmatched
	}
	if found.Params.EnableCallbacks && onMatched != nil {
		onMatched()
		found.future.settle(candidate, nil)
		return Matched
	}
	found.future.settle(candidate, nil)
	if onMatched != nil {
		onMatched()
	}
	return Matched
}

// Sweep rejects every request whose deadline has passed and returns how many
// expired.
func (t *Tracker) Sweep() int {
	now := t.now()
	t.mu.Lock()
	var expired []*entry
	kept := t.entries[:0]
	for _, e := range t.entries {
		if now.Before(e.deadline) {
			kept = append(kept, e)
			continue
		}
		expired = append(expired, e)
	}
	for i := len(kept); i < len(t.entries); i++ {
		t.entries[i] = nil
	}
	t.entries = kept
	t.mu.Unlock()

	for _, e := range expired {
		e.future.settle(nil, e.timeoutErr())
	}
	if len(expired) > 0 {
		logger.Printf("Expired %d pending requests", len(expired))
	}
	return len(expired)
}

// Reject removes the request behind f and rejects it with err. It returns
// false if the request was already settled.
func (t *Tracker) Reject(f *Future, err error) bool {
	t.mu.Lock()
	var found *entry
	for i, e := range t.entries {
		if e.future == f {
			found = e
			t.removeAt(i)
			break
		}
	}
	t.mu.Unlock()

	if found == nil {
		return false
	}
	return found.future.settle(nil, err)
}

// RejectAll removes every pending request and rejects each with the error
// returned by reason for its request message. It returns the number
// rejected.
func (t *Tracker) RejectAll(reason func(req *jsonrpc2.Message) error) int {
	t.mu.Lock()
	all := t.entries
	t.entries = nil
	t.mu.Unlock()

	for _, e := range all {
		e.future.settle(nil, reason(e.Message))
	}
	return len(all)
}

// Len returns the number of pending requests.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Close stops the sweeper and rejects everything still pending with
// ErrClosed. Later registrations are rejected immediately.
func (t *Tracker) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	if t.sweeping {
		close(t.stopCh)
		t.sweeping = false
	}
	t.mu.Unlock()

	t.RejectAll(func(*jsonrpc2.Message) error { return ErrClosed })
	return nil
}

// removeAt drops the entry at index i, keeping order. Must hold t.mu.
func (t *Tracker) removeAt(i int) {
	copy(t.entries[i:], t.entries[i+1:])
	t.entries[len(t.entries)-1] = nil
	t.entries = t.entries[:len(t.entries)-1]
}

func (t *Tracker) sweeper(interval time.Duration, stopCh chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.Sweep()
			t.mu.Lock()
			if len(t.entries) == 0 && t.stopCh == stopCh {
				t.sweeping = false
				t.mu.Unlock()
				return
			}
			t.mu.Unlock()
		case <-stopCh:
			return
		}
	}
}
