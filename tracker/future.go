package tracker

import (
	"context"
	"errors"
	"sync"

	"github.com/vipnode/rpcclient/jsonrpc2"
)

// ErrPending is returned by Future.Result before the future settles.
var ErrPending = errors.New("tracker: future is still pending")

// Future is the eventual outcome of a request: the matched response or a
// rejection error. It settles exactly once.
type Future struct {
	once sync.Once
	done chan struct{}
	msg  *jsonrpc2.Message
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Rejected returns a future that is already settled with err.
func Rejected(err error) *Future {
	f := newFuture()
	f.settle(nil, err)
	return f
}

// Resolved returns a future that is already settled with msg.
func Resolved(msg *jsonrpc2.Message) *Future {
	f := newFuture()
	f.settle(msg, nil)
	return f
}

// settle returns false if the future was already settled.
func (f *Future) settle(msg *jsonrpc2.Message, err error) bool {
	settled := false
	f.once.Do(func() {
		f.msg, f.err = msg, err
		close(f.done)
		settled = true
	})
	return settled
}

// Done is closed when the future settles.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result returns the outcome without blocking, or ErrPending if the future
// has not settled yet.
func (f *Future) Result() (*jsonrpc2.Message, error) {
	select {
	case <-f.done:
		return f.msg, f.err
	default:
		return nil, ErrPending
	}
}

// Wait blocks until the future settles or ctx is done. Giving up on ctx does
// not cancel the request; it still settles by match or timeout.
func (f *Future) Wait(ctx context.Context) (*jsonrpc2.Message, error) {
	select {
	case <-f.done:
		return f.msg, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
