package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/vipnode/rpcclient/jsonrpc2"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Add(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// manualTracker never sweeps on its own: the check interval is an hour.
func manualTracker(timeout time.Duration) (*Tracker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	t := New(timeout, time.Hour)
	t.now = clock.Now
	return t, clock
}

func request(id int) *jsonrpc2.Message {
	raw, _ := json.Marshal(id)
	return &jsonrpc2.Message{ID: raw, Version: jsonrpc2.Version, Method: "ping"}
}

func response(id int) *jsonrpc2.Message {
	raw, _ := json.Marshal(id)
	return &jsonrpc2.Message{ID: raw, Version: jsonrpc2.Version, Result: json.RawMessage(`"pong"`)}
}

func byID(req *jsonrpc2.Message) Predicate {
	return func(candidate *jsonrpc2.Message) bool {
		return jsonrpc2.MatchID(req, candidate)
	}
}

func acceptAll(*jsonrpc2.Message) bool { return true }

func TestMatchResolves(t *testing.T) {
	tr, _ := manualTracker(time.Second)
	defer tr.Close()

	req := request(1)
	f := tr.Register(Registration{Message: req, Filter: byID(req)})
	if _, err := f.Result(); err != ErrPending {
		t.Fatalf("got: %v; want: %v", err, ErrPending)
	}

	resp := response(1)
	if got := tr.Match(resp, nil); got != Matched {
		t.Fatalf("got: %s; want: %s", got, Matched)
	}
	msg, err := f.Result()
	if err != nil {
		t.Fatal(err)
	}
	if msg != resp {
		t.Errorf("got: %s; want: %s", msg, resp)
	}
	if got := tr.Len(); got != 0 {
		t.Errorf("got: %d pending; want: 0", got)
	}

	// A duplicate response finds nothing.
	if got := tr.Match(resp, nil); got != Unmatched {
		t.Errorf("got: %s; want: %s", got, Unmatched)
	}
}

func TestMatchOldestFirst(t *testing.T) {
	tr, _ := manualTracker(time.Second)
	defer tr.Close()

	f1 := tr.Register(Registration{Message: request(1), Filter: acceptAll})
	f2 := tr.Register(Registration{Message: request(2), Filter: acceptAll})

	m := response(9)
	if got := tr.Match(m, nil); got != Matched {
		t.Fatalf("got: %s; want: %s", got, Matched)
	}
	if msg, err := f1.Result(); err != nil || msg != m {
		t.Errorf("first request: got: %v, %v; want: %s", msg, err, m)
	}
	if _, err := f2.Result(); err != ErrPending {
		t.Errorf("second request: got: %v; want: %v", err, ErrPending)
	}
	if got := tr.Len(); got != 1 {
		t.Errorf("got: %d pending; want: 1", got)
	}
}

func TestMatchUnmatched(t *testing.T) {
	tr, _ := manualTracker(time.Second)
	defer tr.Close()

	req := request(1)
	f := tr.Register(Registration{Message: req, Filter: byID(req)})
	called := false
	if got := tr.Match(response(2), func() { called = true }); got != Unmatched {
		t.Errorf("got: %s; want: %s", got, Unmatched)
	}
	if called {
		t.Error("callback ran for an unmatched message")
	}
	if _, err := f.Result(); err != ErrPending {
		t.Errorf("got: %v; want: %v", err, ErrPending)
	}
	if got := tr.Len(); got != 1 {
		t.Errorf("got: %d pending; want: 1", got)
	}
}

func TestMatchCallbackOrder(t *testing.T) {
	tr, _ := manualTracker(time.Second)
	defer tr.Close()

	for _, enable := range []bool{true, false} {
		req := request(1)
		f := tr.Register(Registration{Message: req, Filter: byID(req), Params: Params{EnableCallbacks: enable}})

		var settledDuringCallback bool
		tr.Match(response(1), func() {
			select {
			case <-f.Done():
				settledDuringCallback = true
			default:
			}
		})

		// With callbacks enabled the future must not settle until the
		// callback returned; without, it is already settled.
		if want := !enable; settledDuringCallback != want {
			t.Errorf("EnableCallbacks=%v: settled during callback: %v; want: %v", enable, settledDuringCallback, want)
		}
		if _, err := f.Result(); err != nil {
			t.Errorf("EnableCallbacks=%v: %s", enable, err)
		}
	}
}

func TestSweepExpires(t *testing.T) {
	tr, clock := manualTracker(5 * time.Second)
	defer tr.Close()

	req1, req2 := request(1), request(2)
	f1 := tr.Register(Registration{Message: req1, Filter: byID(req1)})
	clock.Add(2 * time.Second)
	f2 := tr.Register(Registration{Message: req2, Filter: byID(req2)})

	clock.Add(2 * time.Second)
	if got := tr.Sweep(); got != 0 {
		t.Errorf("got: %d expired; want: 0", got)
	}

	clock.Add(time.Second)
	if got := tr.Sweep(); got != 1 {
		t.Errorf("got: %d expired; want: 1", got)
	}
	_, err := f1.Result()
	if !errors.Is(err, jsonrpc2.ErrTimeoutExceeded) {
		t.Fatalf("got: %v; want: %v", err, jsonrpc2.ErrTimeoutExceeded)
	}
	if data := jsonrpc2.StatusOf(err).Data(); data != req1 {
		t.Errorf("timeout data: got: %v; want: %s", data, req1)
	}
	if _, err := f2.Result(); err != ErrPending {
		t.Errorf("got: %v; want: %v", err, ErrPending)
	}

	// A late response for the expired request is not matched.
	if got := tr.Match(response(1), nil); got != Unmatched {
		t.Errorf("got: %s; want: %s", got, Unmatched)
	}
}

func TestSweepCustomRejection(t *testing.T) {
	tr, clock := manualTracker(time.Second)
	defer tr.Close()

	errCustom := errors.New("custom timeout")
	f := tr.Register(Registration{Message: request(1), Filter: acceptAll, TimeoutRejectWith: errCustom})
	clock.Add(time.Second)
	tr.Sweep()
	if _, err := f.Result(); err != errCustom {
		t.Errorf("got: %v; want: %v", err, errCustom)
	}
}

func TestSweeper(t *testing.T) {
	tr := New(20*time.Millisecond, 5*time.Millisecond)
	defer tr.Close()

	req := request(1)
	f := tr.Register(Registration{Message: req, Filter: byID(req)})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := f.Wait(ctx); !errors.Is(err, jsonrpc2.ErrTimeoutExceeded) {
		t.Fatalf("got: %v; want: %v", err, jsonrpc2.ErrTimeoutExceeded)
	}

	// The sweeper goroutine exits once nothing is pending.
	deadline := time.Now().Add(time.Second)
	for {
		tr.mu.Lock()
		sweeping := tr.sweeping
		tr.mu.Unlock()
		if !sweeping {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("sweeper still running with nothing pending")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// And comes back for new requests.
	f = tr.Register(Registration{Message: req, Filter: byID(req)})
	if _, err := f.Wait(ctx); !errors.Is(err, jsonrpc2.ErrTimeoutExceeded) {
		t.Errorf("got: %v; want: %v", err, jsonrpc2.ErrTimeoutExceeded)
	}
}

func TestSettleOnce(t *testing.T) {
	tr, clock := manualTracker(time.Second)
	defer tr.Close()

	req := request(1)
	f := tr.Register(Registration{Message: req, Filter: byID(req)})
	clock.Add(time.Second)

	var wg sync.WaitGroup
	results := make(chan Result, 1)
	expired := make(chan int, 1)
	wg.Add(2)
	go func() {
		defer wg.Done()
		results <- tr.Match(response(1), nil)
	}()
	go func() {
		defer wg.Done()
		expired <- tr.Sweep()
	}()
	wg.Wait()

	matched := <-results == Matched
	swept := <-expired == 1
	if matched == swept {
		t.Fatalf("matched: %v, swept: %v; want exactly one", matched, swept)
	}
	msg, err := f.Result()
	if matched && (err != nil || msg == nil) {
		t.Errorf("matched but got: %v, %v", msg, err)
	}
	if swept && !errors.Is(err, jsonrpc2.ErrTimeoutExceeded) {
		t.Errorf("swept but got: %v", err)
	}
}

func TestRegisterNilFilter(t *testing.T) {
	tr, _ := manualTracker(time.Second)
	defer tr.Close()
	defer func() {
		if recover() == nil {
			t.Error("expected panic for nil filter")
		}
	}()
	tr.Register(Registration{Message: request(1)})
}

func TestReject(t *testing.T) {
	tr, _ := manualTracker(time.Second)
	defer tr.Close()

	f := tr.Register(Registration{Message: request(1), Filter: acceptAll})
	errSend := errors.New("send failed")
	if !tr.Reject(f, errSend) {
		t.Fatal("reject returned false")
	}
	if tr.Reject(f, errSend) {
		t.Error("second reject returned true")
	}
	if _, err := f.Result(); err != errSend {
		t.Errorf("got: %v; want: %v", err, errSend)
	}
}

func TestRejectAll(t *testing.T) {
	tr, _ := manualTracker(time.Second)
	defer tr.Close()

	var futures []*Future
	var reqs []*jsonrpc2.Message
	for i := 1; i <= 3; i++ {
		req := request(i)
		reqs = append(reqs, req)
		futures = append(futures, tr.Register(Registration{Message: req, Filter: byID(req)}))
	}

	n := tr.RejectAll(func(req *jsonrpc2.Message) error {
		return jsonrpc2.ErrConnectionLost.WithData(req)
	})
	if n != 3 {
		t.Errorf("got: %d rejected; want: 3", n)
	}

	var got []*jsonrpc2.Message
	for _, f := range futures {
		_, err := f.Result()
		if !errors.Is(err, jsonrpc2.ErrConnectionLost) {
			t.Errorf("got: %v; want: %v", err, jsonrpc2.ErrConnectionLost)
			continue
		}
		got = append(got, jsonrpc2.StatusOf(err).Data().(*jsonrpc2.Message))
	}
	if !reflect.DeepEqual(got, reqs) {
		t.Errorf("got: %v; want: %v", got, reqs)
	}
	if tr.Len() != 0 {
		t.Errorf("got: %d pending; want: 0", tr.Len())
	}
}

func TestClose(t *testing.T) {
	tr := New(time.Minute, time.Millisecond)
	pending := tr.Register(Registration{Message: request(1), Filter: acceptAll})
	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := pending.Result(); err != ErrClosed {
		t.Errorf("got: %v; want: %v", err, ErrClosed)
	}
	late := tr.Register(Registration{Message: request(2), Filter: acceptAll})
	if _, err := late.Result(); err != ErrClosed {
		t.Errorf("got: %v; want: %v", err, ErrClosed)
	}
}

func TestFutureWaitContext(t *testing.T) {
	f := newFuture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Wait(ctx); err != context.Canceled {
		t.Errorf("got: %v; want: %v", err, context.Canceled)
	}

	msg := response(1)
	if got, err := Resolved(msg).Wait(context.Background()); err != nil || got != msg {
		t.Errorf("got: %v, %v; want: %s", got, err, msg)
	}
}
