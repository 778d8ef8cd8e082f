package events

import (
	"errors"
	"reflect"
	"sync"
	"testing"
)

func TestBusOrder(t *testing.T) {
	bus := NewBus()
	var got []string
	bus.On(Connected, func(e Event) { got = append(got, "a:"+e.Name) })
	bus.On(Connected, func(e Event) { got = append(got, "b:"+e.Name) })
	bus.On(Disconnected, func(e Event) { got = append(got, "c:"+e.Name) })

	bus.Emit(Connected, Event{})
	if want := []string{"a:connected", "b:connected"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got: %q; want: %q", got, want)
	}
}

func TestBusDispose(t *testing.T) {
	bus := NewBus()
	var a, b int
	subA := bus.On(Message, func(Event) { a++ })
	bus.On(Message, func(Event) { b++ })

	bus.Emit(Message, Event{})
	subA.Dispose()
	subA.Dispose()
	bus.Emit(Message, Event{})

	if a != 1 || b != 2 {
		t.Errorf("got: a=%d b=%d; want: a=1 b=2", a, b)
	}
	if got, want := bus.Len(Message), 1; got != want {
		t.Errorf("got: %d; want: %d", got, want)
	}
}

func TestBusDisposeInHandler(t *testing.T) {
	bus := NewBus()
	calls := 0
	var sub *Subscription
	sub = bus.On(Error, func(Event) {
		calls++
		sub.Dispose()
	})
	bus.Emit(Error, Event{Err: errors.New("boom")})
	bus.Emit(Error, Event{Err: errors.New("boom")})
	if calls != 1 {
		t.Errorf("got: %d calls; want: 1", calls)
	}
}

func TestBusCustomName(t *testing.T) {
	bus := NewBus()
	var got Event
	bus.On("custom", func(e Event) { got = e })

	errBoom := errors.New("boom")
	bus.Emit("custom", Event{Err: errBoom})
	if got.Name != "custom" || got.Err != errBoom {
		t.Errorf("got: %+v", got)
	}

	// Emitting without subscribers is a no-op.
	bus.Emit("nobody", Event{})
}

func TestBusEmitInHandler(t *testing.T) {
	bus := NewBus()
	var got []string
	bus.On(Disconnected, func(e Event) {
		got = append(got, "disconnected:start")
		// Reconnecting from a handler emits while delivery is in progress.
		bus.Emit(Connecting, Event{})
		got = append(got, "disconnected:end")
	})
	bus.On(Connecting, func(e Event) { got = append(got, "connecting") })
	bus.On("late", func(e Event) { got = append(got, "late") })
	bus.On(Disconnected, func(e Event) {
		bus.Emit("late", Event{})
		got = append(got, "disconnected:second")
	})

	bus.Emit(Disconnected, Event{})
	want := []string{"disconnected:start", "disconnected:end", "disconnected:second", "connecting", "late"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got: %q; want: %q", got, want)
	}
}

func TestBusConcurrentEmit(t *testing.T) {
	bus := NewBus()
	var mu sync.Mutex
	count := 0
	bus.On(Message, func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Emit(Message, Event{})
			}
		}()
	}
	wg.Wait()

	// Every Emit has either been delivered or is queued for a goroutine that
	// is still draining; once all emitters returned, the last drainer has
	// finished too.
	mu.Lock()
	defer mu.Unlock()
	if count != 1000 {
		t.Errorf("got: %d deliveries; want: 1000", count)
	}
}

func TestBusCallbacks(t *testing.T) {
	bus := NewBus()
	var got []string
	subs := map[string]*Subscription{}
	for _, name := range []string{"a", "b", "c"} {
		name := name
		subs[name] = bus.On(Message, func(Event) { got = append(got, name) })
	}
	if bus.bus.HasCallback(Message) {
		t.Error("callbacks installed before the first emit")
	}

	bus.Emit(Message, Event{})
	subs["b"].Dispose()
	bus.Emit(Message, Event{})
	if want := []string{"a", "b", "c", "a", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got: %q; want: %q", got, want)
	}
	if n := bus.installed[Message]; n != 2 {
		t.Errorf("got: %d callbacks installed; want: 2", n)
	}

	subs["a"].Dispose()
	subs["c"].Dispose()
	bus.Emit(Message, Event{})
	if bus.bus.HasCallback(Message) {
		t.Error("disposed callbacks are still installed")
	}
}

func TestBusOnInHandler(t *testing.T) {
	bus := NewBus()
	var got []string
	bus.On(Connected, func(Event) {
		got = append(got, "first")
		bus.On(Connected, func(Event) { got = append(got, "added") })
	})

	// A handler added during delivery only sees later events.
	bus.Emit(Connected, Event{})
	if want := []string{"first"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got: %q; want: %q", got, want)
	}
	got = nil
	bus.Emit(Connected, Event{})
	if want := []string{"first", "added"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got: %q; want: %q", got, want)
	}
}
