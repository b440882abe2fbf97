package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"nonocoop/pkg/event"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// startBus runs the dispatch loop until the test ends.
func startBus(t *testing.T) *Bus {
	t.Helper()

	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
		b.Close()
	})
	return b
}

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) listen(ev event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Event, len(r.events))
	copy(out, r.events)
	return out
}

func syncBus(t *testing.T, b *Bus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := b.Sync(ctx); err != nil {
		t.Fatalf("Sync error: %v", err)
	}
}

func TestEmitDispatchesInOrder(t *testing.T) {
	b := startBus(t)

	rec := &recorder{}
	b.AddListener(rec.listen)

	for i := 0; i < 5; i++ {
		if ok := b.Emit(event.OccupyField(i, i)); !ok {
			t.Fatal("expected emit to succeed")
		}
	}
	syncBus(t, b)

	got := rec.snapshot()
	if len(got) != 5 {
		t.Fatalf("dispatched %d events, want 5", len(got))
	}
	for i, ev := range got {
		if ev != event.OccupyField(i, i) {
			t.Fatalf("event %d = %v, want %v", i, ev, event.OccupyField(i, i))
		}
	}
}

func TestListenersRunInRegistrationOrder(t *testing.T) {
	b := startBus(t)

	var mu sync.Mutex
	var order []string
	b.AddListener(func(event.Event) { mu.Lock(); order = append(order, "first"); mu.Unlock() })
	b.AddListener(func(event.Event) { mu.Lock(); order = append(order, "second"); mu.Unlock() })

	b.Emit(event.QuitProgram())
	syncBus(t, b)

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("order = %v, want [first second]", order)
	}
}

func TestRemoveListenerStopsDelivery(t *testing.T) {
	b := startBus(t)

	rec := &recorder{}
	id := b.AddListener(rec.listen)
	b.RemoveListener(id)
	b.RemoveListener(id)

	b.Emit(event.SetFailCount(1))
	syncBus(t, b)

	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("removed listener received %d events", len(got))
	}
	if got := b.ListenerCount(); got != 0 {
		t.Fatalf("ListenerCount = %d, want 0", got)
	}
}

func TestListenerMayRemoveItselfDuringDispatch(t *testing.T) {
	b := startBus(t)

	rec := &recorder{}
	var id ListenerID
	id = b.AddListener(func(ev event.Event) {
		rec.listen(ev)
		b.RemoveListener(id)
	})

	b.Emit(event.OccupyField(1, 1))
	b.Emit(event.OccupyField(2, 2))
	syncBus(t, b)

	if got := rec.snapshot(); len(got) != 1 {
		t.Fatalf("listener received %d events, want 1", len(got))
	}
}

func TestEmitFromListenerDoesNotDeadlock(t *testing.T) {
	b := startBus(t)

	rec := &recorder{}
	b.AddListener(func(ev event.Event) {
		rec.listen(ev)
		if ev.Kind == event.KindOccupyField {
			b.Emit(event.FieldOccupied(ev.Column, ev.Row))
		}
	})

	b.Emit(event.OccupyField(3, 4))
	syncBus(t, b)
	syncBus(t, b)

	got := rec.snapshot()
	if len(got) != 2 || got[1] != event.FieldOccupied(3, 4) {
		t.Fatalf("events = %v, want occupy then field-occupied", got)
	}
}

func TestCloseStopsBusOperations(t *testing.T) {
	b := New()
	b.Close()
	b.Close()

	if ok := b.Emit(event.QuitProgram()); ok {
		t.Fatal("expected emit to fail after close")
	}
	if err := b.Sync(context.Background()); err != ErrClosed {
		t.Fatalf("Sync error = %v, want %v", err, ErrClosed)
	}
	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run error = %v, want nil", err)
	}
}

func TestRunUnblocksOnClose(t *testing.T) {
	b := New()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Run(context.Background())
	}()

	b.Close()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("run did not return after close")
	}
}

func TestSyncHonorsContext(t *testing.T) {
	b := New()
	t.Cleanup(b.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := b.Sync(ctx); err == nil {
		t.Fatal("expected sync to fail without a running dispatcher")
	}
}

func TestEventFanout(t *testing.T) {
	b := startBus(t)

	ctx := context.Background()
	eventsA, unsubA := b.Subscribe(ctx, 1)
	defer unsubA()
	eventsB, unsubB := b.Subscribe(ctx, 1)
	defer unsubB()

	b.Emit(event.FieldMarked(1, 2))

	for name, ch := range map[string]<-chan event.Event{"A": eventsA, "B": eventsB} {
		select {
		case got := <-ch:
			if got != event.FieldMarked(1, 2) {
				t.Fatalf("subscriber %s got %v", name, got)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("subscriber %s did not receive event", name)
		}
	}
}

func TestSlowSubscriberDoesNotBlockDispatch(t *testing.T) {
	b := startBus(t)

	events, unsubscribe := b.Subscribe(context.Background(), 1)
	defer unsubscribe()

	for i := 0; i < 10; i++ {
		b.Emit(event.TimerElapsed(time.Duration(i) * time.Second))
	}

	start := time.Now()
	syncBus(t, b)
	if time.Since(start) > 200*time.Millisecond {
		t.Fatal("dispatch blocked on slow subscriber")
	}

	select {
	case <-events:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected at least one event")
	}
}

func TestUnsubscribeStopsEvents(t *testing.T) {
	b := startBus(t)

	events, unsubscribe := b.Subscribe(context.Background(), 1)
	unsubscribe()
	unsubscribe()

	b.Emit(event.QuitProgram())
	syncBus(t, b)

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected closed event channel")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected event channel close after unsubscribe")
	}
}

func TestSubscribeUnblocksOnClose(t *testing.T) {
	b := New()

	events, _ := b.Subscribe(context.Background(), 1)
	b.Close()

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected event channel to be closed")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("event subscription did not unblock after close")
	}
}
