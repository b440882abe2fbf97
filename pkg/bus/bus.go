// Package bus is the local game event bus. All listener invocations happen on
// the single goroutine running Run; Emit only enqueues and is safe from any
// goroutine.
package bus

import (
	"context"
	"errors"
	"sync"

	"nonocoop/pkg/event"
)

const defaultBufferSize = 100

// ErrClosed is returned by Run and Sync once the bus has been closed.
var ErrClosed = errors.New("bus closed")

type Bus struct {
	wake chan struct{}

	queueMu sync.Mutex
	queue   []queued

	listeners      []listenerEntry
	nextListenerID ListenerID

	eventSubscribers      map[uint64]chan event.Event
	nextEventSubscriberID uint64

	done      chan struct{}
	closeOnce sync.Once

	mu sync.RWMutex
}

func New() *Bus {
	return &Bus{
		wake:             make(chan struct{}, 1),
		eventSubscribers: make(map[uint64]chan event.Event),
		done:             make(chan struct{}),
	}
}

// AddListener registers l and returns an id for RemoveListener.
func (b *Bus) AddListener(l Listener) ListenerID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextListenerID++
	id := b.nextListenerID
	b.listeners = append(b.listeners, listenerEntry{id: id, listener: l})
	return id
}

// RemoveListener unregisters id. Unknown ids are ignored.
func (b *Bus) RemoveListener(id ListenerID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, entry := range b.listeners {
		if entry.id == id {
			b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
			return
		}
	}
}

// ListenerCount returns the number of registered listeners.
func (b *Bus) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Emit queues ev for dispatch. It never blocks and returns false once the bus
// is closed.
func (b *Bus) Emit(ev event.Event) bool {
	return b.enqueue(queued{event: ev})
}

// Sync blocks until everything emitted before the call has been dispatched.
// Calling it from a listener deadlocks.
func (b *Bus) Sync(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	barrier := make(chan struct{})
	if !b.enqueue(queued{barrier: barrier}) {
		return ErrClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return ErrClosed
	case <-barrier:
		return nil
	}
}

func (b *Bus) enqueue(item queued) bool {
	select {
	case <-b.done:
		return false
	default:
	}

	b.queueMu.Lock()
	b.queue = append(b.queue, item)
	b.queueMu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
	return true
}

func (b *Bus) dequeue() (queued, bool) {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()

	if len(b.queue) == 0 {
		return queued{}, false
	}

	item := b.queue[0]
	b.queue[0] = queued{}
	b.queue = b.queue[1:]
	return item, true
}

// Run dispatches queued events until ctx is done or the bus is closed. Only
// one Run may be active at a time.
func (b *Bus) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.done:
			return nil
		case <-b.wake:
		}

		for {
			item, ok := b.dequeue()
			if !ok {
				break
			}
			if item.barrier != nil {
				close(item.barrier)
				continue
			}
			b.dispatch(item.event)

			select {
			case <-b.done:
				return nil
			default:
			}
		}
	}
}

func (b *Bus) dispatch(ev event.Event) {
	b.mu.RLock()
	listeners := make([]Listener, 0, len(b.listeners))
	for _, entry := range b.listeners {
		listeners = append(listeners, entry.listener)
	}
	b.mu.RUnlock()

	for _, listener := range listeners {
		listener(ev)
	}

	// Observer channels are only closed under the write lock, so sending while
	// holding the read lock cannot hit a closed channel.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.eventSubscribers {
		select {
		case ch <- ev:
		default:
			// Drop instead of blocking dispatch on slow observers.
		}
	}
}

func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		close(b.done)

		b.mu.Lock()
		for id, ch := range b.eventSubscribers {
			close(ch)
			delete(b.eventSubscribers, id)
		}
		b.mu.Unlock()

		b.queueMu.Lock()
		b.queue = nil
		b.queueMu.Unlock()
	})
}
