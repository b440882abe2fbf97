package bus

import (
	"context"
	"sync"

	"nonocoop/pkg/event"
)

// Subscribe returns an observer stream of dispatched events. Observers never
// slow down dispatch: when the buffer is full the event is dropped for that
// observer. The channel closes on unsubscribe, ctx cancellation or Close.
func (b *Bus) Subscribe(ctx context.Context, buffer int) (<-chan event.Event, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}

	ch := make(chan event.Event, buffer)

	b.mu.Lock()
	select {
	case <-b.done:
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}

	id := b.nextEventSubscriberID
	b.nextEventSubscriberID++
	b.eventSubscribers[id] = ch
	b.mu.Unlock()

	stop := make(chan struct{})
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			close(stop)
			b.mu.Lock()
			if eventCh, ok := b.eventSubscribers[id]; ok {
				delete(b.eventSubscribers, id)
				close(eventCh)
			}
			b.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-b.done:
			unsubscribe()
		case <-stop:
		}
	}()

	return ch, unsubscribe
}
