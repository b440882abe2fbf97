package bus

import "nonocoop/pkg/event"

// Listener receives events on the dispatch goroutine.
type Listener func(event.Event)

// ListenerID identifies a registered listener for removal.
type ListenerID uint64

type listenerEntry struct {
	id       ListenerID
	listener Listener
}

// queued is one dispatch item: either an event or a sync barrier.
type queued struct {
	event   event.Event
	barrier chan struct{}
}
