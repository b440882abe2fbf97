package node

import (
	"context"
	"log/slog"

	"nonocoop/pkg/event"
)

const eventLogBuffer = 32

func (s *Service) observeEvents(ctx context.Context) {
	log := s.log.With("component", "bus.events")
	events, unsubscribe := s.bus.Subscribe(ctx, eventLogBuffer)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.countEvent(ev)
			logEvent(log, ev)
		}
	}
}

func (s *Service) countEvent(ev event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventCounts[ev.Category().String()]++
}

func logEvent(log *slog.Logger, ev event.Event) {
	attrs := []any{
		"kind", string(ev.Kind),
		"category", ev.Category().String(),
		"event", ev.String(),
	}

	switch ev.Category() {
	case event.CategoryFieldControl:
		log.Debug("Game event", attrs...)
	case event.CategoryStateChange, event.CategoryProgramControl:
		log.Info("Game event", attrs...)
	default:
		log.Warn("Game event", attrs...)
	}
}
