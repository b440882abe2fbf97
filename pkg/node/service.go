// Package node wires one player's coop node: the local bus, the session
// directory, the bridge and the status server.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nonocoop/pkg/bus"
	"nonocoop/pkg/config"
	"nonocoop/pkg/fabric"
	"nonocoop/pkg/relay"
	"nonocoop/pkg/session"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const (
	defaultHealthInterval = 15 * time.Second
	withdrawTimeout       = 5 * time.Second
)

// ErrAlreadyInSession is returned by Host and Join when the node already
// hosts or joined a session.
var ErrAlreadyInSession = errors.New("already in a session")

type Service struct {
	cfg      *config.Config
	log      *slog.Logger
	fabric   fabric.Fabric
	sessions *session.Service
	bus      *bus.Bus
	bridge   *relay.Bridge
	registry *prometheus.Registry

	healthInterval time.Duration

	mu             sync.RWMutex
	startedAt      time.Time
	fabricLastOKAt time.Time
	fabricLastErr  string
	current        session.Descriptor
	eventCounts    map[string]int64

	shutdownOnce sync.Once
	shutdownErr  error
	closeOnce    sync.Once
	closeErr     error
}

// NewService builds a node on top of fab. The node owns fab and closes it in
// Close.
func NewService(cfg *config.Config, fab fabric.Fabric, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if fab == nil {
		return nil, errors.New("fabric is required")
	}
	if log == nil {
		log = slog.Default()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := relay.NewMetrics(registry)

	transport, err := relay.NewTransport(fab, log, metrics)
	if err != nil {
		return nil, fmt.Errorf("initialize transport: %w", err)
	}

	bridge, err := relay.NewBridge(transport, log, relay.Options{
		OutboxSize:   cfg.Relay.OutboxSize,
		FlushTimeout: cfg.Relay.FlushTimeout(),
		Metrics:      metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize bridge: %w", err)
	}

	sessions, err := session.NewService(fab, fab.LocalID(), log)
	if err != nil {
		return nil, fmt.Errorf("initialize sessions: %w", err)
	}

	return &Service{
		cfg:            cfg,
		log:            log.With("component", "node.service"),
		fabric:         fab,
		sessions:       sessions,
		bus:            bus.New(),
		bridge:         bridge,
		registry:       registry,
		healthInterval: defaultHealthInterval,
		eventCounts:    make(map[string]int64),
	}, nil
}

// Bus returns the local event bus the game emits on.
func (s *Service) Bus() *bus.Bus { return s.bus }

func (s *Service) Sessions() *session.Service { return s.sessions }

func (s *Service) Bridge() *relay.Bridge { return s.bridge }

// Session returns the hosted or joined session, or the zero descriptor.
func (s *Service) Session() session.Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Host announces a session for puzzleHash and attaches the bridge to it.
func (s *Service) Host(ctx context.Context, puzzleHash string) (session.Descriptor, error) {
	if current := s.Session(); !current.IsZero() {
		return session.Descriptor{}, fmt.Errorf("host: %w: %s", ErrAlreadyInSession, current.SessionID())
	}

	desc, err := s.sessions.Announce(ctx, puzzleHash)
	if err != nil {
		return session.Descriptor{}, err
	}

	if err := s.attach(desc); err != nil {
		withdrawCtx, cancel := context.WithTimeout(context.Background(), withdrawTimeout)
		defer cancel()
		return session.Descriptor{}, multierr.Append(err, s.sessions.Withdraw(withdrawCtx, desc))
	}
	return desc, nil
}

// Join resolves sessionID and attaches the bridge to it as a joiner.
func (s *Service) Join(ctx context.Context, sessionID string) (session.Descriptor, error) {
	if current := s.Session(); !current.IsZero() {
		return session.Descriptor{}, fmt.Errorf("join: %w: %s", ErrAlreadyInSession, current.SessionID())
	}

	desc, err := s.sessions.Join(ctx, sessionID)
	if err != nil {
		return session.Descriptor{}, err
	}

	if err := s.attach(desc); err != nil {
		return session.Descriptor{}, err
	}
	return desc, nil
}

func (s *Service) attach(desc session.Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current.IsZero() {
		return fmt.Errorf("attach to session: %w: %s", ErrAlreadyInSession, s.current.SessionID())
	}

	if err := s.bridge.Attach(s.bus, desc); err != nil {
		return fmt.Errorf("attach to session: %w", err)
	}
	if attached := s.bridge.Descriptor(); attached.SessionID() != desc.SessionID() {
		return fmt.Errorf("attach to session: %w: %s", ErrAlreadyInSession, attached.SessionID())
	}

	s.current = desc
	return nil
}

// Run dispatches local events and serves status until ctx is done, then
// leaves the session.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	if err := s.checkFabricHealth(ctx); err != nil {
		s.log.Warn("Fabric unreachable, playing solo until it recovers", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.bus.Run(gctx)
	})
	g.Go(func() error {
		s.observeEvents(gctx)
		return nil
	})
	g.Go(func() error {
		s.monitorFabric(gctx)
		return nil
	})
	if s.cfg.Node.Port > 0 {
		g.Go(func() error {
			return s.runStatusServer(gctx)
		})
	}

	err := g.Wait()
	return multierr.Append(err, s.shutdown())
}

func (s *Service) monitorFabric(ctx context.Context) {
	ticker := time.NewTicker(s.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.checkFabricHealth(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("Fabric health check failed", "error", err)
			}
		}
	}
}

func (s *Service) checkFabricHealth(ctx context.Context) error {
	if err := s.fabric.Ping(ctx); err != nil {
		s.mu.Lock()
		s.fabricLastErr = err.Error()
		s.mu.Unlock()
		return fmt.Errorf("fabric health check failed: %w", err)
	}

	s.mu.Lock()
	s.fabricLastErr = ""
	s.fabricLastOKAt = time.Now().UTC()
	s.mu.Unlock()

	return nil
}

// shutdown closes the bridge and withdraws a hosted session. It runs once.
func (s *Service) shutdown() error {
	s.shutdownOnce.Do(func() {
		s.bridge.Close()

		desc := s.Session()
		if desc.Role() != session.RoleInitiating {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), withdrawTimeout)
		defer cancel()
		if err := s.sessions.Withdraw(ctx, desc); err != nil {
			s.shutdownErr = fmt.Errorf("withdraw session: %w", err)
		}
	})
	return s.shutdownErr
}

// Close leaves the session and releases the bus and the fabric.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		err := s.shutdown()
		s.bus.Close()
		s.closeErr = multierr.Append(err, s.fabric.Close())
	})
	return s.closeErr
}
