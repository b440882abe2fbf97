package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nonocoop/pkg/bus"
	"nonocoop/pkg/event"
	"nonocoop/pkg/session"
)

const (
	DefaultOutboxSize     = 256
	DefaultFlushTimeout   = 2 * time.Second
	defaultPublishTimeout = 5 * time.Second
)

// State is the bridge lifecycle state.
type State int

const (
	StateUnbound State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// LocalBus is the part of the local event bus the bridge needs.
type LocalBus interface {
	AddListener(l bus.Listener) bus.ListenerID
	RemoveListener(id bus.ListenerID)
	Emit(ev event.Event) bool
}

// Remote is the session-scoped transport the bridge publishes to and
// receives from. *Transport implements it.
type Remote interface {
	LocalID() string
	Publish(ctx context.Context, sessionID string, role session.Role, ev event.Event) error
	Subscribe(sessionID string, onMessage func(Envelope)) error
	Unsubscribe(sessionID string) error
}

type Options struct {
	// OutboxSize bounds events waiting to be published. Zero means default.
	OutboxSize int
	// FlushTimeout bounds how long Close spends publishing queued events.
	FlushTimeout time.Duration
	Metrics      *Metrics
}

// attachment is one Attach..Close period. Callbacks captured during an
// attachment compare it against the bridge's current one, so a callback from
// an earlier period can never act on a later one.
type attachment struct {
	desc       session.Descriptor
	bus        LocalBus
	listener   bus.ListenerID
	outbox     chan event.Event
	stop       chan struct{}
	senderDone chan struct{}

	seqMu   sync.Mutex
	lastSeq map[string]uint64
}

// observeSeq records seq from sender and reports whether it advanced.
func (a *attachment) observeSeq(sender string, seq uint64) bool {
	a.seqMu.Lock()
	defer a.seqMu.Unlock()

	last, seen := a.lastSeq[sender]
	if seen && seq <= last {
		return false
	}
	a.lastSeq[sender] = seq
	return true
}

// Bridge relays events between one local bus and one coop session.
type Bridge struct {
	remote       Remote
	log          *slog.Logger
	metrics      *Metrics
	outboxSize   int
	flushTimeout time.Duration

	lifecycle sync.Mutex // serializes Attach and Close

	mu    sync.RWMutex
	state State
	att   *attachment
}

func NewBridge(remote Remote, log *slog.Logger, opts Options) (*Bridge, error) {
	if remote == nil {
		return nil, errors.New("remote transport is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = DefaultOutboxSize
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = DefaultFlushTimeout
	}

	return &Bridge{
		remote:       remote,
		log:          log.With("component", "relay.bridge"),
		metrics:      opts.Metrics,
		outboxSize:   opts.OutboxSize,
		flushTimeout: opts.FlushTimeout,
	}, nil
}

func (b *Bridge) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Descriptor returns the session of the current attachment, or the zero
// descriptor when not attached.
func (b *Bridge) Descriptor() session.Descriptor {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.att == nil {
		return session.Descriptor{}
	}
	return b.att.desc
}

// Attach starts relaying between localBus and the session in desc. Attaching
// an already active bridge is a no-op. A closed bridge may be attached again.
func (b *Bridge) Attach(localBus LocalBus, desc session.Descriptor) error {
	if localBus == nil {
		return errors.New("local bus is required")
	}
	if !desc.Role().Valid() || desc.SessionID() == "" {
		return fmt.Errorf("invalid session descriptor %q", desc.String())
	}

	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()

	b.mu.RLock()
	current := b.state
	b.mu.RUnlock()
	if current == StateActive {
		b.log.Debug("Bridge already attached", "session_id", b.Descriptor().SessionID())
		return nil
	}

	att := &attachment{
		desc:       desc,
		bus:        localBus,
		outbox:     make(chan event.Event, b.outboxSize),
		stop:       make(chan struct{}),
		senderDone: make(chan struct{}),
		lastSeq:    make(map[string]uint64),
	}

	b.mu.Lock()
	b.att = att
	b.state = StateActive
	b.mu.Unlock()

	go b.runSender(att)

	// The local listener goes in only after the subscription exists, so a
	// failed attach never has queued events to flush.
	if err := b.remote.Subscribe(desc.SessionID(), func(env Envelope) {
		b.handleRemote(att, env)
	}); err != nil {
		b.mu.Lock()
		b.att = nil
		b.state = current
		b.mu.Unlock()

		close(att.stop)
		<-att.senderDone
		return fmt.Errorf("subscribe to session %s: %w", desc.SessionID(), err)
	}

	att.listener = localBus.AddListener(func(ev event.Event) {
		b.handleLocal(att, ev)
	})

	b.metrics.bridgeActive(1)
	b.log.Info("Bridge attached",
		"session_id", desc.SessionID(),
		"role", desc.Role().String(),
		"local_id", b.remote.LocalID(),
	)
	return nil
}

// Close stops relaying. Events already queued for publishing get up to the
// flush timeout to go out. Closing an unattached or closed bridge is a no-op.
func (b *Bridge) Close() {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()

	b.mu.Lock()
	if b.state != StateActive {
		b.mu.Unlock()
		return
	}
	att := b.att
	b.att = nil
	b.state = StateClosed
	b.mu.Unlock()

	att.bus.RemoveListener(att.listener)
	if err := b.remote.Unsubscribe(att.desc.SessionID()); err != nil {
		b.log.Warn("Failed to unsubscribe from session", "session_id", att.desc.SessionID(), "error", err)
	}
	close(att.stop)
	<-att.senderDone

	b.metrics.bridgeActive(-1)
	b.log.Info("Bridge closed", "session_id", att.desc.SessionID())
}

func (b *Bridge) isCurrent(att *attachment) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.att == att && b.state == StateActive
}

// handleLocal runs on the bus dispatch goroutine.
func (b *Bridge) handleLocal(att *attachment, ev event.Event) {
	if !b.isCurrent(att) {
		return
	}

	switch LocalAction(att.desc.Role(), ev.Kind) {
	case ActionForward:
		if err := ev.Validate(); err != nil {
			b.log.Warn("Not forwarding invalid local event", "kind", ev.Kind, "error", err)
			b.metrics.dropped(dropMalformed)
			return
		}
		select {
		case att.outbox <- ev:
		default:
			b.log.Warn("Outbox full, dropping event", "session_id", att.desc.SessionID(), "kind", ev.Kind)
			b.metrics.dropped(dropOutboxFull)
		}
	case ActionClose:
		b.log.Info("Program quitting, closing bridge", "session_id", att.desc.SessionID())
		b.Close()
	case ActionReject:
		b.log.Warn("Ignoring event of unknown kind", "kind", ev.Kind)
	case ActionIgnore:
	}
}

// handleRemote runs on the fabric delivery goroutine.
func (b *Bridge) handleRemote(att *attachment, env Envelope) {
	if !b.isCurrent(att) {
		b.metrics.dropped(dropInactive)
		return
	}
	if env.From == b.remote.LocalID() {
		b.metrics.dropped(dropEcho)
		return
	}
	if env.Session != att.desc.SessionID() {
		b.log.Warn("Dropping message for another session", "session_id", att.desc.SessionID(), "message_session", env.Session)
		b.metrics.dropped(dropForeignSession)
		return
	}
	if !env.Role.Valid() {
		b.log.Warn("Dropping message without sender role", "from", env.From)
		b.metrics.dropped(dropMalformed)
		return
	}
	if err := env.Event.Validate(); err != nil {
		b.log.Warn("Dropping malformed remote event", "from", env.From, "kind", env.Event.Kind, "error", err)
		b.metrics.dropped(dropMalformed)
		return
	}

	role := att.desc.Role()
	if !Applies(role, env.Role, env.Event.Kind) {
		b.log.Debug("Remote event not applicable", "role", role.String(), "sender_role", env.Role.String(), "kind", env.Event.Kind)
		b.metrics.dropped(dropNotApplicable)
		return
	}

	if !att.observeSeq(env.From, env.Seq) {
		b.log.Warn("Remote message out of order", "from", env.From, "seq", env.Seq, "kind", env.Event.Kind)
		b.metrics.outOfOrder()
	}

	// Holding the read lock across Emit keeps Close from completing between
	// the state check and the emit. Emit never blocks.
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.att != att || b.state != StateActive {
		b.metrics.dropped(dropInactive)
		return
	}
	if !att.bus.Emit(env.Event) {
		b.metrics.dropped(dropBusClosed)
		return
	}
	b.metrics.applied(env.Event.Kind)
}

func (b *Bridge) runSender(att *attachment) {
	defer close(att.senderDone)

	for {
		select {
		case ev := <-att.outbox:
			ctx, cancel := context.WithTimeout(context.Background(), defaultPublishTimeout)
			b.publish(ctx, att, ev)
			cancel()
		case <-att.stop:
			b.flush(att)
			return
		}
	}
}

func (b *Bridge) flush(att *attachment) {
	ctx, cancel := context.WithTimeout(context.Background(), b.flushTimeout)
	defer cancel()

	for {
		select {
		case ev := <-att.outbox:
			if ctx.Err() != nil {
				b.log.Warn("Flush timed out, dropping event", "session_id", att.desc.SessionID(), "kind", ev.Kind)
				b.metrics.dropped(dropInactive)
				continue
			}
			b.publish(ctx, att, ev)
		default:
			return
		}
	}
}

func (b *Bridge) publish(ctx context.Context, att *attachment, ev event.Event) {
	if err := b.remote.Publish(ctx, att.desc.SessionID(), att.desc.Role(), ev); err != nil {
		b.log.Warn("Failed to publish event", "session_id", att.desc.SessionID(), "kind", ev.Kind, "error", err)
		b.metrics.publishFailed()
		return
	}
	b.metrics.forwarded(ev.Kind)
}
