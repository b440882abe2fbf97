package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"nonocoop/pkg/event"
	"nonocoop/pkg/fabric"
	"nonocoop/pkg/session"
)

// Envelope is the wire form of one relayed event.
type Envelope struct {
	Session string       `json:"session"`
	From    string       `json:"from"`
	Role    session.Role `json:"role"`
	Seq     uint64       `json:"seq"`
	Event   event.Event  `json:"event"`
}

// DecodeEnvelope parses one payload. Semantic checks on the event are left to
// the bridge.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fabric.Malformed("envelope", err)
	}
	if env.Session == "" || env.From == "" {
		return Envelope{}, fabric.Malformed("envelope missing session or sender", nil)
	}
	return env, nil
}

// Transport adapts a fabric channel to event envelopes keyed by session id.
type Transport struct {
	channel fabric.Channel
	log     *slog.Logger
	metrics *Metrics

	mu  sync.Mutex
	seq map[string]uint64
}

func NewTransport(channel fabric.Channel, log *slog.Logger, metrics *Metrics) (*Transport, error) {
	if channel == nil {
		return nil, errors.New("fabric channel is required")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Transport{
		channel: channel,
		log:     log.With("component", "relay.transport"),
		metrics: metrics,
		seq:     make(map[string]uint64),
	}, nil
}

func (t *Transport) LocalID() string {
	return t.channel.LocalID()
}

func (t *Transport) nextSeq(sessionID string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq[sessionID]++
	return t.seq[sessionID]
}

// Publish sends ev to every member subscribed to sessionID.
func (t *Transport) Publish(ctx context.Context, sessionID string, role session.Role, ev event.Event) error {
	env := Envelope{
		Session: sessionID,
		From:    t.channel.LocalID(),
		Role:    role,
		Seq:     t.nextSeq(sessionID),
		Event:   ev,
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	if err := t.channel.Publish(ctx, fabric.SessionTopic(sessionID), data); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Kind, err)
	}
	return nil
}

// Subscribe calls onMessage for every decodable envelope on sessionID, in
// fabric delivery order.
func (t *Transport) Subscribe(sessionID string, onMessage func(Envelope)) error {
	if onMessage == nil {
		return errors.New("message callback is required")
	}

	return t.channel.Subscribe(fabric.SessionTopic(sessionID), func(data []byte) {
		env, err := DecodeEnvelope(data)
		if err != nil {
			t.log.Warn("Dropping undecodable message", "session_id", sessionID, "error", err)
			t.metrics.dropped(dropMalformed)
			return
		}
		onMessage(env)
	})
}

func (t *Transport) Unsubscribe(sessionID string) error {
	return t.channel.Unsubscribe(fabric.SessionTopic(sessionID))
}
