// Package memory is an in-process fabric. Every Member of a Hub sees the same
// directory and topics; publications loop back to the publisher when it is
// subscribed, matching Redis pub/sub.
package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"nonocoop/pkg/fabric"

	"github.com/google/uuid"
)

const deliveryBufferSize = 256

var errUnreachable = errors.New("hub unreachable")

// Hub is the shared state behind all members.
type Hub struct {
	mu        sync.Mutex
	reachable bool
	topics    map[string]map[*subscription]struct{}
	sessions  map[string]fabric.Announcement
	now       func() time.Time
}

func NewHub() *Hub {
	return &Hub{
		reachable: true,
		topics:    make(map[string]map[*subscription]struct{}),
		sessions:  make(map[string]fabric.Announcement),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetReachable toggles fault injection: while unreachable every member
// operation fails with a transport error.
func (h *Hub) SetReachable(reachable bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reachable = reachable
}

func (h *Hub) check(op string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.reachable {
		return fabric.Transport(op, errUnreachable)
	}
	return nil
}

// Member returns a new member view. An empty id gets a random one.
func (h *Hub) Member(id string) *Member {
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}
	return &Member{
		hub:  h,
		id:   id,
		subs: make(map[string]*subscription),
	}
}

type subscription struct {
	topic   string
	handler fabric.Handler
	queue   chan []byte
	stop    chan struct{}
	done    chan struct{}
}

func (s *subscription) run() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case data := <-s.queue:
			select {
			case <-s.stop:
				return
			default:
			}
			s.handler(data)
		}
	}
}

// Member implements fabric.Fabric against a Hub.
type Member struct {
	hub *Hub
	id  string

	mu     sync.Mutex
	subs   map[string]*subscription
	closed bool
}

var _ fabric.Fabric = (*Member)(nil)

func (m *Member) LocalID() string {
	return m.id
}

func (m *Member) Ping(context.Context) error {
	return m.hub.check("ping")
}

func (m *Member) Publish(ctx context.Context, topic string, data []byte) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := m.hub.check("publish"); err != nil {
		return err
	}

	m.hub.mu.Lock()
	targets := make([]*subscription, 0, len(m.hub.topics[topic]))
	for sub := range m.hub.topics[topic] {
		targets = append(targets, sub)
	}
	m.hub.mu.Unlock()

	payload := slices.Clone(data)
	for _, sub := range targets {
		select {
		case <-ctx.Done():
			return fabric.Transport("publish", ctx.Err())
		case <-sub.stop:
		case sub.queue <- payload:
		}
	}
	return nil
}

func (m *Member) Subscribe(topic string, h fabric.Handler) error {
	if h == nil {
		return errors.New("handler is required")
	}
	if err := m.hub.check("subscribe"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fabric.Transport("subscribe", errors.New("member closed"))
	}
	if _, ok := m.subs[topic]; ok {
		return fmt.Errorf("already subscribed to %s", topic)
	}

	sub := &subscription{
		topic:   topic,
		handler: h,
		queue:   make(chan []byte, deliveryBufferSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go sub.run()

	m.hub.mu.Lock()
	if m.hub.topics[topic] == nil {
		m.hub.topics[topic] = make(map[*subscription]struct{})
	}
	m.hub.topics[topic][sub] = struct{}{}
	m.hub.mu.Unlock()

	m.subs[topic] = sub
	return nil
}

func (m *Member) Unsubscribe(topic string) error {
	m.mu.Lock()
	sub, ok := m.subs[topic]
	delete(m.subs, topic)
	m.mu.Unlock()
	if !ok {
		return nil
	}

	m.detach(sub)
	return nil
}

func (m *Member) detach(sub *subscription) {
	m.hub.mu.Lock()
	delete(m.hub.topics[sub.topic], sub)
	if len(m.hub.topics[sub.topic]) == 0 {
		delete(m.hub.topics, sub.topic)
	}
	m.hub.mu.Unlock()

	close(sub.stop)
	<-sub.done
}

// Close drops every subscription. Announcements stay until withdrawn.
func (m *Member) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	subs := make([]*subscription, 0, len(m.subs))
	for topic, sub := range m.subs {
		subs = append(subs, sub)
		delete(m.subs, topic)
	}
	m.mu.Unlock()

	for _, sub := range subs {
		m.detach(sub)
	}
	return nil
}

func (m *Member) Announce(_ context.Context, playerID string, puzzleHash string) (string, error) {
	if err := m.hub.check("announce"); err != nil {
		return "", err
	}

	m.hub.mu.Lock()
	defer m.hub.mu.Unlock()

	sessionID := uuid.NewString()
	m.hub.sessions[sessionID] = fabric.Announcement{
		SessionID:   sessionID,
		PuzzleHash:  puzzleHash,
		AnnouncerID: playerID,
		AnnouncedAt: m.hub.now(),
	}
	return sessionID, nil
}

func (m *Member) List(context.Context) ([]fabric.Announcement, error) {
	if err := m.hub.check("list"); err != nil {
		return nil, err
	}

	m.hub.mu.Lock()
	defer m.hub.mu.Unlock()

	out := make([]fabric.Announcement, 0, len(m.hub.sessions))
	for _, announcement := range m.hub.sessions {
		out = append(out, announcement)
	}
	fabric.SortAnnouncements(out)
	return out, nil
}

func (m *Member) Resolve(_ context.Context, sessionID string) (string, error) {
	if err := m.hub.check("resolve"); err != nil {
		return "", err
	}

	m.hub.mu.Lock()
	defer m.hub.mu.Unlock()

	announcement, ok := m.hub.sessions[sessionID]
	if !ok {
		return "", fabric.NotFound(sessionID)
	}
	return announcement.PuzzleHash, nil
}

func (m *Member) Withdraw(_ context.Context, sessionID string) error {
	if err := m.hub.check("withdraw"); err != nil {
		return err
	}

	m.hub.mu.Lock()
	defer m.hub.mu.Unlock()
	delete(m.hub.sessions, sessionID)
	return nil
}
