// Package redis implements the coop fabric on Redis: pub/sub channels carry
// session events and a hash holds the session directory.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"nonocoop/pkg/fabric"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "nonocoop:"
	sessionsKey      = "sessions"
)

// Config holds Redis connection configuration.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Fabric is one member's connection to the Redis fabric.
type Fabric struct {
	client *redis.Client
	prefix string
	id     string
	log    *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	subs   map[string]*subscription
	closed bool
}

type subscription struct {
	pubsub *redis.PubSub
	done   chan struct{}
}

var _ fabric.Fabric = (*Fabric)(nil)

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config, memberID string, log *slog.Logger) (*Fabric, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fabric.Transport("connect", err)
	}

	f := NewWithClient(client, cfg.KeyPrefix, memberID, log)
	f.log.Info("Connected to Redis fabric", "addr", cfg.Addr, "db", cfg.DB, "member_id", f.id)
	return f, nil
}

// NewWithClient wraps an existing client. An empty memberID gets a random one.
func NewWithClient(client *redis.Client, keyPrefix string, memberID string, log *slog.Logger) *Fabric {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		memberID = uuid.NewString()
	}
	if log == nil {
		log = slog.Default()
	}

	return &Fabric{
		client: client,
		prefix: keyPrefix,
		id:     memberID,
		log:    log.With("component", "fabric.redis"),
		now:    func() time.Time { return time.Now().UTC() },
		subs:   make(map[string]*subscription),
	}
}

func (f *Fabric) LocalID() string {
	return f.id
}

func (f *Fabric) channel(topic string) string {
	return f.prefix + topic
}

func (f *Fabric) Ping(ctx context.Context) error {
	return fabric.Transport("ping", f.client.Ping(ctx).Err())
}

func (f *Fabric) Publish(ctx context.Context, topic string, data []byte) error {
	return fabric.Transport("publish", f.client.Publish(ctx, f.channel(topic), data).Err())
}

func (f *Fabric) Subscribe(topic string, h fabric.Handler) error {
	if h == nil {
		return errors.New("handler is required")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fabric.Transport("subscribe", errors.New("fabric closed"))
	}
	if _, ok := f.subs[topic]; ok {
		return fmt.Errorf("already subscribed to %s", topic)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pubsub := f.client.Subscribe(ctx, f.channel(topic))
	// Wait for the subscription confirmation so nothing published after
	// Subscribe returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fabric.Transport("subscribe", err)
	}

	sub := &subscription{pubsub: pubsub, done: make(chan struct{})}
	messages := pubsub.Channel()
	go func() {
		defer close(sub.done)
		for msg := range messages {
			h([]byte(msg.Payload))
		}
	}()

	f.subs[topic] = sub
	f.log.Debug("Subscribed", "topic", topic)
	return nil
}

func (f *Fabric) Unsubscribe(topic string) error {
	f.mu.Lock()
	sub, ok := f.subs[topic]
	delete(f.subs, topic)
	f.mu.Unlock()
	if !ok {
		return nil
	}

	err := sub.pubsub.Close()
	<-sub.done
	f.log.Debug("Unsubscribed", "topic", topic)
	return fabric.Transport("unsubscribe", err)
}

func (f *Fabric) Announce(ctx context.Context, playerID string, puzzleHash string) (string, error) {
	announcement := fabric.Announcement{
		SessionID:   uuid.NewString(),
		PuzzleHash:  puzzleHash,
		AnnouncerID: playerID,
		AnnouncedAt: f.now(),
	}

	data, err := json.Marshal(announcement)
	if err != nil {
		return "", fmt.Errorf("encode announcement: %w", err)
	}

	if err := f.client.HSet(ctx, f.prefix+sessionsKey, announcement.SessionID, data).Err(); err != nil {
		return "", fabric.Transport("announce", err)
	}
	return announcement.SessionID, nil
}

func (f *Fabric) List(ctx context.Context) ([]fabric.Announcement, error) {
	raw, err := f.client.HGetAll(ctx, f.prefix+sessionsKey).Result()
	if err != nil {
		return nil, fabric.Transport("list", err)
	}

	out := make([]fabric.Announcement, 0, len(raw))
	for sessionID, value := range raw {
		var announcement fabric.Announcement
		if err := json.Unmarshal([]byte(value), &announcement); err != nil {
			f.log.Warn("Skipping malformed announcement", "session_id", sessionID, "error", err)
			continue
		}
		announcement.SessionID = sessionID
		out = append(out, announcement)
	}

	fabric.SortAnnouncements(out)
	return out, nil
}

func (f *Fabric) Resolve(ctx context.Context, sessionID string) (string, error) {
	value, err := f.client.HGet(ctx, f.prefix+sessionsKey, sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return "", fabric.NotFound(sessionID)
	}
	if err != nil {
		return "", fabric.Transport("resolve", err)
	}

	var announcement fabric.Announcement
	if err := json.Unmarshal([]byte(value), &announcement); err != nil {
		return "", fabric.Malformed("announcement "+sessionID, err)
	}
	return announcement.PuzzleHash, nil
}

func (f *Fabric) Withdraw(ctx context.Context, sessionID string) error {
	return fabric.Transport("withdraw", f.client.HDel(ctx, f.prefix+sessionsKey, sessionID).Err())
}

// Close drops all subscriptions and closes the client.
func (f *Fabric) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	topics := make([]string, 0, len(f.subs))
	for topic := range f.subs {
		topics = append(topics, topic)
	}
	f.mu.Unlock()

	for _, topic := range topics {
		if err := f.Unsubscribe(topic); err != nil {
			f.log.Warn("Failed to unsubscribe", "topic", topic, "error", err)
		}
	}
	return f.client.Close()
}
