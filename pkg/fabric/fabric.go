// Package fabric defines the group-messaging and session-directory contracts
// coop participants share.
package fabric

import (
	"cmp"
	"context"
	"slices"
	"time"
)

// Handler processes one inbound payload. It runs on a fabric-owned goroutine.
type Handler func(data []byte)

// Channel is topic-scoped publish/subscribe over the member group.
type Channel interface {
	// LocalID returns this member's identity on the fabric.
	LocalID() string
	Publish(ctx context.Context, topic string, data []byte) error
	// Subscribe registers h for topic. Registration completes before it
	// returns; payloads are delivered in arrival order on one goroutine.
	Subscribe(topic string, h Handler) error
	// Unsubscribe is idempotent and waits for in-flight delivery to finish,
	// so it must not be called from the topic's own handler.
	Unsubscribe(topic string) error
}

// Announcement is one directory entry.
type Announcement struct {
	SessionID   string    `json:"session_id"`
	PuzzleHash  string    `json:"puzzle_hash"`
	AnnouncerID string    `json:"announcer_id"`
	AnnouncedAt time.Time `json:"announced_at"`
}

// Directory is the shared registry of announced coop sessions.
type Directory interface {
	Announce(ctx context.Context, playerID string, puzzleHash string) (string, error)
	List(ctx context.Context) ([]Announcement, error)
	Resolve(ctx context.Context, sessionID string) (string, error)
	Withdraw(ctx context.Context, sessionID string) error
}

// Fabric is a connected member view of the transport.
type Fabric interface {
	Channel
	Directory
	Ping(ctx context.Context) error
	Close() error
}

// SessionTopic returns the channel topic carrying events for sessionID.
func SessionTopic(sessionID string) string {
	return "session/" + sessionID
}

// SortAnnouncements orders entries oldest first, ties broken by session id.
func SortAnnouncements(entries []Announcement) {
	slices.SortFunc(entries, func(a, b Announcement) int {
		if c := a.AnnouncedAt.Compare(b.AnnouncedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.SessionID, b.SessionID)
	})
}
