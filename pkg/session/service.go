package session

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"nonocoop/pkg/fabric"
)

// Service creates session descriptors against a fabric directory.
type Service struct {
	dir      fabric.Directory
	playerID string
	log      *slog.Logger
}

func NewService(dir fabric.Directory, playerID string, log *slog.Logger) (*Service, error) {
	if dir == nil {
		return nil, errors.New("directory is required")
	}
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return nil, errors.New("player id is required")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		dir:      dir,
		playerID: playerID,
		log:      log.With("component", "session.service"),
	}, nil
}

// PlayerID returns the identity announcements are made under.
func (s *Service) PlayerID() string {
	return s.playerID
}

// Announce registers puzzleHash under a fresh session id.
func (s *Service) Announce(ctx context.Context, puzzleHash string) (Descriptor, error) {
	puzzleHash = strings.TrimSpace(puzzleHash)
	if puzzleHash == "" {
		return Descriptor{}, errors.New("puzzle hash is required")
	}

	sessionID, err := s.dir.Announce(ctx, s.playerID, puzzleHash)
	if err != nil {
		return Descriptor{}, fmt.Errorf("announce session: %w", err)
	}

	s.log.Info("Announced coop session", "session_id", sessionID, "puzzle", puzzleHash)
	return NewDescriptor(RoleInitiating, sessionID, puzzleHash, s.playerID), nil
}

// ListAvailable returns the announced sessions. Nothing is fetched until the
// sequence is ranged over, and every range fetches a fresh snapshot. A fetch
// failure yields a single zero descriptor with the error.
func (s *Service) ListAvailable(ctx context.Context) iter.Seq2[Descriptor, error] {
	return func(yield func(Descriptor, error) bool) {
		announcements, err := s.dir.List(ctx)
		if err != nil {
			yield(Descriptor{}, fmt.Errorf("list sessions: %w", err))
			return
		}

		for _, a := range announcements {
			role := RoleJoining
			if a.AnnouncerID == s.playerID {
				role = RoleInitiating
			}
			if !yield(NewDescriptor(role, a.SessionID, a.PuzzleHash, a.AnnouncerID), nil) {
				return
			}
		}
	}
}

// Join resolves sessionID and returns a joining descriptor.
func (s *Service) Join(ctx context.Context, sessionID string) (Descriptor, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Descriptor{}, fabric.NotFound(sessionID)
	}

	puzzleHash, err := s.dir.Resolve(ctx, sessionID)
	if err != nil {
		return Descriptor{}, fmt.Errorf("join session: %w", err)
	}

	s.log.Info("Joined coop session", "session_id", sessionID, "puzzle", puzzleHash)
	return NewDescriptor(RoleJoining, sessionID, puzzleHash, ""), nil
}

// Withdraw removes an initiator's announcement. Joiners have nothing to
// withdraw.
func (s *Service) Withdraw(ctx context.Context, d Descriptor) error {
	if d.Role() != RoleInitiating || d.SessionID() == "" {
		return nil
	}

	if err := s.dir.Withdraw(ctx, d.SessionID()); err != nil {
		return fmt.Errorf("withdraw session: %w", err)
	}

	s.log.Info("Withdrew coop session", "session_id", d.SessionID())
	return nil
}
