// Package session announces, discovers and joins coop sessions.
package session

import (
	"encoding/hex"
	"fmt"

	sha256 "github.com/minio/sha256-simd"
)

// Role is the part a participant plays in a coop session.
type Role int

const (
	RoleInitiating Role = iota + 1
	RoleJoining
)

func (r Role) String() string {
	switch r {
	case RoleInitiating:
		return "initiating"
	case RoleJoining:
		return "joining"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	return r == RoleInitiating || r == RoleJoining
}

// Opposite returns the complementary role.
func (r Role) Opposite() Role {
	switch r {
	case RoleInitiating:
		return RoleJoining
	case RoleJoining:
		return RoleInitiating
	default:
		return r
	}
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	switch string(text) {
	case "initiating":
		*r = RoleInitiating
	case "joining":
		*r = RoleJoining
	default:
		return fmt.Errorf("unknown role %q", text)
	}
	return nil
}

// Descriptor identifies one coop session from a participant's point of view.
// It is immutable; the zero value describes no session.
type Descriptor struct {
	role       Role
	sessionID  string
	puzzleHash string
	announcer  string
}

func NewDescriptor(role Role, sessionID string, puzzleHash string, announcer string) Descriptor {
	return Descriptor{role: role, sessionID: sessionID, puzzleHash: puzzleHash, announcer: announcer}
}

func (d Descriptor) Role() Role         { return d.role }
func (d Descriptor) SessionID() string  { return d.sessionID }
func (d Descriptor) PuzzleHash() string { return d.puzzleHash }
func (d Descriptor) Announcer() string  { return d.announcer }

// IsZero reports whether d describes no session.
func (d Descriptor) IsZero() bool {
	return d == Descriptor{}
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s session %s (puzzle %s)", d.role, d.sessionID, d.puzzleHash)
}

// PuzzleHash returns the content hash used as a puzzle reference.
func PuzzleHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
