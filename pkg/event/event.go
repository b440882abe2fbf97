// Package event defines the gameplay events exchanged on the local bus and
// relayed between coop participants.
package event

import (
	"fmt"
	"time"
)

// Kind identifies one event variant.
type Kind string

const (
	KindCrossOutCaption    Kind = "cross-out-caption"
	KindFieldMarked        Kind = "field-marked"
	KindFieldOccupied      Kind = "field-occupied"
	KindFieldUnmarked      Kind = "field-unmarked"
	KindFieldUnoccupied    Kind = "field-unoccupied"
	KindMarkField          Kind = "mark-field"
	KindOccupyField        Kind = "occupy-field"
	KindWrongFieldOccupied Kind = "wrong-field-occupied"
	KindActiveFieldChanged Kind = "active-field-changed"

	KindSetFailCount  Kind = "set-fail-count"
	KindSetTime       Kind = "set-time"
	KindStateChanged  Kind = "state-changed"
	KindStateChanging Kind = "state-changing"
	KindTimerElapsed  Kind = "timer-elapsed"

	KindQuitProgram    Kind = "quit-program"
	KindStartGame      Kind = "start-game"
	KindStopGame       Kind = "stop-game"
	KindRestartGame    Kind = "restart-game"
	KindPauseGame      Kind = "pause-game"
	KindResumeGame     Kind = "resume-game"
	KindNonogramChosen Kind = "nonogram-chosen"
	KindOptionsChanged Kind = "options-changed"
)

// Category groups kinds the way the game engine dispatches them.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryFieldControl
	CategoryStateChange
	CategoryProgramControl
)

func (c Category) String() string {
	switch c {
	case CategoryFieldControl:
		return "field-control"
	case CategoryStateChange:
		return "state-change"
	case CategoryProgramControl:
		return "program-control"
	default:
		return "unknown"
	}
}

var categories = map[Kind]Category{
	KindCrossOutCaption:    CategoryFieldControl,
	KindFieldMarked:        CategoryFieldControl,
	KindFieldOccupied:      CategoryFieldControl,
	KindFieldUnmarked:      CategoryFieldControl,
	KindFieldUnoccupied:    CategoryFieldControl,
	KindMarkField:          CategoryFieldControl,
	KindOccupyField:        CategoryFieldControl,
	KindWrongFieldOccupied: CategoryFieldControl,
	KindActiveFieldChanged: CategoryFieldControl,

	KindSetFailCount:  CategoryStateChange,
	KindSetTime:       CategoryStateChange,
	KindStateChanged:  CategoryStateChange,
	KindStateChanging: CategoryStateChange,
	KindTimerElapsed:  CategoryStateChange,

	KindQuitProgram:    CategoryProgramControl,
	KindStartGame:      CategoryProgramControl,
	KindStopGame:       CategoryProgramControl,
	KindRestartGame:    CategoryProgramControl,
	KindPauseGame:      CategoryProgramControl,
	KindResumeGame:     CategoryProgramControl,
	KindNonogramChosen: CategoryProgramControl,
	KindOptionsChanged: CategoryProgramControl,
}

// Category returns the category of k, or CategoryUnknown.
func (k Kind) Category() Category {
	return categories[k]
}

// Known reports whether k is a recognized variant.
func (k Kind) Known() bool {
	_, ok := categories[k]
	return ok
}

// Kinds returns every recognized kind.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(categories))
	for kind := range categories {
		kinds = append(kinds, kind)
	}
	return kinds
}

// Orientation selects a clue line for cross-out-caption.
type Orientation string

const (
	OrientationRow    Orientation = "row"
	OrientationColumn Orientation = "column"
)

// GameState is a state tag carried by state-change events.
type GameState string

const (
	StateNone     GameState = "none"
	StateRunning  GameState = "running"
	StatePaused   GameState = "paused"
	StateGameOver GameState = "game-over"
	StateSolved   GameState = "solved"
	StateUserStop GameState = "user-stop"
)

func (s GameState) valid() bool {
	switch s {
	case StateNone, StateRunning, StatePaused, StateGameOver, StateSolved, StateUserStop:
		return true
	default:
		return false
	}
}

// Event is one gameplay occurrence. Only the fields relevant to Kind are set,
// which keeps Event comparable with ==.
type Event struct {
	Kind Kind `json:"kind"`

	Column int `json:"column,omitempty"`
	Row    int `json:"row,omitempty"`

	Orientation Orientation `json:"orientation,omitempty"`
	Line        int         `json:"line,omitempty"`
	Caption     int         `json:"caption,omitempty"`

	FailCount int           `json:"fail_count,omitempty"`
	Elapsed   time.Duration `json:"elapsed,omitempty"`

	OldState GameState `json:"old_state,omitempty"`
	NewState GameState `json:"new_state,omitempty"`

	Puzzle string `json:"puzzle,omitempty"`
}

// Category returns the category of the event kind.
func (e Event) Category() Category {
	return e.Kind.Category()
}

// Validate checks that the kind is known and its payload is usable.
func (e Event) Validate() error {
	if !e.Kind.Known() {
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}

	switch e.Kind {
	case KindCrossOutCaption:
		if e.Orientation != OrientationRow && e.Orientation != OrientationColumn {
			return fmt.Errorf("%s: invalid orientation %q", e.Kind, e.Orientation)
		}
		if e.Line < 0 || e.Caption < 0 {
			return fmt.Errorf("%s: negative line or caption", e.Kind)
		}
	case KindFieldMarked, KindFieldOccupied, KindFieldUnmarked, KindFieldUnoccupied,
		KindMarkField, KindOccupyField, KindWrongFieldOccupied, KindActiveFieldChanged:
		if e.Column < 0 || e.Row < 0 {
			return fmt.Errorf("%s: negative field coordinates (%d,%d)", e.Kind, e.Column, e.Row)
		}
	case KindSetFailCount:
		if e.FailCount < 0 {
			return fmt.Errorf("%s: negative fail count", e.Kind)
		}
	case KindSetTime, KindTimerElapsed:
		if e.Elapsed < 0 {
			return fmt.Errorf("%s: negative duration", e.Kind)
		}
	case KindStateChanged, KindStateChanging:
		if !e.OldState.valid() || !e.NewState.valid() {
			return fmt.Errorf("%s: invalid state transition %q -> %q", e.Kind, e.OldState, e.NewState)
		}
	case KindNonogramChosen:
		if e.Puzzle == "" {
			return fmt.Errorf("%s: puzzle is required", e.Kind)
		}
	}

	return nil
}

func (e Event) String() string {
	switch e.Category() {
	case CategoryFieldControl:
		if e.Kind == KindCrossOutCaption {
			return fmt.Sprintf("%s %s %d/%d", e.Kind, e.Orientation, e.Line, e.Caption)
		}
		return fmt.Sprintf("%s (%d,%d)", e.Kind, e.Column, e.Row)
	case CategoryStateChange:
		switch e.Kind {
		case KindSetFailCount:
			return fmt.Sprintf("%s %d", e.Kind, e.FailCount)
		case KindSetTime, KindTimerElapsed:
			return fmt.Sprintf("%s %s", e.Kind, e.Elapsed)
		default:
			return fmt.Sprintf("%s %s->%s", e.Kind, e.OldState, e.NewState)
		}
	default:
		if e.Puzzle != "" {
			return fmt.Sprintf("%s %s", e.Kind, e.Puzzle)
		}
		return string(e.Kind)
	}
}
