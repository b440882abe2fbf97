package relay

import (
	"nonocoop/pkg/event"
	"nonocoop/pkg/session"
)

// Action is what the bridge does with a locally observed event.
type Action int

const (
	ActionIgnore Action = iota
	ActionForward
	ActionClose
	ActionReject
)

func (a Action) String() string {
	switch a {
	case ActionIgnore:
		return "ignore"
	case ActionForward:
		return "forward"
	case ActionClose:
		return "close"
	case ActionReject:
		return "reject"
	default:
		return "unknown"
	}
}

// forwarders maps each relayed kind to the only role allowed to forward it.
// Kinds absent from the table are never forwarded.
var forwarders = map[event.Kind]session.Role{
	event.KindFieldOccupied:      session.RoleInitiating,
	event.KindFieldMarked:        session.RoleInitiating,
	event.KindFieldUnmarked:      session.RoleInitiating,
	event.KindFieldUnoccupied:    session.RoleInitiating,
	event.KindWrongFieldOccupied: session.RoleInitiating,
	event.KindCrossOutCaption:    session.RoleInitiating,

	event.KindOccupyField: session.RoleJoining,

	event.KindSetFailCount:  session.RoleInitiating,
	event.KindSetTime:       session.RoleInitiating,
	event.KindStateChanged:  session.RoleInitiating,
	event.KindStateChanging: session.RoleInitiating,
	event.KindTimerElapsed:  session.RoleInitiating,
}

// Forwarder returns the role that forwards kind, if any.
func Forwarder(kind event.Kind) (session.Role, bool) {
	role, ok := forwarders[kind]
	return role, ok
}

// LocalAction decides what a bridge in role does with a local event of kind.
func LocalAction(role session.Role, kind event.Kind) Action {
	if !kind.Known() {
		return ActionReject
	}
	if kind == event.KindQuitProgram {
		return ActionClose
	}
	if forwarder, ok := forwarders[kind]; ok && forwarder == role {
		return ActionForward
	}
	return ActionIgnore
}

// Applies reports whether a bridge in role applies a remote event of kind
// sent by a peer in senderRole. A role only applies what the opposite role
// forwards, so nothing a bridge applies is ever forwarded again.
func Applies(role session.Role, senderRole session.Role, kind event.Kind) bool {
	forwarder, ok := forwarders[kind]
	if !ok {
		return false
	}
	return forwarder == senderRole && forwarder == role.Opposite()
}
