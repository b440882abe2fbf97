package relay

import (
	"testing"

	"nonocoop/pkg/event"
	"nonocoop/pkg/session"

	"github.com/stretchr/testify/require"
)

func TestLocalActionTable(t *testing.T) {
	t.Parallel()

	outcomes := []event.Kind{
		event.KindFieldOccupied, event.KindFieldMarked, event.KindFieldUnmarked,
		event.KindFieldUnoccupied, event.KindWrongFieldOccupied, event.KindCrossOutCaption,
	}
	stateChanges := []event.Kind{
		event.KindSetFailCount, event.KindSetTime, event.KindStateChanged,
		event.KindStateChanging, event.KindTimerElapsed,
	}

	for _, kind := range append(append([]event.Kind{}, outcomes...), stateChanges...) {
		require.Equal(t, ActionForward, LocalAction(session.RoleInitiating, kind), kind)
		require.Equal(t, ActionIgnore, LocalAction(session.RoleJoining, kind), kind)
	}

	require.Equal(t, ActionForward, LocalAction(session.RoleJoining, event.KindOccupyField))
	require.Equal(t, ActionIgnore, LocalAction(session.RoleInitiating, event.KindOccupyField))

	for _, role := range []session.Role{session.RoleInitiating, session.RoleJoining} {
		require.Equal(t, ActionIgnore, LocalAction(role, event.KindActiveFieldChanged))
		require.Equal(t, ActionIgnore, LocalAction(role, event.KindMarkField))
		require.Equal(t, ActionClose, LocalAction(role, event.KindQuitProgram))
		require.Equal(t, ActionIgnore, LocalAction(role, event.KindStartGame))
		require.Equal(t, ActionIgnore, LocalAction(role, event.KindNonogramChosen))
		require.Equal(t, ActionReject, LocalAction(role, event.Kind("fireworks")))
	}
}

func TestEveryKnownKindHasAnAction(t *testing.T) {
	t.Parallel()

	for _, kind := range event.Kinds() {
		for _, role := range []session.Role{session.RoleInitiating, session.RoleJoining} {
			require.NotEqual(t, ActionReject, LocalAction(role, kind), "%s/%s", role, kind)
		}
	}
}

func TestAppliedKindsAreNeverForwarded(t *testing.T) {
	t.Parallel()

	roles := []session.Role{session.RoleInitiating, session.RoleJoining}
	for _, kind := range event.Kinds() {
		for _, role := range roles {
			for _, sender := range roles {
				if Applies(role, sender, kind) {
					require.NotEqual(t, ActionForward, LocalAction(role, kind),
						"%s would re-broadcast applied %s", role, kind)
				}
			}
		}
	}
}

func TestApplies(t *testing.T) {
	t.Parallel()

	require.True(t, Applies(session.RoleInitiating, session.RoleJoining, event.KindOccupyField))
	require.True(t, Applies(session.RoleJoining, session.RoleInitiating, event.KindFieldOccupied))
	require.True(t, Applies(session.RoleJoining, session.RoleInitiating, event.KindTimerElapsed))

	// Another joiner's raw request is not for us.
	require.False(t, Applies(session.RoleJoining, session.RoleJoining, event.KindOccupyField))
	// Outcomes claimed by a joiner are not authoritative.
	require.False(t, Applies(session.RoleInitiating, session.RoleJoining, event.KindFieldOccupied))
	require.False(t, Applies(session.RoleJoining, session.RoleJoining, event.KindFieldOccupied))

	require.False(t, Applies(session.RoleJoining, session.RoleInitiating, event.KindActiveFieldChanged))
	require.False(t, Applies(session.RoleJoining, session.RoleInitiating, event.KindQuitProgram))
}
