package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoleText(t *testing.T) {
	t.Parallel()

	for _, role := range []Role{RoleInitiating, RoleJoining} {
		data, err := json.Marshal(role)
		require.NoError(t, err)

		var got Role
		require.NoError(t, json.Unmarshal(data, &got))
		require.Equal(t, role, got)
	}

	_, err := json.Marshal(Role(0))
	require.Error(t, err)

	var role Role
	require.Error(t, json.Unmarshal([]byte(`"spectating"`), &role))
}

func TestRoleOpposite(t *testing.T) {
	t.Parallel()

	require.Equal(t, RoleJoining, RoleInitiating.Opposite())
	require.Equal(t, RoleInitiating, RoleJoining.Opposite())
}

func TestDescriptorAccessors(t *testing.T) {
	t.Parallel()

	d := NewDescriptor(RoleJoining, "s-1", "hash", "alice")
	require.Equal(t, RoleJoining, d.Role())
	require.Equal(t, "s-1", d.SessionID())
	require.Equal(t, "hash", d.PuzzleHash())
	require.Equal(t, "alice", d.Announcer())
	require.False(t, d.IsZero())
	require.True(t, Descriptor{}.IsZero())
	require.Equal(t, "joining session s-1 (puzzle hash)", d.String())
}

func TestPuzzleHashIsStable(t *testing.T) {
	t.Parallel()

	a := PuzzleHash([]byte("puzzle"))
	require.Len(t, a, 64)
	require.Equal(t, a, PuzzleHash([]byte("puzzle")))
	require.NotEqual(t, a, PuzzleHash([]byte("other")))
}
