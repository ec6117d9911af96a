package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnectEnforcesPerUserCap(t *testing.T) {
	tr := NewTracker(3)

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		id, err := tr.Connect("alice")
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.Equal(t, 3, tr.SessionCount("alice"))

	_, err := tr.Connect("alice")
	require.ErrorIs(t, err, ErrTooManyConnections)

	// Other users are unaffected by alice's cap.
	_, err = tr.Connect("bob")
	require.NoError(t, err)

	// Disconnecting frees a slot.
	_, err = tr.Disconnect(ids[0])
	require.NoError(t, err)
	_, err = tr.Connect("alice")
	require.NoError(t, err)
}

func TestConnectGeneratesUniqueSessions(t *testing.T) {
	tr := NewTracker(5)
	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		id, err := tr.Connect("alice")
		require.NoError(t, err)
		require.False(t, seen[id])
		seen[id] = true
	}
}

func TestBindRoomReportsPrevious(t *testing.T) {
	tr := NewTracker(5)
	id, err := tr.Connect("alice")
	require.NoError(t, err)

	prev, err := tr.BindRoom(id, "room-1")
	require.NoError(t, err)
	require.Empty(t, prev)

	// Rebinding to the same room is not a move.
	prev, err = tr.BindRoom(id, "room-1")
	require.NoError(t, err)
	require.Empty(t, prev)

	prev, err = tr.BindRoom(id, "room-2")
	require.NoError(t, err)
	require.Equal(t, "room-1", prev, "moving rooms must surface the old membership")

	roomID, ok := tr.Room(id)
	require.True(t, ok)
	require.Equal(t, "room-2", roomID)
}

func TestUnbindRoomClearsBinding(t *testing.T) {
	tr := NewTracker(5)
	id, err := tr.Connect("alice")
	require.NoError(t, err)
	_, err = tr.BindRoom(id, "room-1")
	require.NoError(t, err)

	roomID, err := tr.UnbindRoom(id)
	require.NoError(t, err)
	require.Equal(t, "room-1", roomID)

	_, ok := tr.Room(id)
	require.False(t, ok)
}

func TestDisconnectReturnsBoundRoom(t *testing.T) {
	tr := NewTracker(5)
	id, err := tr.Connect("alice")
	require.NoError(t, err)
	_, err = tr.BindRoom(id, "room-9")
	require.NoError(t, err)

	roomID, err := tr.Disconnect(id)
	require.NoError(t, err)
	require.Equal(t, "room-9", roomID)
	require.Equal(t, 0, tr.SessionCount("alice"))

	_, err = tr.Disconnect(id)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestUnknownSessionOperationsFail(t *testing.T) {
	tr := NewTracker(5)

	_, err := tr.BindRoom("ghost", "room-1")
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = tr.UnbindRoom("ghost")
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, ok := tr.User("ghost")
	require.False(t, ok)
}

func TestUserLookup(t *testing.T) {
	tr := NewTracker(5)
	id, err := tr.Connect("carol")
	require.NoError(t, err)

	user, ok := tr.User(id)
	require.True(t, ok)
	require.Equal(t, "carol", user)
}
