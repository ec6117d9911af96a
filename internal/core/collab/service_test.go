package collab

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orbitsync/orbitsync/internal/core/events"
	"github.com/orbitsync/orbitsync/internal/core/observability/log"
	"github.com/orbitsync/orbitsync/internal/core/physics"
	"github.com/orbitsync/orbitsync/internal/core/room"
	"github.com/orbitsync/orbitsync/internal/core/session"
)

func newTestService(capacity int) (*Service, *room.Registry) {
	registry := room.NewRegistry()
	tracker := session.NewTracker(10)
	svc := NewService(registry, tracker, Options{
		Constants:    physics.DefaultConstants(),
		RoomCapacity: capacity,
	}, log.NewNop())
	return svc, registry
}

func connectAndJoin(t *testing.T, svc *Service, user, key string) (string, events.RoomJoined) {
	t.Helper()
	sid, err := svc.Connect(user)
	require.NoError(t, err)
	joined, _, err := svc.Join(sid, events.Join{UserID: user, RoomKey: key})
	require.NoError(t, err)
	return sid, joined
}

func TestJoinCreatesRoomOnFirstUse(t *testing.T) {
	svc, registry := newTestService(5)

	sid, joined := connectAndJoin(t, svc, "alice", "universe-1")
	require.Equal(t, sid, joined.SessionID)
	require.Equal(t, 1, joined.ParticipantCount)
	require.Equal(t, "edit", joined.Mode)
	require.Equal(t, 1, registry.Len())

	_, second := connectAndJoin(t, svc, "bob", "universe-1")
	require.Equal(t, joined.RoomID, second.RoomID, "same key lands in the same room")
	require.Equal(t, 2, second.ParticipantCount)
}

func TestJoinNotifiesExistingParticipants(t *testing.T) {
	svc, _ := newTestService(5)

	first, _ := connectAndJoin(t, svc, "alice", "universe-1")

	sid, err := svc.Connect("bob")
	require.NoError(t, err)
	joined, fanouts, err := svc.Join(sid, events.Join{UserID: "bob", RoomKey: "universe-1"})
	require.NoError(t, err)

	require.Len(t, fanouts, 1)
	require.Equal(t, []string{first}, fanouts[0].Sessions, "the joiner hears back directly, not via fanout")
	require.Equal(t, joined, fanouts[0].Event)
}

func TestJoinRejectsFullRoom(t *testing.T) {
	svc, _ := newTestService(2)

	connectAndJoin(t, svc, "alice", "universe-1")
	connectAndJoin(t, svc, "bob", "universe-1")

	sid, err := svc.Connect("carol")
	require.NoError(t, err)
	_, _, err = svc.Join(sid, events.Join{UserID: "carol", RoomKey: "universe-1"})
	require.ErrorIs(t, err, room.ErrRoomFull)

	// The rejected session holds no binding and can join elsewhere.
	joined, _, err := svc.Join(sid, events.Join{UserID: "carol", RoomKey: "universe-2"})
	require.NoError(t, err)
	require.Equal(t, 1, joined.ParticipantCount)
}

func TestJoinSeparatesModesUnderOneKey(t *testing.T) {
	svc, registry := newTestService(5)

	_, edit := connectAndJoin(t, svc, "alice", "universe-1")

	sid, err := svc.Connect("bob")
	require.NoError(t, err)
	view, _, err := svc.Join(sid, events.Join{UserID: "bob", RoomKey: "universe-1", Mode: "view"})
	require.NoError(t, err)

	require.NotEqual(t, edit.RoomID, view.RoomID, "edit and view rooms are distinct")
	require.Equal(t, 2, registry.Len())
}

func TestJoinMovesSessionBetweenRooms(t *testing.T) {
	svc, registry := newTestService(5)

	sid, first := connectAndJoin(t, svc, "alice", "universe-1")
	_, stayer := connectAndJoin(t, svc, "bob", "universe-1")
	require.Equal(t, first.RoomID, stayer.RoomID)

	moved, fanouts, err := svc.Join(sid, events.Join{UserID: "alice", RoomKey: "universe-2"})
	require.NoError(t, err)
	require.NotEqual(t, first.RoomID, moved.RoomID)

	// The old room hears a room_left before anyone hears the new join.
	require.NotEmpty(t, fanouts)
	left, ok := fanouts[0].Event.(events.RoomLeft)
	require.True(t, ok)
	require.Equal(t, first.RoomID, left.RoomID)
	require.Equal(t, sid, left.SessionID)
	require.Equal(t, 1, left.ParticipantCount)

	require.Equal(t, 2, registry.Len())
}

func TestLeaveDestroysEmptyRoom(t *testing.T) {
	svc, registry := newTestService(5)

	sid, joined := connectAndJoin(t, svc, "alice", "universe-1")

	left, fanouts, err := svc.Leave(sid)
	require.NoError(t, err)
	require.Equal(t, joined.RoomID, left.RoomID)
	require.Empty(t, fanouts, "nobody is left to notify")
	require.Equal(t, 0, registry.Len())

	// Rejoining the same key starts from scratch.
	_, fresh := connectAndJoin(t, svc, "alice2", "universe-1")
	require.NotEqual(t, joined.RoomID, fresh.RoomID)
}

func TestLeaveWithoutRoomFails(t *testing.T) {
	svc, _ := newTestService(5)

	sid, err := svc.Connect("alice")
	require.NoError(t, err)
	_, _, err = svc.Leave(sid)
	require.ErrorIs(t, err, room.ErrRoomNotFound)
}

func TestDisconnectCascadesRoomLeave(t *testing.T) {
	svc, registry := newTestService(5)

	sid, joined := connectAndJoin(t, svc, "alice", "universe-1")
	other, _ := connectAndJoin(t, svc, "bob", "universe-1")

	fanouts, err := svc.Disconnect(sid)
	require.NoError(t, err)
	require.Len(t, fanouts, 1)
	require.Equal(t, []string{other}, fanouts[0].Sessions)
	left, ok := fanouts[0].Event.(events.RoomLeft)
	require.True(t, ok)
	require.Equal(t, joined.RoomID, left.RoomID)
	require.Equal(t, 1, registry.Len())

	// Session is gone for good.
	_, _, err = svc.AddParticle(sid, events.AddParticle{Mass: 1, Radius: 1})
	require.ErrorIs(t, err, room.ErrRoomNotFound)
}

func TestAddParticleValidatesAndFansOut(t *testing.T) {
	svc, _ := newTestService(5)

	sid, joined := connectAndJoin(t, svc, "alice", "universe-1")
	other, _ := connectAndJoin(t, svc, "bob", "universe-1")

	added, fanouts, err := svc.AddParticle(sid, events.AddParticle{
		Position: physics.Vec3{X: 1},
		Velocity: physics.Vec3{Y: 2},
		Mass:     3,
		Radius:   0.5,
		Charge:   -1,
	})
	require.NoError(t, err)
	require.Equal(t, joined.RoomID, added.RoomID)
	require.Equal(t, 3.0, added.Mass)
	require.Len(t, fanouts, 1)
	require.Equal(t, []string{other}, fanouts[0].Sessions)

	_, _, err = svc.AddParticle(sid, events.AddParticle{Mass: -1, Radius: 1})
	require.ErrorIs(t, err, physics.ErrInvalidParameter)
}

func TestRemoveParticleUnknownIDIsNoop(t *testing.T) {
	svc, _ := newTestService(5)
	sid, _ := connectAndJoin(t, svc, "alice", "universe-1")

	removed, fanouts, err := svc.RemoveParticle(sid, events.RemoveParticle{ObjectID: 99})
	require.NoError(t, err)
	require.Equal(t, uint64(99), removed.ObjectID)
	require.Len(t, fanouts, 1)
}

func TestClearIsIdempotent(t *testing.T) {
	svc, registry := newTestService(5)
	sid, joined := connectAndJoin(t, svc, "alice", "universe-1")

	_, _, err := svc.AddParticle(sid, events.AddParticle{Mass: 1, Radius: 1})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		cleared, _, err := svc.Clear(sid)
		require.NoError(t, err)
		require.Equal(t, joined.RoomID, cleared.RoomID)
	}

	r, ok := registry.Lookup(joined.RoomID)
	require.True(t, ok)
	require.NoError(t, r.WithEngine(func(e *physics.Engine) error {
		require.Equal(t, 0, e.Len())
		return nil
	}))
}

func TestViewRoomRejectsNonOwnerMutations(t *testing.T) {
	svc, _ := newTestService(5)

	owner, err := svc.Connect("alice")
	require.NoError(t, err)
	_, _, err = svc.Join(owner, events.Join{UserID: "alice", RoomKey: "universe-1", Mode: "view"})
	require.NoError(t, err)

	viewer, err := svc.Connect("bob")
	require.NoError(t, err)
	_, _, err = svc.Join(viewer, events.Join{UserID: "bob", RoomKey: "universe-1", Mode: "view"})
	require.NoError(t, err)

	_, _, err = svc.AddParticle(viewer, events.AddParticle{Mass: 1, Radius: 1})
	require.ErrorIs(t, err, room.ErrViewOnly)

	_, _, err = svc.AddParticle(owner, events.AddParticle{Mass: 1, Radius: 1})
	require.NoError(t, err)
}

func TestUpdateParametersTunesPhysicsConstants(t *testing.T) {
	svc, registry := newTestService(5)
	sid, joined := connectAndJoin(t, svc, "alice", "universe-1")

	updated, fanouts, err := svc.UpdateParameters(sid, events.ParameterUpdate{
		Payload: map[string]any{"g": 2.5, "damping": 0.1, "theme": "dark"},
	})
	require.NoError(t, err)
	require.Len(t, fanouts, 1)
	require.Equal(t, map[string]any{"theme": "dark"}, updated.Parameters)

	r, ok := registry.Lookup(joined.RoomID)
	require.True(t, ok)
	require.NoError(t, r.WithEngine(func(e *physics.Engine) error {
		require.Equal(t, 2.5, e.Constants().G)
		require.Equal(t, 0.1, e.Constants().Damping)
		return nil
	}))
}

func TestUpdateParametersRejectsBadConstants(t *testing.T) {
	svc, registry := newTestService(5)
	sid, joined := connectAndJoin(t, svc, "alice", "universe-1")

	_, _, err := svc.UpdateParameters(sid, events.ParameterUpdate{
		Payload: map[string]any{"restitution": 7.0},
	})
	require.ErrorIs(t, err, physics.ErrInvalidConstants)

	r, ok := registry.Lookup(joined.RoomID)
	require.True(t, ok)
	require.NoError(t, r.WithEngine(func(e *physics.Engine) error {
		require.Equal(t, physics.DefaultConstants(), e.Constants())
		return nil
	}))
}

func TestMutationWithoutRoomFails(t *testing.T) {
	svc, _ := newTestService(5)
	sid, err := svc.Connect("alice")
	require.NoError(t, err)

	_, _, err = svc.AddParticle(sid, events.AddParticle{Mass: 1, Radius: 1})
	require.ErrorIs(t, err, room.ErrRoomNotFound)
	_, _, err = svc.Clear(sid)
	require.ErrorIs(t, err, room.ErrRoomNotFound)
}
