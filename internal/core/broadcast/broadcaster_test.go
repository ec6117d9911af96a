package broadcast

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orbitsync/orbitsync/internal/core/events"
	"github.com/orbitsync/orbitsync/internal/core/observability/log"
	"github.com/orbitsync/orbitsync/internal/core/physics"
	"github.com/orbitsync/orbitsync/internal/core/room"
)

type capturedDelivery struct {
	sessions []string
	event    events.Outbound
}

// captureSink records every delivery for later inspection.
type captureSink struct {
	mu         sync.Mutex
	deliveries []capturedDelivery
}

func (s *captureSink) Deliver(sessionIDs []string, ev events.Outbound) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, capturedDelivery{sessions: sessionIDs, event: ev})
}

func (s *captureSink) states(roomID string) []events.SimulationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.SimulationState
	for _, d := range s.deliveries {
		if st, ok := d.event.(events.SimulationState); ok && st.RoomID == roomID {
			out = append(out, st)
		}
	}
	return out
}

func populatedRoom(t *testing.T, reg *room.Registry, key string, consts physics.Constants) *room.Room {
	t.Helper()
	r, _ := reg.GetOrCreate(key, func() *room.Room {
		return room.New(key, "owner", 5, room.ModeEdit, consts)
	})
	require.True(t, r.Join("owner"))
	err := r.WithEngine(func(e *physics.Engine) error {
		_, addErr := e.AddObject(physics.Vec3{}, physics.Vec3{X: 1}, 1, 0.1, 0)
		return addErr
	})
	require.NoError(t, err)
	return r
}

func newTestBroadcaster(reg *room.Registry, sink Sink) *Broadcaster {
	return New(reg, sink, Config{
		Period:  2 * time.Millisecond,
		DT:      0.016,
		Workers: 2,
	}, log.NewNop())
}

func TestBroadcasterDeliversAdvancingTicks(t *testing.T) {
	reg := room.NewRegistry()
	sink := &captureSink{}
	r := populatedRoom(t, reg, "k1", physics.DefaultConstants())

	b := newTestBroadcaster(reg, sink)
	require.NoError(t, b.Start())
	require.ErrorIs(t, b.Start(), ErrAlreadyRunning)

	require.Eventually(t, func() bool {
		return len(sink.states(r.ID())) >= 3
	}, time.Second, time.Millisecond)
	require.NoError(t, b.Stop())
	require.ErrorIs(t, b.Stop(), ErrNotRunning)

	states := sink.states(r.ID())
	for i := 1; i < len(states); i++ {
		require.Greater(t, states[i].Tick, states[i-1].Tick, "ticks must advance monotonically")
	}
	for _, st := range states {
		require.Len(t, st.Objects, 1)
		require.Equal(t, events.StateChecksum(st.Objects), st.Checksum)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Equal(t, []string{"owner"}, sink.deliveries[0].sessions)
}

func TestBroadcasterSkipsEmptyRooms(t *testing.T) {
	reg := room.NewRegistry()
	sink := &captureSink{}
	empty, _ := reg.GetOrCreate("empty", func() *room.Room {
		return room.New("empty", "owner", 5, room.ModeEdit, physics.DefaultConstants())
	})

	b := newTestBroadcaster(reg, sink)
	require.NoError(t, b.Start())
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Stop())

	require.Empty(t, sink.states(empty.ID()), "unwatched rooms must not be stepped")
	err := empty.WithEngine(func(e *physics.Engine) error {
		require.Zero(t, e.Tick())
		return nil
	})
	require.NoError(t, err)
}

func TestBroadcasterIsolatesFailingRoom(t *testing.T) {
	reg := room.NewRegistry()
	sink := &captureSink{}

	poisoned := physics.DefaultConstants()
	poisoned.G = math.MaxFloat64
	sick, _ := reg.GetOrCreate("sick", func() *room.Room {
		return room.New("sick", "owner", 5, room.ModeEdit, poisoned)
	})
	require.True(t, sick.Join("owner"))
	err := sick.WithEngine(func(e *physics.Engine) error {
		for i := 0; i < 2; i++ {
			if _, addErr := e.AddObject(physics.Vec3{X: float64(i)}, physics.Vec3{}, 1e10, 0, 0); addErr != nil {
				return addErr
			}
		}
		return nil
	})
	require.NoError(t, err)

	healthy := populatedRoom(t, reg, "healthy", physics.DefaultConstants())

	b := newTestBroadcaster(reg, sink)
	require.NoError(t, b.Start())
	require.Eventually(t, func() bool {
		return len(sink.states(healthy.ID())) >= 3
	}, time.Second, time.Millisecond)
	require.NoError(t, b.Stop())

	require.Empty(t, sink.states(sick.ID()), "a diverged room delivers nothing")
	require.NotEmpty(t, sink.states(healthy.ID()), "the healthy room keeps ticking")
}

func TestBroadcasterStopReturnsPromptly(t *testing.T) {
	reg := room.NewRegistry()
	b := New(reg, &captureSink{}, Config{Period: 50 * time.Millisecond}, log.NewNop())
	require.NoError(t, b.Start())

	start := time.Now()
	require.NoError(t, b.Stop())
	require.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestSweeperEvictsIdleRooms(t *testing.T) {
	reg := room.NewRegistry()
	idle, _ := reg.GetOrCreate("idle", func() *room.Room {
		return room.New("idle", "owner", 5, room.ModeEdit, physics.DefaultConstants())
	})

	s := NewSweeper(reg, 2*time.Millisecond, 5*time.Millisecond, log.NewNop())
	require.NoError(t, s.Start())
	require.ErrorIs(t, s.Start(), ErrAlreadyRunning)

	require.Eventually(t, func() bool {
		_, ok := reg.Lookup(idle.ID())
		return !ok
	}, time.Second, time.Millisecond)
	require.NoError(t, s.Stop())
	require.ErrorIs(t, s.Stop(), ErrNotRunning)
}
