package room

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orbitsync/orbitsync/internal/core/physics"
)

func buildRoom(key string) func() *Room {
	return func() *Room {
		return New(key, "owner", 5, ModeEdit, physics.DefaultConstants())
	}
}

func TestGetOrCreateReturnsExisting(t *testing.T) {
	reg := NewRegistry()

	first, created := reg.GetOrCreate("k1", buildRoom("k1"))
	require.True(t, created)

	second, created := reg.GetOrCreate("k1", buildRoom("k1"))
	require.False(t, created)
	require.Same(t, first, second)
	require.Equal(t, 1, reg.Len())
}

func TestGetOrCreateIsAtomicUnderConcurrency(t *testing.T) {
	reg := NewRegistry()

	const callers = 20
	rooms := make(chan *Room, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, _ := reg.GetOrCreate("shared", buildRoom("shared"))
			rooms <- r
		}()
	}
	wg.Wait()
	close(rooms)

	var first *Room
	for r := range rooms {
		if first == nil {
			first = r
			continue
		}
		require.Same(t, first, r, "concurrent callers must share one room")
	}
	require.Equal(t, 1, reg.Len())
}

func TestLookupByID(t *testing.T) {
	reg := NewRegistry()
	r, _ := reg.GetOrCreate("k1", buildRoom("k1"))

	found, ok := reg.Lookup(r.ID())
	require.True(t, ok)
	require.Same(t, r, found)

	_, ok = reg.Lookup("nope")
	require.False(t, ok)
}

func TestRemoveIfEmptyKeepsPopulatedRooms(t *testing.T) {
	reg := NewRegistry()
	r, _ := reg.GetOrCreate("k1", buildRoom("k1"))
	require.True(t, r.Join("a"))

	require.False(t, reg.RemoveIfEmpty(r.ID()))
	require.Equal(t, 1, reg.Len())

	r.Leave("a")
	require.True(t, reg.RemoveIfEmpty(r.ID()))
	require.Equal(t, 0, reg.Len())

	require.False(t, reg.RemoveIfEmpty(r.ID()), "second removal is a no-op")
}

func TestRemovedKeyYieldsFreshRoom(t *testing.T) {
	reg := NewRegistry()
	old, _ := reg.GetOrCreate("k1", buildRoom("k1"))
	require.True(t, reg.RemoveIfEmpty(old.ID()))

	fresh, created := reg.GetOrCreate("k1", buildRoom("k1"))
	require.True(t, created)
	require.NotEqual(t, old.ID(), fresh.ID(), "a destroyed key must produce a brand-new room")
	err := fresh.WithEngine(func(e *physics.Engine) error {
		require.Equal(t, 0, e.Len())
		return nil
	})
	require.NoError(t, err)
}

func TestSweepEvictsIdleRooms(t *testing.T) {
	reg := NewRegistry()
	idle, _ := reg.GetOrCreate("idle", buildRoom("idle"))

	time.Sleep(20 * time.Millisecond)
	busy, _ := reg.GetOrCreate("busy", buildRoom("busy"))
	require.True(t, busy.Join("a"))

	evicted := reg.Sweep(10 * time.Millisecond)
	require.Equal(t, []string{idle.ID()}, evicted)
	require.Equal(t, 1, reg.Len())

	_, ok := reg.Lookup(idle.ID())
	require.False(t, ok)
	_, ok = reg.Lookup(busy.ID())
	require.True(t, ok)
}

func TestSweepWithRecentActivityEvictsNothing(t *testing.T) {
	reg := NewRegistry()
	reg.GetOrCreate("k1", buildRoom("k1"))

	require.Empty(t, reg.Sweep(time.Hour))
	require.Equal(t, 1, reg.Len())
}
