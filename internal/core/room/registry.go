package room

import (
	"sync"
	"time"
)

// Registry is the process-wide map of live rooms. Its single mutex guards
// the map itself; each room guards its own state. The only permitted nesting
// is registry lock then room lock, never the reverse.
//
// A Registry is an explicit value constructed at process start and passed by
// handle to the gateway, the tick loop and the sweeper. Nothing in this
// package is a global.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room // by lookup key
	byID  map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
		byID:  make(map[string]string),
	}
}

// GetOrCreate returns the room registered under key, creating and inserting
// it first if absent. Check and insert happen under the registry lock, so
// two concurrent callers for the same key always receive the same room.
func (g *Registry) GetOrCreate(key string, build func() *Room) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.rooms[key]; ok {
		return r, false
	}
	r := build()
	g.rooms[key] = r
	g.byID[r.ID()] = key
	return r, true
}

// Lookup finds a room by its generated ID.
func (g *Registry) Lookup(roomID string) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key, ok := g.byID[roomID]
	if !ok {
		return nil, false
	}
	r, ok := g.rooms[key]
	return r, ok
}

// RoomIDs copies the current ID list. The tick loop uses this so the
// registry lock is held only for the copy, never for a whole tick.
func (g *Registry) RoomIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]string, 0, len(g.byID))
	for id := range g.byID {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of registered rooms.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// RemoveIfEmpty deletes the room if it still has no participants. The
// emptiness re-check runs under the registry lock so a join racing with the
// last leave never loses its room.
func (g *Registry) RemoveIfEmpty(roomID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	key, ok := g.byID[roomID]
	if !ok {
		return false
	}
	r := g.rooms[key]
	if r.ParticipantCount() > 0 {
		return false
	}
	delete(g.rooms, key)
	delete(g.byID, roomID)
	return true
}

// Sweep evicts every room whose last activity is older than maxIdle and
// returns the evicted room IDs. This is the backstop against rooms leaked by
// clients that disconnect without a leave event.
func (g *Registry) Sweep(maxIdle time.Duration) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	cutoff := time.Now().Add(-maxIdle)
	var evicted []string
	for key, r := range g.rooms {
		if r.LastActivity().After(cutoff) {
			continue
		}
		delete(g.rooms, key)
		delete(g.byID, r.ID())
		evicted = append(evicted, r.ID())
	}
	return evicted
}
