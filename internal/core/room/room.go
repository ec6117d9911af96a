package room

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orbitsync/orbitsync/internal/core/physics"
)

// Mode controls which participants may mutate a room's simulation.
type Mode string

const (
	// ModeEdit lets every participant mutate the simulation.
	ModeEdit Mode = "edit"
	// ModeView restricts mutation to the owning session; everyone else
	// only observes.
	ModeView Mode = "view"
)

// ParseMode maps a client-supplied string to a Mode, defaulting to edit.
func ParseMode(s string) Mode {
	if Mode(s) == ModeView {
		return ModeView
	}
	return ModeEdit
}

// Snapshot is the result of stepping a room's engine once, taken under the
// room lock so callers can deliver it after the lock is released.
type Snapshot struct {
	Tick    uint64
	Objects []physics.ObjectState
	Energy  float64
}

// Room aggregates one physics engine with a bounded participant set.
// The room's own mutex guards the participant set, the parameter bag and the
// engine; the engine is never touched without it.
type Room struct {
	id    string
	key   string
	owner string
	mode  Mode

	mu              sync.Mutex
	participants    map[string]struct{}
	maxParticipants int
	engine          *physics.Engine
	params          map[string]any
	lastActivity    time.Time
}

// New creates a room with a fresh engine. The owner is recorded but not
// joined; joining is always an explicit call.
func New(key, owner string, maxParticipants int, mode Mode, consts physics.Constants) *Room {
	return &Room{
		id:              uuid.NewString(),
		key:             key,
		owner:           owner,
		mode:            mode,
		participants:    make(map[string]struct{}),
		maxParticipants: maxParticipants,
		engine:          physics.NewEngine(consts),
		params:          make(map[string]any),
		lastActivity:    time.Now(),
	}
}

func (r *Room) ID() string    { return r.id }
func (r *Room) Key() string   { return r.key }
func (r *Room) Owner() string { return r.owner }
func (r *Room) Mode() Mode    { return r.mode }

// Join adds a session if capacity allows. The capacity check and the insert
// happen under one lock acquisition, so the participant count can never
// exceed the cap.
func (r *Room) Join(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.participants) >= r.maxParticipants {
		return false
	}
	r.participants[sessionID] = struct{}{}
	r.lastActivity = time.Now()
	return true
}

// Leave removes a session and reports whether the room is now empty so the
// caller can decide on destruction.
func (r *Room) Leave(sessionID string) (empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.participants, sessionID)
	r.lastActivity = time.Now()
	return len(r.participants) == 0
}

// Has reports whether the session is currently joined.
func (r *Room) Has(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.participants[sessionID]
	return ok
}

// Roster returns a copy of the current participant set.
func (r *Room) Roster() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	roster := make([]string, 0, len(r.participants))
	for id := range r.participants {
		roster = append(roster, id)
	}
	return roster
}

// ParticipantCount returns the current number of joined sessions.
func (r *Room) ParticipantCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.participants)
}

// LastActivity returns the time of the most recent join, leave or mutation.
func (r *Room) LastActivity() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActivity
}

// CanMutate reports whether the session may mutate this room's simulation.
func (r *Room) CanMutate(sessionID string) bool {
	if r.mode == ModeEdit {
		return true
	}
	return sessionID == r.owner
}

// WithEngine runs fn with the engine under the room lock. This is the only
// way to reach the engine, so no caller can cache an engine reference across
// a lock release. Counts as room activity.
func (r *Room) WithEngine(fn func(*physics.Engine) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := fn(r.engine)
	r.lastActivity = time.Now()
	return err
}

// Step advances the engine one tick under the room lock and returns the
// snapshot for delivery after unlock. Ticks do not count as activity; an
// abandoned room must still age out of the registry.
func (r *Room) Step(dt float64) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	objects, err := r.engine.Step(dt)
	if err != nil {
		return Snapshot{Tick: r.engine.Tick()}, err
	}
	return Snapshot{
		Tick:    r.engine.Tick(),
		Objects: objects,
		Energy:  r.engine.Energy(),
	}, nil
}

// MergeParams folds unrecognized parameter-update keys into the room's
// opaque parameter bag and returns a copy of the merged bag.
func (r *Room) MergeParams(params map[string]any) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range params {
		r.params[k] = v
	}
	merged := make(map[string]any, len(r.params))
	for k, v := range r.params {
		merged[k] = v
	}
	r.lastActivity = time.Now()
	return merged
}
