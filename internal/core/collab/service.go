package collab

import (
	"github.com/orbitsync/orbitsync/internal/core/events"
	"github.com/orbitsync/orbitsync/internal/core/observability/log"
	"github.com/orbitsync/orbitsync/internal/core/physics"
	"github.com/orbitsync/orbitsync/internal/core/room"
	"github.com/orbitsync/orbitsync/internal/core/session"
)

// Fanout is a room-wide notification the gateway delivers after the service
// call returns, so no delivery ever happens under a lock.
type Fanout struct {
	Sessions []string
	Event    events.Outbound
}

// Options configure room creation defaults.
type Options struct {
	Constants    physics.Constants
	RoomCapacity int
}

// Service implements the inbound event operations on top of the registry
// and tracker. All methods follow the registry-then-room lock order and
// return pure results; delivery is the caller's job.
type Service struct {
	registry *room.Registry
	tracker  *session.Tracker
	opts     Options
	logger   log.Log
}

func NewService(registry *room.Registry, tracker *session.Tracker, opts Options, logger log.Log) *Service {
	if opts.RoomCapacity <= 0 {
		opts.RoomCapacity = 5
	}
	return &Service{
		registry: registry,
		tracker:  tracker,
		opts:     opts,
		logger:   logger.With(log.String("component", "collab")),
	}
}

// Connect registers a new session for the user, enforcing the per-user cap.
func (s *Service) Connect(userID string) (string, error) {
	return s.tracker.Connect(userID)
}

// Join binds the session to the room registered for (room_key, mode),
// creating it on first join. A session already bound elsewhere leaves the
// old room first; moving rooms is a leave plus a join, never an overwrite.
func (s *Service) Join(sessionID string, ev events.Join) (events.RoomJoined, []Fanout, error) {
	var fanouts []Fanout
	if prevID, ok := s.tracker.Room(sessionID); ok {
		if _, err := s.tracker.UnbindRoom(sessionID); err != nil {
			return events.RoomJoined{}, nil, err
		}
		fanouts = append(fanouts, s.leaveRoom(sessionID, prevID)...)
	}

	mode := room.ParseMode(ev.Mode)
	capacity := ev.MaxParticipants
	if capacity <= 0 {
		capacity = s.opts.RoomCapacity
	}
	key := ev.RoomKey + "/" + string(mode)

	r, created := s.registry.GetOrCreate(key, func() *room.Room {
		return room.New(key, sessionID, capacity, mode, s.opts.Constants)
	})
	if !r.Join(sessionID) {
		if created {
			s.registry.RemoveIfEmpty(r.ID())
		}
		return events.RoomJoined{}, fanouts, room.ErrRoomFull
	}
	if _, err := s.tracker.BindRoom(sessionID, r.ID()); err != nil {
		// Session vanished between capacity check and bind; undo the join.
		if r.Leave(sessionID) {
			s.registry.RemoveIfEmpty(r.ID())
		}
		return events.RoomJoined{}, fanouts, err
	}

	if created {
		s.logger.Info("room created",
			log.String("room_id", r.ID()),
			log.String("key", key),
			log.Int("capacity", capacity))
	}

	joined := events.RoomJoined{
		RoomID:           r.ID(),
		SessionID:        sessionID,
		ParticipantCount: r.ParticipantCount(),
		Mode:             string(mode),
	}
	fanouts = append(fanouts, Fanout{Sessions: rosterExcept(r, sessionID), Event: joined})
	return joined, fanouts, nil
}

// Leave exits the bound room, destroying it eagerly when it empties.
func (s *Service) Leave(sessionID string) (events.RoomLeft, []Fanout, error) {
	roomID, err := s.tracker.UnbindRoom(sessionID)
	if err != nil {
		return events.RoomLeft{}, nil, err
	}
	if roomID == "" {
		return events.RoomLeft{}, nil, room.ErrRoomNotFound
	}
	left := events.RoomLeft{RoomID: roomID, SessionID: sessionID}
	fanouts := s.leaveRoom(sessionID, roomID)
	if r, ok := s.registry.Lookup(roomID); ok {
		left.ParticipantCount = r.ParticipantCount()
	}
	return left, fanouts, nil
}

// Disconnect removes the session entirely and cascades the room leave.
func (s *Service) Disconnect(sessionID string) ([]Fanout, error) {
	roomID, err := s.tracker.Disconnect(sessionID)
	if err != nil {
		return nil, err
	}
	if roomID == "" {
		return nil, nil
	}
	return s.leaveRoom(sessionID, roomID), nil
}

// AddParticle inserts a particle into the session's room.
func (s *Service) AddParticle(sessionID string, ev events.AddParticle) (events.ParticleAdded, []Fanout, error) {
	r, err := s.mutableRoom(sessionID)
	if err != nil {
		return events.ParticleAdded{}, nil, err
	}
	var id uint64
	err = r.WithEngine(func(e *physics.Engine) error {
		var addErr error
		id, addErr = e.AddObject(ev.Position, ev.Velocity, ev.Mass, ev.Radius, ev.Charge)
		return addErr
	})
	if err != nil {
		return events.ParticleAdded{}, nil, err
	}
	added := events.ParticleAdded{
		RoomID:   r.ID(),
		ID:       id,
		Position: ev.Position,
		Velocity: ev.Velocity,
		Mass:     ev.Mass,
		Radius:   ev.Radius,
		Charge:   ev.Charge,
	}
	return added, []Fanout{{Sessions: rosterExcept(r, sessionID), Event: added}}, nil
}

// RemoveParticle drops a particle by ID; unknown IDs are a silent no-op.
func (s *Service) RemoveParticle(sessionID string, ev events.RemoveParticle) (events.ParticleRemoved, []Fanout, error) {
	r, err := s.mutableRoom(sessionID)
	if err != nil {
		return events.ParticleRemoved{}, nil, err
	}
	_ = r.WithEngine(func(e *physics.Engine) error {
		e.RemoveObject(ev.ObjectID)
		return nil
	})
	removed := events.ParticleRemoved{RoomID: r.ID(), ObjectID: ev.ObjectID}
	return removed, []Fanout{{Sessions: rosterExcept(r, sessionID), Event: removed}}, nil
}

// Clear removes every particle from the session's room. Idempotent.
func (s *Service) Clear(sessionID string) (events.SimulationCleared, []Fanout, error) {
	r, err := s.mutableRoom(sessionID)
	if err != nil {
		return events.SimulationCleared{}, nil, err
	}
	_ = r.WithEngine(func(e *physics.Engine) error {
		e.Clear()
		return nil
	})
	cleared := events.SimulationCleared{RoomID: r.ID()}
	return cleared, []Fanout{{Sessions: rosterExcept(r, sessionID), Event: cleared}}, nil
}

// Physics constant keys recognized in parameter_update payloads.
const (
	paramGravity     = "g"
	paramCoulomb     = "k"
	paramDamping     = "damping"
	paramRestitution = "restitution"
)

// UpdateParameters retunes the engine for recognized physics keys and folds
// everything else into the room's opaque parameter bag.
func (s *Service) UpdateParameters(sessionID string, ev events.ParameterUpdate) (events.ParametersUpdated, []Fanout, error) {
	r, err := s.mutableRoom(sessionID)
	if err != nil {
		return events.ParametersUpdated{}, nil, err
	}

	opaque := make(map[string]any)
	tuned := false
	err = r.WithEngine(func(e *physics.Engine) error {
		consts := e.Constants()
		for k, v := range ev.Payload {
			f, isNumber := asFloat(v)
			switch {
			case k == paramGravity && isNumber:
				consts.G = f
				tuned = true
			case k == paramCoulomb && isNumber:
				consts.K = f
				tuned = true
			case k == paramDamping && isNumber:
				consts.Damping = f
				tuned = true
			case k == paramRestitution && isNumber:
				consts.Restitution = f
				tuned = true
			default:
				opaque[k] = v
			}
		}
		if !tuned {
			return nil
		}
		return e.SetConstants(consts)
	})
	if err != nil {
		return events.ParametersUpdated{}, nil, err
	}

	merged := r.MergeParams(opaque)
	updated := events.ParametersUpdated{RoomID: r.ID(), Parameters: merged}
	return updated, []Fanout{{Sessions: rosterExcept(r, sessionID), Event: updated}}, nil
}

// leaveRoom performs the room-side half of a leave or disconnect, destroying
// the room eagerly when the last participant is gone. A room that already
// vanished is not an error.
func (s *Service) leaveRoom(sessionID, roomID string) []Fanout {
	r, ok := s.registry.Lookup(roomID)
	if !ok {
		return nil
	}
	if r.Leave(sessionID) {
		if s.registry.RemoveIfEmpty(roomID) {
			s.logger.Info("room destroyed", log.String("room_id", roomID))
		}
		return nil
	}
	left := events.RoomLeft{
		RoomID:           roomID,
		SessionID:        sessionID,
		ParticipantCount: r.ParticipantCount(),
	}
	return []Fanout{{Sessions: r.Roster(), Event: left}}
}

// mutableRoom resolves the session's room and checks mutation rights.
func (s *Service) mutableRoom(sessionID string) (*room.Room, error) {
	roomID, ok := s.tracker.Room(sessionID)
	if !ok {
		return nil, room.ErrRoomNotFound
	}
	r, ok := s.registry.Lookup(roomID)
	if !ok {
		return nil, room.ErrRoomNotFound
	}
	if !r.CanMutate(sessionID) {
		return nil, room.ErrViewOnly
	}
	return r, nil
}

func rosterExcept(r *room.Room, sessionID string) []string {
	roster := r.Roster()
	out := roster[:0]
	for _, id := range roster {
		if id != sessionID {
			out = append(out, id)
		}
	}
	return out
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
