package events

import (
	"github.com/orbitsync/orbitsync/internal/core/physics"
)

// Kind tags every event on the wire.
type Kind string

// Inbound event kinds
const (
	KindJoin            Kind = "join"
	KindLeave           Kind = "leave"
	KindAddParticle     Kind = "add_particle"
	KindRemoveParticle  Kind = "remove_particle"
	KindClear           Kind = "clear"
	KindParameterUpdate Kind = "parameter_update"
	KindDisconnect      Kind = "disconnect"
)

// Outbound event kinds
const (
	KindRoomJoined        Kind = "room_joined"
	KindRoomLeft          Kind = "room_left"
	KindParticleAdded     Kind = "particle_added"
	KindParticleRemoved   Kind = "particle_removed"
	KindSimulationState   Kind = "simulation_state"
	KindSimulationCleared Kind = "simulation_cleared"
	KindParametersUpdated Kind = "parameters_updated"
	KindError             Kind = "error"
)

// Inbound is the closed set of client events. Unknown or malformed payloads
// are rejected at decode time, never inside engine logic.
type Inbound interface {
	InboundKind() Kind
}

// Join requests membership in the room registered under RoomKey, creating it
// when absent. MaxParticipants zero means the server default.
type Join struct {
	UserID          string `json:"user_id"`
	RoomKey         string `json:"room_key"`
	MaxParticipants int    `json:"max_participants,omitempty"`
	Mode            string `json:"mode,omitempty"`
}

// Leave exits the currently bound room while keeping the session alive.
type Leave struct {
	SessionID string `json:"session_id"`
}

// AddParticle inserts one particle into the bound room's simulation.
type AddParticle struct {
	SessionID string       `json:"session_id"`
	Position  physics.Vec3 `json:"position"`
	Velocity  physics.Vec3 `json:"velocity"`
	Mass      float64      `json:"mass"`
	Radius    float64      `json:"radius"`
	Charge    float64      `json:"charge,omitempty"`
}

// RemoveParticle drops one particle by ID. Unknown IDs are a no-op.
type RemoveParticle struct {
	SessionID string `json:"session_id"`
	ObjectID  uint64 `json:"object_id"`
}

// Clear removes every particle from the bound room's simulation.
type Clear struct {
	SessionID string `json:"session_id"`
}

// ParameterUpdate carries a room parameter payload. Recognized physics keys
// retune the engine; everything else passes through to the room's opaque
// parameter bag.
type ParameterUpdate struct {
	SessionID string         `json:"session_id"`
	Payload   map[string]any `json:"payload"`
}

// Disconnect tears the session down entirely.
type Disconnect struct {
	SessionID string `json:"session_id"`
}

func (Join) InboundKind() Kind            { return KindJoin }
func (Leave) InboundKind() Kind           { return KindLeave }
func (AddParticle) InboundKind() Kind     { return KindAddParticle }
func (RemoveParticle) InboundKind() Kind  { return KindRemoveParticle }
func (Clear) InboundKind() Kind           { return KindClear }
func (ParameterUpdate) InboundKind() Kind { return KindParameterUpdate }
func (Disconnect) InboundKind() Kind      { return KindDisconnect }

// Outbound is the closed set of server events.
type Outbound interface {
	OutboundKind() Kind
}

type RoomJoined struct {
	RoomID           string `json:"room_id"`
	SessionID        string `json:"session_id"`
	ParticipantCount int    `json:"participant_count"`
	Mode             string `json:"mode"`
}

type RoomLeft struct {
	RoomID           string `json:"room_id"`
	SessionID        string `json:"session_id"`
	ParticipantCount int    `json:"participant_count"`
}

type ParticleAdded struct {
	RoomID   string       `json:"room_id"`
	ID       uint64       `json:"id"`
	Position physics.Vec3 `json:"position"`
	Velocity physics.Vec3 `json:"velocity"`
	Mass     float64      `json:"mass"`
	Radius   float64      `json:"radius"`
	Charge   float64      `json:"charge,omitempty"`
}

type ParticleRemoved struct {
	RoomID   string `json:"room_id"`
	ObjectID uint64 `json:"object_id"`
}

type SimulationState struct {
	RoomID   string                `json:"room_id"`
	Tick     uint64                `json:"tick"`
	Objects  []physics.ObjectState `json:"objects"`
	Energy   float64               `json:"energy"`
	Checksum uint64                `json:"checksum"`
}

type SimulationCleared struct {
	RoomID string `json:"room_id"`
}

type ParametersUpdated struct {
	RoomID     string         `json:"room_id"`
	Parameters map[string]any `json:"parameters"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (RoomJoined) OutboundKind() Kind        { return KindRoomJoined }
func (RoomLeft) OutboundKind() Kind          { return KindRoomLeft }
func (ParticleAdded) OutboundKind() Kind     { return KindParticleAdded }
func (ParticleRemoved) OutboundKind() Kind   { return KindParticleRemoved }
func (SimulationState) OutboundKind() Kind   { return KindSimulationState }
func (SimulationCleared) OutboundKind() Kind { return KindSimulationCleared }
func (ParametersUpdated) OutboundKind() Kind { return KindParametersUpdated }
func (Error) OutboundKind() Kind             { return KindError }
