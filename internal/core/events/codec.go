package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/orbitsync/orbitsync/internal/core/physics"
)

// Codec errors
var (
	ErrUnknownKind = errors.New("unknown event kind")
	ErrMalformed   = errors.New("malformed event payload")
)

// Envelope is the wire framing: a kind tag plus the kind-specific payload.
type Envelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodeInbound parses one client event, rejecting unknown kinds and
// payloads missing required fields.
func DecodeInbound(data []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case KindJoin:
		var ev Join
		if err := decodePayload(env.Payload, &ev); err != nil {
			return nil, err
		}
		if ev.UserID == "" || ev.RoomKey == "" {
			return nil, fmt.Errorf("%w: join requires user_id and room_key", ErrMalformed)
		}
		if ev.MaxParticipants < 0 {
			return nil, fmt.Errorf("%w: max_participants must be non-negative", ErrMalformed)
		}
		return ev, nil
	case KindLeave:
		var ev Leave
		if err := decodePayload(env.Payload, &ev); err != nil {
			return nil, err
		}
		if ev.SessionID == "" {
			return nil, errMissingSession("leave")
		}
		return ev, nil
	case KindAddParticle:
		var ev AddParticle
		if err := decodePayload(env.Payload, &ev); err != nil {
			return nil, err
		}
		if ev.SessionID == "" {
			return nil, errMissingSession("add_particle")
		}
		if !ev.Position.IsFinite() || !ev.Velocity.IsFinite() {
			return nil, fmt.Errorf("%w: add_particle vectors must be finite", ErrMalformed)
		}
		return ev, nil
	case KindRemoveParticle:
		var ev RemoveParticle
		if err := decodePayload(env.Payload, &ev); err != nil {
			return nil, err
		}
		if ev.SessionID == "" {
			return nil, errMissingSession("remove_particle")
		}
		return ev, nil
	case KindClear:
		var ev Clear
		if err := decodePayload(env.Payload, &ev); err != nil {
			return nil, err
		}
		if ev.SessionID == "" {
			return nil, errMissingSession("clear")
		}
		return ev, nil
	case KindParameterUpdate:
		var ev ParameterUpdate
		if err := decodePayload(env.Payload, &ev); err != nil {
			return nil, err
		}
		if ev.SessionID == "" {
			return nil, errMissingSession("parameter_update")
		}
		return ev, nil
	case KindDisconnect:
		var ev Disconnect
		if err := decodePayload(env.Payload, &ev); err != nil {
			return nil, err
		}
		if ev.SessionID == "" {
			return nil, errMissingSession("disconnect")
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
	}
}

func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing payload", ErrMalformed)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func errMissingSession(kind string) error {
	return fmt.Errorf("%w: %s requires session_id", ErrMalformed, kind)
}

// EncodeOutbound wraps a server event in its envelope.
func EncodeOutbound(ev Outbound) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: ev.OutboundKind(), Payload: payload})
}

// StateChecksum hashes a tick snapshot so clients can cheaply detect
// duplicate frames.
func StateChecksum(objects []physics.ObjectState) uint64 {
	data, err := json.Marshal(objects)
	if err != nil {
		return 0
	}
	return xxhash.Sum64(data)
}
