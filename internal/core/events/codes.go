package events

import (
	"errors"

	"github.com/orbitsync/orbitsync/internal/core/physics"
	"github.com/orbitsync/orbitsync/internal/core/room"
	"github.com/orbitsync/orbitsync/internal/core/session"
)

// Error codes reported to clients in Error events.
const (
	CodeInvalidParameter   = "invalid_parameter"
	CodeRoomFull           = "room_full"
	CodeRoomNotFound       = "room_not_found"
	CodeTooManyConnections = "too_many_connections"
	CodeSessionNotFound    = "session_not_found"
	CodeForbidden          = "forbidden"
	CodeEngineStep         = "engine_step"
	CodeMalformedEvent     = "malformed_event"
	CodeInternal           = "internal"
)

// CodeFor maps an engine error to its wire code.
func CodeFor(err error) string {
	switch {
	case errors.Is(err, physics.ErrInvalidParameter),
		errors.Is(err, physics.ErrInvalidConstants):
		return CodeInvalidParameter
	case errors.Is(err, room.ErrRoomFull):
		return CodeRoomFull
	case errors.Is(err, room.ErrRoomNotFound):
		return CodeRoomNotFound
	case errors.Is(err, session.ErrSessionNotFound):
		return CodeSessionNotFound
	case errors.Is(err, session.ErrTooManyConnections):
		return CodeTooManyConnections
	case errors.Is(err, room.ErrViewOnly):
		return CodeForbidden
	case errors.Is(err, physics.ErrNumericalInstability):
		return CodeEngineStep
	case errors.Is(err, ErrMalformed), errors.Is(err, ErrUnknownKind):
		return CodeMalformedEvent
	default:
		return CodeInternal
	}
}

// NewError builds the client-facing error event for err.
func NewError(err error) Error {
	return Error{Code: CodeFor(err), Message: err.Error()}
}
