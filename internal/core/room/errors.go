package room

import "errors"

// Room and registry errors
var (
	ErrRoomFull     = errors.New("room is full")
	ErrRoomNotFound = errors.New("room not found")
	ErrViewOnly     = errors.New("room is view-only for this session")
)
