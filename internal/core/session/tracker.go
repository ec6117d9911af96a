package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Tracker errors
var (
	ErrTooManyConnections = errors.New("too many connections for user")
	ErrSessionNotFound    = errors.New("session not found")
)

type entry struct {
	userID string
	roomID string
}

// Tracker maps users to their active sessions, enforcing the per-user
// connection cap, and maps each session to the room it is bound to. A
// session is bound to at most one room at a time.
type Tracker struct {
	mu         sync.Mutex
	maxPerUser int
	users      map[string]map[string]struct{}
	sessions   map[string]*entry
}

func NewTracker(maxPerUser int) *Tracker {
	return &Tracker{
		maxPerUser: maxPerUser,
		users:      make(map[string]map[string]struct{}),
		sessions:   make(map[string]*entry),
	}
}

// Connect registers a new session for the user and returns its generated ID.
// The cap check and the insert are atomic under the tracker lock.
func (t *Tracker) Connect(userID string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.users[userID]) >= t.maxPerUser {
		return "", ErrTooManyConnections
	}
	sessionID := uuid.NewString()
	if t.users[userID] == nil {
		t.users[userID] = make(map[string]struct{})
	}
	t.users[userID][sessionID] = struct{}{}
	t.sessions[sessionID] = &entry{userID: userID}
	return sessionID, nil
}

// Disconnect removes the session and returns the room it was bound to, if
// any, so the caller can cascade the leave.
func (t *Tracker) Disconnect(sessionID string) (roomID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.sessions[sessionID]
	if !ok {
		return "", ErrSessionNotFound
	}
	delete(t.sessions, sessionID)
	if set := t.users[e.userID]; set != nil {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(t.users, e.userID)
		}
	}
	return e.roomID, nil
}

// BindRoom binds the session to a room, returning the previously bound room
// ID. A non-empty previous ID means the caller must treat the move as a
// leave from the old room; binding never silently overwrites membership.
func (t *Tracker) BindRoom(sessionID, roomID string) (previous string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.sessions[sessionID]
	if !ok {
		return "", ErrSessionNotFound
	}
	previous = e.roomID
	if previous == roomID {
		previous = ""
	}
	e.roomID = roomID
	return previous, nil
}

// UnbindRoom clears the session's room binding and returns the room it was
// bound to.
func (t *Tracker) UnbindRoom(sessionID string) (roomID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.sessions[sessionID]
	if !ok {
		return "", ErrSessionNotFound
	}
	roomID = e.roomID
	e.roomID = ""
	return roomID, nil
}

// Room returns the room the session is currently bound to.
func (t *Tracker) Room(sessionID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.sessions[sessionID]
	if !ok || e.roomID == "" {
		return "", false
	}
	return e.roomID, true
}

// User returns the user a session belongs to.
func (t *Tracker) User(sessionID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.sessions[sessionID]
	if !ok {
		return "", false
	}
	return e.userID, true
}

// SessionCount returns the number of active sessions for the user.
func (t *Tracker) SessionCount(userID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.users[userID])
}
