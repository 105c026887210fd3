package model

import "errors"

// Invariant violations. They are returned to the immediate caller and never swallowed.
var (
	ErrAlreadyPaired = errors.New("user is already paired")
	ErrRoomFull      = errors.New("session room is full")
	ErrNotInRoom     = errors.New("sender is not a participant of the room")
	ErrUnknownUser   = errors.New("user has no presence entry")
)

// Lifecycle and request errors.
var (
	ErrRoomClosed     = errors.New("session room is closed")
	ErrAlreadyJoined  = errors.New("user already joined the room")
	ErrUnknownSession = errors.New("unknown session")
	ErrUnknownRequest = errors.New("unknown or expired session request")
	ErrRoleMismatch   = errors.New("role does not allow this operation")
	ErrSelfPair       = errors.New("user cannot be paired with itself")
)
