package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionPairing is the symmetric relation linking two users for one session.
// By convention UserA is the requester (USER) and UserB the listener, but
// every lookup treats both sides equally.
type SessionPairing struct {
	SessionID uuid.UUID `json:"session_id"`
	UserA     UserID    `json:"user_a"`
	UserB     UserID    `json:"user_b"`
	StartedAt time.Time `json:"started_at"`
}

func NewSessionPairing(a, b UserID) *SessionPairing {
	return &SessionPairing{
		SessionID: uuid.New(),
		UserA:     a,
		UserB:     b,
		StartedAt: time.Now(),
	}
}

// Has reports whether the user is one of the two sides.
func (p *SessionPairing) Has(id UserID) bool {
	return p.UserA == id || p.UserB == id
}

// Peer returns the opposite side. ok is false when id is not part of the pairing.
func (p *SessionPairing) Peer(id UserID) (UserID, bool) {
	switch id {
	case p.UserA:
		return p.UserB, true
	case p.UserB:
		return p.UserA, true
	}
	return 0, false
}

func (p *SessionPairing) Users() [2]UserID { return [2]UserID{p.UserA, p.UserB} }

// SessionFilter selects sessions by one side of the pairing.
// Side is resolved once at the API boundary; RoleUser matches UserA,
// RoleListener matches UserB, zero Side matches everything.
type SessionFilter struct {
	Side Role
	ID   UserID
}

func (f SessionFilter) Match(p *SessionPairing) bool {
	switch f.Side {
	case RoleUser:
		return p.UserA == f.ID
	case RoleListener:
		return p.UserB == f.ID
	default:
		return true
	}
}
