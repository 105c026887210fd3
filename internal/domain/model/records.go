package model

import (
	"time"

	"github.com/google/uuid"
)

// ChatRecord is handed to the persistence collaborator after a relay.
type ChatRecord struct {
	SessionID uuid.UUID `json:"session_id"`
	SenderID  UserID    `json:"sender_id"`
	Text      string    `json:"text"`
	SentAt    time.Time `json:"sent_at"`
}

// GetRoutingKey: im_support.v1.{session_id}.chat.persisted
func (r *ChatRecord) GetRoutingKey() string {
	return "im_support.v1." + r.SessionID.String() + ".chat.persisted"
}

// SessionRecord is written once when a session starts and again when it ends.
type SessionRecord struct {
	SessionID uuid.UUID  `json:"session_id"`
	UserIDs   [2]UserID  `json:"user_ids"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

func NewSessionRecord(p *SessionPairing) *SessionRecord {
	return &SessionRecord{
		SessionID: p.SessionID,
		UserIDs:   p.Users(),
		StartedAt: p.StartedAt,
	}
}

// Ended marks the record terminal.
func (r *SessionRecord) Ended(at time.Time, reason string) *SessionRecord {
	r.EndedAt = &at
	r.Reason = reason
	return r
}

// GetRoutingKey: im_support.v1.{session_id}.session.started|ended
func (r *SessionRecord) GetRoutingKey() string {
	state := "started"
	if r.EndedAt != nil {
		state = "ended"
	}
	return "im_support.v1." + r.SessionID.String() + ".session." + state
}
