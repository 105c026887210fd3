package model

import (
	"time"

	"github.com/google/uuid"
)

// PresenceSnapshot is the aggregate pushed to dashboards on every presence change.
type PresenceSnapshot struct {
	OnlineByRole map[Role]int `json:"online_by_role"`
	TakenAt      time.Time    `json:"taken_at"`
}

// SessionView is the dashboard projection of one active pairing.
type SessionView struct {
	SessionID uuid.UUID    `json:"session_id"`
	User      UserIdentity `json:"user"`
	Listener  UserIdentity `json:"listener"`
	Status    RoomStatus   `json:"status"`
	StartedAt time.Time    `json:"started_at"`
}

type SessionSnapshot struct {
	Sessions []SessionView `json:"sessions"`
	TakenAt  time.Time     `json:"taken_at"`
}

// SystemNotice is the payload of "system" events (room joined/left, session notices).
type SystemNotice struct {
	SessionID uuid.UUID `json:"session_id,omitempty"`
	Code      string    `json:"code"`
	Text      string    `json:"text"`
}

const (
	NoticeJoined = "joined"
	NoticeLeft   = "left"
)

// ChatMessage is a relayed room message.
type ChatMessage struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	SenderID  UserID    `json:"sender_id"`
	Text      string    `json:"text"`
	SentAt    time.Time `json:"sent_at"`
}
