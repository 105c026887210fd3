package model

import (
	"time"

	"github.com/google/uuid"
)

//go:generate stringer -type=EnvelopeKind
type EnvelopeKind int8

const (
	EnvelopeRequest EnvelopeKind = iota + 1
	EnvelopeAccept
	EnvelopeReject
	EnvelopeEnd
	EnvelopeChat
)

func (k EnvelopeKind) String() string {
	switch k {
	case EnvelopeRequest:
		return "REQUEST"
	case EnvelopeAccept:
		return "ACCEPT"
	case EnvelopeReject:
		return "REJECT"
	case EnvelopeEnd:
		return "END"
	case EnvelopeChat:
		return "CHAT"
	default:
		return "UNKNOWN"
	}
}

func (k EnvelopeKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// NotificationEnvelope is a single event addressed to one user's live subscriber.
// Delivery is at-most-once; Delivered is set by the receiver's cell once its live
// handle accepted it, which may be after Hub.Publish already reported it queued.
type NotificationEnvelope struct {
	ID         uuid.UUID    `json:"id"`
	SenderID   UserID       `json:"sender_id"`
	ReceiverID UserID       `json:"receiver_id"`
	Kind       EnvelopeKind `json:"kind"`
	Payload    any          `json:"payload,omitempty"`
	SentAt     time.Time    `json:"sent_at"`
	Delivered  bool         `json:"delivered"`
}

func NewEnvelope(kind EnvelopeKind, sender, receiver UserID, payload any) *NotificationEnvelope {
	return &NotificationEnvelope{
		ID:         uuid.New(),
		SenderID:   sender,
		ReceiverID: receiver,
		Kind:       kind,
		Payload:    payload,
		SentAt:     time.Now(),
	}
}

// SessionRequest is a pending ask from a user to a listener.
type SessionRequest struct {
	ID          uuid.UUID    `json:"request_id"`
	From        UserIdentity `json:"from"`
	ListenerID  UserID       `json:"listener_id"`
	RequestedAt time.Time    `json:"requested_at"`
}

// [ENVELOPE_PAYLOADS]

type RequestPayload struct {
	RequestID uuid.UUID    `json:"request_id"`
	From      UserIdentity `json:"from"`
}

type AcceptPayload struct {
	RequestID uuid.UUID    `json:"request_id"`
	SessionID uuid.UUID    `json:"session_id"`
	Listener  UserIdentity `json:"listener"`
}

type RejectPayload struct {
	RequestID uuid.UUID `json:"request_id"`
}

type EndPayload struct {
	SessionID uuid.UUID `json:"session_id"`
	Reason    string    `json:"reason"`
}
