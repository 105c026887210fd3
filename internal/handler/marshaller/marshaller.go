package marshaller

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-support-service/internal/domain/event"
	"github.com/webitel/im-support-service/internal/domain/model"
)

// Wire types of outbound frames.
const (
	TypeSystem           = "system"
	TypeChat             = "chat"
	TypePresenceSnapshot = "presenceSnapshot"
	TypeSessionSnapshot  = "sessionSnapshot"
	TypeNotification     = "notification"
)

// System codes besides the room notices.
const (
	CodeConnected    = "connected"
	CodeDisconnected = "disconnected"
)

type SystemFrame struct {
	Type          string    `json:"type"`
	ID            string    `json:"id"`
	Code          string    `json:"code"`
	Text          string    `json:"text"`
	SessionID     uuid.UUID `json:"session_id,omitzero"`
	ConnectionID  string    `json:"connection_id,omitempty"`
	ServerVersion string    `json:"server_version,omitempty"`
	At            int64     `json:"at"`
}

type ChatFrame struct {
	Type      string       `json:"type"`
	ID        uuid.UUID    `json:"id"`
	SessionID uuid.UUID    `json:"session_id"`
	SenderID  model.UserID `json:"sender_id"`
	Text      string       `json:"text"`
	SentAt    time.Time    `json:"sent_at"`
}

type PresenceFrame struct {
	Type         string             `json:"type"`
	OnlineByRole map[model.Role]int `json:"online_by_role"`
	TakenAt      time.Time          `json:"taken_at"`
}

type SessionsFrame struct {
	Type     string              `json:"type"`
	Sessions []model.SessionView `json:"sessions"`
	TakenAt  time.Time           `json:"taken_at"`
}

type NotificationFrame struct {
	Type     string                      `json:"type"`
	Envelope *model.NotificationEnvelope `json:"envelope"`
}

// Frame maps a domain event onto its wire structure.
func Frame(ev event.Eventer) (any, error) {
	switch p := ev.GetPayload().(type) {
	case *model.SystemNotice:
		return &SystemFrame{Type: TypeSystem, ID: ev.GetID(), Code: p.Code, Text: p.Text, SessionID: p.SessionID, At: ev.GetOccurredAt()}, nil
	case *model.ConnectedPayload:
		return &SystemFrame{
			Type:          TypeSystem,
			ID:            ev.GetID(),
			Code:          CodeConnected,
			Text:          "connected",
			ConnectionID:  p.ConnectionID,
			ServerVersion: p.ServerVersion,
			At:            ev.GetOccurredAt(),
		}, nil
	case *model.DisconnectedPayload:
		return &SystemFrame{Type: TypeSystem, ID: ev.GetID(), Code: CodeDisconnected, Text: p.Code + ": " + p.Reason, At: ev.GetOccurredAt()}, nil
	case *model.ChatMessage:
		return &ChatFrame{Type: TypeChat, ID: p.ID, SessionID: p.SessionID, SenderID: p.SenderID, Text: p.Text, SentAt: p.SentAt}, nil
	case *model.PresenceSnapshot:
		return &PresenceFrame{Type: TypePresenceSnapshot, OnlineByRole: p.OnlineByRole, TakenAt: p.TakenAt}, nil
	case *model.SessionSnapshot:
		sessions := p.Sessions
		if sessions == nil {
			sessions = []model.SessionView{}
		}
		return &SessionsFrame{Type: TypeSessionSnapshot, Sessions: sessions, TakenAt: p.TakenAt}, nil
	case *model.NotificationEnvelope:
		return &NotificationFrame{Type: TypeNotification, Envelope: p}, nil
	default:
		return nil, fmt.Errorf("marshaller: unsupported payload %T of %s", p, ev.GetKind())
	}
}

// Encode returns the JSON frame of ev. The encoding is cached on the event,
// so an aggregate shared by many viewers is serialised once.
func Encode(ev event.Eventer) ([]byte, error) {
	if cached, ok := ev.GetCached().([]byte); ok {
		return cached, nil
	}

	frame, err := Frame(ev)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("marshaller: %s: %w", ev.GetKind(), err)
	}

	ev.SetCached(data)
	return data, nil
}

// WireType names the frame type of ev without encoding it.
func WireType(ev event.Eventer) string {
	switch ev.GetKind() {
	case event.ChatMessage:
		return TypeChat
	case event.PresenceSnapshot:
		return TypePresenceSnapshot
	case event.SessionSnapshot:
		return TypeSessionSnapshot
	case event.Notification:
		return TypeNotification
	default:
		return TypeSystem
	}
}
