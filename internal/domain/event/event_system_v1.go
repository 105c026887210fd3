package event

import (
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-support-service/internal/domain/model"
)

// [GUARD] Ensure compliance with the Eventer interface.
var _ Eventer = (*SystemEvent)(nil)

// SystemEvent is a generic envelope for internal signals and room notices.
type SystemEvent struct {
	cacheSlot
	id         string
	userID     model.UserID
	kind       EventKind
	priority   EventPriority
	occurredAt int64
	payload    any
}

func (e *SystemEvent) GetID() string              { return e.id }
func (e *SystemEvent) GetKind() EventKind         { return e.kind }
func (e *SystemEvent) GetUserID() model.UserID    { return e.userID }
func (e *SystemEvent) GetPriority() EventPriority { return e.priority }
func (e *SystemEvent) GetOccurredAt() int64       { return e.occurredAt }
func (e *SystemEvent) GetPayload() any            { return e.payload }

// NewSystemEvent is a universal factory for creating any signal.
func NewSystemEvent(userID model.UserID, kind EventKind, priority EventPriority, payload any) *SystemEvent {
	return &SystemEvent{
		id:         uuid.NewString(),
		userID:     userID,
		kind:       kind,
		priority:   priority,
		occurredAt: time.Now().UnixMilli(),
		payload:    payload,
	}
}

// NewNoticeEvent builds the "system" text event rooms send on join/leave.
func NewNoticeEvent(userID model.UserID, sessionID uuid.UUID, code, text string) *SystemEvent {
	return NewSystemEvent(userID, Notice, PriorityHigh, &model.SystemNotice{
		SessionID: sessionID,
		Code:      code,
		Text:      text,
	})
}

// NewConnectedEvent is the handshake frame of every stream.
func NewConnectedEvent(userID model.UserID, connID string) *SystemEvent {
	return NewSystemEvent(userID, Connected, PriorityNormal, &model.ConnectedPayload{
		Ok:            true,
		ConnectionID:  connID,
		ServerVersion: model.ServerVersion,
	})
}

// NewDisconnectedEvent is the goodbye frame pushed before the server drops a stream.
func NewDisconnectedEvent(userID model.UserID, code, reason string) *SystemEvent {
	return NewSystemEvent(userID, Disconnected, PriorityHigh, &model.DisconnectedPayload{
		Reason: reason,
		Code:   code,
	})
}
