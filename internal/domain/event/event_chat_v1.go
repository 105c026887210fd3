package event

import (
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-support-service/internal/domain/model"
)

var _ Eventer = (*ChatV1Event)(nil)

// ChatV1Event carries one relayed room message.
//
// [STRATEGY]
// message.SenderID is the logical author (the "Who"), userID the physical
// recipient of this event instance (the "Where"). The sender never gets one.
type ChatV1Event struct {
	cacheSlot
	message *model.ChatMessage
	userID  model.UserID
}

func NewChatV1Event(sessionID uuid.UUID, sender, recipient model.UserID, text string, sentAt time.Time) *ChatV1Event {
	return &ChatV1Event{
		message: &model.ChatMessage{
			ID:        uuid.New(),
			SessionID: sessionID,
			SenderID:  sender,
			Text:      text,
			SentAt:    sentAt,
		},
		userID: recipient,
	}
}

func (e *ChatV1Event) GetID() string              { return e.message.ID.String() }
func (e *ChatV1Event) GetKind() EventKind         { return ChatMessage }
func (e *ChatV1Event) GetUserID() model.UserID    { return e.userID }
func (e *ChatV1Event) GetPriority() EventPriority { return PriorityHigh }
func (e *ChatV1Event) GetOccurredAt() int64       { return e.message.SentAt.UnixMilli() }
func (e *ChatV1Event) GetPayload() any            { return e.message }

// Message exposes the typed payload.
func (e *ChatV1Event) Message() *model.ChatMessage { return e.message }
