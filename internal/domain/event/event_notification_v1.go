package event

import "github.com/webitel/im-support-service/internal/domain/model"

var _ Eventer = (*NotificationV1Event)(nil)

// NotificationV1Event routes an envelope to its receiver's hub cell.
type NotificationV1Event struct {
	cacheSlot
	envelope *model.NotificationEnvelope
}

func NewNotificationV1Event(env *model.NotificationEnvelope) *NotificationV1Event {
	return &NotificationV1Event{envelope: env}
}

func (e *NotificationV1Event) GetID() string           { return e.envelope.ID.String() }
func (e *NotificationV1Event) GetKind() EventKind      { return Notification }
func (e *NotificationV1Event) GetUserID() model.UserID { return e.envelope.ReceiverID }
func (e *NotificationV1Event) GetOccurredAt() int64    { return e.envelope.SentAt.UnixMilli() }
func (e *NotificationV1Event) GetPayload() any         { return e.envelope }

// GetPriority keeps session lifecycle above chat copies under backpressure.
func (e *NotificationV1Event) GetPriority() EventPriority {
	if e.envelope.Kind == model.EnvelopeChat {
		return PriorityNormal
	}
	return PriorityHigh
}

func (e *NotificationV1Event) Envelope() *model.NotificationEnvelope { return e.envelope }
