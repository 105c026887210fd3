package event

import (
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-support-service/internal/domain/model"
)

var _ Eventer = (*SnapshotV1Event)(nil)

// SnapshotV1Event is a point-in-time aggregate shared by every dashboard viewer.
// A newer snapshot supersedes an older one, hence the low priority: it is the
// first thing shed by a saturated connector.
type SnapshotV1Event struct {
	cacheSlot
	id         string
	kind       EventKind
	occurredAt time.Time
	payload    any
}

func NewPresenceSnapshotEvent(s *model.PresenceSnapshot) *SnapshotV1Event {
	return &SnapshotV1Event{id: uuid.NewString(), kind: PresenceSnapshot, occurredAt: s.TakenAt, payload: s}
}

func NewSessionSnapshotEvent(s *model.SessionSnapshot) *SnapshotV1Event {
	return &SnapshotV1Event{id: uuid.NewString(), kind: SessionSnapshot, occurredAt: s.TakenAt, payload: s}
}

func (e *SnapshotV1Event) GetID() string              { return e.id }
func (e *SnapshotV1Event) GetKind() EventKind         { return e.kind }
func (e *SnapshotV1Event) GetUserID() model.UserID    { return 0 }
func (e *SnapshotV1Event) GetPriority() EventPriority { return PriorityLow }
func (e *SnapshotV1Event) GetOccurredAt() int64       { return e.occurredAt.UnixMilli() }
func (e *SnapshotV1Event) GetPayload() any            { return e.payload }
