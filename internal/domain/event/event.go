package event

import (
	"sync/atomic"

	"github.com/webitel/im-support-service/internal/domain/model"
)

type EventKind int16

//go:generate stringer -type=EventKind
const (
	Connected        EventKind = iota + 1 // [SYSTEM]
	Disconnected                          // [SYSTEM]
	Notice                                // [SYSTEM] room joined/left
	ChatMessage                           // [BUSINESS]
	Notification                          // [BUSINESS] envelope for one receiver
	PresenceSnapshot                      // [AGGREGATE]
	SessionSnapshot                       // [AGGREGATE]
)

func (k EventKind) String() string {
	switch k {
	case Connected:
		return "Connected"
	case Disconnected:
		return "Disconnected"
	case Notice:
		return "Notice"
	case ChatMessage:
		return "ChatMessage"
	case Notification:
		return "Notification"
	case PresenceSnapshot:
		return "PresenceSnapshot"
	case SessionSnapshot:
		return "SessionSnapshot"
	default:
		return "EventKind(unknown)"
	}
}

type EventPriority int32

const (
	PriorityLow    EventPriority = 10
	PriorityNormal EventPriority = 20
	PriorityHigh   EventPriority = 30
)

// Eventer defines the contract for all data packets flowing through the hub,
// the rooms and the dashboard pool.
type Eventer interface {
	GetID() string
	GetKind() EventKind
	// GetUserID is the physical recipient. Zero for broadcast aggregates.
	GetUserID() model.UserID
	GetPriority() EventPriority
	GetOccurredAt() int64
	GetPayload() any
	GetCached() any
	SetCached(any)
}

// Exportable defines a record that should be re-published to the message bus.
type Exportable interface {
	// An empty key means the binder skips publishing.
	GetRoutingKey() string
}

// cacheSlot holds the transport encoding of an event. Aggregates are shared by
// many subscriber goroutines, so the slot is atomic.
type cacheSlot struct {
	v atomic.Pointer[cachedValue]
}

type cachedValue struct{ v any }

func (c *cacheSlot) GetCached() any {
	if p := c.v.Load(); p != nil {
		return p.v
	}
	return nil
}

func (c *cacheSlot) SetCached(v any) { c.v.Store(&cachedValue{v: v}) }
