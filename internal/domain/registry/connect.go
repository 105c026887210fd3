package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-support-service/internal/domain/event"
	"github.com/webitel/im-support-service/internal/domain/model"
)

// Interface guard
var _ Connector = (*connect)(nil)

// [CONNECTOR] THE INTERFACE FOR EXTERNAL LAYERS (HUB/ROOM/DASHBOARD)
// One live transport handle (SSE stream, WebSocket, long-poll request).
type Connector interface {
	GetID() uuid.UUID
	GetUserID() model.UserID
	Send(ev event.Eventer, timeout time.Duration) bool // Thread-safe send with backpressure handling
	Recv() <-chan event.Eventer
	Done() <-chan struct{} // Closed once the handle is terminated
	Close()                // Terminate connection and release resources
	Dropped() uint64
}

// [CONNECT] CONCRETE IMPLEMENTATION (UNEXPORTED TO FORCE INTERFACE USAGE)
type connect struct {
	id        uuid.UUID
	userID    model.UserID
	createdAt time.Time
	ctx       context.Context
	cancelFn  context.CancelFunc

	// sendCh is never closed: producers may still race a Close, and a send
	// on a closed channel panics. Consumers watch Done() instead.
	sendCh chan event.Eventer

	closeOnce      sync.Once // [PROTECTION]
	lastActivityAt int64     // [ATOMIC_FIELD]
	droppedCount   uint64    // [ATOMIC_FIELD]
}

// NewConnector binds a handle to ctx: cancelling the transport context
// terminates the handle.
func NewConnector(ctx context.Context, userID model.UserID, bufferSize int) Connector {
	childCtx, cancel := context.WithCancel(ctx)
	return &connect{
		id:             uuid.New(),
		userID:         userID,
		createdAt:      time.Now(),
		ctx:            childCtx,
		cancelFn:       cancel,
		sendCh:         make(chan event.Eventer, bufferSize),
		lastActivityAt: time.Now().UnixNano(),
	}
}

func (c *connect) GetID() uuid.UUID           { return c.id }
func (c *connect) GetUserID() model.UserID    { return c.userID }
func (c *connect) Recv() <-chan event.Eventer { return c.sendCh }
func (c *connect) Done() <-chan struct{}      { return c.ctx.Done() }
func (c *connect) Dropped() uint64            { return atomic.LoadUint64(&c.droppedCount) }

// Send attempts to push an event into the channel.
// Low priority events never wait for space; everything else waits up to
// timeout. Queued events are never reordered or evicted, which keeps the
// per-sender order of room messages intact; a shed event is a gap, not a swap.
func (c *connect) Send(ev event.Eventer, timeout time.Duration) bool {
	// 1. [LIFECYCLE_GATE] Immediately abort if the underlying transport is already dead.
	if c.ctx.Err() != nil {
		return false
	}

	// 2. [FAST_PATH] free slot, no timer needed
	select {
	case c.sendCh <- ev:
		atomic.StoreInt64(&c.lastActivityAt, time.Now().UnixNano())
		return true
	default:
	}

	if ev.GetPriority() <= event.PriorityLow || timeout <= 0 {
		return c.shed()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.ctx.Done():
		return false
	case c.sendCh <- ev:
		atomic.StoreInt64(&c.lastActivityAt, time.Now().UnixNano())
		return true
	case <-timer.C:
		// 3. [BACKPRESSURE_THRESHOLD] persistent slow consumer
		return c.shed()
	}
}

func (c *connect) shed() bool {
	atomic.AddUint64(&c.droppedCount, 1)
	return false
}

// Close terminates the handle. Safe to call from the hub, a room, or the transport handler.
func (c *connect) Close() {
	c.closeOnce.Do(func() {
		c.cancelFn()
	})
}
