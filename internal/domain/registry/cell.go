/*
Package registry provides the per-user notification delivery system based on the Actor Model.

Key Architectural Concepts:
  - Virtual Cells: Every subscribed user is represented by an isolated 'Cell' (Actor)
    that owns the single live transport handle for that identity.
  - Single Subscriber: Attaching a new handle replaces the previous one; the old
    handle is told why and closed.
  - Decoupling & Backpressure: Per-user mailboxes keep slow consumers from blocking
    publishers; delivery happens on the cell goroutine, never under a registry lock.
  - At-Most-Once: No queueing for absent users and no replay to a new subscriber
    beyond the greeting snapshot.
*/
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-support-service/internal/domain/event"
	"github.com/webitel/im-support-service/internal/domain/model"
)

// Celler defines the internal API for user-specific delivery units.
type Celler interface {
	Push(ev event.Eventer) bool
	Attach(conn Connector) (previous Connector, ok bool)
	Detach(connID uuid.UUID) (removed, stopped bool)
	Current() Connector
	IsIdle(timeout time.Duration) bool
	Stop()
}

// Cell implements [ISOLATED_DELIVERY] logic for a single user.
type Cell struct {
	// [IDENTITY]
	userID model.UserID

	// [MAILBOX]
	// Buffered channel that decouples publishers from delivery.
	mailbox chan event.Eventer

	// [SUBSCRIBER]
	// The one live handle. nil between unsubscribe and cell reclamation.
	conn Connector

	mu      sync.RWMutex
	stopped bool

	// [LIFECYCLE_CONTROL]
	doneCh chan struct{}

	sendTimeout    time.Duration
	lastActivityAt time.Time

	// onDead is called from the cell goroutine when the handle refuses a
	// send because it is already closed.
	onDead func(userID model.UserID, connID uuid.UUID)
}

func NewCell(userID model.UserID, bufferSize int, sendTimeout time.Duration, onDead func(model.UserID, uuid.UUID)) *Cell {
	c := &Cell{
		userID:         userID,
		mailbox:        make(chan event.Eventer, bufferSize), // [DYNAMIC_BUFFER]
		doneCh:         make(chan struct{}),
		sendTimeout:    sendTimeout,
		lastActivityAt: time.Now(),
		onDead:         onDead,
	}
	go c.loop()
	return c
}

// IsIdle returns true if the cell has no live handle and has been quiet longer than timeout.
func (c *Cell) IsIdle(timeout time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.stopped {
		return true
	}
	live := c.conn != nil && !isDone(c.conn)
	return !live && time.Since(c.lastActivityAt) > timeout
}

func (c *Cell) Push(ev event.Eventer) bool {
	c.mu.Lock()
	if c.stopped || c.conn == nil {
		c.mu.Unlock()
		return false
	}
	c.lastActivityAt = time.Now()
	c.mu.Unlock()

	select {
	case c.mailbox <- ev:
		return true
	default:
		return false
	}
}

// Attach installs conn as the only handle and returns the one it replaced.
// ok is false if the cell was already stopped; the caller must retry on a fresh cell.
func (c *Cell) Attach(conn Connector) (Connector, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return nil, false
	}
	prev := c.conn
	c.conn = conn
	c.lastActivityAt = time.Now()
	return prev, true
}

// Detach removes the handle only if it is still the current one, so a stale
// unsubscribe cannot kick out a newer subscriber. An emptied cell stops itself.
func (c *Cell) Detach(connID uuid.UUID) (removed, stopped bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return false, true
	}
	if c.conn == nil || c.conn.GetID() != connID {
		return false, false
	}
	c.conn = nil
	c.lastActivityAt = time.Now()
	c.stopLocked()
	return true, true
}

func (c *Cell) Current() Connector {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Cell) loop() {
	for {
		select {
		case <-c.doneCh:
			return
		case ev := <-c.mailbox:
			c.deliver(ev)
		}
	}
}

func (c *Cell) deliver(ev event.Eventer) {
	// [SNAPSHOT_THEN_SEND] never hold the cell lock across transport I/O
	conn := c.Current()
	if conn == nil {
		return
	}

	// flag before the handoff, the consumer may encode it immediately
	env, isEnvelope := ev.(*event.NotificationV1Event)
	if isEnvelope {
		env.Envelope().Delivered = true
	}

	if conn.Send(ev, c.sendTimeout) {
		return
	}
	if isEnvelope {
		env.Envelope().Delivered = false
	}
	if isDone(conn) {
		// [DEAD_HANDLE] treat as disconnected, no retry
		if c.onDead != nil {
			c.onDead(c.userID, conn.GetID())
		}
	}
}

func (c *Cell) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Cell) stopLocked() {
	if c.stopped {
		return
	}
	c.stopped = true
	close(c.doneCh)
}

func isDone(conn Connector) bool {
	select {
	case <-conn.Done():
		return true
	default:
		return false
	}
}
