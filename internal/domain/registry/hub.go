package registry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-support-service/internal/domain/event"
	"github.com/webitel/im-support-service/internal/domain/model"
)

// Hubber defines the gateway for per-user subscriber handles and event routing.
// It is the NotificationHub.
type Hubber interface {
	// Register attaches conn as the user's only handle, replacing any prior one.
	Register(conn Connector)
	// Unregister detaches the handle if it is still the current one.
	Unregister(userID model.UserID, connID uuid.UUID) bool
	// Broadcast routes the event to the cell of ev.GetUserID(). Returns false on miss or overflow.
	Broadcast(ev event.Eventer) bool
	// Publish delivers an envelope to its receiver, dropping it when nobody listens.
	Publish(env *model.NotificationEnvelope) bool
	// Kick says goodbye to the current handle of the user and detaches it.
	Kick(userID model.UserID, code, reason string) bool
	IsConnected(userID model.UserID) bool
	Stats() model.HubStats
	Shutdown()
}

var _ Hubber = (*Hub)(nil)

// Hub implements a [SCALABLE_REGISTRY] using Virtual Cell pattern.
type Hub struct {
	// cells stores Map[model.UserID]*Cell. Optimized for [READ_HEAVY] workloads.
	cells sync.Map

	config   hubConfig
	greeting func(model.UserID) []event.Eventer
	logger   *slog.Logger

	startedAt time.Time
	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		config: hubConfig{
			evictionInterval: time.Minute,
			idleTimeout:      5 * time.Minute,
			mailboxSize:      256,
			sendTimeout:      500 * time.Millisecond,
		},
		logger:    slog.Default(),
		startedAt: time.Now(),
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}

	if h.config.evictionInterval > 0 {
		h.wg.Add(1)
		go h.janitor()
	}
	return h
}

func (h *Hub) IsConnected(userID model.UserID) bool {
	val, ok := h.cells.Load(userID)
	if !ok {
		return false
	}
	conn := val.(*Cell).Current()
	return conn != nil && !isDone(conn)
}

func (h *Hub) Broadcast(ev event.Eventer) bool {
	if val, ok := h.cells.Load(ev.GetUserID()); ok {
		return val.(*Cell).Push(ev)
	}
	return false
}

// Publish queues env for the receiver's live handle and reports whether it was
// queued. The handle may still shed it; env.Delivered settles once it does or not.
func (h *Hub) Publish(env *model.NotificationEnvelope) (queued bool) {
	queued = h.Broadcast(event.NewNotificationV1Event(env))
	if !queued {
		h.logger.Debug("[HUB] envelope dropped, no live subscriber",
			slog.String("receiver_id", env.ReceiverID.String()),
			slog.String("kind", env.Kind.String()),
		)
	}
	return queued
}

// Register ensures [IDEMPOTENT] cell creation and installs the handle.
func (h *Hub) Register(conn Connector) {
	uID := conn.GetUserID()

	// [CATCH_UP] one-time greeting, queued before the handle becomes visible
	// to the cell so it precedes every live event
	if h.greeting != nil {
		for _, ev := range h.greeting(uID) {
			conn.Send(ev, h.config.sendTimeout)
		}
	}

	for {
		// [LAZY_INIT] Create cell only when the first handle arrives.
		val, loaded := h.cells.Load(uID)
		if !loaded {
			fresh := NewCell(uID, h.config.mailboxSize, h.config.sendTimeout, h.onDead)
			val, loaded = h.cells.LoadOrStore(uID, fresh)
			if loaded {
				fresh.Stop()
			}
		}
		cell := val.(*Cell)

		prev, ok := cell.Attach(conn)
		if !ok {
			// [RACE] cell stopped between load and attach; drop the tombstone and retry
			h.cells.CompareAndDelete(uID, cell)
			continue
		}

		if prev != nil && prev.GetID() != conn.GetID() {
			h.logger.Info("[HUB] subscription replaced",
				slog.String("user_id", uID.String()),
				slog.String("old_conn_id", prev.GetID().String()),
				slog.String("conn_id", conn.GetID().String()),
			)
			prev.Send(event.NewDisconnectedEvent(uID, model.DisconnectReplaced, "replaced_by_newer_subscriber"), 0)
			prev.Close()
		}
		break
	}

}

// Unregister performs [GRACEFUL_RECLAMATION] of resources when the handle ends.
func (h *Hub) Unregister(userID model.UserID, connID uuid.UUID) bool {
	val, ok := h.cells.Load(userID)
	if !ok {
		return false
	}
	cell := val.(*Cell)

	removed, stopped := cell.Detach(connID)
	if stopped {
		h.cells.CompareAndDelete(userID, cell)
	}
	return removed
}

func (h *Hub) Kick(userID model.UserID, code, reason string) bool {
	val, ok := h.cells.Load(userID)
	if !ok {
		return false
	}
	conn := val.(*Cell).Current()
	if conn == nil {
		return false
	}

	conn.Send(event.NewDisconnectedEvent(userID, code, reason), 0)
	conn.Close()
	h.Unregister(userID, conn.GetID())

	h.logger.Info("[HUB] subscriber kicked",
		slog.String("user_id", userID.String()),
		slog.String("code", code),
	)
	return true
}

func (h *Hub) onDead(userID model.UserID, connID uuid.UUID) {
	if h.Unregister(userID, connID) {
		h.logger.Warn("[HUB] dead subscriber removed",
			slog.String("user_id", userID.String()),
			slog.String("conn_id", connID.String()),
		)
	}
}

func (h *Hub) Stats() model.HubStats {
	st := model.HubStats{Uptime: time.Since(h.startedAt)}
	h.cells.Range(func(_, val any) bool {
		st.TotalUsers++
		if conn := val.(*Cell).Current(); conn != nil && !isDone(conn) {
			st.TotalConnections++
		}
		return true
	})
	return st
}

// janitor reclaims cells whose handle died without an Unregister.
func (h *Hub) janitor() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.config.evictionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			reclaimed := 0
			h.cells.Range(func(key, val any) bool {
				cell := val.(*Cell)
				if cell.IsIdle(h.config.idleTimeout) {
					cell.Stop()
					if h.cells.CompareAndDelete(key, cell) {
						reclaimed++
					}
				}
				return true
			})
			if reclaimed > 0 {
				h.logger.Debug("[JANITOR] idle cells reclaimed", slog.Int("count", reclaimed))
			}
		}
	}
}

// Shutdown stops every cell and tells live handles the server is going away.
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		h.wg.Wait()

		h.cells.Range(func(key, val any) bool {
			cell := val.(*Cell)
			if conn := cell.Current(); conn != nil {
				conn.Send(event.NewDisconnectedEvent(conn.GetUserID(), model.DisconnectShutdown, "server_shutdown"), 0)
				conn.Close()
			}
			cell.Stop()
			h.cells.Delete(key)
			return true
		})
	})
}
