package rest

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/webitel/im-support-service/internal/domain/event"
	"github.com/webitel/im-support-service/internal/domain/registry"
	"github.com/webitel/im-support-service/internal/handler/identity"
	ssemarshaller "github.com/webitel/im-support-service/internal/handler/marshaller/sse"
)

// NotificationStream is the user's NotificationHub subscription over SSE.
// A newer stream or poll of the same user replaces this one.
func (h *Handler) NotificationStream(w http.ResponseWriter, r *http.Request) {
	who, _ := identity.FromContext(r.Context())

	conn, err := h.deliverer.Subscribe(r.Context(), who.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer h.deliverer.Unsubscribe(who.ID, conn.GetID())
	defer conn.Close()

	log := h.logger.With(slog.String("user_id", who.ID.String()), slog.String("conn_id", conn.GetID().String()))
	log.Info("sse opened")

	h.stream(w, r, conn, event.NewConnectedEvent(who.ID, conn.GetID().String()), log)
	log.Info("sse closed", slog.Uint64("dropped", conn.Dropped()))
}

// DashboardStream pushes presence and session snapshots to one viewer.
func (h *Handler) DashboardStream(w http.ResponseWriter, r *http.Request) {
	conn := h.deliverer.SubscribeDashboard(r.Context())
	defer h.deliverer.UnsubscribeDashboard(conn.GetID())
	defer conn.Close()

	log := h.logger.With(slog.String("conn_id", conn.GetID().String()), slog.String("stream", "dashboard"))
	log.Debug("sse opened")

	h.stream(w, r, conn, nil, log)
}

// stream pumps conn into the response until either side is gone. Events
// queued before the handle was terminated are still written.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request, conn registry.Connector, hello event.Eventer, log *slog.Logger) {
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if hello != nil && !h.writeEvent(w, hello, log) {
		return
	}
	if err := rc.Flush(); err != nil {
		log.Warn("sse flush unsupported", "error", err)
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-conn.Recv():
			if !h.writeEvent(w, ev, log) {
				return
			}
		case <-ticker.C:
			if _, err := w.Write(ssemarshaller.Heartbeat); err != nil {
				return
			}
		case <-conn.Done():
			// [DRAIN] goodbye frames are queued right before the cut
			for {
				select {
				case ev := <-conn.Recv():
					if !h.writeEvent(w, ev, log) {
						return
					}
				default:
					_ = rc.Flush()
					return
				}
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func (h *Handler) writeEvent(w http.ResponseWriter, ev event.Eventer, log *slog.Logger) bool {
	data, err := ssemarshaller.MarshallEvent(ev)
	if err != nil {
		log.Error("failed to marshal sse event", "error", err)
		return true
	}
	if _, err := w.Write(data); err != nil {
		log.Debug("sse write failed", "error", err)
		return false
	}
	return true
}
