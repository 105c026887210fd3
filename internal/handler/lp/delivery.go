package lp

import (
	"errors"
	"net/http"
	"time"

	"github.com/webitel/im-support-service/internal/domain/event"
	"github.com/webitel/im-support-service/internal/domain/model"
	"github.com/webitel/im-support-service/internal/domain/registry"
	"github.com/webitel/im-support-service/internal/handler/identity"
	lpmarshaller "github.com/webitel/im-support-service/internal/handler/marshaller/lp"
	"github.com/webitel/im-support-service/internal/service"
)

// maxBatch bounds one poll response.
const maxBatch = 16

type LPHandler struct {
	deliverer service.Deliverer
	timeout   time.Duration
}

func NewLPHandler(deliverer service.Deliverer, timeout time.Duration) *LPHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LPHandler{
		deliverer: deliverer,
		timeout:   timeout,
	}
}

// Poll handles the long-polling request.
// It holds the connection until an event arrives or timeout occurs. The poll
// is the user's notification handle while it is held, so a parallel SSE
// stream of the same user is replaced.
func (h *LPHandler) Poll(w http.ResponseWriter, r *http.Request) {
	// 1. Identity is attached by the middleware.
	who, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, identity.ErrMissing.Error(), http.StatusUnauthorized)
		return
	}

	// 2. Temporary Subscription.
	// We create a connector that will live only for the duration of this HTTP request.
	conn, err := h.deliverer.Subscribe(r.Context(), who.ID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, model.ErrUnknownUser) {
			status = http.StatusBadRequest
		}
		http.Error(w, "failed to subscribe", status)
		return
	}

	// Ensure cleanup: remove from registry when request finishes.
	defer h.deliverer.Unsubscribe(who.ID, conn.GetID())
	defer conn.Close()

	timer := time.NewTimer(h.timeout)
	defer timer.Stop()

	var events []event.Eventer

	// 3. Wait for data or timeout.
wait:
	for {
		select {
		case <-r.Context().Done():
			// Client disconnected.
			return

		case <-timer.C:
			// Standard Long-Polling timeout to prevent hanging connections.
			w.WriteHeader(http.StatusNoContent)
			return

		case <-conn.Done():
			// Replaced or kicked: hand over whatever was queued before the cut.
			events = drain(conn, events)
			if len(events) == 0 {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			break wait

		case ev := <-conn.Recv():
			if !pollable(ev) {
				continue
			}
			events = append(events, ev)
			// Drain remaining events from buffer to provide batching.
			events = drain(conn, events)
			break wait
		}
	}

	// 4. Final transmission. Whatever stays queued dies with this handle.
	dropped := conn.Dropped() + uint64(len(conn.Recv()))
	data, err := lpmarshaller.MarshallEvents(events, dropped)
	if err != nil {
		http.Error(w, "marshal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// pollable drops the presence greeting queued on every new handle; a poll
// answers with envelopes only.
func pollable(ev event.Eventer) bool {
	return ev.GetKind() != event.PresenceSnapshot
}

func drain(conn registry.Connector, events []event.Eventer) []event.Eventer {
	for len(events) < maxBatch {
		select {
		case ev := <-conn.Recv():
			if pollable(ev) {
				events = append(events, ev)
			}
		default:
			return events
		}
	}
	return events
}
