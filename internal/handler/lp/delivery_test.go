package lp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/webitel/im-support-service/internal/domain/event"
	"github.com/webitel/im-support-service/internal/domain/model"
	"github.com/webitel/im-support-service/internal/domain/registry"
	"github.com/webitel/im-support-service/internal/handler/identity"
	"github.com/webitel/im-support-service/internal/service"
)

func newHandler(t *testing.T, timeout time.Duration) (*LPHandler, *registry.Hub) {
	t.Helper()
	hub := registry.NewHub(
		registry.WithEvictionInterval(0),
		registry.WithGreeting(func(model.UserID) []event.Eventer {
			return []event.Eventer{event.NewPresenceSnapshotEvent(&model.PresenceSnapshot{TakenAt: time.Now()})}
		}),
	)
	t.Cleanup(hub.Shutdown)
	return NewLPHandler(service.NewDeliveryService(hub, nil, 16, 0), timeout), hub
}

func pollRequest(id model.UserIdentity) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/v1/notifications/poll", nil)
	return r.WithContext(identity.WithIdentity(r.Context(), id))
}

func TestPoll_TimeoutIgnoresGreeting(t *testing.T) {
	h, _ := newHandler(t, 50*time.Millisecond)
	w := httptest.NewRecorder()

	h.Poll(w, pollRequest(model.UserIdentity{ID: 123, Role: model.RoleUser}))

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
}

func TestPoll_ReturnsEnvelope(t *testing.T) {
	h, hub := newHandler(t, 2*time.Second)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Poll(w, pollRequest(model.UserIdentity{ID: 123, Role: model.RoleUser}))
	}()

	deadline := time.Now().Add(time.Second)
	for !hub.IsConnected(123) {
		if time.Now().After(deadline) {
			t.Fatal("poll never subscribed")
		}
		time.Sleep(2 * time.Millisecond)
	}
	if !hub.Publish(model.NewEnvelope(model.EnvelopeEnd, 45, 123, nil)) {
		t.Fatal("publish refused")
	}
	<-done

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var res struct {
		Events []struct {
			Type     string `json:"type"`
			Envelope struct {
				Kind string `json:"kind"`
			} `json:"envelope"`
		} `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Events) != 1 || res.Events[0].Type != "notification" || res.Events[0].Envelope.Kind != "END" {
		t.Fatalf("body = %s", w.Body.String())
	}
	if hub.IsConnected(123) {
		t.Fatal("poll handle must be released with the response")
	}
}

func TestPoll_RequiresIdentity(t *testing.T) {
	h, _ := newHandler(t, time.Second)
	w := httptest.NewRecorder()
	h.Poll(w, httptest.NewRequest(http.MethodGet, "/v1/notifications/poll", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
}
