package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/webitel/im-support-service/internal/domain/model"
	"github.com/webitel/im-support-service/internal/handler/identity"
)

var admin = model.UserIdentity{ID: 1, Role: model.RoleAdmin}

func TestClient_Snapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/dashboard/snapshot" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get(identity.HeaderUserID) != "1" || r.Header.Get(identity.HeaderRole) != "ADMIN" {
			http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"presence":{"online_by_role":{"USER":3,"LISTENER":1}},"sessions":{"sessions":[]},"hub":{"total_users":4,"total_connections":2}}`)
	}))
	defer srv.Close()

	snap, err := New(srv.URL+"/", admin).Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.Presence.OnlineByRole[model.RoleUser] != 3 || snap.Presence.OnlineByRole[model.RoleListener] != 1 {
		t.Fatalf("presence = %+v", snap.Presence)
	}
	if snap.Hub.TotalUsers != 4 || snap.Hub.TotalConnections != 2 {
		t.Fatalf("hub = %+v", snap.Hub)
	}

	_, err = New(srv.URL, model.UserIdentity{ID: 2, Role: model.RoleUser}).Snapshot(context.Background())
	if !IsForbidden(err) {
		t.Fatalf("err = %v, want forbidden", err)
	}
}

func TestClient_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": ping\n\n")
		fmt.Fprint(w, "event: presenceSnapshot\ndata: {\"type\":\"presenceSnapshot\",\"online_by_role\":{\"USER\":2}}\n\n")
		fmt.Fprint(w, "event: unknown\ndata: {}\n\n")
		fmt.Fprint(w, "event: sessionSnapshot\ndata: {\"type\":\"sessionSnapshot\",\"sessions\":[]}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var got []Update
	stop := errors.New("stop")
	err := New(srv.URL, admin).Stream(ctx, func(u Update) error {
		got = append(got, u)
		if len(got) == 2 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Fatalf("err = %v", err)
	}
	if got[0].Presence == nil || got[0].Presence.OnlineByRole[model.RoleUser] != 2 {
		t.Fatalf("first update = %+v", got[0])
	}
	if got[1].Sessions == nil || len(got[1].Sessions.Sessions) != 0 {
		t.Fatalf("second update = %+v", got[1])
	}
}

func TestClient_StreamServerHangup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
	}))
	defer srv.Close()

	err := New(srv.URL, admin).Stream(context.Background(), func(Update) error { return nil })
	if err == nil {
		t.Fatal("hangup must surface as an error")
	}
}
