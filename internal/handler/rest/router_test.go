package rest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/webitel/im-support-service/internal/domain/broadcast"
	"github.com/webitel/im-support-service/internal/domain/event"
	"github.com/webitel/im-support-service/internal/domain/keylock"
	"github.com/webitel/im-support-service/internal/domain/model"
	"github.com/webitel/im-support-service/internal/domain/pairing"
	"github.com/webitel/im-support-service/internal/domain/presence"
	"github.com/webitel/im-support-service/internal/domain/registry"
	"github.com/webitel/im-support-service/internal/domain/room"
	"github.com/webitel/im-support-service/internal/handler/identity"
	"github.com/webitel/im-support-service/internal/handler/lp"
	"github.com/webitel/im-support-service/internal/handler/ws"
	"github.com/webitel/im-support-service/internal/service"
)

type nopRecords struct{}

func (nopRecords) PersistSessionRecord(*model.SessionRecord) {}
func (nopRecords) PersistChatMessage(*model.ChatRecord)      {}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	reg := presence.NewRegistry(4)
	idle := presence.NewIdleTracker(time.Minute, 0)
	t.Cleanup(idle.Stop)
	locks := keylock.New(16)
	match := pairing.NewMatch()
	rooms := room.NewManager(nopRecords{}, room.WithLogger(discard()))
	hub := registry.NewHub(
		registry.WithEvictionInterval(0),
		registry.WithLogger(discard()),
		registry.WithGreeting(func(model.UserID) []event.Eventer {
			return []event.Eventer{event.NewPresenceSnapshotEvent(reg.Snapshot())}
		}),
	)
	t.Cleanup(hub.Shutdown)

	dir, err := service.NewCachedDirectory(reg, 64)
	if err != nil {
		t.Fatal(err)
	}
	board := broadcast.NewAggregator(reg, service.NewProjector(match, rooms, dir), broadcast.WithLogger(discard()))
	svc := service.NewSessionService(service.Deps{
		Locks:     locks,
		Presence:  reg,
		Idle:      idle,
		Match:     match,
		Rooms:     rooms,
		Hub:       hub,
		Board:     board,
		Directory: dir,
		Records:   nopRecords{},
		Logger:    discard(),
	})
	delivery := service.NewDeliveryService(hub, board, 64, 16)

	router := NewRouter(RouterParams{
		REST:   NewHandler(svc, delivery, discard(), time.Second),
		WS:     ws.NewWSHandler(discard(), svc, 16),
		LP:     lp.NewLPHandler(delivery, time.Second),
		Logger: discard(),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

type caller struct {
	t   *testing.T
	srv *httptest.Server
	id  model.UserIdentity
}

func as(t *testing.T, srv *httptest.Server, id model.UserID, role model.Role) *caller {
	return &caller{t: t, srv: srv, id: model.UserIdentity{ID: id, Role: role}}
}

func (c *caller) request(ctx context.Context, method, path string, body any) *http.Request {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			c.t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.srv.URL+path, rd)
	if err != nil {
		c.t.Fatal(err)
	}
	if c.id.ID != 0 {
		req.Header.Set(identity.HeaderUserID, c.id.ID.String())
		req.Header.Set(identity.HeaderRole, c.id.Role.String())
	}
	return req
}

// do sends the request, asserts the status and decodes the body into out.
func (c *caller) do(method, path string, body any, want int, out any) {
	c.t.Helper()
	res, err := http.DefaultClient.Do(c.request(context.Background(), method, path, body))
	if err != nil {
		c.t.Fatal(err)
	}
	defer res.Body.Close()

	data, _ := io.ReadAll(res.Body)
	if res.StatusCode != want {
		c.t.Fatalf("%s %s: status = %d, want %d (%s)", method, path, res.StatusCode, want, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			c.t.Fatalf("%s %s: decode %s: %v", method, path, data, err)
		}
	}
}

type sseEvent struct {
	name string
	data string
}

type sseReader struct {
	t *testing.T
	r *bufio.Reader
}

func (c *caller) stream(path string) *sseReader {
	c.t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	c.t.Cleanup(cancel)

	res, err := http.DefaultClient.Do(c.request(ctx, http.MethodGet, path, nil))
	if err != nil {
		c.t.Fatal(err)
	}
	if res.StatusCode != http.StatusOK {
		c.t.Fatalf("stream %s: status = %d", path, res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); ct != "text/event-stream" {
		c.t.Fatalf("content type = %q", ct)
	}
	c.t.Cleanup(func() { _ = res.Body.Close() })
	return &sseReader{t: c.t, r: bufio.NewReader(res.Body)}
}

// next returns the next event, skipping keep-alive comments.
func (s *sseReader) next() sseEvent {
	s.t.Helper()
	type result struct {
		ev  sseEvent
		err error
	}
	ch := make(chan result, 1)
	go func() {
		var ev sseEvent
		for {
			line, err := s.r.ReadString('\n')
			if err != nil {
				ch <- result{err: err}
				return
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case line == "":
				if ev.name != "" {
					ch <- result{ev: ev}
					return
				}
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.data = strings.TrimPrefix(line, "data: ")
			}
		}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			s.t.Fatalf("stream read: %v", res.err)
		}
		return res.ev
	case <-time.After(2 * time.Second):
		s.t.Fatal("no event on stream")
		return sseEvent{}
	}
}

func TestHTTP_RequestAcceptEnd(t *testing.T) {
	srv := newServer(t)
	user := as(t, srv, 123, model.RoleUser)
	listener := as(t, srv, 45, model.RoleListener)

	user.do(http.MethodPost, "/v1/presence/connect", nil, http.StatusOK, nil)
	listener.do(http.MethodPost, "/v1/presence/connect", nil, http.StatusOK, nil)

	inbox := listener.stream("/v1/notifications/stream")
	if ev := inbox.next(); ev.name != "system" || !strings.Contains(ev.data, `"code":"connected"`) {
		t.Fatalf("first frame = %+v", ev)
	}
	if ev := inbox.next(); ev.name != "presenceSnapshot" {
		t.Fatalf("greeting = %+v", ev)
	}

	var created struct {
		Request   model.SessionRequest `json:"request"`
		Delivered bool                 `json:"delivered"`
	}
	user.do(http.MethodPost, "/v1/sessions/requests", map[string]any{"listener_id": 45}, http.StatusCreated, &created)
	if !created.Delivered {
		t.Fatal("request should reach the live stream")
	}

	ev := inbox.next()
	if ev.name != "notification" || !strings.Contains(ev.data, `"kind":"REQUEST"`) {
		t.Fatalf("notification = %+v", ev)
	}

	var pairing model.SessionPairing
	listener.do(http.MethodPost, fmt.Sprintf("/v1/sessions/requests/%s/accept", created.Request.ID), nil, http.StatusOK, &pairing)
	if pairing.UserA != 123 || pairing.UserB != 45 {
		t.Fatalf("pairing = %+v", pairing)
	}

	var list sessionsResponse
	user.do(http.MethodGet, "/v1/sessions?listener_id=45", nil, http.StatusOK, &list)
	if len(list.Sessions) != 1 || list.Sessions[0].SessionID != pairing.SessionID {
		t.Fatalf("sessions = %+v", list.Sessions)
	}

	// the pair is busy for everyone else
	other := as(t, srv, 124, model.RoleUser)
	other.do(http.MethodPost, "/v1/presence/connect", nil, http.StatusOK, nil)
	other.do(http.MethodPost, "/v1/sessions/requests", map[string]any{"listener_id": 45}, http.StatusConflict, nil)

	user.do(http.MethodPost, fmt.Sprintf("/v1/sessions/%s/end", pairing.SessionID), nil, http.StatusNoContent, nil)
	if ev := inbox.next(); !strings.Contains(ev.data, `"kind":"END"`) {
		t.Fatalf("end notification = %+v", ev)
	}

	user.do(http.MethodGet, "/v1/sessions", nil, http.StatusOK, &list)
	if len(list.Sessions) != 0 {
		t.Fatalf("sessions after end = %+v", list.Sessions)
	}
	user.do(http.MethodPost, fmt.Sprintf("/v1/sessions/%s/end", pairing.SessionID), nil, http.StatusNotFound, nil)
}

func TestHTTP_Errors(t *testing.T) {
	srv := newServer(t)
	user := as(t, srv, 123, model.RoleUser)
	listener := as(t, srv, 45, model.RoleListener)
	anonymous := as(t, srv, 0, 0)

	user.do(http.MethodPost, "/v1/presence/connect", nil, http.StatusOK, nil)

	tests := []struct {
		name   string
		caller *caller
		method string
		path   string
		body   any
		want   int
	}{
		{"no identity", anonymous, http.MethodGet, "/v1/presence", nil, http.StatusUnauthorized},
		{"offline listener", user, http.MethodPost, "/v1/sessions/requests", map[string]any{"listener_id": 45}, http.StatusNotFound},
		{"listener cannot request", listener, http.MethodPost, "/v1/sessions/requests", map[string]any{"listener_id": 46}, http.StatusBadRequest},
		{"missing listener", user, http.MethodPost, "/v1/sessions/requests", map[string]any{}, http.StatusBadRequest},
		{"unknown request", listener, http.MethodPost, "/v1/sessions/requests/6f1c3f52-6cf0-4a38-9df9-111111111111/accept", nil, http.StatusNotFound},
		{"bad request id", listener, http.MethodPost, "/v1/sessions/requests/nope/accept", nil, http.StatusBadRequest},
		{"conflicting filter", user, http.MethodGet, "/v1/sessions?user_id=1&listener_id=2", nil, http.StatusBadRequest},
		{"heartbeat offline", listener, http.MethodPost, "/v1/presence/heartbeat", nil, http.StatusNotFound},
		{"bad role filter", user, http.MethodGet, "/v1/presence/online?role=guest", nil, http.StatusBadRequest},
		{"dashboard for users", user, http.MethodGet, "/v1/dashboard/snapshot", nil, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.caller.t = t
			tt.caller.do(tt.method, tt.path, tt.body, tt.want, nil)
		})
	}
}

func TestHTTP_PresenceAndDashboard(t *testing.T) {
	srv := newServer(t)
	admin := as(t, srv, 1, model.RoleAdmin)
	as(t, srv, 123, model.RoleUser).do(http.MethodPost, "/v1/presence/connect", nil, http.StatusOK, nil)
	as(t, srv, 45, model.RoleListener).do(http.MethodPost, "/v1/presence/connect", nil, http.StatusOK, nil)
	as(t, srv, 46, model.RoleListener).do(http.MethodPost, "/v1/presence/connect", nil, http.StatusOK, nil)

	var counts countsResponse
	admin.do(http.MethodGet, "/v1/presence", nil, http.StatusOK, &counts)
	if counts.OnlineByRole[model.RoleUser] != 1 || counts.OnlineByRole[model.RoleListener] != 2 {
		t.Fatalf("counts = %v", counts.OnlineByRole)
	}

	var online onlineResponse
	admin.do(http.MethodGet, "/v1/presence/online?role=listener", nil, http.StatusOK, &online)
	if len(online.Users) != 2 {
		t.Fatalf("online listeners = %+v", online.Users)
	}

	var snap struct {
		Presence model.PresenceSnapshot `json:"presence"`
		Sessions model.SessionSnapshot  `json:"sessions"`
	}
	admin.do(http.MethodGet, "/v1/dashboard/snapshot", nil, http.StatusOK, &snap)
	if snap.Presence.OnlineByRole[model.RoleListener] != 2 {
		t.Fatalf("snapshot = %+v", snap.Presence)
	}

	board := admin.stream("/v1/dashboard/stream")
	if ev := board.next(); ev.name != "presenceSnapshot" {
		t.Fatalf("first dashboard frame = %+v", ev)
	}
	if ev := board.next(); ev.name != "sessionSnapshot" || !strings.Contains(ev.data, `"sessions":[]`) {
		t.Fatalf("second dashboard frame = %+v", ev)
	}

	as(t, srv, 46, model.RoleListener).do(http.MethodPost, "/v1/presence/disconnect", nil, http.StatusNoContent, nil)
	admin.do(http.MethodGet, "/v1/presence", nil, http.StatusOK, &counts)
	if counts.OnlineByRole[model.RoleListener] != 1 {
		t.Fatalf("counts after disconnect = %v", counts.OnlineByRole)
	}
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{model.ErrAlreadyPaired, http.StatusConflict},
		{model.ErrRoomFull, http.StatusConflict},
		{model.ErrNotInRoom, http.StatusForbidden},
		{model.ErrUnknownUser, http.StatusNotFound},
		{fmt.Errorf("wrap: %w", model.ErrSelfPair), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", context.Canceled), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := StatusOf(c.err); got != c.want {
			t.Errorf("StatusOf(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}
