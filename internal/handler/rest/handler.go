package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/webitel/im-support-service/internal/domain/model"
	"github.com/webitel/im-support-service/internal/handler/identity"
	"github.com/webitel/im-support-service/internal/service"
)

type Handler struct {
	sessions  service.Sessioner
	deliverer service.Deliverer
	logger    *slog.Logger
	heartbeat time.Duration
}

// NewHandler serves the presence, session and stream endpoints. heartbeat is
// the SSE keep-alive period.
func NewHandler(sessions service.Sessioner, deliverer service.Deliverer, logger *slog.Logger, heartbeat time.Duration) *Handler {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &Handler{
		sessions:  sessions,
		deliverer: deliverer,
		logger:    logger,
		heartbeat: heartbeat,
	}
}

// [PRESENCE]

func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	who, _ := identity.FromContext(r.Context())
	entry, err := h.sessions.Connect(r.Context(), who)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	who, _ := identity.FromContext(r.Context())
	if err := h.sessions.Heartbeat(r.Context(), who.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Disconnect is idempotent.
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	who, _ := identity.FromContext(r.Context())
	h.sessions.Disconnect(r.Context(), who.ID)
	w.WriteHeader(http.StatusNoContent)
}

type countsResponse struct {
	OnlineByRole map[model.Role]int `json:"online_by_role"`
}

func (h *Handler) Counts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, countsResponse{OnlineByRole: h.sessions.Counts()})
}

type onlineResponse struct {
	Users []model.UserIdentity `json:"users"`
}

// Online lists online users, optionally of one ?role=.
func (h *Handler) Online(w http.ResponseWriter, r *http.Request) {
	var role model.Role
	if raw := r.URL.Query().Get("role"); raw != "" {
		parsed, err := model.ParseRole(raw)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		role = parsed
	}

	users := h.sessions.OnlineUsers(role)
	if users == nil {
		users = []model.UserIdentity{}
	}
	writeJSON(w, http.StatusOK, onlineResponse{Users: users})
}

// [REQUESTS]

type requestBody struct {
	ListenerID model.UserID `json:"listener_id"`
}

// requestResponse.Delivered is true when the notification was queued for a live subscriber.
type requestResponse struct {
	Request   *model.SessionRequest `json:"request"`
	Delivered bool                  `json:"delivered"`
}

func (h *Handler) RequestSession(w http.ResponseWriter, r *http.Request) {
	who, _ := identity.FromContext(r.Context())

	var body requestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "malformed body: "+err.Error())
		return
	}
	if body.ListenerID <= 0 {
		badRequest(w, "listener_id is required")
		return
	}

	req, queued, err := h.sessions.RequestSession(r.Context(), who, body.ListenerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, requestResponse{Request: req, Delivered: queued})
}

func (h *Handler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	who, _ := identity.FromContext(r.Context())
	requestID, ok := uuidParam(w, r, "requestID")
	if !ok {
		return
	}

	p, err := h.sessions.AcceptRequest(r.Context(), who, requestID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	who, _ := identity.FromContext(r.Context())
	requestID, ok := uuidParam(w, r, "requestID")
	if !ok {
		return
	}

	if err := h.sessions.RejectRequest(r.Context(), who, requestID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// [SESSIONS]

func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	who, _ := identity.FromContext(r.Context())
	sessionID, ok := uuidParam(w, r, "sessionID")
	if !ok {
		return
	}

	if err := h.sessions.EndSession(r.Context(), who.ID, sessionID, service.ReasonEnded); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sessionsResponse struct {
	Sessions []*model.SessionPairing `json:"sessions"`
}

// Sessions lists active pairings. ?user_id= and ?listener_id= select one side
// and are mutually exclusive; without either every session is listed.
func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	sessions := h.sessions.SessionsFor(filter)
	if sessions == nil {
		sessions = []*model.SessionPairing{}
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: sessions})
}

var errFilterConflict = errors.New("user_id and listener_id are mutually exclusive")

func parseFilter(r *http.Request) (model.SessionFilter, error) {
	q := r.URL.Query()
	rawUser, rawListener := q.Get("user_id"), q.Get("listener_id")

	switch {
	case rawUser != "" && rawListener != "":
		return model.SessionFilter{}, errFilterConflict
	case rawUser != "":
		id, err := model.ParseUserID(rawUser)
		return model.SessionFilter{Side: model.RoleUser, ID: id}, err
	case rawListener != "":
		id, err := model.ParseUserID(rawListener)
		return model.SessionFilter{Side: model.RoleListener, ID: id}, err
	}
	return model.SessionFilter{}, nil
}

// [DASHBOARD]

type snapshotResponse struct {
	Presence *model.PresenceSnapshot `json:"presence"`
	Sessions *model.SessionSnapshot  `json:"sessions"`
	Hub      model.HubStats          `json:"hub"`
}

func (h *Handler) DashboardSnapshot(w http.ResponseWriter, _ *http.Request) {
	presence, sessions := h.deliverer.Snapshot()
	writeJSON(w, http.StatusOK, snapshotResponse{Presence: presence, Sessions: sessions, Hub: h.deliverer.Stats()})
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		badRequest(w, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
