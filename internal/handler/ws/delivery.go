package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/webitel/im-support-service/internal/domain/event"
	"github.com/webitel/im-support-service/internal/domain/model"
	"github.com/webitel/im-support-service/internal/domain/registry"
	"github.com/webitel/im-support-service/internal/handler/identity"
	wsmarshaller "github.com/webitel/im-support-service/internal/handler/marshaller/ws"
	"github.com/webitel/im-support-service/internal/service"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	maxFrameSize = wsmarshaller.MaxTextLength + 512
	noticeWait   = 100 * time.Millisecond
)

// Application close codes sent when the room refuses the participant.
const (
	CloseNotInRoom      = 4403
	CloseUnknownSession = 4404
	CloseRoomClosed     = 4409
)

// NoticeRejected is the code of the notice returned for an invalid command.
const NoticeRejected = "rejected"

type WSHandler struct {
	logger     *slog.Logger
	sessions   service.Sessioner
	upgrader   websocket.Upgrader
	bufferSize int
}

func NewWSHandler(logger *slog.Logger, sessions service.Sessioner, bufferSize int) *WSHandler {
	return &WSHandler{
		logger:     logger,
		sessions:   sessions,
		bufferSize: bufferSize,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // origin policy belongs to the gateway
		},
	}
}

// ServeHTTP joins the caller into the room of {sessionID}. Closing the socket
// is a leave, which ends the session.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 1. IDENTITY comes from the upstream middleware
	who, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, identity.ErrMissing.Error(), http.StatusUnauthorized)
		return
	}
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	// 2. UPGRADE TO WEBSOCKET
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	// 3. JOIN THE ROOM through the session service
	conn := registry.NewConnector(r.Context(), who.ID, h.bufferSize)
	defer conn.Close()

	status, err := h.sessions.JoinRoom(r.Context(), who, sessionID, conn)
	if err != nil {
		h.refuse(ws, err)
		return
	}

	log := h.logger.With(
		slog.String("user_id", who.ID.String()),
		slog.String("session_id", sessionID.String()),
		slog.String("conn_id", conn.GetID().String()),
	)
	log.Info("ws opened", slog.String("status", status.String()))

	// 4. PUMPS: one writer goroutine, reads on this one
	written := make(chan struct{})
	go func() {
		defer close(written)
		h.writePump(ws, conn, log)
	}()

	h.readPump(r.Context(), ws, who, sessionID, conn, log)

	// 5. LEAVE: a no-op when the peer or an admin already closed the room
	if err := h.sessions.LeaveRoom(context.WithoutCancel(r.Context()), who, sessionID, conn); err != nil &&
		!errors.Is(err, model.ErrRoomClosed) && !errors.Is(err, model.ErrNotInRoom) {
		log.Warn("ws leave failed", "error", err)
	}
	conn.Close()
	<-written
	log.Info("ws closed")
}

func (h *WSHandler) readPump(ctx context.Context, ws *websocket.Conn, who model.UserIdentity, sessionID uuid.UUID, conn registry.Connector, log *slog.Logger) {
	ws.SetReadLimit(maxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("ws read ended", "error", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))

		cmd, err := wsmarshaller.UnmarshalCommand(data)
		if err != nil {
			h.reject(conn, who.ID, sessionID, err)
			continue
		}

		switch cmd.Type {
		case wsmarshaller.CommandChat:
			if _, err := h.sessions.SendChat(ctx, sessionID, who.ID, cmd.Text); err != nil {
				// [ROOM_GONE] the room was closed under us
				if errors.Is(err, model.ErrNotInRoom) {
					return
				}
				h.reject(conn, who.ID, sessionID, err)
			}
		case wsmarshaller.CommandPing:
			_ = h.sessions.Heartbeat(ctx, who.ID)
		case wsmarshaller.CommandLeave:
			return
		}
	}
}

// writePump is the only writer of ws. After the handle is terminated the
// events still buffered are flushed before the close frame.
func (h *WSHandler) writePump(ws *websocket.Conn, conn registry.Connector, log *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev := <-conn.Recv():
			if !h.write(ws, ev, log) {
				conn.Close()
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		case <-conn.Done():
			for {
				select {
				case ev := <-conn.Recv():
					if !h.write(ws, ev, log) {
						return
					}
				default:
					_ = ws.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
						time.Now().Add(writeWait))
					// unblocks the read pump
					_ = ws.Close()
					return
				}
			}
		}
	}
}

func (h *WSHandler) write(ws *websocket.Conn, ev event.Eventer, log *slog.Logger) bool {
	data, err := wsmarshaller.MarshallDeliveryEvent(ev)
	if err != nil {
		log.Error("failed to marshal ws event", "error", err)
		return true
	}
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Warn("ws send failed", "error", err)
		return false
	}
	return true
}

// reject answers an invalid command through the write pump.
func (h *WSHandler) reject(conn registry.Connector, userID model.UserID, sessionID uuid.UUID, err error) {
	conn.Send(event.NewNoticeEvent(userID, sessionID, NoticeRejected, err.Error()), noticeWait)
}

// refuse closes a socket whose join failed. Nothing else has written to ws yet.
func (h *WSHandler) refuse(ws *websocket.Conn, err error) {
	code := websocket.CloseInternalServerErr
	switch {
	case errors.Is(err, model.ErrNotInRoom), errors.Is(err, model.ErrAlreadyJoined):
		code = CloseNotInRoom
	case errors.Is(err, model.ErrUnknownSession):
		code = CloseUnknownSession
	case errors.Is(err, model.ErrRoomClosed), errors.Is(err, model.ErrRoomFull):
		code = CloseRoomClosed
	}
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, err.Error()), time.Now().Add(writeWait))
}
