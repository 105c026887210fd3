package room

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/webitel/im-support-service/internal/domain/event"
	"github.com/webitel/im-support-service/internal/domain/model"
	"github.com/webitel/im-support-service/internal/domain/registry"
)

type participant struct {
	identity model.UserIdentity
	conn     registry.Connector
}

// Room is the two-party relay of one session.
//
// [STATE_MACHINE]
// OPEN (0..1) -> FULL (2) -> CLOSED. CLOSED is terminal; a closed room never
// accepts another participant, not even one that was in it before.
type Room struct {
	sessionID uuid.UUID

	mu           sync.Mutex
	status       model.RoomStatus
	participants []participant // [CAPACITY] len <= model.RoomCapacity
}

func newRoom(sessionID uuid.UUID) *Room {
	return &Room{
		sessionID:    sessionID,
		status:       model.RoomOpen,
		participants: make([]participant, 0, model.RoomCapacity),
	}
}

func (r *Room) SessionID() uuid.UUID { return r.sessionID }

func (r *Room) Status() model.RoomStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// join admits conn and returns the notices to send once the lock is released.
func (r *Room) join(who model.UserIdentity, conn registry.Connector) ([]outbound, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.status {
	case model.RoomClosed:
		return nil, model.ErrRoomClosed
	case model.RoomFull:
		return nil, model.ErrRoomFull
	}

	for _, p := range r.participants {
		if p.identity.ID == who.ID {
			return nil, model.ErrAlreadyJoined
		}
	}

	r.participants = append(r.participants, participant{identity: who, conn: conn})
	if len(r.participants) < model.RoomCapacity {
		return nil, nil
	}

	// [FULL_TRANSITION] each side learns about the other one
	r.status = model.RoomFull
	a, b := r.participants[0], r.participants[1]
	return []outbound{
		{to: a.conn, ev: r.notice(a.identity.ID, model.NoticeJoined, b.identity)},
		{to: b.conn, ev: r.notice(b.identity.ID, model.NoticeJoined, a.identity)},
	}, nil
}

// leave closes the room on behalf of userID. Every other participant gets a
// "left" notice; all handles are returned so the caller can close them after
// the notices are queued.
func (r *Room) leave(userID model.UserID) (notices []outbound, handles []registry.Connector, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == model.RoomClosed {
		return nil, nil, false
	}
	r.status = model.RoomClosed

	var leaver model.UserIdentity
	for _, p := range r.participants {
		if p.identity.ID == userID {
			leaver = p.identity
		}
	}
	if leaver.ID == 0 {
		leaver = model.UserIdentity{ID: userID}
	}

	for _, p := range r.participants {
		handles = append(handles, p.conn)
		if p.identity.ID != userID {
			notices = append(notices, outbound{to: p.conn, ev: r.notice(p.identity.ID, model.NoticeLeft, leaver)})
		}
	}
	r.participants = nil
	return notices, handles, true
}

// peersOf copies the recipients of a message from sender.
func (r *Room) peersOf(sender model.UserID) ([]registry.Connector, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	member := false
	peers := make([]registry.Connector, 0, 1)
	for _, p := range r.participants {
		if p.identity.ID == sender {
			member = true
			continue
		}
		peers = append(peers, p.conn)
	}
	return peers, member
}

// holds reports whether conn is the current handle of one participant.
func (r *Room) holds(conn registry.Connector) (model.UserID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.participants {
		if p.conn.GetID() == conn.GetID() {
			return p.identity.ID, true
		}
	}
	return 0, false
}

func (r *Room) notice(to model.UserID, code string, about model.UserIdentity) event.Eventer {
	var text string
	switch code {
	case model.NoticeJoined:
		text = fmt.Sprintf("%s joined the session", about.Name())
	default:
		text = fmt.Sprintf("%s left the session", about.Name())
	}
	return event.NewNoticeEvent(to, r.sessionID, code, text)
}

type outbound struct {
	to registry.Connector
	ev event.Eventer
}
