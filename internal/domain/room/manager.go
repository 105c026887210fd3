package room

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/webitel/im-support-service/internal/domain/event"
	"github.com/webitel/im-support-service/internal/domain/model"
	"github.com/webitel/im-support-service/internal/domain/registry"
)

// ChatSink receives relayed messages. Implementations must not block.
type ChatSink interface {
	PersistChatMessage(rec *model.ChatRecord)
}

// Roomer is what the service layer needs from the room manager.
type Roomer interface {
	Join(sessionID uuid.UUID, who model.UserIdentity, conn registry.Connector) (model.RoomStatus, error)
	Leave(sessionID uuid.UUID, conn registry.Connector) error
	Close(sessionID uuid.UUID, by model.UserID) bool
	Relay(sessionID uuid.UUID, sender model.UserID, text string) (*model.ChatMessage, error)
	Status(sessionID uuid.UUID) model.RoomStatus
	Len() int
}

var _ Roomer = (*Manager)(nil)

// Manager owns every live Room. Synchronization is per room; the manager
// itself only holds a concurrent index and the closed-room tombstones.
type Manager struct {
	rooms sync.Map // uuid.UUID -> *Room

	// [TOMBSTONES] closed sessions refuse late joins until the entry expires
	closed *expirable.LRU[uuid.UUID, time.Time]

	sink        ChatSink
	sendTimeout time.Duration
	logger      *slog.Logger
}

type Option func(*Manager)

func WithSendTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.sendTimeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithTombstones sizes the closed-room memory.
func WithTombstones(size int, ttl time.Duration) Option {
	return func(m *Manager) {
		m.closed = expirable.NewLRU[uuid.UUID, time.Time](size, nil, ttl)
	}
}

func NewManager(sink ChatSink, opts ...Option) *Manager {
	m := &Manager{
		sink:        sink,
		sendTimeout: 500 * time.Millisecond,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.closed == nil {
		m.closed = expirable.NewLRU[uuid.UUID, time.Time](10_000, nil, time.Hour)
	}
	return m
}

// Join admits conn into the session room, creating the room on first join.
// The caller is responsible for checking that who is one side of the pairing.
func (m *Manager) Join(sessionID uuid.UUID, who model.UserIdentity, conn registry.Connector) (model.RoomStatus, error) {
	if m.closed.Contains(sessionID) {
		return model.RoomClosed, model.ErrRoomClosed
	}

	val, _ := m.rooms.LoadOrStore(sessionID, newRoom(sessionID))
	r := val.(*Room)

	notices, err := r.join(who, conn)
	if err != nil {
		return r.Status(), err
	}

	// [CLOSE_RACE] Close tombstones before it unlinks, so a room created
	// concurrently with a Close is always caught by one of the two sides.
	if m.closed.Contains(sessionID) {
		m.retire(sessionID, r, who.ID)
		return model.RoomClosed, model.ErrRoomClosed
	}

	m.dispatch(notices)
	m.logger.Debug("[ROOM] joined",
		slog.String("session_id", sessionID.String()),
		slog.String("user_id", who.ID.String()),
	)
	if len(notices) > 0 {
		return model.RoomFull, nil
	}
	return model.RoomOpen, nil
}

// Leave is the destructive exit of the participant owning conn.
// Leaving with a handle that is not in the room is ErrNotInRoom.
func (m *Manager) Leave(sessionID uuid.UUID, conn registry.Connector) error {
	r, ok := m.load(sessionID)
	if !ok {
		if m.closed.Contains(sessionID) {
			return model.ErrRoomClosed
		}
		return model.ErrNotInRoom
	}
	userID, ok := r.holds(conn)
	if !ok {
		return model.ErrNotInRoom
	}
	m.retire(sessionID, r, userID)
	return nil
}

// Close terminates the session room on behalf of user by, joined or not.
// It reports whether a live room existed. The session is tombstoned either way.
func (m *Manager) Close(sessionID uuid.UUID, by model.UserID) bool {
	m.closed.Add(sessionID, time.Now())
	r, ok := m.load(sessionID)
	if !ok {
		return false
	}
	return m.retire(sessionID, r, by)
}

// Relay forwards text to every participant except the sender, synchronously,
// then hands the record to the sink. Messages of one sender are queued to the
// peer in call order.
func (m *Manager) Relay(sessionID uuid.UUID, sender model.UserID, text string) (*model.ChatMessage, error) {
	r, ok := m.load(sessionID)
	if !ok {
		return nil, model.ErrNotInRoom
	}
	peers, member := r.peersOf(sender)
	if !member {
		return nil, model.ErrNotInRoom
	}

	sentAt := time.Now()
	var msg *model.ChatMessage
	for _, peer := range peers {
		ev := event.NewChatV1Event(sessionID, sender, peer.GetUserID(), text, sentAt)
		msg = ev.Message()
		if peer.Send(ev, m.sendTimeout) {
			continue
		}
		if isDone(peer) {
			// [DEAD_PEER] a vanished transport counts as leaving
			m.retire(sessionID, r, peer.GetUserID())
			continue
		}
		m.logger.Warn("[ROOM] message shed, peer is saturated",
			slog.String("session_id", sessionID.String()),
			slog.String("peer_id", peer.GetUserID().String()),
		)
	}
	if msg == nil {
		msg = &model.ChatMessage{ID: uuid.New(), SessionID: sessionID, SenderID: sender, Text: text, SentAt: sentAt}
	}

	if m.sink != nil {
		m.sink.PersistChatMessage(&model.ChatRecord{
			SessionID: sessionID,
			SenderID:  sender,
			Text:      text,
			SentAt:    sentAt,
		})
	}
	return msg, nil
}

// Status of the room. A session nobody joined yet is OPEN.
func (m *Manager) Status(sessionID uuid.UUID) model.RoomStatus {
	if r, ok := m.load(sessionID); ok {
		return r.Status()
	}
	if m.closed.Contains(sessionID) {
		return model.RoomClosed
	}
	return model.RoomOpen
}

// Len counts live rooms.
func (m *Manager) Len() int {
	n := 0
	m.rooms.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Shutdown closes every live room.
func (m *Manager) Shutdown() {
	m.rooms.Range(func(key, val any) bool {
		m.Close(key.(uuid.UUID), 0)
		return true
	})
}

func (m *Manager) load(sessionID uuid.UUID) (*Room, bool) {
	val, ok := m.rooms.Load(sessionID)
	if !ok {
		return nil, false
	}
	return val.(*Room), true
}

// retire transitions r to CLOSED, unlinks it and notifies the remaining side.
func (m *Manager) retire(sessionID uuid.UUID, r *Room, by model.UserID) bool {
	m.closed.Add(sessionID, time.Now())
	notices, handles, ok := r.leave(by)
	m.rooms.CompareAndDelete(sessionID, r)
	if !ok {
		return false
	}

	m.dispatch(notices)
	// [DRAIN] transports flush queued events after Done before hanging up
	for _, h := range handles {
		h.Close()
	}

	m.logger.Info("[ROOM] closed",
		slog.String("session_id", sessionID.String()),
		slog.String("by", by.String()),
	)
	return true
}

func (m *Manager) dispatch(notices []outbound) {
	for _, n := range notices {
		if !n.to.Send(n.ev, m.sendTimeout) {
			m.logger.Debug("[ROOM] notice dropped",
				slog.String("user_id", n.to.GetUserID().String()),
				slog.String("kind", n.ev.GetKind().String()),
			)
		}
	}
}

func isDone(conn registry.Connector) bool {
	select {
	case <-conn.Done():
		return true
	default:
		return false
	}
}
