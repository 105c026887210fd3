package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/webitel/im-support-service/internal/domain/broadcast"
	"github.com/webitel/im-support-service/internal/domain/keylock"
	"github.com/webitel/im-support-service/internal/domain/model"
	"github.com/webitel/im-support-service/internal/domain/pairing"
	"github.com/webitel/im-support-service/internal/domain/presence"
	"github.com/webitel/im-support-service/internal/domain/registry"
	"github.com/webitel/im-support-service/internal/domain/room"
	"go.uber.org/fx"
)

// End reasons carried by END envelopes and session records.
const (
	ReasonEnded        = "ended"
	ReasonLeft         = "left"
	ReasonDisconnected = "disconnected"
	ReasonKicked       = "kicked"
	ReasonTerminated   = "terminated"
)

// Sessioner is the orchestration surface used by the transport handlers.
type Sessioner interface {
	Connect(ctx context.Context, identity model.UserIdentity) (model.PresenceEntry, error)
	Heartbeat(ctx context.Context, id model.UserID) error
	Disconnect(ctx context.Context, id model.UserID) bool
	Kick(ctx context.Context, id model.UserID, reason string) bool

	RequestSession(ctx context.Context, from model.UserIdentity, listenerID model.UserID) (*model.SessionRequest, bool, error)
	AcceptRequest(ctx context.Context, listener model.UserIdentity, requestID uuid.UUID) (*model.SessionPairing, error)
	RejectRequest(ctx context.Context, listener model.UserIdentity, requestID uuid.UUID) error
	EndSession(ctx context.Context, by model.UserID, sessionID uuid.UUID, reason string) error
	TerminateSession(ctx context.Context, sessionID uuid.UUID, reason string) error

	JoinRoom(ctx context.Context, who model.UserIdentity, sessionID uuid.UUID, conn registry.Connector) (model.RoomStatus, error)
	LeaveRoom(ctx context.Context, who model.UserIdentity, sessionID uuid.UUID, conn registry.Connector) error
	SendChat(ctx context.Context, sessionID uuid.UUID, sender model.UserID, text string) (*model.ChatMessage, error)

	SessionsFor(filter model.SessionFilter) []*model.SessionPairing
	OnlineUsers(role model.Role) []model.UserIdentity
	Counts() map[model.Role]int
}

// SessionRecorder receives session start and end records.
type SessionRecorder interface {
	PersistSessionRecord(rec *model.SessionRecord)
}

// Deps are the collaborators of SessionService.
type Deps struct {
	fx.In

	Locks     *keylock.Set
	Presence  *presence.Registry
	Idle      *presence.IdleTracker
	Match     *pairing.Match
	Rooms     room.Roomer
	Hub       registry.Hubber
	Board     broadcast.Broadcaster
	Directory Directory
	Records   SessionRecorder
	Metrics   *Metrics     `optional:"true"`
	Logger    *slog.Logger `optional:"true"`
}

type SessionOption func(*SessionService)

// WithPendingRequests bounds the pending request table and sets the request TTL.
func WithPendingRequests(size int, ttl time.Duration) SessionOption {
	return func(s *SessionService) {
		s.pending = expirable.NewLRU[uuid.UUID, *model.SessionRequest](size, nil, ttl)
	}
}

// SessionService ties presence, pairing, rooms and notification delivery
// together. Every state change happens under the per-user locks; transport
// sends and persistence run after the locks are released.
type SessionService struct {
	locks     *keylock.Set
	presence  *presence.Registry
	idle      *presence.IdleTracker
	match     *pairing.Match
	rooms     room.Roomer
	hub       registry.Hubber
	board     broadcast.Broadcaster
	directory Directory
	records   SessionRecorder
	metrics   *Metrics
	logger    *slog.Logger

	pending *expirable.LRU[uuid.UUID, *model.SessionRequest]
}

var _ Sessioner = (*SessionService)(nil)

func NewSessionService(d Deps, opts ...SessionOption) *SessionService {
	s := &SessionService{
		locks:     d.Locks,
		presence:  d.Presence,
		idle:      d.Idle,
		match:     d.Match,
		rooms:     d.Rooms,
		hub:       d.Hub,
		board:     d.Board,
		directory: d.Directory,
		records:   d.Records,
		metrics:   d.Metrics,
		logger:    d.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pending == nil {
		s.pending = expirable.NewLRU[uuid.UUID, *model.SessionRequest](10_000, nil, 2*time.Minute)
	}
	return s
}

// [PRESENCE]

// Connect marks the user online and starts its idle window.
func (s *SessionService) Connect(_ context.Context, identity model.UserIdentity) (model.PresenceEntry, error) {
	if identity.ID <= 0 {
		return model.PresenceEntry{}, model.ErrUnknownUser
	}
	if !identity.Role.Valid() {
		return model.PresenceEntry{}, model.ErrRoleMismatch
	}

	unlock := s.locks.Lock(identity.ID)
	entry, fresh := s.presence.MarkOnline(identity)
	s.idle.Track(identity.ID, entry.Epoch)
	unlock()

	s.directory.Remember(entry.Identity)
	if fresh {
		s.board.Trigger()
		s.logger.Info("USER_CONNECTED",
			slog.String("user_id", identity.ID.String()),
			slog.String("role", identity.Role.String()),
		)
	}
	return entry, nil
}

// Heartbeat refreshes last-seen and the idle window.
func (s *SessionService) Heartbeat(_ context.Context, id model.UserID) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	if !s.touchLocked(id) {
		return model.ErrUnknownUser
	}
	return nil
}

// Disconnect is the clean close. Unknown users are a no-op.
func (s *SessionService) Disconnect(ctx context.Context, id model.UserID) bool {
	return s.offline(ctx, id, model.DisconnectLogout, ReasonDisconnected)
}

// Kick forces the user offline on behalf of an operator.
func (s *SessionService) Kick(ctx context.Context, id model.UserID, reason string) bool {
	if reason == "" {
		reason = ReasonKicked
	}
	return s.offline(ctx, id, model.DisconnectKicked, reason)
}

func (s *SessionService) offline(ctx context.Context, id model.UserID, code, reason string) bool {
	_, paired, unlock := s.locks.LockWithPeer(id, s.match.PeerOf)

	_, wasOnline := s.presence.MarkOffline(id)
	s.idle.Forget(id)

	var after func()
	if paired {
		if p, ok := s.match.PairingOf(id); ok {
			after = s.ReleaseLocked(ctx, p, id, reason)
		}
	}
	unlock()

	if after != nil {
		after()
	}
	kicked := s.hub.Kick(id, code, reason)

	if !wasOnline && after == nil {
		return kicked
	}
	s.board.Trigger()
	s.logger.Info("USER_DISCONNECTED",
		slog.String("user_id", id.String()),
		slog.String("reason", reason),
		slog.Bool("paired", after != nil),
	)
	return true
}

// touchLocked requires the user lock. A missing idle entry (evicted from a
// full tracker, or expired while this heartbeat waited on the lock) is re-armed.
func (s *SessionService) touchLocked(id model.UserID) bool {
	if !s.presence.Touch(id) {
		return false
	}
	if !s.idle.Touch(id) {
		if entry, ok := s.presence.Get(id); ok {
			s.idle.Track(id, entry.Epoch)
		}
	}
	return true
}

func (s *SessionService) touch(id model.UserID) {
	unlock := s.locks.Lock(id)
	s.touchLocked(id)
	unlock()
}

// [REQUESTS]

// RequestSession asks a listener for a session. queued reports whether the
// notification reached the listener's live subscriber queue; the request stays
// pending either way.
func (s *SessionService) RequestSession(ctx context.Context, from model.UserIdentity, listenerID model.UserID) (*model.SessionRequest, bool, error) {
	if from.Role != model.RoleUser {
		return nil, false, model.ErrRoleMismatch
	}
	if from.ID == listenerID {
		return nil, false, model.ErrSelfPair
	}

	req, err := s.openRequest(from.ID, listenerID)
	if err != nil {
		return nil, false, err
	}

	who, _ := s.directory.Resolve(ctx, from.ID)
	req.From = who
	queued := s.notify(ctx, model.NewEnvelope(model.EnvelopeRequest, from.ID, listenerID, &model.RequestPayload{
		RequestID: req.ID,
		From:      who,
	}))

	s.logger.Info("SESSION_REQUESTED",
		slog.String("request_id", req.ID.String()),
		slog.String("user_id", from.ID.String()),
		slog.String("listener_id", listenerID.String()),
		slog.Bool("queued", queued),
	)
	return req, queued, nil
}

func (s *SessionService) openRequest(userID, listenerID model.UserID) (*model.SessionRequest, error) {
	unlock := s.locks.Lock(userID, listenerID)
	defer unlock()

	requester, ok := s.presence.Get(userID)
	if !ok {
		return nil, model.ErrUnknownUser
	}
	listener, ok := s.presence.Get(listenerID)
	if !ok {
		return nil, model.ErrUnknownUser
	}
	if listener.Role() != model.RoleListener {
		return nil, model.ErrRoleMismatch
	}
	if s.match.IsPaired(userID) || s.match.IsPaired(listenerID) {
		return nil, model.ErrAlreadyPaired
	}

	req := &model.SessionRequest{
		ID:          uuid.New(),
		From:        requester.Identity,
		ListenerID:  listenerID,
		RequestedAt: time.Now(),
	}
	s.pending.Add(req.ID, req)
	return req, nil
}

// AcceptRequest pairs the requester with the accepting listener.
// Of two racing accepts (or an accept racing a reject) exactly one wins.
func (s *SessionService) AcceptRequest(ctx context.Context, listener model.UserIdentity, requestID uuid.UUID) (*model.SessionPairing, error) {
	req, ok := s.pending.Peek(requestID)
	if !ok || req.ListenerID != listener.ID {
		return nil, model.ErrUnknownRequest
	}

	p, err := s.pairLocked(req)
	if err != nil {
		return nil, err
	}

	s.records.PersistSessionRecord(model.NewSessionRecord(p))
	who, _ := s.directory.Resolve(ctx, listener.ID)
	s.notify(ctx, model.NewEnvelope(model.EnvelopeAccept, listener.ID, req.From.ID, &model.AcceptPayload{
		RequestID: req.ID,
		SessionID: p.SessionID,
		Listener:  who,
	}))
	s.board.Trigger()
	s.metrics.SessionStarted(ctx)

	s.logger.Info("SESSION_STARTED",
		slog.String("session_id", p.SessionID.String()),
		slog.String("user_id", p.UserA.String()),
		slog.String("listener_id", p.UserB.String()),
	)
	return p, nil
}

func (s *SessionService) pairLocked(req *model.SessionRequest) (*model.SessionPairing, error) {
	unlock := s.locks.Lock(req.From.ID, req.ListenerID)
	defer unlock()

	// [SINGLE_WINNER] whoever removes the request owns it
	if !s.pending.Remove(req.ID) {
		return nil, model.ErrUnknownRequest
	}
	if !s.presence.IsOnline(req.From.ID) || !s.presence.IsOnline(req.ListenerID) {
		return nil, model.ErrUnknownUser
	}
	return s.match.TryPair(req.From.ID, req.ListenerID)
}

func (s *SessionService) RejectRequest(ctx context.Context, listener model.UserIdentity, requestID uuid.UUID) error {
	req, ok := s.pending.Peek(requestID)
	if !ok || req.ListenerID != listener.ID {
		return model.ErrUnknownRequest
	}
	if !s.pending.Remove(requestID) {
		return model.ErrUnknownRequest
	}

	s.notify(ctx, model.NewEnvelope(model.EnvelopeReject, listener.ID, req.From.ID, &model.RejectPayload{
		RequestID: req.ID,
	}))
	s.logger.Info("SESSION_REJECTED",
		slog.String("request_id", req.ID.String()),
		slog.String("listener_id", listener.ID.String()),
	)
	return nil
}

// [SESSIONS]

// EndSession ends the session on behalf of one participant. by == 0 is an
// operator ending it for both sides.
func (s *SessionService) EndSession(ctx context.Context, by model.UserID, sessionID uuid.UUID, reason string) error {
	if reason == "" {
		reason = ReasonEnded
	}
	p, ok := s.match.Session(sessionID)
	if !ok || (by != 0 && !p.Has(by)) {
		return model.ErrUnknownSession
	}

	unlock := s.locks.Lock(p.UserA, p.UserB)
	after := s.ReleaseLocked(ctx, p, by, reason)
	unlock()

	if after == nil {
		// [RACE] ended concurrently by the peer or the eviction path
		return model.ErrUnknownSession
	}
	after()
	return nil
}

func (s *SessionService) TerminateSession(ctx context.Context, sessionID uuid.UUID, reason string) error {
	if reason == "" {
		reason = ReasonTerminated
	}
	return s.EndSession(ctx, 0, sessionID, reason)
}

// ReleaseLocked unpairs p. The caller holds the locks of both users.
// The returned func closes the room, notifies the peer and records the end;
// it must run after the locks are released. nil means p was already gone.
func (s *SessionService) ReleaseLocked(ctx context.Context, p *model.SessionPairing, by model.UserID, reason string) (after func()) {
	released, ok := s.match.Unpair(p.SessionID)
	if !ok {
		return nil
	}
	endedAt := time.Now()

	return func() {
		s.rooms.Close(released.SessionID, by)

		payload := &model.EndPayload{SessionID: released.SessionID, Reason: reason}
		for _, id := range released.Users() {
			if id == by {
				continue
			}
			s.notify(ctx, model.NewEnvelope(model.EnvelopeEnd, by, id, payload))
		}

		s.records.PersistSessionRecord(model.NewSessionRecord(released).Ended(endedAt, reason))
		s.board.Trigger()
		s.metrics.SessionEnded(ctx, reason)

		s.logger.Info("SESSION_ENDED",
			slog.String("session_id", released.SessionID.String()),
			slog.String("by", by.String()),
			slog.String("reason", reason),
			slog.Duration("lasted", endedAt.Sub(released.StartedAt)),
		)
	}
}

// [ROOMS]

// JoinRoom admits a participant of the session into its chat room.
func (s *SessionService) JoinRoom(ctx context.Context, who model.UserIdentity, sessionID uuid.UUID, conn registry.Connector) (model.RoomStatus, error) {
	p, ok := s.match.Session(sessionID)
	if !ok {
		if s.rooms.Status(sessionID) == model.RoomClosed {
			return model.RoomClosed, model.ErrRoomClosed
		}
		return model.RoomOpen, model.ErrUnknownSession
	}
	if !p.Has(who.ID) {
		return s.rooms.Status(sessionID), model.ErrNotInRoom
	}

	if who.DisplayName == "" {
		if resolved, err := s.directory.Resolve(ctx, who.ID); err == nil {
			who.DisplayName = resolved.DisplayName
		}
	}

	status, err := s.rooms.Join(sessionID, who, conn)
	if err != nil {
		return status, err
	}
	s.touch(who.ID)
	if status == model.RoomFull {
		s.board.Trigger()
	}
	return status, nil
}

// LeaveRoom closes the room and ends the session. There is no rejoin.
func (s *SessionService) LeaveRoom(ctx context.Context, who model.UserIdentity, sessionID uuid.UUID, conn registry.Connector) error {
	if err := s.rooms.Leave(sessionID, conn); err != nil {
		// [ROOM_GONE] a room retired by the transport still owes the session its end
		if !errors.Is(err, model.ErrRoomClosed) || !s.pairedIn(sessionID, who.ID) {
			return err
		}
	}
	err := s.EndSession(ctx, who.ID, sessionID, ReasonLeft)
	if errors.Is(err, model.ErrUnknownSession) {
		// the peer (or eviction) ended it first
		return nil
	}
	return err
}

// SendChat relays text to the peer and counts as activity of the sender.
func (s *SessionService) SendChat(ctx context.Context, sessionID uuid.UUID, sender model.UserID, text string) (*model.ChatMessage, error) {
	msg, err := s.rooms.Relay(sessionID, sender, text)
	if err != nil {
		return nil, err
	}
	s.touch(sender)
	s.metrics.ChatRelayed(ctx)

	// [DEAD_PEER] the relay retired the room; the vanished side ends the session
	if s.rooms.Status(sessionID) == model.RoomClosed {
		if p, ok := s.match.Session(sessionID); ok {
			if peer, ok := p.Peer(sender); ok {
				if err := s.EndSession(ctx, peer, sessionID, ReasonDisconnected); err != nil && !errors.Is(err, model.ErrUnknownSession) {
					return msg, err
				}
			}
		}
	}
	return msg, nil
}

func (s *SessionService) pairedIn(sessionID uuid.UUID, id model.UserID) bool {
	p, ok := s.match.Session(sessionID)
	return ok && p.Has(id)
}

// [QUERIES]

func (s *SessionService) SessionsFor(filter model.SessionFilter) []*model.SessionPairing {
	return s.match.Sessions(filter)
}

func (s *SessionService) OnlineUsers(role model.Role) []model.UserIdentity {
	return s.presence.OnlineUsers(role)
}

func (s *SessionService) Counts() map[model.Role]int {
	return s.presence.CountsByRole()
}

// notify queues env for the receiver's live subscriber. At most once, no retry.
func (s *SessionService) notify(ctx context.Context, env *model.NotificationEnvelope) bool {
	if s.hub.Publish(env) {
		return true
	}
	s.metrics.NotificationDropped(ctx, env.Kind)
	return false
}
