package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/webitel/im-support-service/internal/domain/broadcast"
	"github.com/webitel/im-support-service/internal/domain/model"
	"github.com/webitel/im-support-service/internal/domain/registry"
)

// [DELIVERY_SERVICE] PRIMARY INTERFACE FOR STREAMING HANDLERS (SSE/Long-poll)
type Deliverer interface {
	// Subscribe replaces any prior notification handle of the user.
	Subscribe(ctx context.Context, userID model.UserID) (registry.Connector, error)
	Unsubscribe(userID model.UserID, connID uuid.UUID)

	SubscribeDashboard(ctx context.Context) registry.Connector
	UnsubscribeDashboard(connID uuid.UUID)
	Snapshot() (*model.PresenceSnapshot, *model.SessionSnapshot)
	// Stats reports the hub cells, with presence shards when known.
	Stats() model.HubStats
}

type DeliveryService struct {
	hub             registry.Hubber
	board           broadcast.Broadcaster
	bufferSize      int
	dashboardBuffer int
	shards          func() []model.ShardStats
}

type DeliveryOption func(*DeliveryService)

// WithShardStats attaches the presence shard breakdown to Stats.
func WithShardStats(fn func() []model.ShardStats) DeliveryOption {
	return func(s *DeliveryService) { s.shards = fn }
}

// NewDeliveryService wires the two subscriber pools: one handle per user on
// the hub, any number of viewers on the dashboard board.
func NewDeliveryService(hub registry.Hubber, board broadcast.Broadcaster, bufferSize, dashboardBuffer int, opts ...DeliveryOption) *DeliveryService {
	s := &DeliveryService{
		hub:             hub,
		board:           board,
		bufferSize:      bufferSize,
		dashboardBuffer: dashboardBuffer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// [SUBSCRIBE] HANDLES CONNECTION LIFECYCLE INITIATION
func (s *DeliveryService) Subscribe(ctx context.Context, userID model.UserID) (registry.Connector, error) {
	if userID <= 0 {
		return nil, model.ErrUnknownUser
	}

	// 1. The connector lives as long as the request context
	conn := registry.NewConnector(ctx, userID, s.bufferSize)

	// 2. Attach to the sharded hub; the greeting snapshot is queued first
	s.hub.Register(conn)

	return conn, nil
}

// [UNSUBSCRIBE] a replaced handle is left alone, the newer one stays attached
func (s *DeliveryService) Unsubscribe(userID model.UserID, connID uuid.UUID) {
	s.hub.Unregister(userID, connID)
}

func (s *DeliveryService) SubscribeDashboard(ctx context.Context) registry.Connector {
	// viewers are anonymous to the hub; zero user id keeps them out of it
	conn := registry.NewConnector(ctx, 0, s.dashboardBuffer)
	s.board.Subscribe(conn)
	return conn
}

func (s *DeliveryService) UnsubscribeDashboard(connID uuid.UUID) {
	s.board.Unsubscribe(connID)
}

func (s *DeliveryService) Snapshot() (*model.PresenceSnapshot, *model.SessionSnapshot) {
	return s.board.Latest()
}

func (s *DeliveryService) Stats() model.HubStats {
	st := s.hub.Stats()
	if s.board != nil {
		st.DashboardViewers = s.board.Subscribers()
	}
	if s.shards != nil {
		st.Shards = s.shards()
	}
	return st
}
