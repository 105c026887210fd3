package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-support-service/internal/domain/event"
	"github.com/webitel/im-support-service/internal/domain/model"
	"github.com/webitel/im-support-service/internal/domain/registry"
	"golang.org/x/sync/errgroup"
)

type PresenceSource interface {
	Snapshot() *model.PresenceSnapshot
}

type SessionSource interface {
	SessionSnapshot() *model.SessionSnapshot
}

// Broadcaster is the dashboard side of the system.
type Broadcaster interface {
	Subscribe(conn registry.Connector)
	Unsubscribe(connID uuid.UUID) bool
	Trigger()
	RecomputeAndPublish(ctx context.Context) error
	Latest() (*model.PresenceSnapshot, *model.SessionSnapshot)
	Subscribers() int
}

var _ Broadcaster = (*Aggregator)(nil)

// Aggregator pushes presence and session snapshots to every dashboard viewer.
// Its subscriber pool is independent from the notification hub: any number of
// viewers per user, keyed by connection.
type Aggregator struct {
	presence PresenceSource
	sessions SessionSource

	subscribers sync.Map // uuid.UUID -> registry.Connector
	count       atomic.Int64

	// [COALESCING] a burst of changes collapses into one pending recompute
	kick chan struct{}

	generation atomic.Uint64
	last       atomic.Pointer[frame]

	fanout      int
	sendTimeout time.Duration
	logger      *slog.Logger
	onPublish   func(subscribers int, took time.Duration)
}

type frame struct {
	presence *model.PresenceSnapshot
	sessions *model.SessionSnapshot
}

type Option func(*Aggregator)

// WithFanout bounds the number of concurrent sends per publish.
func WithFanout(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.fanout = n
		}
	}
}

func WithSendTimeout(d time.Duration) Option {
	return func(a *Aggregator) { a.sendTimeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithPublishHook observes every completed publish.
func WithPublishHook(fn func(subscribers int, took time.Duration)) Option {
	return func(a *Aggregator) { a.onPublish = fn }
}

func NewAggregator(presence PresenceSource, sessions SessionSource, opts ...Option) *Aggregator {
	a := &Aggregator{
		presence: presence,
		sessions: sessions,
		kick:     make(chan struct{}, 1),
		fanout:   32,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Subscribe attaches a viewer and sends it the current state first.
func (a *Aggregator) Subscribe(conn registry.Connector) {
	gen := a.generation.Load()
	f := a.compute()

	a.send(conn, f)
	if _, loaded := a.subscribers.LoadOrStore(conn.GetID(), conn); !loaded {
		a.count.Add(1)
	}

	// [CATCH_UP] a publish that ran between compute and store missed this viewer
	if a.generation.Load() != gen {
		a.Trigger()
	}
	a.logger.Debug("[DASHBOARD] subscribed", slog.String("conn_id", conn.GetID().String()))
}

func (a *Aggregator) Unsubscribe(connID uuid.UUID) bool {
	if _, ok := a.subscribers.LoadAndDelete(connID); ok {
		a.count.Add(-1)
		return true
	}
	return false
}

func (a *Aggregator) Subscribers() int { return int(a.count.Load()) }

// Trigger schedules a recompute without waiting for it.
func (a *Aggregator) Trigger() {
	select {
	case a.kick <- struct{}{}:
	default:
	}
}

// Run serves triggers until ctx is done.
func (a *Aggregator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.kick:
			if err := a.RecomputeAndPublish(ctx); err != nil && ctx.Err() == nil {
				a.logger.Warn("[DASHBOARD] publish failed", slog.Any("err", err))
			}
		}
	}
}

// Latest returns the last published frame, computing one if nothing was published yet.
func (a *Aggregator) Latest() (*model.PresenceSnapshot, *model.SessionSnapshot) {
	f := a.last.Load()
	if f == nil {
		f = a.compute()
	}
	return f.presence, f.sessions
}

// RecomputeAndPublish snapshots presence and pairings and fans them out.
// A dead viewer is dropped from the pool; a slow one only misses this frame.
func (a *Aggregator) RecomputeAndPublish(ctx context.Context) error {
	start := time.Now()
	a.generation.Add(1)
	f := a.compute()
	a.last.Store(f)

	// [SHARED_EVENTS] one event per kind so the wire encoding is cached once
	presenceEv := event.NewPresenceSnapshotEvent(f.presence)
	sessionsEv := event.NewSessionSnapshotEvent(f.sessions)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.fanout)

	var n int
	a.subscribers.Range(func(key, val any) bool {
		if gctx.Err() != nil {
			return false
		}
		n++
		conn := val.(registry.Connector)
		g.Go(func() error {
			if !a.deliver(conn, presenceEv, sessionsEv) {
				a.drop(conn)
			}
			return nil
		})
		return true
	})

	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.onPublish != nil {
		a.onPublish(n, time.Since(start))
	}
	return nil
}

// Shutdown closes every viewer handle.
func (a *Aggregator) Shutdown() {
	a.subscribers.Range(func(key, val any) bool {
		val.(registry.Connector).Close()
		a.Unsubscribe(key.(uuid.UUID))
		return true
	})
}

func (a *Aggregator) compute() *frame {
	return &frame{
		presence: a.presence.Snapshot(),
		sessions: a.sessions.SessionSnapshot(),
	}
}

func (a *Aggregator) send(conn registry.Connector, f *frame) bool {
	return a.deliver(conn,
		event.NewPresenceSnapshotEvent(f.presence),
		event.NewSessionSnapshotEvent(f.sessions),
	)
}

// deliver reports false only when the handle is gone.
func (a *Aggregator) deliver(conn registry.Connector, evs ...event.Eventer) bool {
	for _, ev := range evs {
		if conn.Send(ev, a.sendTimeout) {
			continue
		}
		select {
		case <-conn.Done():
			return false
		default:
		}
	}
	return true
}

func (a *Aggregator) drop(conn registry.Connector) {
	if a.Unsubscribe(conn.GetID()) {
		a.logger.Debug("[DASHBOARD] viewer removed",
			slog.String("conn_id", conn.GetID().String()),
			slog.Uint64("dropped", conn.Dropped()),
		)
	}
}
