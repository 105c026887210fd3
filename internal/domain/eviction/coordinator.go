package eviction

import (
	"context"
	"log/slog"

	"github.com/webitel/im-support-service/internal/domain/keylock"
	"github.com/webitel/im-support-service/internal/domain/model"
)

type Presence interface {
	Get(id model.UserID) (model.PresenceEntry, bool)
	MarkOffline(id model.UserID) (model.PresenceEntry, bool)
}

type Pairings interface {
	PeerOf(id model.UserID) (model.UserID, bool)
	PairingOf(id model.UserID) (*model.SessionPairing, bool)
}

// Releaser tears a session down. ReleaseLocked runs with both users locked
// and only mutates state; the returned func delivers the side effects
// (room close, peer notification, persistence) after the locks are gone.
type Releaser interface {
	ReleaseLocked(ctx context.Context, p *model.SessionPairing, by model.UserID, reason string) (after func())
}

// Source is the expiring heartbeat cache.
type Source interface {
	Expired() <-chan model.Expired
	Forget(id model.UserID)
}

type Kicker interface {
	Kick(userID model.UserID, code, reason string) bool
}

type Trigger interface {
	Trigger()
}

const ReasonIdle = "idle_timeout"

// Coordinator turns idle expiry into a consistent teardown: the user goes
// offline, any pairing is released with the peer told, dashboards refresh.
// It is the only cleanup path for clients that vanished without a close.
type Coordinator struct {
	source   Source
	locks    *keylock.Set
	presence Presence
	pairings Pairings
	releaser Releaser
	hub      Kicker
	trigger  Trigger
	logger   *slog.Logger
	onEvict  func(ctx context.Context, userID model.UserID, paired bool)
}

type Option func(*Coordinator)

func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithEvictHook observes every applied eviction.
func WithEvictHook(fn func(ctx context.Context, userID model.UserID, paired bool)) Option {
	return func(c *Coordinator) { c.onEvict = fn }
}

func NewCoordinator(
	source Source,
	locks *keylock.Set,
	presence Presence,
	pairings Pairings,
	releaser Releaser,
	hub Kicker,
	trigger Trigger,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		source:   source,
		locks:    locks,
		presence: presence,
		pairings: pairings,
		releaser: releaser,
		hub:      hub,
		trigger:  trigger,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consumes expiry signals until ctx is done.
func (c *Coordinator) Run(ctx context.Context) {
	expired := c.source.Expired()
	for {
		select {
		case <-ctx.Done():
			return
		case exp := <-expired:
			c.handle(ctx, exp)
		}
	}
}

// OnIdleTimeout evicts the user unconditionally.
func (c *Coordinator) OnIdleTimeout(ctx context.Context, userID model.UserID) bool {
	c.source.Forget(userID)
	return c.handle(ctx, model.Expired{UserID: userID})
}

// handle applies one expiry. A signal that belongs to an older connection
// epoch, or that was overtaken by a heartbeat, is discarded.
func (c *Coordinator) handle(ctx context.Context, exp model.Expired) bool {
	paired, after, ok := c.apply(ctx, exp)
	if !ok {
		return false
	}

	// [OUTSIDE_LOCK] transport sends never run under the user locks
	if after != nil {
		after()
	}
	if c.hub != nil {
		c.hub.Kick(exp.UserID, model.DisconnectEvicted, ReasonIdle)
	}
	c.trigger.Trigger()

	c.logger.Info("[EVICTION] user evicted",
		slog.String("user_id", exp.UserID.String()),
		slog.Bool("paired", paired),
	)
	if c.onEvict != nil {
		c.onEvict(ctx, exp.UserID, paired)
	}
	return true
}

func (c *Coordinator) apply(ctx context.Context, exp model.Expired) (paired bool, after func(), ok bool) {
	_, paired, unlock := c.locks.LockWithPeer(exp.UserID, c.pairings.PeerOf)
	defer unlock()

	entry, online := c.presence.Get(exp.UserID)
	if online && exp.Epoch != 0 {
		if entry.Epoch != exp.Epoch || entry.LastSeenAt.After(exp.LastSeen) {
			c.logger.Debug("[EVICTION] stale expiry ignored",
				slog.String("user_id", exp.UserID.String()),
				slog.Uint64("epoch", exp.Epoch),
				slog.Uint64("current_epoch", entry.Epoch),
			)
			return false, nil, false
		}
	}
	if !online && !paired {
		// [NO_OP] connection already reaped
		return false, nil, false
	}

	c.presence.MarkOffline(exp.UserID)

	if paired {
		if p, ok := c.pairings.PairingOf(exp.UserID); ok {
			after = c.releaser.ReleaseLocked(ctx, p, exp.UserID, ReasonIdle)
		}
	}
	return paired, after, true
}
