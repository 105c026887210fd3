package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/webitel/im-support-service/config"
	"github.com/webitel/im-support-service/internal/adapter/persist"
	"github.com/webitel/im-support-service/internal/domain/broadcast"
	"github.com/webitel/im-support-service/internal/domain/eviction"
	"github.com/webitel/im-support-service/internal/domain/keylock"
	"github.com/webitel/im-support-service/internal/domain/pairing"
	"github.com/webitel/im-support-service/internal/domain/presence"
	"github.com/webitel/im-support-service/internal/domain/registry"
	"github.com/webitel/im-support-service/internal/domain/room"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
)

const meterName = "github.com/webitel/im-support-service"

// DomainModule owns the shared state: presence, pairings, rooms and the
// background loops consuming it.
var DomainModule = fx.Module("domain",
	fx.Provide(
		func(cfg *config.Config) *presence.Registry {
			return presence.NewRegistry(cfg.Presence.Shards)
		},
		func(cfg *config.Config) *presence.IdleTracker {
			return presence.NewIdleTracker(cfg.Presence.IdleWindow, cfg.Presence.MaxTracked)
		},
		func(cfg *config.Config) *keylock.Set {
			return keylock.New(cfg.Presence.LockStripes)
		},
		pairing.NewMatch,
		func(cfg *config.Config, sink persist.Sink, logger *slog.Logger) *room.Manager {
			return room.NewManager(sink,
				room.WithSendTimeout(cfg.Hub.SendTimeout),
				room.WithTombstones(cfg.Session.MaxTombstones, cfg.Session.TombstoneTTL),
				room.WithLogger(logger.With(slog.String("component", "room"))),
			)
		},
		func(m *room.Manager) room.Roomer { return m },
		func(cfg *config.Config, reg *presence.Registry, proj *Projector, metrics *Metrics, logger *slog.Logger) *broadcast.Aggregator {
			return broadcast.NewAggregator(reg, proj,
				broadcast.WithFanout(cfg.Dashboard.Fanout),
				broadcast.WithSendTimeout(cfg.Dashboard.SendTimeout),
				broadcast.WithLogger(logger.With(slog.String("component", "dashboard"))),
				broadcast.WithPublishHook(metrics.DashboardPublished),
			)
		},
		func(a *broadcast.Aggregator) broadcast.Broadcaster { return a },
	),
	fx.Invoke(func(lc fx.Lifecycle, idle *presence.IdleTracker, rooms *room.Manager) {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				idle.Stop()
				rooms.Shutdown()
				return nil
			},
		})
	}),
)

var Module = fx.Module("service",
	fx.Provide(
		func(cfg *config.Config, reg *presence.Registry) (*CachedDirectory, error) {
			return NewCachedDirectory(reg, cfg.Directory.CacheSize)
		},
		func(d *CachedDirectory) Directory { return d },
		func(match *pairing.Match, rooms room.Roomer, dir Directory) *Projector {
			return NewProjector(match, rooms, dir)
		},
		func(reg *presence.Registry) (*Metrics, error) {
			return NewMetrics(otel.Meter(meterName), reg)
		},
		func(s persist.Sink) SessionRecorder { return s },
		func(cfg *config.Config, d Deps) *SessionService {
			return NewSessionService(d, WithPendingRequests(cfg.Session.MaxPending, cfg.Session.RequestTTL))
		},
		func(s *SessionService) Sessioner { return s },
		fx.Annotate(
			func(cfg *config.Config, hub registry.Hubber, board broadcast.Broadcaster, reg *presence.Registry) *DeliveryService {
				return NewDeliveryService(hub, board, cfg.Hub.BufferSize, cfg.Dashboard.BufferSize,
					WithShardStats(reg.Stats),
				)
			},
			fx.As(new(Deliverer)),
		),
		func(
			idle *presence.IdleTracker,
			locks *keylock.Set,
			reg *presence.Registry,
			match *pairing.Match,
			svc *SessionService,
			hub registry.Hubber,
			board broadcast.Broadcaster,
			metrics *Metrics,
			logger *slog.Logger,
		) *eviction.Coordinator {
			return eviction.NewCoordinator(idle, locks, reg, match, svc, hub, board,
				eviction.WithLogger(logger.With(slog.String("component", "eviction"))),
				eviction.WithEvictHook(metrics.Evicted),
			)
		},
	),

	// [DECORATION_LAYER] Intercept Directory to add cross-cutting concerns
	fx.Decorate(func(orig Directory, logger *slog.Logger) Directory {
		return NewDirectoryMiddleware(orig, logger.With(slog.String("component", "directory")))
	}),

	fx.Invoke(func(lc fx.Lifecycle, board *broadcast.Aggregator, coord *eviction.Coordinator, metrics *Metrics) {
		ctx, cancel := context.WithCancel(context.Background())
		var wg sync.WaitGroup

		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				wg.Add(2)
				go func() {
					defer wg.Done()
					board.Run(ctx)
				}()
				go func() {
					defer wg.Done()
					coord.Run(ctx)
				}()
				return nil
			},
			OnStop: func(context.Context) error {
				cancel()
				wg.Wait()
				board.Shutdown()
				return metrics.Close()
			},
		})
	}),
)
