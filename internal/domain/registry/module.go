package registry

import (
	"context"
	"log/slog"

	"github.com/webitel/im-support-service/config"
	"github.com/webitel/im-support-service/internal/domain/event"
	"github.com/webitel/im-support-service/internal/domain/model"
	"github.com/webitel/im-support-service/internal/domain/presence"
	"go.uber.org/fx"
)

var Module = fx.Module("registry",
	fx.Provide(
		// [CLEAN_INJECTION] Configure Hub using Functional Options
		func(cfg *config.Config, logger *slog.Logger, reg *presence.Registry) *Hub {
			return NewHub(
				WithEvictionInterval(cfg.Hub.EvictionInterval),
				WithIdleTimeout(cfg.Hub.IdleTimeout),
				WithMailboxSize(cfg.Hub.MailboxSize),
				WithSendTimeout(cfg.Hub.SendTimeout),
				WithLogger(logger.With(slog.String("component", "hub"))),
				// [INITIAL_SNAPSHOT] current online counts before live events
				WithGreeting(func(model.UserID) []event.Eventer {
					return []event.Eventer{event.NewPresenceSnapshotEvent(reg.Snapshot())}
				}),
			)
		},
		func(h *Hub) Hubber { return h },
	),
	fx.Invoke(func(lc fx.Lifecycle, h Hubber) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				h.Shutdown() // [GRACEFUL_SHUTDOWN] Stop all Actor goroutines
				return nil
			},
		})
	}),
)
