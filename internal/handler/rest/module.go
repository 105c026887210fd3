package rest

import (
	"log/slog"

	"github.com/webitel/im-support-service/config"
	"github.com/webitel/im-support-service/internal/handler/lp"
	"github.com/webitel/im-support-service/internal/handler/ws"
	"github.com/webitel/im-support-service/internal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("http-handlers",
	fx.Provide(
		func(cfg *config.Config, sessions service.Sessioner, deliverer service.Deliverer, logger *slog.Logger) *Handler {
			return NewHandler(sessions, deliverer, logger.With(slog.String("component", "http")), cfg.HTTP.SSEHeartbeat)
		},
		func(cfg *config.Config, sessions service.Sessioner, logger *slog.Logger) *ws.WSHandler {
			return ws.NewWSHandler(logger.With(slog.String("component", "ws")), sessions, cfg.Session.ChatBufferSize)
		},
		func(cfg *config.Config, deliverer service.Deliverer) *lp.LPHandler {
			return lp.NewLPHandler(deliverer, cfg.HTTP.PollTimeout)
		},
		NewRouter,
	),
)
