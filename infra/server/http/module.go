package httpserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/webitel/im-support-service/config"
	"go.uber.org/fx"
)

var Module = fx.Module("http-server",
	fx.Provide(func(cfg *config.Config, handler http.Handler, logger *slog.Logger) *Server {
		return New(cfg.HTTP.Address, handler, cfg.HTTP.ReadHeaderTimeout, logger.With(slog.String("component", "http")))
	}),
	fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, s *Server) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error { return s.Start() },
			OnStop: func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout)
				defer cancel()
				return s.Stop(ctx)
			},
		})
	}),
)
