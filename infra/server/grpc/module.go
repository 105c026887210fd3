package grpcserver

import (
	"log/slog"

	"github.com/webitel/im-support-service/config"
	"go.uber.org/fx"
)

var Module = fx.Module("grpc-server",
	fx.Provide(func(cfg *config.Config, logger *slog.Logger) *Server {
		return New(cfg.GRPC.Address, logger.With(slog.String("component", "grpc")))
	}),
	fx.Invoke(func(lc fx.Lifecycle, s *Server) {
		lc.Append(fx.StartStopHook(s.Start, s.Stop))
	}),
)
