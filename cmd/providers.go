package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/webitel/im-support-service/config"
	"github.com/webitel/im-support-service/infra/pubsub"
	"github.com/webitel/im-support-service/infra/telemetry"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.uber.org/fx"
)

// ProvideLogger installs the OTel providers and builds the process logger.
// The level stays hot: a config file change swaps it without a restart.
func ProvideLogger(lc fx.Lifecycle, cfg *config.Config) (*slog.Logger, error) {
	level := new(slog.LevelVar)
	lvl, err := config.ParseLevel(cfg.Service.LogLevel)
	if err != nil {
		return nil, err
	}
	level.Set(lvl)

	shutdown, err := telemetry.Setup(context.Background(), telemetry.Options{
		Endpoint:       cfg.Otel.Endpoint,
		ServiceName:    cfg.Otel.ServiceName,
		ServiceVersion: version,
		InstanceID:     cfg.Service.ID,
		Logs:           cfg.Otel.Logs,
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: shutdown})

	var handler slog.Handler
	if cfg.Otel.Endpoint != "" && cfg.Otel.Logs {
		// [OTEL_BRIDGE] records leave through the global LoggerProvider
		handler = &levelHandler{Handler: otelslog.NewHandler(ServiceName), level: level}
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}

	logger := slog.New(handler).With(
		slog.String("service", ServiceName),
		slog.String("instance_id", cfg.Service.ID),
	)
	slog.SetDefault(logger)

	cfg.WatchConfig(level.Set)
	return logger, nil
}

func ProvideWatermillLogger(logger *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logger.With(slog.String("component", "watermill")))
}

func ProvidePubSub(lc fx.Lifecycle, cfg *config.Config, logger watermill.LoggerAdapter) pubsub.Provider {
	p := pubsub.NewProvider(cfg.PubSub.AMQPURL, logger)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return p.Close() },
	})
	return p
}

// levelHandler gates a handler that has no level of its own.
type levelHandler struct {
	slog.Handler
	level slog.Leveler
}

func (h *levelHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return l >= h.level.Level() && h.Handler.Enabled(ctx, l)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{Handler: h.Handler.WithAttrs(attrs), level: h.level}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{Handler: h.Handler.WithGroup(name), level: h.level}
}
