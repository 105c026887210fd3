package persist

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/webitel/im-support-service/config"
	"github.com/webitel/im-support-service/internal/adapter/pubsub"
	"go.uber.org/fx"
)

var Module = fx.Module("persist",
	fx.Provide(
		NewWriter,
		func(cfg *config.Config, w Writer, logger *slog.Logger) *AsyncSink {
			return NewAsyncSink(w, cfg.Persistence.QueueSize, cfg.Persistence.Workers,
				WithLogger(logger.With(slog.String("component", "persist"))),
			)
		},
		func(s *AsyncSink) Sink { return s },
	),
	fx.Invoke(func(lc fx.Lifecycle, s *AsyncSink) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				s.Start()
				return nil
			},
			OnStop: s.Stop,
		})
	}),
)

// NewWriter selects the backend named by persistence.driver.
func NewWriter(cfg *config.Config, logger *slog.Logger, pubs *pubsub.PublisherProvider) (Writer, error) {
	switch cfg.Persistence.Driver {
	case "amqp":
		pub, err := pubs.Build(cfg.Persistence.Exchange)
		if err != nil {
			return nil, fmt.Errorf("persist: %w", err)
		}
		return NewAMQPWriter(pubsub.NewEventDispatcher(pub), logger), nil
	case "mongo":
		m := cfg.Persistence.Mongo
		return NewMongoWriter(context.Background(), m.URI, m.Database, m.Timeout)
	default:
		return NewLogWriter(logger.With(slog.String("component", "persist"))), nil
	}
}
