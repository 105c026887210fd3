package amqp

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/webitel/im-support-service/config"
	pubsubadapter "github.com/webitel/im-support-service/internal/adapter/pubsub"
	"github.com/webitel/im-support-service/internal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("amqp-handler",
	fx.Provide(
		func(cfg *config.Config, sessions service.Sessioner, logger *slog.Logger, pubs *pubsubadapter.PublisherProvider) (*CommandHandler, error) {
			pub, err := pubs.Build(cfg.PubSub.CommandExchange)
			if err != nil {
				return nil, fmt.Errorf("amqp-handler: %w", err)
			}
			return NewCommandHandler(sessions, logger.With(slog.String("component", "admin")),
				pubsubadapter.NewEventDispatcher(pub), cfg.PubSub.CommandExchange), nil
		},
		NewWatermillRouter,
	),

	fx.Invoke(func(h *CommandHandler, router *message.Router, subs *pubsubadapter.SubscriberProvider) error {
		return h.RegisterHandlers(router, subs)
	}),
)
