package amqp

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/google/uuid"
	"github.com/webitel/im-support-service/internal/adapter/pubsub"
	"github.com/webitel/im-support-service/internal/service"
	"github.com/webitel/im-support-service/internal/service/dto"
)

const (
	// ------------------- QUEUES (CONSUMERS) --------------------
	AdminCommandsQueue = "im-support.admin-commands.v1"
	AdminPoisonTopic   = "im-support.admin-commands.v1.poison"
)

// CommandHandler consumes operator commands from the bus and applies them
// through the session service.
type CommandHandler struct {
	sessions   service.Sessioner
	logger     *slog.Logger
	dispatcher pubsub.EventDispatcher
	exchange   string
}

func NewCommandHandler(sessions service.Sessioner, logger *slog.Logger, dispatcher pubsub.EventDispatcher, exchange string) *CommandHandler {
	return &CommandHandler{sessions: sessions, logger: logger, dispatcher: dispatcher, exchange: exchange}
}

// [REGISTRATION_PIPELINE]
func (h *CommandHandler) RegisterHandlers(router *message.Router, subProvider *pubsub.SubscriberProvider) error {
	poison, err := middleware.PoisonQueue(h.dispatcher.Publisher(), AdminPoisonTopic)
	if err != nil {
		return fmt.Errorf("POISON_SETUP_FAILED: %w", err)
	}

	configs := []struct {
		name    string
		topic   string
		handler message.NoPublishHandlerFunc
	}{
		{"ON_SESSION_TERMINATE", dto.TopicTerminateSessionV1, Bind(h, h.OnTerminateSessionV1)},
		{"ON_PRESENCE_KICK", dto.TopicKickUserV1, Bind(h, h.OnKickUserV1)},
	}

	// [UNIQUE_HANDLER_QUEUE]
	// Presence and pairings live in this process, so every node takes
	// every command. Format: im-support.admin-commands.v1.b23a8f12.ON_PRESENCE_KICK
	instanceID := uuid.NewString()[:8]

	for _, c := range configs {
		handlerQueue := pubsub.NodeQueue(AdminCommandsQueue, instanceID, c.name)

		sub, err := subProvider.Build(handlerQueue, h.exchange, c.topic)
		if err != nil {
			return err
		}

		router.AddConsumerHandler(c.name, c.topic, sub, c.handler).AddMiddleware(
			TraceIDMiddleware,
			LoggingMiddleware(h.logger),
			NewRetryMiddleware(h.logger).Middleware,
			poison,
			middleware.NewThrottle(100, time.Second).Middleware,
			middleware.Timeout(time.Second*30),
		)
	}

	h.logger.Info("AMQP_PIPELINE_READY", "queue", AdminCommandsQueue, "exchange", h.exchange)
	return nil
}
