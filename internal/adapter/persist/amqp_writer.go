package persist

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"github.com/webitel/im-support-service/internal/adapter/pubsub"
	"github.com/webitel/im-support-service/internal/domain/event"
	"github.com/webitel/im-support-service/internal/domain/model"
)

// AMQPWriter exports records to the bus for a downstream archiver.
// [CIRCUIT_BREAKER] a dead broker trips the breaker so workers fail fast
// instead of stacking up publish timeouts.
type AMQPWriter struct {
	dispatcher pubsub.EventDispatcher
	breaker    *gobreaker.CircuitBreaker
}

func NewAMQPWriter(dispatcher pubsub.EventDispatcher, logger *slog.Logger) *AMQPWriter {
	return &AMQPWriter{
		dispatcher: dispatcher,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "persist-amqp",
			MaxRequests: 1,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("[PERSIST] breaker state changed",
					slog.String("breaker", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()),
				)
			},
		}),
	}
}

func (w *AMQPWriter) WriteChat(ctx context.Context, rec *model.ChatRecord) error {
	return w.publish(ctx, rec)
}

func (w *AMQPWriter) WriteSession(ctx context.Context, rec *model.SessionRecord) error {
	return w.publish(ctx, rec)
}

func (w *AMQPWriter) publish(ctx context.Context, rec event.Exportable) error {
	_, err := w.breaker.Execute(func() (any, error) {
		return nil, w.dispatcher.Publish(ctx, rec)
	})
	return err
}

func (w *AMQPWriter) Close(context.Context) error {
	return w.dispatcher.Publisher().Close()
}
