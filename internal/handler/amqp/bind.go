package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/ThreeDotsLabs/watermill/message"
)

// DomainHandler defines the functional signature for business logic.
type DomainHandler[T any] func(ctx context.Context, payload *T) error

type validator interface {
	Validate() error
}

// [INFRASTRUCTURE_BRIDGE]
// Bind connects Watermill to the session service: panic recovery, decoding,
// validation, then the command itself. Only domain failures are NACKed;
// a payload that cannot be decoded or validated never heals on redelivery.
func Bind[T any](h *CommandHandler, fn DomainHandler[T]) message.NoPublishHandlerFunc {
	command := fmt.Sprintf("%T", *new(T))

	return func(msg *message.Message) (err error) {
		log := h.logger.With(
			slog.String("command", command),
			slog.String("msg_id", msg.UUID),
			slog.String("trace_id", TraceIDFromContext(msg.Context())),
		)

		// [PANIC_RECOVERY] the consumer survives; the message is ACKed
		defer func() {
			if r := recover(); r != nil {
				log.Error("PANIC_RECOVERED",
					slog.Any("err", r),
					slog.String("stack", string(debug.Stack())),
				)
				err = nil
			}
		}()

		// [DECODING]
		payload := new(T)
		if err := json.Unmarshal(msg.Payload, payload); err != nil {
			log.Error("DECODE_FAILED", slog.Any("err", err))
			return nil // ACK: Poison Pill protection.
		}

		// [VALIDATION]
		if v, ok := any(payload).(validator); ok {
			if err := v.Validate(); err != nil {
				log.Warn("COMMAND_REJECTED", slog.Any("err", err))
				return nil // ACK
			}
		}

		// [EXECUTION] NACK: business failure triggers the retry policy
		return fn(msg.Context(), payload)
	}
}
