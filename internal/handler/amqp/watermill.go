package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"go.uber.org/fx"
)

// NewWatermillRouter builds the consumer router and ties it to the app
// lifecycle: Run on start, Close on stop.
func NewWatermillRouter(lc fx.Lifecycle, wlogger watermill.LoggerAdapter, logger *slog.Logger) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 10 * time.Second}, wlogger)
	if err != nil {
		return nil, fmt.Errorf("ROUTER_INIT_FAILED: %w", err)
	}
	router.AddMiddleware(middleware.Recoverer, middleware.CorrelationID)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			errCh := make(chan error, 1)
			go func() {
				errCh <- router.Run(context.Background())
			}()

			select {
			case <-router.Running():
				go func() {
					if err := <-errCh; err != nil {
						logger.Error("AMQP_ROUTER_STOPPED", "err", err)
					}
				}()
				return nil
			case err := <-errCh:
				return fmt.Errorf("ROUTER_START_FAILED: %w", err)
			case <-ctx.Done():
				return ctx.Err()
			}
		},
		OnStop: func(context.Context) error {
			return router.Close()
		},
	})
	return router, nil
}
