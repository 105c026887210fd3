package pubsub

import (
	"context"

	"go.uber.org/fx"
)

// Module exposes the bus to adapters and handlers.
var Module = fx.Module("pubsub",
	fx.Provide(
		NewPublisherProvider,
		NewSubscriberProvider,
	),
	fx.Invoke(func(lc fx.Lifecycle, pubs *PublisherProvider) {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error { return pubs.Close() },
		})
	}),
)
