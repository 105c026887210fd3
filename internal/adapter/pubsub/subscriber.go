package pubsub

import (
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	infrapubsub "github.com/webitel/im-support-service/infra/pubsub"
	"github.com/webitel/im-support-service/infra/pubsub/factory"
)

// defaultPrefetch keeps admin commands flowing one at a time per node.
const defaultPrefetch = 1

type SubscriberProvider struct {
	factory  factory.Factory
	prefetch int
}

func NewSubscriberProvider(p infrapubsub.Provider) *SubscriberProvider {
	return &SubscriberProvider{factory: p.GetFactory(), prefetch: defaultPrefetch}
}

// Build binds queue to exchange with routingKey.
func (sp *SubscriberProvider) Build(queue, exchange, routingKey string) (message.Subscriber, error) {
	if queue == "" || routingKey == "" {
		return nil, errors.New("pubsub: queue and routing key are required")
	}
	sub, err := sp.factory.BuildSubscriber(&factory.SubscriberConfig{
		Queue:      queue,
		Exchange:   topicExchange(exchange),
		RoutingKey: routingKey,
		Prefetch:   sp.prefetch,
	})
	if err != nil {
		return nil, fmt.Errorf("pubsub: subscriber %s: %w", queue, err)
	}
	return sub, nil
}

// NodeQueue names a queue owned by one service instance, so every node
// receives its own copy of a broadcast command.
func NodeQueue(base, instanceID, handler string) string {
	return fmt.Sprintf("%s.%s.%s", base, instanceID, handler)
}
