package factory

import "github.com/ThreeDotsLabs/watermill/message"

type ExchangeConfig struct {
	Name    string
	Type    string // topic | direct | fanout
	Durable bool
}

type PublisherConfig struct {
	Exchange ExchangeConfig
}

type SubscriberConfig struct {
	Queue      string
	Exchange   ExchangeConfig
	RoutingKey string
	Prefetch   int
}

// Factory builds transport specific publishers and subscribers.
type Factory interface {
	BuildPublisher(cfg *PublisherConfig) (message.Publisher, error)
	BuildSubscriber(cfg *SubscriberConfig) (message.Subscriber, error)
}
