package factory

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
)

type amqpFactory struct {
	url    string
	logger watermill.LoggerAdapter
}

func NewAMQPFactory(url string, logger watermill.LoggerAdapter) Factory {
	return &amqpFactory{url: url, logger: logger}
}

func (f *amqpFactory) exchange(cfg ExchangeConfig) amqp.ExchangeConfig {
	return amqp.ExchangeConfig{
		GenerateName: func(string) string { return cfg.Name },
		Type:         cfg.Type,
		Durable:      cfg.Durable,
	}
}

func (f *amqpFactory) BuildPublisher(cfg *PublisherConfig) (message.Publisher, error) {
	pub, err := amqp.NewPublisher(amqp.Config{
		Connection: amqp.ConnectionConfig{AmqpURI: f.url},
		Marshaler:  amqp.DefaultMarshaler{},
		Exchange:   f.exchange(cfg.Exchange),
		Publish: amqp.PublishConfig{
			// [TOPIC_AS_KEY] the watermill topic is the AMQP routing key
			GenerateRoutingKey: func(topic string) string { return topic },
		},
		TopologyBuilder: &amqp.DefaultTopologyBuilder{},
	}, f.logger)
	if err != nil {
		return nil, fmt.Errorf("amqp publisher %s: %w", cfg.Exchange.Name, err)
	}
	return pub, nil
}

func (f *amqpFactory) BuildSubscriber(cfg *SubscriberConfig) (message.Subscriber, error) {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 16
	}

	sub, err := amqp.NewSubscriber(amqp.Config{
		Connection: amqp.ConnectionConfig{AmqpURI: f.url},
		Marshaler:  amqp.DefaultMarshaler{},
		Exchange:   f.exchange(cfg.Exchange),
		Queue: amqp.QueueConfig{
			GenerateName: amqp.GenerateQueueNameConstant(cfg.Queue),
			Durable:      true,
		},
		QueueBind: amqp.QueueBindConfig{
			GenerateRoutingKey: func(string) string { return cfg.RoutingKey },
		},
		Consume: amqp.ConsumeConfig{
			Qos: amqp.QosConfig{PrefetchCount: prefetch},
		},
		TopologyBuilder: &amqp.DefaultTopologyBuilder{},
	}, f.logger)
	if err != nil {
		return nil, fmt.Errorf("amqp subscriber %s: %w", cfg.Queue, err)
	}
	return sub, nil
}
