package pubsub

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	infrapubsub "github.com/webitel/im-support-service/infra/pubsub"
	"github.com/webitel/im-support-service/infra/pubsub/factory"
)

// PublisherProvider hands out one publisher per exchange. Record export and
// the admin command pipeline may share an exchange and then share a channel.
type PublisherProvider struct {
	factory factory.Factory

	mu   sync.Mutex
	pubs map[string]message.Publisher
}

func NewPublisherProvider(p infrapubsub.Provider) *PublisherProvider {
	return &PublisherProvider{
		factory: p.GetFactory(),
		pubs:    make(map[string]message.Publisher),
	}
}

// Build declares exchange as a durable topic and returns its publisher.
func (pp *PublisherProvider) Build(exchange string) (message.Publisher, error) {
	if exchange == "" {
		return nil, errors.New("pubsub: exchange name is required")
	}

	pp.mu.Lock()
	defer pp.mu.Unlock()

	if pub, ok := pp.pubs[exchange]; ok {
		return pub, nil
	}

	pub, err := pp.factory.BuildPublisher(&factory.PublisherConfig{
		Exchange: topicExchange(exchange),
	})
	if err != nil {
		return nil, fmt.Errorf("pubsub: publisher for %s: %w", exchange, err)
	}
	pp.pubs[exchange] = pub
	return pub, nil
}

// Close releases every publisher built so far.
func (pp *PublisherProvider) Close() error {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	var errs []error
	for name, pub := range pp.pubs {
		if err := pub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("pubsub: close %s: %w", name, err))
		}
		delete(pp.pubs, name)
	}
	return errors.Join(errs...)
}

func topicExchange(name string) factory.ExchangeConfig {
	return factory.ExchangeConfig{
		Name:    name,
		Type:    "topic",
		Durable: true,
	}
}
