package pubsub

import (
	"io"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/webitel/im-support-service/infra/pubsub/factory"
)

// Provider hands out the bus factory selected by configuration.
type Provider interface {
	GetFactory() factory.Factory
	// InProcess reports whether the bus lives inside this process.
	InProcess() bool
	Close() error
}

type provider struct {
	factory   factory.Factory
	inProcess bool
	closer    io.Closer
}

// NewProvider selects AMQP when url is set, the in-process gochannel otherwise.
func NewProvider(url string, logger watermill.LoggerAdapter) Provider {
	if url != "" {
		return &provider{factory: factory.NewAMQPFactory(url, logger)}
	}
	f, bus := factory.NewGoChannelFactory(logger)
	return &provider{factory: f, inProcess: true, closer: bus}
}

func (p *provider) GetFactory() factory.Factory { return p.factory }
func (p *provider) InProcess() bool             { return p.inProcess }

func (p *provider) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}
