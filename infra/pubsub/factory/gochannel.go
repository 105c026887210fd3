package factory

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// goChannelFactory serves every publisher and subscriber from one in-process
// bus. Exchanges do not exist there: topics are matched verbatim.
type goChannelFactory struct {
	bus *gochannel.GoChannel
}

func NewGoChannelFactory(logger watermill.LoggerAdapter) (Factory, *gochannel.GoChannel) {
	bus := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
	return &goChannelFactory{bus: bus}, bus
}

func (f *goChannelFactory) BuildPublisher(*PublisherConfig) (message.Publisher, error) {
	return f.bus, nil
}

func (f *goChannelFactory) BuildSubscriber(*SubscriberConfig) (message.Subscriber, error) {
	return f.bus, nil
}
