package pubsub

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/webitel/im-support-service/infra/pubsub/factory"
)

type countingPublisher struct{ closed int }

func (p *countingPublisher) Publish(string, ...*message.Message) error { return nil }
func (p *countingPublisher) Close() error                              { p.closed++; return nil }

type countingFactory struct {
	built    []*countingPublisher
	exchange []string
	sub      *factory.SubscriberConfig
}

func (f *countingFactory) BuildPublisher(cfg *factory.PublisherConfig) (message.Publisher, error) {
	p := &countingPublisher{}
	f.built = append(f.built, p)
	f.exchange = append(f.exchange, cfg.Exchange.Name)
	return p, nil
}

func (f *countingFactory) BuildSubscriber(cfg *factory.SubscriberConfig) (message.Subscriber, error) {
	f.sub = cfg
	return nil, nil
}

type staticProvider struct{ f factory.Factory }

func (p staticProvider) GetFactory() factory.Factory { return p.f }
func (p staticProvider) InProcess() bool             { return false }
func (p staticProvider) Close() error                { return nil }

func TestPublisherProvider_OnePublisherPerExchange(t *testing.T) {
	f := &countingFactory{}
	pp := NewPublisherProvider(staticProvider{f})

	a, err := pp.Build("im_support.records")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := pp.Build("im_support.records")
	c, _ := pp.Build("im_support.commands")

	if a != b {
		t.Fatal("same exchange must share a publisher")
	}
	if a == c || len(f.built) != 2 {
		t.Fatalf("built %d publishers for %v", len(f.built), f.exchange)
	}

	if _, err := pp.Build(""); err == nil {
		t.Fatal("empty exchange must fail")
	}

	if err := pp.Close(); err != nil {
		t.Fatal(err)
	}
	for i, p := range f.built {
		if p.closed != 1 {
			t.Fatalf("publisher %d closed %d times", i, p.closed)
		}
	}

	// a fresh build after Close declares the exchange again
	if _, err := pp.Build("im_support.records"); err != nil || len(f.built) != 3 {
		t.Fatalf("rebuild: err=%v built=%d", err, len(f.built))
	}
}

func TestSubscriberProvider_Build(t *testing.T) {
	f := &countingFactory{}
	sp := NewSubscriberProvider(staticProvider{f})

	queue := NodeQueue("im-support.admin-commands.v1", "b23a8f12", "ON_PRESENCE_KICK")
	if queue != "im-support.admin-commands.v1.b23a8f12.ON_PRESENCE_KICK" {
		t.Fatalf("queue = %q", queue)
	}

	if _, err := sp.Build(queue, "im_support.commands", "im_support.admin.presence.kick.v1"); err != nil {
		t.Fatal(err)
	}
	if f.sub.Prefetch != defaultPrefetch || !f.sub.Exchange.Durable || f.sub.Exchange.Type != "topic" {
		t.Fatalf("subscriber config = %+v", f.sub)
	}

	if _, err := sp.Build("", "im_support.commands", "key"); err == nil {
		t.Fatal("empty queue must fail")
	}
}
