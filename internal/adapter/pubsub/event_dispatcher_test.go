package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/webitel/im-support-service/internal/domain/model"
)

func TestEventDispatcher_PublishesUnderRoutingKey(t *testing.T) {
	bus := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer bus.Close()

	rec := &model.ChatRecord{SessionID: uuid.New(), SenderID: 123, Text: "hello", SentAt: time.Now().UTC()}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msgs, err := bus.Subscribe(ctx, rec.GetRoutingKey())
	if err != nil {
		t.Fatal(err)
	}

	d := NewEventDispatcher(bus)
	if err := d.Publish(ctx, rec); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-msgs:
		msg.Ack()
		var got model.ChatRecord
		if err := json.Unmarshal(msg.Payload, &got); err != nil {
			t.Fatal(err)
		}
		if got.Text != "hello" || got.SenderID != 123 {
			t.Fatalf("got %+v", got)
		}
		if msg.Metadata.Get("routing_key") != rec.GetRoutingKey() {
			t.Fatalf("routing key metadata = %q", msg.Metadata.Get("routing_key"))
		}
	case <-ctx.Done():
		t.Fatal("record never published")
	}
}

func TestEventDispatcher_RejectsNil(t *testing.T) {
	bus := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer bus.Close()

	if err := NewEventDispatcher(bus).Publish(context.Background(), nil); err == nil {
		t.Fatal("nil record must fail")
	}
}
