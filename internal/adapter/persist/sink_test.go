package persist

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"github.com/webitel/im-support-service/internal/adapter/pubsub"
	"github.com/webitel/im-support-service/internal/domain/model"
)

type memWriter struct {
	mu       sync.Mutex
	chats    []*model.ChatRecord
	sessions []*model.SessionRecord
	block    chan struct{}
	fail     error
	closed   atomic.Bool
}

func (w *memWriter) WriteChat(_ context.Context, rec *model.ChatRecord) error {
	if w.block != nil {
		<-w.block
	}
	if w.fail != nil {
		return w.fail
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.chats = append(w.chats, rec)
	return nil
}

func (w *memWriter) WriteSession(_ context.Context, rec *model.SessionRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sessions = append(w.sessions, rec)
	return nil
}

func (w *memWriter) Close(context.Context) error {
	w.closed.Store(true)
	return nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func chat(text string) *model.ChatRecord {
	return &model.ChatRecord{SessionID: uuid.New(), SenderID: 1, Text: text, SentAt: time.Now()}
}

func TestAsyncSink_DrainsOnStop(t *testing.T) {
	w := &memWriter{}
	s := NewAsyncSink(w, 64, 2)
	s.Start()

	for i := 0; i < 50; i++ {
		s.PersistChatMessage(chat("m"))
	}
	s.PersistSessionRecord(model.NewSessionRecord(model.NewSessionPairing(1, 2)))

	if err := s.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(w.chats) != 50 || len(w.sessions) != 1 {
		t.Fatalf("written chats=%d sessions=%d", len(w.chats), len(w.sessions))
	}
	if !w.closed.Load() {
		t.Fatal("writer not closed")
	}

	// after stop records are refused, not panicking on the closed queue
	s.PersistChatMessage(chat("late"))
	if s.Dropped() != 1 {
		t.Fatalf("dropped = %d", s.Dropped())
	}
}

func TestAsyncSink_FullQueueNeverBlocks(t *testing.T) {
	w := &memWriter{block: make(chan struct{})}
	var drops atomic.Int64
	s := NewAsyncSink(w, 1, 1, WithHooks(func(string) { drops.Add(1) }, nil))
	s.Start()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			s.PersistChatMessage(chat("x"))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("persisting blocked the caller")
	}
	if drops.Load() == 0 {
		t.Fatal("expected drops with a stalled writer")
	}

	close(w.block)
	_ = s.Stop(context.Background())
}

func TestAsyncSink_CountsFailures(t *testing.T) {
	w := &memWriter{fail: errors.New("disk full")}
	var fails atomic.Int64
	s := NewAsyncSink(w, 8, 1, WithHooks(nil, func(string) { fails.Add(1) }))
	s.Start()
	s.PersistChatMessage(chat("x"))
	_ = s.Stop(context.Background())

	if s.Failed() != 1 || fails.Load() != 1 {
		t.Fatalf("failed = %d, hook = %d", s.Failed(), fails.Load())
	}
}

func TestAMQPWriter_ExportsRecords(t *testing.T) {
	bus := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer bus.Close()

	rec := model.NewSessionRecord(model.NewSessionPairing(123, 45))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msgs, err := bus.Subscribe(ctx, rec.GetRoutingKey())
	if err != nil {
		t.Fatal(err)
	}

	w := NewAMQPWriter(pubsub.NewEventDispatcher(bus), discard())
	if err := w.WriteSession(ctx, rec); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-msgs:
		msg.Ack()
		var got model.SessionRecord
		if err := json.Unmarshal(msg.Payload, &got); err != nil {
			t.Fatal(err)
		}
		if got.SessionID != rec.SessionID || got.UserIDs != rec.UserIDs {
			t.Fatalf("got %+v", got)
		}
	case <-ctx.Done():
		t.Fatal("record not exported")
	}
}

type failingPublisher struct{ calls atomic.Int64 }

func (p *failingPublisher) Publish(string, ...*message.Message) error {
	p.calls.Add(1)
	return errors.New("broker down")
}
func (p *failingPublisher) Close() error { return nil }

func TestAMQPWriter_BreakerOpensAfterFailures(t *testing.T) {
	pub := &failingPublisher{}
	w := NewAMQPWriter(pubsub.NewEventDispatcher(pub), discard())

	for i := 0; i < 5; i++ {
		if err := w.WriteChat(context.Background(), chat("x")); err == nil {
			t.Fatal("expected publish error")
		}
	}

	err := w.WriteChat(context.Background(), chat("x"))
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("err = %v, want open breaker", err)
	}
	if pub.calls.Load() != 5 {
		t.Fatalf("publisher called %d times, want 5", pub.calls.Load())
	}
}

func TestMongoDocs(t *testing.T) {
	p := model.NewSessionPairing(123, 45)
	rec := model.NewSessionRecord(p).Ended(time.Now(), "idle_timeout")

	doc := toSessionDoc(rec)
	if doc.UserIDs[0] != 123 || doc.UserIDs[1] != 45 {
		t.Fatalf("user ids = %v", doc.UserIDs)
	}
	if doc.EndedAt == nil || doc.Reason != "idle_timeout" {
		t.Fatal("end fields lost")
	}

	msg := toMessageDoc(&model.ChatRecord{SessionID: p.SessionID, SenderID: 123, Text: "hi"})
	if msg.SessionID != p.SessionID.String() || msg.SenderID != 123 {
		t.Fatalf("message doc = %+v", msg)
	}
}
