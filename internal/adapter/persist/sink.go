package persist

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/webitel/im-support-service/internal/domain/model"
)

// Writer is a durable backend. It may block; the AsyncSink keeps it off
// the relay path.
type Writer interface {
	WriteChat(ctx context.Context, rec *model.ChatRecord) error
	WriteSession(ctx context.Context, rec *model.SessionRecord) error
	Close(ctx context.Context) error
}

// Sink is the fire-and-forget persistence collaborator.
type Sink interface {
	PersistChatMessage(rec *model.ChatRecord)
	PersistSessionRecord(rec *model.SessionRecord)
}

type job struct {
	chat    *model.ChatRecord
	session *model.SessionRecord
}

// AsyncSink queues records and writes them from a small worker pool.
// A full queue drops the record with a warning; callers never wait.
type AsyncSink struct {
	writer  Writer
	queue   chan job
	workers int
	timeout time.Duration
	logger  *slog.Logger
	onDrop  func(kind string)
	onFail  func(kind string)

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
	dropped atomic.Uint64
	failed  atomic.Uint64
}

type Option func(*AsyncSink)

func WithWriteTimeout(d time.Duration) Option {
	return func(s *AsyncSink) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *AsyncSink) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHooks observes shed and failed records.
func WithHooks(onDrop, onFail func(kind string)) Option {
	return func(s *AsyncSink) {
		s.onDrop = onDrop
		s.onFail = onFail
	}
}

func NewAsyncSink(writer Writer, queueSize, workers int, opts ...Option) *AsyncSink {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if workers <= 0 {
		workers = 1
	}
	s := &AsyncSink{
		writer:  writer,
		queue:   make(chan job, queueSize),
		workers: workers,
		timeout: 5 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AsyncSink) Start() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.work()
	}
}

// Stop refuses new records, drains the queue and closes the writer.
func (s *AsyncSink) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.queue)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("[PERSIST] shutdown before queue drained", slog.Int("left", len(s.queue)))
	}
	return s.writer.Close(ctx)
}

func (s *AsyncSink) PersistChatMessage(rec *model.ChatRecord) {
	s.enqueue(job{chat: rec}, "chat")
}

func (s *AsyncSink) PersistSessionRecord(rec *model.SessionRecord) {
	s.enqueue(job{session: rec}, "session")
}

func (s *AsyncSink) Dropped() uint64 { return s.dropped.Load() }
func (s *AsyncSink) Failed() uint64  { return s.failed.Load() }

func (s *AsyncSink) enqueue(j job, kind string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.stopped {
		select {
		case s.queue <- j:
			return
		default:
		}
	}

	s.dropped.Add(1)
	if s.onDrop != nil {
		s.onDrop(kind)
	}
	s.logger.Warn("[PERSIST] record dropped", slog.String("kind", kind), slog.Bool("stopped", s.stopped))
}

func (s *AsyncSink) work() {
	defer s.wg.Done()
	for j := range s.queue {
		s.write(j)
	}
}

func (s *AsyncSink) write(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var (
		err  error
		kind string
	)
	switch {
	case j.chat != nil:
		kind = "chat"
		err = s.writer.WriteChat(ctx, j.chat)
	case j.session != nil:
		kind = "session"
		err = s.writer.WriteSession(ctx, j.session)
	}
	if err == nil {
		return
	}

	s.failed.Add(1)
	if s.onFail != nil {
		s.onFail(kind)
	}
	s.logger.Error("[PERSIST] write failed", slog.String("kind", kind), slog.Any("err", err))
}
