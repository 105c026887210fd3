package persist

import (
	"context"
	"log/slog"

	"github.com/webitel/im-support-service/internal/domain/model"
)

// LogWriter records to the service log. It is the default backend for
// deployments without a store.
type LogWriter struct {
	logger *slog.Logger
}

func NewLogWriter(logger *slog.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) WriteChat(ctx context.Context, rec *model.ChatRecord) error {
	w.logger.InfoContext(ctx, "CHAT_PERSISTED",
		slog.String("session_id", rec.SessionID.String()),
		slog.String("sender_id", rec.SenderID.String()),
		slog.Int("text_len", len(rec.Text)),
		slog.Time("sent_at", rec.SentAt),
	)
	return nil
}

func (w *LogWriter) WriteSession(ctx context.Context, rec *model.SessionRecord) error {
	attrs := []any{
		slog.String("session_id", rec.SessionID.String()),
		slog.String("user_a", rec.UserIDs[0].String()),
		slog.String("user_b", rec.UserIDs[1].String()),
		slog.Time("started_at", rec.StartedAt),
	}
	if rec.EndedAt != nil {
		attrs = append(attrs, slog.Time("ended_at", *rec.EndedAt), slog.String("reason", rec.Reason))
	}
	w.logger.InfoContext(ctx, "SESSION_PERSISTED", attrs...)
	return nil
}

func (w *LogWriter) Close(context.Context) error { return nil }
