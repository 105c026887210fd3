package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/webitel/im-support-service/internal/domain/model"
)

// DirectoryMiddleware implements [DECORATOR_PATTERN] to add observability
// to identity resolution without touching the lookup logic.
type DirectoryMiddleware struct {
	Next   Directory
	Logger *slog.Logger
}

func NewDirectoryMiddleware(next Directory, logger *slog.Logger) Directory {
	return &DirectoryMiddleware{
		Next:   next,
		Logger: logger,
	}
}

func (m *DirectoryMiddleware) Remember(identity model.UserIdentity) {
	m.Next.Remember(identity)
}

func (m *DirectoryMiddleware) Resolve(ctx context.Context, id model.UserID) (model.UserIdentity, error) {
	start := time.Now()

	res, err := m.Next.Resolve(ctx, id)
	if err != nil {
		m.Logger.Warn("IDENTITY_RESOLUTION_FAILED",
			"user_id", id,
			"err", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return res, err
}

// ResolvePair wraps the concurrent resolution with timing and outcome logging.
func (m *DirectoryMiddleware) ResolvePair(ctx context.Context, a, b model.UserID) (model.UserIdentity, model.UserIdentity, error) {
	start := time.Now()

	resA, resB, err := m.Next.ResolvePair(ctx, a, b)

	// [OBSERVABILITY]
	duration := time.Since(start)
	if err != nil {
		m.Logger.Warn("IDENTITY_PAIR_RESOLUTION_FAILED",
			"err", err,
			"user_a", a,
			"user_b", b,
			"duration_ms", duration.Milliseconds(),
		)
	} else {
		m.Logger.Debug("IDENTITY_PAIR_RESOLVED",
			"duration_ms", duration.Milliseconds(),
		)
	}
	return resA, resB, err
}
