package amqp

import (
	"context"
	"errors"
	"fmt"

	"github.com/webitel/im-support-service/internal/domain/model"
	"github.com/webitel/im-support-service/internal/service/dto"
)

// [ON_SESSION_TERMINATE]
// A session that is already gone is a success: the command is idempotent.
func (h *CommandHandler) OnTerminateSessionV1(ctx context.Context, cmd *dto.TerminateSessionV1) error {
	err := h.sessions.TerminateSession(ctx, cmd.SessionID, cmd.GetReason())
	switch {
	case errors.Is(err, model.ErrUnknownSession):
		h.logger.Debug("TERMINATE_SKIPPED: session not active", "session_id", cmd.SessionID, "trace_id", TraceIDFromContext(ctx))
		return nil
	case err != nil:
		return fmt.Errorf("terminate %s: %w", cmd.SessionID, err)
	}

	h.logger.Info("SESSION_TERMINATED_BY_ADMIN",
		"session_id", cmd.SessionID,
		"reason", cmd.GetReason(),
		"issued_by", cmd.IssuedBy,
		"trace_id", TraceIDFromContext(ctx),
	)
	return nil
}

// [ON_PRESENCE_KICK]
func (h *CommandHandler) OnKickUserV1(ctx context.Context, cmd *dto.KickUserV1) error {
	if !h.sessions.Kick(ctx, cmd.UserID, cmd.GetReason()) {
		h.logger.Debug("KICK_SKIPPED: user offline", "user_id", cmd.UserID, "trace_id", TraceIDFromContext(ctx))
		return nil
	}

	h.logger.Info("USER_KICKED_BY_ADMIN",
		"user_id", cmd.UserID,
		"reason", cmd.GetReason(),
		"issued_by", cmd.IssuedBy,
		"trace_id", TraceIDFromContext(ctx),
	)
	return nil
}
