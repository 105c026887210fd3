package dto

import (
	"errors"

	"github.com/google/uuid"
	"github.com/webitel/im-support-service/internal/domain/model"
)

// Routing keys of the admin commands.
const (
	TopicTerminateSessionV1 = "im_support.admin.session.terminate.v1"
	TopicKickUserV1         = "im_support.admin.presence.kick.v1"
)

const DefaultAdminReason = "admin"

var (
	ErrMissingSession = errors.New("session_id is required")
	ErrMissingUser    = errors.New("user_id is required")
)

// TerminateSessionV1 ends a session on behalf of an operator. Both sides get END.
type TerminateSessionV1 struct {
	SessionID uuid.UUID `json:"session_id"`
	Reason    string    `json:"reason,omitempty"`
	IssuedBy  string    `json:"issued_by,omitempty"`
}

func (c *TerminateSessionV1) Validate() error {
	if c.SessionID == uuid.Nil {
		return ErrMissingSession
	}
	return nil
}

func (c *TerminateSessionV1) GetReason() string { return reasonOrDefault(c.Reason) }

func (c *TerminateSessionV1) GetRoutingKey() string { return TopicTerminateSessionV1 }

// KickUserV1 forces a user offline and releases any pairing.
type KickUserV1 struct {
	UserID   model.UserID `json:"user_id"`
	Reason   string       `json:"reason,omitempty"`
	IssuedBy string       `json:"issued_by,omitempty"`
}

func (c *KickUserV1) Validate() error {
	if c.UserID <= 0 {
		return ErrMissingUser
	}
	return nil
}

func (c *KickUserV1) GetReason() string { return reasonOrDefault(c.Reason) }

func (c *KickUserV1) GetRoutingKey() string { return TopicKickUserV1 }

func reasonOrDefault(reason string) string {
	if reason == "" {
		return DefaultAdminReason
	}
	return reason
}
