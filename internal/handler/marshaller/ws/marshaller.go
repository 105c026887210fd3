package wsmarshaller

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/webitel/im-support-service/internal/domain/event"
	"github.com/webitel/im-support-service/internal/handler/marshaller"
)

// Client command types accepted on the chat socket.
const (
	CommandChat  = "chat"
	CommandLeave = "leave"
	CommandPing  = "ping"
)

// MaxTextLength bounds a single chat message.
const MaxTextLength = 4096

var ErrEmptyText = errors.New("empty chat message")

// Command is a client frame, e.g. {"type":"chat","text":"hello"}.
type Command struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// UnmarshalCommand validates a client frame.
func UnmarshalCommand(data []byte) (*Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("ws: malformed command: %w", err)
	}

	switch cmd.Type {
	case CommandChat:
		cmd.Text = strings.TrimSpace(cmd.Text)
		if cmd.Text == "" {
			return nil, ErrEmptyText
		}
		if len(cmd.Text) > MaxTextLength {
			return nil, fmt.Errorf("ws: message exceeds %d bytes", MaxTextLength)
		}
	case CommandLeave, CommandPing:
	default:
		return nil, fmt.Errorf("ws: unknown command %q", cmd.Type)
	}
	return &cmd, nil
}

// MarshallDeliveryEvent prepares data for WebSocket transmission.
func MarshallDeliveryEvent(ev event.Eventer) ([]byte, error) {
	return marshaller.Encode(ev)
}
