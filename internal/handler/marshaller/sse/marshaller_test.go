package ssemarshaller

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-support-service/internal/domain/event"
)

func TestMarshallEvent(t *testing.T) {
	ev := event.NewChatV1Event(uuid.New(), 1, 2, "hello", time.Now())

	data, err := MarshallEvent(ev)
	if err != nil {
		t.Fatal(err)
	}

	out := string(data)
	if !strings.HasPrefix(out, "event: chat\nid: "+ev.GetID()+"\ndata: {") {
		t.Fatalf("unexpected framing: %q", out)
	}
	if !strings.HasSuffix(out, "}\n\n") {
		t.Fatalf("event must end with a blank line: %q", out)
	}
	if strings.Count(out, "\n") != 4 {
		t.Fatalf("data must stay on one line: %q", out)
	}
}
