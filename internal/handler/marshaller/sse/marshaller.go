package ssemarshaller

import (
	"bytes"

	"github.com/webitel/im-support-service/internal/domain/event"
	"github.com/webitel/im-support-service/internal/handler/marshaller"
)

// MarshallEvent renders one server-sent event: the wire type as the event
// name, the event id, and the JSON frame as data.
func MarshallEvent(ev event.Eventer) ([]byte, error) {
	data, err := marshaller.Encode(ev)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(data) + 64)
	buf.WriteString("event: ")
	buf.WriteString(marshaller.WireType(ev))
	buf.WriteString("\nid: ")
	buf.WriteString(ev.GetID())
	buf.WriteString("\ndata: ")
	buf.Write(data)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

// Heartbeat is an SSE comment line that keeps idle proxies from closing the stream.
var Heartbeat = []byte(": ping\n\n")
