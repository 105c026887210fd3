package lpmarshaller

import (
	"encoding/json"

	"github.com/webitel/im-support-service/internal/domain/event"
	"github.com/webitel/im-support-service/internal/handler/marshaller"
)

// Response defines the top-level JSON array to support event batching.
// Dropped counts events this poll lost to a full buffer or the batch limit;
// a non-zero value tells the client to refresh its state.
type Response struct {
	Events  []json.RawMessage `json:"events"`
	Dropped uint64            `json:"dropped,omitempty"`
}

// MarshallEvents converts a slice of domain events into a single JSON batch.
// Events without a wire form are skipped.
func MarshallEvents(events []event.Eventer, dropped uint64) ([]byte, error) {
	res := Response{
		Events:  make([]json.RawMessage, 0, len(events)),
		Dropped: dropped,
	}

	for _, ev := range events {
		data, err := marshaller.Encode(ev)
		if err != nil {
			continue
		}
		res.Events = append(res.Events, data)
	}

	return json.Marshal(res)
}
