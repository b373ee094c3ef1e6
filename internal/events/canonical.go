package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope captures transport metadata for events leaving the service.
type Envelope struct {
	EventID         uuid.UUID       `json:"event_id"`
	EventType       string          `json:"event_type"`
	Aggregate       string          `json:"aggregate"`
	TimestampMicros int64           `json:"timestamp"`
	Payload         json.RawMessage `json:"payload"`
}

var nowFunc = time.Now

// NewEnvelope wraps an outbox entry. The outbox id doubles as the event id so
// downstream consumers can deduplicate redeliveries.
func NewEnvelope(entry OutboxEntry) Envelope {
	ts := entry.CreatedAt
	if ts.IsZero() {
		ts = nowFunc()
	}
	return Envelope{
		EventID:         entry.ID,
		EventType:       entry.Type,
		Aggregate:       fmt.Sprintf("provider:%s", entry.ProviderID),
		TimestampMicros: ts.UTC().UnixMicro(),
		Payload:         append(json.RawMessage(nil), entry.Payload...),
	}
}

// DecodeBookingEvent unmarshals a booking event payload.
func DecodeBookingEvent(entry OutboxEntry) (BookingEventV1, error) {
	var evt BookingEventV1
	if !IsBookingEvent(entry.Type) {
		return evt, fmt.Errorf("events: %s is not a booking event", entry.Type)
	}
	if err := json.Unmarshal(entry.Payload, &evt); err != nil {
		return evt, fmt.Errorf("events: decode %s: %w", entry.Type, err)
	}
	evt.Type = entry.Type
	return evt, nil
}
