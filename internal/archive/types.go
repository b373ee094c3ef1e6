package archive

import (
	"time"

	"github.com/wolfman30/caremarket-platform/internal/events"
)

// BookingRecord is the JSON snapshot written when a booking reaches a
// terminal status.
type BookingRecord struct {
	Version    string                `json:"version"`
	EventID    string                `json:"event_id"`
	EventType  string                `json:"event_type"`
	ArchivedAt time.Time             `json:"archived_at"`
	Booking    events.BookingEventV1 `json:"booking"`
}

// ManifestEntry is one JSONL line in the monthly manifest file.
type ManifestEntry struct {
	BookingID  string `json:"booking_id"`
	ProviderID string `json:"provider_id"`
	S3Key      string `json:"s3_key"`
	Status     string `json:"status"`
	ArchivedAt string `json:"archived_at"`
}
