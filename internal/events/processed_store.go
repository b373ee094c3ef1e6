package events

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ProcessedDB is the pgx surface ProcessedStore needs.
type ProcessedDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProcessedStore is the per-consumer ledger of delivered outbox entries.
// FanOut consults it so a redelivered entry only reaches consumers that
// failed the first time.
type ProcessedStore struct {
	db ProcessedDB
}

func NewProcessedStore(db ProcessedDB) *ProcessedStore {
	if db == nil {
		panic("events: processed store db required")
	}
	return &ProcessedStore{db: db}
}

func (s *ProcessedStore) AlreadyProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	var done bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_events WHERE consumer = $1 AND event_id = $2)`,
		consumer, eventID,
	).Scan(&done)
	if err != nil {
		return false, fmt.Errorf("events: lookup processed %s: %w", consumer, err)
	}
	return done, nil
}

// MarkProcessed reports false when the consumer had already been recorded.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO processed_events (consumer, event_id) VALUES ($1, $2)
		ON CONFLICT (consumer, event_id) DO NOTHING`,
		consumer, eventID,
	)
	if err != nil {
		return false, fmt.Errorf("events: mark processed %s: %w", consumer, err)
	}
	return tag.RowsAffected() == 1, nil
}
