package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/caremarket-platform/internal/bookings"
)

// DB abstracts the pgx pool for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ScheduleStore persists weekly schedules in provider_schedules.
type ScheduleStore struct {
	db DB
}

// NewScheduleStore creates a schedule store.
func NewScheduleStore(db DB) *ScheduleStore {
	if db == nil {
		panic("availability: db required")
	}
	return &ScheduleStore{db: db}
}

// Get loads the provider's schedule. A provider with no rows has an empty,
// fully closed schedule.
func (s *ScheduleStore) Get(ctx context.Context, providerID uuid.UUID) (*Schedule, error) {
	sched := &Schedule{ProviderID: providerID}
	err := s.db.QueryRow(ctx, `SELECT timezone, slot_minutes FROM providers WHERE id = $1`, providerID).
		Scan(&sched.Timezone, &sched.SlotMinutes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, bookings.ErrProviderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("availability: load provider: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT weekday, open_time, close_time, closed
		FROM provider_schedules
		WHERE provider_id = $1
		ORDER BY weekday`, providerID)
	if err != nil {
		return nil, fmt.Errorf("availability: load schedule: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d DayHours
		var weekday int
		if err := rows.Scan(&weekday, &d.Open, &d.Close, &d.Closed); err != nil {
			return nil, fmt.Errorf("availability: scan schedule: %w", err)
		}
		d.Weekday = time.Weekday(weekday)
		sched.Days = append(sched.Days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("availability: iterate schedule: %w", err)
	}
	return sched, nil
}

// Replace swaps every weekday row in one transaction so readers never see a
// partially updated week.
func (s *ScheduleStore) Replace(ctx context.Context, sched *Schedule) error {
	if err := sched.Validate(); err != nil {
		return err
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("availability: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, `
		UPDATE providers SET timezone = $2, slot_minutes = $3, updated_at = now()
		WHERE id = $1`, sched.ProviderID, sched.Timezone, sched.SlotMinutes)
	if err != nil {
		return fmt.Errorf("availability: update provider: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return bookings.ErrProviderNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM provider_schedules WHERE provider_id = $1`, sched.ProviderID); err != nil {
		return fmt.Errorf("availability: clear schedule: %w", err)
	}
	for _, d := range sched.Days {
		if _, err := tx.Exec(ctx, `
			INSERT INTO provider_schedules (provider_id, weekday, open_time, close_time, closed)
			VALUES ($1, $2, $3, $4, $5)`,
			sched.ProviderID, int(d.Weekday), d.Open, d.Close, d.Closed); err != nil {
			return fmt.Errorf("availability: insert %s: %w", d.Weekday, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("availability: commit: %w", err)
	}
	return nil
}
