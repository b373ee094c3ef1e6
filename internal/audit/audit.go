// Package audit keeps an append-only history of booking status changes.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Entry is one immutable booking_audit row.
type Entry struct {
	ID         uuid.UUID  `json:"id"`
	BookingID  uuid.UUID  `json:"booking_id"`
	ProviderID uuid.UUID  `json:"provider_id"`
	ActorID    *uuid.UUID `json:"actor_id,omitempty"`
	ActorRole  string     `json:"actor_role"`
	Action     string     `json:"action"`
	FromStatus string     `json:"from_status,omitempty"`
	ToStatus   string     `json:"to_status"`
	Reason     string     `json:"reason,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Filter narrows a history query.
type Filter struct {
	BookingID  uuid.UUID
	ProviderID uuid.UUID
	Actions    []string
	Limit      int
}

// Log writes and reads booking_audit through database/sql.
type Log struct {
	db *sql.DB
}

// NewLog creates an audit log.
func NewLog(db *sql.DB) *Log {
	return &Log{db: db}
}

// Record appends an entry.
func (l *Log) Record(ctx context.Context, e Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO booking_audit (
			id, booking_id, provider_id, actor_id, actor_role,
			action, from_status, to_status, reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	var actor sql.NullString
	if e.ActorID != nil && *e.ActorID != uuid.Nil {
		actor = sql.NullString{String: e.ActorID.String(), Valid: true}
	}
	_, err := l.db.ExecContext(ctx, query,
		e.ID.String(),
		e.BookingID.String(),
		e.ProviderID.String(),
		actor,
		e.ActorRole,
		e.Action,
		nullString(e.FromStatus),
		e.ToStatus,
		nullString(e.Reason),
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: record: %w", err)
	}
	return nil
}

// History returns a booking's entries, oldest first.
func (l *Log) History(ctx context.Context, filter Filter) ([]Entry, error) {
	query := `
		SELECT id, booking_id, provider_id, actor_id, actor_role,
			   action, from_status, to_status, reason, created_at
		FROM booking_audit
		WHERE booking_id = $1 AND provider_id = $2
	`
	args := []any{filter.BookingID.String(), filter.ProviderID.String()}
	if len(filter.Actions) > 0 {
		query += " AND action = ANY($3)"
		args = append(args, pq.Array(filter.Actions))
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var id, bookingID, providerID string
		var actor, from, reason sql.NullString
		if err := rows.Scan(&id, &bookingID, &providerID, &actor, &e.ActorRole,
			&e.Action, &from, &e.ToStatus, &reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("audit: parse id: %w", err)
		}
		if e.BookingID, err = uuid.Parse(bookingID); err != nil {
			return nil, fmt.Errorf("audit: parse booking id: %w", err)
		}
		if e.ProviderID, err = uuid.Parse(providerID); err != nil {
			return nil, fmt.Errorf("audit: parse provider id: %w", err)
		}
		if actor.Valid {
			a, err := uuid.Parse(actor.String)
			if err != nil {
				return nil, fmt.Errorf("audit: parse actor id: %w", err)
			}
			e.ActorID = &a
		}
		e.FromStatus = from.String
		e.Reason = reason.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
