// Package favorites stores the providers a requester has starred.
package favorites

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrProviderNotFound is returned when favoriting an unknown provider.
var ErrProviderNotFound = errors.New("favorites: provider not found")

// Favorite is one starred provider.
type Favorite struct {
	ProviderID   uuid.UUID `json:"provider_id"`
	ProviderName string    `json:"provider_name"`
	CreatedAt    time.Time `json:"created_at"`
}

// DB abstracts the pgx pool for testing.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store persists favorites in the favorites table.
type Store struct {
	db DB
}

// NewStore creates a favorites store.
func NewStore(db DB) *Store {
	if db == nil {
		panic("favorites: db required")
	}
	return &Store{db: db}
}

// Toggle flips the favorite and returns whether it is now set. The delete
// and the insert run in one transaction, so concurrent toggles serialize on
// the row.
func (s *Store) Toggle(ctx context.Context, userID, providerID uuid.UUID) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("favorites: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, `DELETE FROM favorites WHERE user_id = $1 AND provider_id = $2`, userID, providerID)
	if err != nil {
		return false, fmt.Errorf("favorites: delete: %w", err)
	}
	favorited := tag.RowsAffected() == 0
	if favorited {
		if _, err := tx.Exec(ctx, `
			INSERT INTO favorites (user_id, provider_id, created_at)
			VALUES ($1, $2, now())
			ON CONFLICT (user_id, provider_id) DO NOTHING`, userID, providerID); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23503" {
				return false, ErrProviderNotFound
			}
			return false, fmt.Errorf("favorites: insert: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("favorites: commit: %w", err)
	}
	return favorited, nil
}

// List returns the user's favorites, newest first.
func (s *Store) List(ctx context.Context, userID uuid.UUID) ([]Favorite, error) {
	rows, err := s.db.Query(ctx, `
		SELECT f.provider_id, p.name, f.created_at
		FROM favorites f
		JOIN providers p ON p.id = f.provider_id
		WHERE f.user_id = $1
		ORDER BY f.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("favorites: list: %w", err)
	}
	defer rows.Close()

	out := []Favorite{}
	for rows.Next() {
		var f Favorite
		if err := rows.Scan(&f.ProviderID, &f.ProviderName, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("favorites: scan: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
