package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNoContact is returned when a user or provider has no email on file.
var ErrNoContact = errors.New("notify: contact not found")

// Contact is an email recipient.
type Contact struct {
	Name  string
	Email string
}

// Directory resolves recipients for booking notifications.
type Directory interface {
	User(ctx context.Context, userID uuid.UUID) (Contact, error)
	Provider(ctx context.Context, providerID uuid.UUID) (Contact, error)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGDirectory reads contacts from the users and providers tables.
type PGDirectory struct {
	db rowQuerier
}

// NewPGDirectory creates a Postgres-backed directory.
func NewPGDirectory(db rowQuerier) *PGDirectory {
	if db == nil {
		panic("notify: db required")
	}
	return &PGDirectory{db: db}
}

func (d *PGDirectory) User(ctx context.Context, userID uuid.UUID) (Contact, error) {
	return d.lookup(ctx, `SELECT name, email FROM users WHERE id = $1`, userID)
}

func (d *PGDirectory) Provider(ctx context.Context, providerID uuid.UUID) (Contact, error) {
	return d.lookup(ctx, `SELECT name, notification_email FROM providers WHERE id = $1`, providerID)
}

func (d *PGDirectory) lookup(ctx context.Context, query string, id uuid.UUID) (Contact, error) {
	var c Contact
	var email *string
	err := d.db.QueryRow(ctx, query, id).Scan(&c.Name, &email)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, ErrNoContact
	}
	if err != nil {
		return Contact{}, fmt.Errorf("notify: lookup contact: %w", err)
	}
	if email == nil || *email == "" {
		return Contact{}, ErrNoContact
	}
	c.Email = *email
	return c, nil
}
