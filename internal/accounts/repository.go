// Package accounts provides read access to account and subscription data.
// Account provisioning itself happens in the dashboard's CRUD layer; this
// subsystem only consumes rates and tier pricing.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dialerdesk_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Account represents the account database model.
type Account struct {
	ID                  uuid.UUID `db:"id"`
	Name                string    `db:"name"`
	Email               string    `db:"email"`
	SubscriptionTier    string    `db:"subscription_tier"`
	RatePerMinuteCents  *int64    `db:"rate_per_minute_cents"`
	CreatedAt           time.Time `db:"created_at"`
}

// Repository provides database operations for accounts.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new accounts repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID retrieves an account by its ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	query := `SELECT id, name, email, subscription_tier, rate_per_minute_cents, created_at
		FROM accounts WHERE id = $1`

	var acc Account
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&acc.ID, &acc.Name, &acc.Email, &acc.SubscriptionTier, &acc.RatePerMinuteCents, &acc.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("account not found")
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &acc, nil
}
