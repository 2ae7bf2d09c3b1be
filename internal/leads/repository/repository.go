// Package repository provides data access for leads.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dialerdesk_backend/internal/leads/domain"
	"dialerdesk_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Lead represents the lead database model.
type Lead struct {
	ID                uuid.UUID  `db:"id"`
	AccountID         uuid.UUID  `db:"account_id"`
	Name              string     `db:"name"`
	Phone             string     `db:"phone"`
	PhoneSuffix       string     `db:"phone_suffix"`
	Age               *int       `db:"age"`
	State             *string    `db:"state"`
	Address           *string    `db:"address"`
	Status            string     `db:"status"`
	TimesDialed       int        `db:"times_dialed"`
	TotalCallsMade    int        `db:"total_calls_made"`
	TotalPickups      int        `db:"total_pickups"`
	CallAttemptsToday int        `db:"call_attempts_today"`
	LastCallOutcome   *string    `db:"last_call_outcome"`
	LastDialAt        *time.Time `db:"last_dial_at"`
	LastCalledAt      *time.Time `db:"last_called_at"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

// DialAttempt captures one real-world call attempt to apply to a lead.
type DialAttempt struct {
	Outcome  *string
	PickedUp bool
	Status   string
	At       time.Time
}

const leadNotFoundMsg = "lead not found"

const leadColumns = `id, account_id, name, phone, phone_suffix, age, state, address, status,
	times_dialed, total_calls_made, total_pickups, call_attempts_today,
	last_call_outcome, last_dial_at, last_called_at, created_at, updated_at`

// Repository provides database operations for leads.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new leads repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID retrieves a lead by its ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`

	lead, err := scanLead(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(leadNotFoundMsg)
		}
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}
	return lead, nil
}

// FindBySuffix finds the lead matching the normalized phone suffix. When
// accountID is nil the search is global across all accounts; ties are broken
// by most recent creation, deliberately favoring the latest campaign contact
// over stale duplicates. The returned count is the total number of candidate
// rows, so callers can log ambiguous global matches.
func (r *Repository) FindBySuffix(ctx context.Context, suffix string, accountID *uuid.UUID) (*Lead, int, error) {
	var query string
	var args []interface{}

	if accountID != nil {
		query = `SELECT ` + leadColumns + `, COUNT(*) OVER () AS candidates
			FROM leads WHERE phone_suffix = $1 AND account_id = $2
			ORDER BY created_at DESC LIMIT 1`
		args = []interface{}{suffix, *accountID}
	} else {
		query = `SELECT ` + leadColumns + `, COUNT(*) OVER () AS candidates
			FROM leads WHERE phone_suffix = $1
			ORDER BY created_at DESC LIMIT 1`
		args = []interface{}{suffix}
	}

	var lead Lead
	var candidates int
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&lead.ID, &lead.AccountID, &lead.Name, &lead.Phone, &lead.PhoneSuffix,
		&lead.Age, &lead.State, &lead.Address, &lead.Status,
		&lead.TimesDialed, &lead.TotalCallsMade, &lead.TotalPickups, &lead.CallAttemptsToday,
		&lead.LastCallOutcome, &lead.LastDialAt, &lead.LastCalledAt,
		&lead.CreatedAt, &lead.UpdatedAt,
		&candidates,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, apperr.NotFound(leadNotFoundMsg)
		}
		return nil, 0, fmt.Errorf("failed to find lead by suffix: %w", err)
	}

	return &lead, candidates, nil
}

// ApplyDialAttempt applies one call attempt to the lead: counters, last
// outcome, and status transition, as a single conditional update. Leads that
// already reached appointment_booked are skipped entirely, which is the
// at-most-once guard for counter increments under duplicate or out-of-order
// webhook deliveries. Returns whether the attempt was applied.
func (r *Repository) ApplyDialAttempt(ctx context.Context, leadID uuid.UUID, attempt DialAttempt) (bool, error) {
	query := `
		UPDATE leads SET
			times_dialed = times_dialed + 1,
			total_calls_made = total_calls_made + 1,
			total_pickups = total_pickups + CASE WHEN $2 THEN 1 ELSE 0 END,
			call_attempts_today = call_attempts_today + 1,
			last_call_outcome = $3,
			last_dial_at = $4,
			last_called_at = $4,
			status = $5,
			updated_at = $4
		WHERE id = $1 AND status <> $6`

	tag, err := r.pool.Exec(ctx, query,
		leadID, attempt.PickedUp, attempt.Outcome, attempt.At, attempt.Status,
		domain.StatusAppointmentBooked,
	)
	if err != nil {
		return false, fmt.Errorf("failed to apply dial attempt: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// MarkBooked transitions the lead to appointment_booked unless it is already
// there. Returns whether this call performed the transition.
func (r *Repository) MarkBooked(ctx context.Context, leadID uuid.UUID, at time.Time) (bool, error) {
	query := `UPDATE leads SET status = $2, updated_at = $3 WHERE id = $1 AND status <> $2`

	tag, err := r.pool.Exec(ctx, query, leadID, domain.StatusAppointmentBooked, at)
	if err != nil {
		return false, fmt.Errorf("failed to mark lead booked: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateCallDetails fills age and state reported by the call agent, keeping
// existing values when the event omits them.
func (r *Repository) UpdateCallDetails(ctx context.Context, leadID uuid.UUID, age *int, state *string, at time.Time) error {
	query := `
		UPDATE leads SET
			age = COALESCE($2, age),
			state = COALESCE($3, state),
			updated_at = $4
		WHERE id = $1`

	_, err := r.pool.Exec(ctx, query, leadID, age, state, at)
	if err != nil {
		return fmt.Errorf("failed to update call details: %w", err)
	}
	return nil
}

// ResetDailyAttempts zeroes call_attempts_today for all leads. Runs from the
// nightly worker task.
func (r *Repository) ResetDailyAttempts(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE leads SET call_attempts_today = 0 WHERE call_attempts_today <> 0`)
	if err != nil {
		return 0, fmt.Errorf("failed to reset daily attempts: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanLead(row pgx.Row) (*Lead, error) {
	var lead Lead
	err := row.Scan(
		&lead.ID, &lead.AccountID, &lead.Name, &lead.Phone, &lead.PhoneSuffix,
		&lead.Age, &lead.State, &lead.Address, &lead.Status,
		&lead.TimesDialed, &lead.TotalCallsMade, &lead.TotalPickups, &lead.CallAttemptsToday,
		&lead.LastCallOutcome, &lead.LastDialAt, &lead.LastCalledAt,
		&lead.CreatedAt, &lead.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &lead, nil
}
