// Package calls records telephony activity and processes call-outcome events.
package calls

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

// Call dispositions. Unanswered and below-threshold calls both land on
// no_answer; everything the prospect actually picked up is answered.
const (
	DispositionAnswered = "answered"
	DispositionNoAnswer = "no_answer"
)

// Call represents one completed dial as the telephony provider reported it.
// Rows are immutable facts of record and are never updated.
type Call struct {
	ID              uuid.UUID  `db:"id"`
	AccountID       uuid.UUID  `db:"account_id"`
	LeadID          *uuid.UUID `db:"lead_id"`
	Phone           string     `db:"phone"`
	PhoneSuffix     string     `db:"phone_suffix"`
	DurationSeconds int        `db:"duration_seconds"`
	Disposition     string     `db:"disposition"`
	Outcome         *string    `db:"outcome"`
	AgentName       *string    `db:"agent_name"`
	RecordingKey    *string    `db:"recording_key"`
	OccurredAt      time.Time  `db:"occurred_at"`
	CreatedAt       time.Time  `db:"created_at"`
}

const callColumns = `id, account_id, lead_id, phone, phone_suffix, duration_seconds,
	disposition, outcome, agent_name, recording_key, occurred_at, created_at`

// Repository provides database operations for call records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new calls repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends one immutable call row and returns it with generated fields.
func (r *Repository) Insert(ctx context.Context, call *Call) (*Call, error) {
	query := `
		INSERT INTO calls (account_id, lead_id, phone, phone_suffix, duration_seconds,
			disposition, outcome, agent_name, recording_key, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + callColumns

	inserted, err := scanCall(r.pool.QueryRow(ctx, query,
		call.AccountID, call.LeadID, call.Phone, call.PhoneSuffix,
		call.DurationSeconds, call.Disposition, call.Outcome,
		call.AgentName, call.RecordingKey, call.OccurredAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert call: %w", err)
	}
	return inserted, nil
}

// GetByID retrieves a call scoped to the given account.
func (r *Repository) GetByID(ctx context.Context, accountID, id uuid.UUID) (*Call, error) {
	query := `SELECT ` + callColumns + ` FROM calls WHERE id = $1 AND account_id = $2`

	call, err := scanCall(r.pool.QueryRow(ctx, query, id, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("call not found")
		}
		return nil, fmt.Errorf("failed to get call: %w", err)
	}
	return call, nil
}

// ListByAccount returns the account's call history, newest first.
func (r *Repository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]Call, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + callColumns + `
		FROM calls
		WHERE account_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}
	defer rows.Close()

	var calls []Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}
		calls = append(calls, *call)
	}
	return calls, rows.Err()
}

// ListByLead returns the calls attributed to one lead, newest first.
func (r *Repository) ListByLead(ctx context.Context, accountID, leadID uuid.UUID) ([]Call, error) {
	query := `SELECT ` + callColumns + `
		FROM calls
		WHERE account_id = $1 AND lead_id = $2
		ORDER BY occurred_at DESC`

	rows, err := r.pool.Query(ctx, query, accountID, leadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lead calls: %w", err)
	}
	defer rows.Close()

	var calls []Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}
		calls = append(calls, *call)
	}
	return calls, rows.Err()
}

func scanCall(row pgx.Row) (*Call, error) {
	var c Call
	err := row.Scan(
		&c.ID, &c.AccountID, &c.LeadID, &c.Phone, &c.PhoneSuffix,
		&c.DurationSeconds, &c.Disposition, &c.Outcome,
		&c.AgentName, &c.RecordingKey, &c.OccurredAt, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
