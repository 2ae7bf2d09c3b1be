// Package billing provides the metered call ledger: a prepaid balance per
// account plus an append-only transaction trail.
package billing

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

// Balance transaction types.
const (
	TxTypeCallCharge = "call_charge"
	TxTypeRefill     = "refill"
	TxTypeAdjustment = "adjustment"
)

// CallBalance represents the prepaid balance row for one account.
type CallBalance struct {
	AccountID             uuid.UUID `db:"account_id"`
	BalanceCents          int64     `db:"balance_cents"`
	AutoRefillEnabled     bool      `db:"auto_refill_enabled"`
	AutoRefillAmountCents int64     `db:"auto_refill_amount_cents"`
	UpdatedAt             time.Time `db:"updated_at"`
}

// Transaction is one append-only ledger line. balance_after is a snapshot
// taken at write time, never recomputed later.
type Transaction struct {
	ID                uuid.UUID `db:"id"`
	AccountID         uuid.UUID `db:"account_id"`
	AmountCents       int64     `db:"amount_cents"`
	Type              string    `db:"type"`
	Description       string    `db:"description"`
	BalanceAfterCents int64     `db:"balance_after_cents"`
	CreatedAt         time.Time `db:"created_at"`
}

// LedgerEntry is the result of applying a signed amount to a balance.
type LedgerEntry struct {
	BalanceBeforeCents    int64
	BalanceAfterCents     int64
	AutoRefillEnabled     bool
	AutoRefillAmountCents int64
	TransactionID         uuid.UUID
}

// Repository provides database operations for balances and the ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new billing repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Apply atomically adds the signed amount to the account balance and appends
// the matching ledger line in one transaction. The balance mutation is a
// single in-place increment at the store, not a read-then-write pair, so two
// concurrent charges can never clobber each other's deduction.
func (r *Repository) Apply(ctx context.Context, accountID uuid.UUID, amountCents int64, txType, description string, at time.Time) (*LedgerEntry, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin ledger tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE call_balances SET
			balance_cents = balance_cents + $2,
			updated_at = $3
		WHERE account_id = $1
		RETURNING balance_cents - $2, balance_cents, auto_refill_enabled, auto_refill_amount_cents`

	var entry LedgerEntry
	err = tx.QueryRow(ctx, query, accountID, amountCents, at).Scan(
		&entry.BalanceBeforeCents, &entry.BalanceAfterCents,
		&entry.AutoRefillEnabled, &entry.AutoRefillAmountCents,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("call balance not found")
		}
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	entry.TransactionID = uuid.New()
	insert := `
		INSERT INTO balance_transactions (id, account_id, amount_cents, type, description, balance_after_cents, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = tx.Exec(ctx, insert,
		entry.TransactionID, accountID, amountCents, txType, description, entry.BalanceAfterCents, at,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to append balance transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit ledger tx: %w", err)
	}

	return &entry, nil
}

// GetBalance retrieves the account's call balance.
func (r *Repository) GetBalance(ctx context.Context, accountID uuid.UUID) (*CallBalance, error) {
	query := `SELECT account_id, balance_cents, auto_refill_enabled, auto_refill_amount_cents, updated_at
		FROM call_balances WHERE account_id = $1`

	var balance CallBalance
	err := r.pool.QueryRow(ctx, query, accountID).Scan(
		&balance.AccountID, &balance.BalanceCents,
		&balance.AutoRefillEnabled, &balance.AutoRefillAmountCents, &balance.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("call balance not found")
		}
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}

	return &balance, nil
}

// ListTransactions returns the newest ledger lines for the account.
func (r *Repository) ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `SELECT id, account_id, amount_cents, type, description, balance_after_cents, created_at
		FROM balance_transactions WHERE account_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.AmountCents, &t.Type, &t.Description, &t.BalanceAfterCents, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, t)
	}

	return transactions, rows.Err()
}
