// Package profit maintains the operator's per-day margin and revenue
// aggregates. These are derived bookkeeping rows: every value here is
// reconstructable from the call and ledger history.
package profit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DailyProfit is one account's margin rollup for a calendar day.
type DailyProfit struct {
	AccountID         uuid.UUID `db:"account_id"`
	Day               time.Time `db:"day"`
	BilledSeconds     int64     `db:"billed_seconds"`
	RevenueCents      int64     `db:"revenue_cents"`
	OperatorCostCents int64     `db:"operator_cost_cents"`
	ProfitCents       int64     `db:"profit_cents"`
}

// DailyRevenue is one account's customer-facing rollup for a calendar day.
// call_revenue_cents accrues per event; base_cost_cents is a recomputed
// constant (tier price spread over the month), overwritten on every write.
type DailyRevenue struct {
	AccountID        uuid.UUID `db:"account_id"`
	Day              time.Time `db:"day"`
	CallRevenueCents int64     `db:"call_revenue_cents"`
	BaseCostCents    int64     `db:"base_cost_cents"`
}

// Repository provides database operations for the aggregates.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new profit repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// AddProfitDelta folds one charged call into the day's profit row, creating
// the row lazily on the first event of the day.
func (r *Repository) AddProfitDelta(ctx context.Context, accountID uuid.UUID, day time.Time, billedSeconds int64, revenueCents, operatorCostCents, profitCents int64) error {
	query := `
		INSERT INTO daily_profit_aggregates (account_id, day, billed_seconds, revenue_cents, operator_cost_cents, profit_cents)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (account_id, day) DO UPDATE SET
			billed_seconds = daily_profit_aggregates.billed_seconds + EXCLUDED.billed_seconds,
			revenue_cents = daily_profit_aggregates.revenue_cents + EXCLUDED.revenue_cents,
			operator_cost_cents = daily_profit_aggregates.operator_cost_cents + EXCLUDED.operator_cost_cents,
			profit_cents = daily_profit_aggregates.profit_cents + EXCLUDED.profit_cents`

	_, err := r.pool.Exec(ctx, query, accountID, day, billedSeconds, revenueCents, operatorCostCents, profitCents)
	if err != nil {
		return fmt.Errorf("failed to upsert profit aggregate: %w", err)
	}
	return nil
}

// AddRevenue folds call revenue into the day's revenue row and overwrites the
// base cost, which is a per-day constant rather than a per-event delta.
func (r *Repository) AddRevenue(ctx context.Context, accountID uuid.UUID, day time.Time, callRevenueCents, baseCostCents int64) error {
	query := `
		INSERT INTO daily_revenue_aggregates (account_id, day, call_revenue_cents, base_cost_cents)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id, day) DO UPDATE SET
			call_revenue_cents = daily_revenue_aggregates.call_revenue_cents + EXCLUDED.call_revenue_cents,
			base_cost_cents = EXCLUDED.base_cost_cents`

	_, err := r.pool.Exec(ctx, query, accountID, day, callRevenueCents, baseCostCents)
	if err != nil {
		return fmt.Errorf("failed to upsert revenue aggregate: %w", err)
	}
	return nil
}

// ListProfit returns the account's profit rows in a day range, oldest first.
func (r *Repository) ListProfit(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]DailyProfit, error) {
	query := `SELECT account_id, day, billed_seconds, revenue_cents, operator_cost_cents, profit_cents
		FROM daily_profit_aggregates
		WHERE account_id = $1 AND day >= $2 AND day <= $3
		ORDER BY day`

	rows, err := r.pool.Query(ctx, query, accountID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list profit aggregates: %w", err)
	}
	defer rows.Close()

	var out []DailyProfit
	for rows.Next() {
		var p DailyProfit
		if err := rows.Scan(&p.AccountID, &p.Day, &p.BilledSeconds, &p.RevenueCents, &p.OperatorCostCents, &p.ProfitCents); err != nil {
			return nil, fmt.Errorf("failed to scan profit aggregate: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListRevenue returns the account's revenue rows in a day range, oldest first.
func (r *Repository) ListRevenue(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]DailyRevenue, error) {
	query := `SELECT account_id, day, call_revenue_cents, base_cost_cents
		FROM daily_revenue_aggregates
		WHERE account_id = $1 AND day >= $2 AND day <= $3
		ORDER BY day`

	rows, err := r.pool.Query(ctx, query, accountID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list revenue aggregates: %w", err)
	}
	defer rows.Close()

	var out []DailyRevenue
	for rows.Next() {
		var rev DailyRevenue
		if err := rows.Scan(&rev.AccountID, &rev.Day, &rev.CallRevenueCents, &rev.BaseCostCents); err != nil {
			return nil, fmt.Errorf("failed to scan revenue aggregate: %w", err)
		}
		out = append(out, rev)
	}
	return out, rows.Err()
}
