package billing

import (
	"context"
	"fmt"
	"time"

	"dialerdesk_backend/internal/accounts"
	"dialerdesk_backend/internal/events"
	"dialerdesk_backend/platform/config"
	"dialerdesk_backend/platform/logger"

	"github.com/google/uuid"
)

// Ledger is the persistence surface the service needs. Satisfied by Repository.
type Ledger interface {
	Apply(ctx context.Context, accountID uuid.UUID, amountCents int64, txType, description string, at time.Time) (*LedgerEntry, error)
	GetBalance(ctx context.Context, accountID uuid.UUID) (*CallBalance, error)
	ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]Transaction, error)
}

// AccountReader provides per-account rate lookups. Satisfied by accounts.Repository.
type AccountReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*accounts.Account, error)
}

// ChargeResult reports the outcome of metering one call.
type ChargeResult struct {
	CostCents             int64
	BalanceAfterCents     int64
	ReplenishmentSignaled bool
}

// Service meters call duration into currency and maintains the ledger.
//
// The ledger never blocks a charge for insufficient funds: the balance may go
// negative and the only reaction to a low balance is the replenishment
// signal. Availability of the calling system wins over pre-authorization.
type Service struct {
	ledger   Ledger
	accounts AccountReader
	bus      events.Bus
	cfg      config.BillingConfig
	log      *logger.Logger
	clock    func() time.Time
}

// New creates a new billing service.
func New(ledger Ledger, accountReader AccountReader, bus events.Bus, cfg config.BillingConfig, log *logger.Logger) *Service {
	return &Service{
		ledger:   ledger,
		accounts: accountReader,
		bus:      bus,
		cfg:      cfg,
		log:      log,
		clock:    time.Now,
	}
}

// ChargeForCall deducts the metered cost of one call from the account
// balance, appends the ledger line, and raises the replenishment signal when
// the deduction takes the balance across the floor. Calls of zero duration
// cost nothing and leave no ledger line.
func (s *Service) ChargeForCall(ctx context.Context, accountID uuid.UUID, callID *uuid.UUID, durationSeconds int) (*ChargeResult, error) {
	if durationSeconds <= 0 {
		return &ChargeResult{}, nil
	}

	rate, err := s.ratePerMinute(ctx, accountID)
	if err != nil {
		return nil, err
	}

	cost := callCostCents(durationSeconds, rate)
	now := s.clock()

	description := fmt.Sprintf("call charge: %ds at %d¢/min", durationSeconds, rate)
	entry, err := s.ledger.Apply(ctx, accountID, -cost, TxTypeCallCharge, description, now)
	if err != nil {
		return nil, err
	}

	s.log.LedgerCharge(accountID.String(), cost, entry.BalanceAfterCents)

	result := &ChargeResult{
		CostCents:         cost,
		BalanceAfterCents: entry.BalanceAfterCents,
	}

	floor := s.cfg.GetReplenishFloorCents()
	if entry.AutoRefillEnabled && crossedFloor(entry.BalanceBeforeCents, entry.BalanceAfterCents, floor) {
		result.ReplenishmentSignaled = true
		s.bus.Publish(ctx, events.ReplenishmentRequested{
			BaseEvent:    events.NewBaseEvent(),
			AccountID:    accountID,
			BalanceCents: entry.BalanceAfterCents,
			RefillCents:  entry.AutoRefillAmountCents,
		})
	}

	s.bus.Publish(ctx, events.CallCharged{
		BaseEvent:       events.NewBaseEvent(),
		AccountID:       accountID,
		CallID:          callID,
		DurationSeconds: durationSeconds,
		ChargeCents:     cost,
		ChargedOn:       now,
	})

	return result, nil
}

// ApplyRefill credits the account after the payment processor confirms a
// replenishment.
func (s *Service) ApplyRefill(ctx context.Context, accountID uuid.UUID, amountCents int64, reference string) (*LedgerEntry, error) {
	if amountCents <= 0 {
		return nil, fmt.Errorf("refill amount must be positive")
	}
	description := "auto-refill " + reference
	return s.ledger.Apply(ctx, accountID, amountCents, TxTypeRefill, description, s.clock())
}

// GetBalance returns the account's current balance row.
func (s *Service) GetBalance(ctx context.Context, accountID uuid.UUID) (*CallBalance, error) {
	return s.ledger.GetBalance(ctx, accountID)
}

// ListTransactions returns the newest ledger lines for the account.
func (s *Service) ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]Transaction, error) {
	return s.ledger.ListTransactions(ctx, accountID, limit, offset)
}

func (s *Service) ratePerMinute(ctx context.Context, accountID uuid.UUID) (int64, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if account.RatePerMinuteCents != nil && *account.RatePerMinuteCents > 0 {
		return *account.RatePerMinuteCents, nil
	}
	return s.cfg.GetDefaultRatePerMinuteCents(), nil
}

// callCostCents converts seconds at a per-minute rate into cents, rounding
// half up to the nearest cent.
func callCostCents(durationSeconds int, ratePerMinuteCents int64) int64 {
	return (int64(durationSeconds)*ratePerMinuteCents + 30) / 60
}

// crossedFloor reports whether this deduction is the one that took the
// balance below the floor. Charges that start already below the floor do not
// re-signal; the pending replenishment covers them.
func crossedFloor(before, after, floor int64) bool {
	return before >= floor && after < floor
}
