package profit

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

// Store is the persistence surface the service needs. Satisfied by Repository.
type Store interface {
	AddProfitDelta(ctx context.Context, accountID uuid.UUID, day time.Time, billedSeconds int64, revenueCents, operatorCostCents, profitCents int64) error
	AddRevenue(ctx context.Context, accountID uuid.UUID, day time.Time, callRevenueCents, baseCostCents int64) error
	ListProfit(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]DailyProfit, error)
	ListRevenue(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]DailyRevenue, error)
}

// AccountReader provides tier lookups. Satisfied by accounts.Repository.
type AccountReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*accounts.Account, error)
}

// Service derives the operator's margin per charged call and folds it into
// daily aggregates. Everything here is best-effort: it runs off the event bus
// and its failures never reach the charge path.
type Service struct {
	store    Store
	accounts AccountReader
	tiers    *accounts.TierCatalog
	cfg      config.BillingConfig
	log      *logger.Logger
}

// New creates a new profit service.
func New(store Store, accountReader AccountReader, tiers *accounts.TierCatalog, cfg config.BillingConfig, log *logger.Logger) *Service {
	return &Service{
		store:    store,
		accounts: accountReader,
		tiers:    tiers,
		cfg:      cfg,
		log:      log,
	}
}

// RegisterHandlers subscribes the aggregator to billing events.
func (s *Service) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.CallCharged{}.EventName(), events.HandlerFunc(s.handleCallCharged))
}

func (s *Service) handleCallCharged(ctx context.Context, event events.Event) error {
	charged, ok := event.(events.CallCharged)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}
	return s.Record(ctx, charged)
}

// Record folds one charged call into that day's profit and revenue rows.
func (s *Service) Record(ctx context.Context, charged events.CallCharged) error {
	day := dayOf(charged.ChargedOn)
	operatorCost := operatorCostCents(charged.DurationSeconds, s.cfg.GetOperatorCostPerMinuteCents())
	margin := charged.ChargeCents - operatorCost

	if err := s.store.AddProfitDelta(ctx, charged.AccountID, day,
		int64(charged.DurationSeconds), charged.ChargeCents, operatorCost, margin); err != nil {
		s.log.Error("profit aggregate write failed", "account_id", charged.AccountID, "error", err)
		return err
	}

	baseCost, err := s.dailyBaseCost(ctx, charged.AccountID, charged.ChargedOn)
	if err != nil {
		s.log.Warn("daily base cost unavailable, keeping call revenue only",
			"account_id", charged.AccountID, "error", err)
		baseCost = 0
	}

	if err := s.store.AddRevenue(ctx, charged.AccountID, day, charged.ChargeCents, baseCost); err != nil {
		s.log.Error("revenue aggregate write failed", "account_id", charged.AccountID, "error", err)
		return err
	}

	return nil
}

// ListProfit returns the profit rows for the account in [from, to].
func (s *Service) ListProfit(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]DailyProfit, error) {
	return s.store.ListProfit(ctx, accountID, dayOf(from), dayOf(to))
}

// ListRevenue returns the revenue rows for the account in [from, to].
func (s *Service) ListRevenue(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]DailyRevenue, error) {
	return s.store.ListRevenue(ctx, accountID, dayOf(from), dayOf(to))
}

// dailyBaseCost spreads the account's monthly subscription price over the
// days of the charge's month. It is recomputed on every call that day, not
// accumulated, because it represents a constant.
func (s *Service) dailyBaseCost(ctx context.Context, accountID uuid.UUID, at time.Time) (int64, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return 0, err
	}

	monthly, ok := s.tiers.MonthlyPriceCents(account.SubscriptionTier)
	if !ok {
		return 0, fmt.Errorf("unknown subscription tier %q", account.SubscriptionTier)
	}

	return monthly / int64(daysInMonth(at)), nil
}

func operatorCostCents(durationSeconds int, ratePerMinuteCents int64) int64 {
	return (int64(durationSeconds)*ratePerMinuteCents + 30) / 60
}

func dayOf(t time.Time) time.Time {
	utc := t.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}

func daysInMonth(t time.Time) int {
	utc := t.UTC()
	firstOfNext := time.Date(utc.Year(), utc.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return firstOfNext.AddDate(0, 0, -1).Day()
}
