package calls

import (
	"context"
	"time"

	"dialerdesk_backend/internal/billing"
	"dialerdesk_backend/internal/leads/domain"
	"dialerdesk_backend/internal/leads/repository"
	"dialerdesk_backend/platform/apperr"
	"dialerdesk_backend/platform/config"
	"dialerdesk_backend/platform/logger"
	"dialerdesk_backend/platform/phone"

	"github.com/google/uuid"
)

// OutcomeEvent is a call-outcome event after transport decoding, carrying
// what the telephony provider observed about one completed dial.
type OutcomeEvent struct {
	AccountID       uuid.UUID
	Phone           string
	DurationSeconds int
	Answered        bool
	Outcome         *string
	AgentName       *string
	RecordingKey    *string
	Age             *int
	State           *string
	OccurredAt      time.Time
}

// ProcessResult reports what one outcome event actually did.
type ProcessResult struct {
	CallID      *uuid.UUID
	LeadID      *uuid.UUID
	ShortCall   bool
	Applied     bool
	ChargeCents int64
}

// CallStore is the persistence surface the service needs. Satisfied by Repository.
type CallStore interface {
	Insert(ctx context.Context, call *Call) (*Call, error)
	GetByID(ctx context.Context, accountID, id uuid.UUID) (*Call, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]Call, error)
	ListByLead(ctx context.Context, accountID, leadID uuid.UUID) ([]Call, error)
}

// LeadResolver is the slice of the leads service this module uses.
type LeadResolver interface {
	Resolve(ctx context.Context, rawPhone string, scope *uuid.UUID) (*repository.Lead, error)
	ApplyDialAttempt(ctx context.Context, leadID uuid.UUID, answered bool, outcome *string, at time.Time) (bool, error)
	UpdateCallDetails(ctx context.Context, leadID uuid.UUID, age *int, state *string, at time.Time) error
}

// AppointmentWriter lets the calls side open or enrich the appointment a
// booked outcome implies, without depending on the appointments package.
type AppointmentWriter interface {
	EnsureForBookedCall(ctx context.Context, accountID, leadID uuid.UUID, callID *uuid.UUID, recordingKey *string, at time.Time) error
}

// Charger is the slice of the billing service this module uses.
type Charger interface {
	ChargeForCall(ctx context.Context, accountID uuid.UUID, callID *uuid.UUID, durationSeconds int) (*billing.ChargeResult, error)
}

// Locker serializes lifecycle writes per lead. Satisfied by keymutex.Mutex.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Service turns call-outcome events into call records, lead lifecycle
// transitions, and ledger charges.
type Service struct {
	store        CallStore
	leads        LeadResolver
	appointments AppointmentWriter
	charger      Charger
	locks        Locker
	cfg          config.BillingConfig
	log          *logger.Logger
}

// New creates a new calls service.
func New(store CallStore, leads LeadResolver, appointments AppointmentWriter, charger Charger, locks Locker, cfg config.BillingConfig, log *logger.Logger) *Service {
	return &Service{
		store:        store,
		leads:        leads,
		appointments: appointments,
		charger:      charger,
		locks:        locks,
		cfg:          cfg,
		log:          log,
	}
}

// ProcessOutcome applies one call-outcome event end to end: attribute the
// call to a lead, record it, advance the lead lifecycle, open the
// appointment placeholder on a booked outcome, and meter the duration into
// the ledger.
//
// Billing runs last and its failure is logged, never returned: the call and
// lead writes must survive a ledger outage and the charge can be replayed
// from the delivery log.
func (s *Service) ProcessOutcome(ctx context.Context, event OutcomeEvent) (*ProcessResult, error) {
	result := &ProcessResult{}

	answered := event.Answered
	outcome := event.Outcome
	if event.DurationSeconds < s.cfg.GetMinBillableCallSeconds() {
		// Too short to be a real conversation. Treated as no answer, kept
		// out of the call history, but the carrier still bills us so the
		// customer is still charged.
		result.ShortCall = true
		answered = false
		outcome = nil
	}

	lead, err := s.leads.Resolve(ctx, event.Phone, &event.AccountID)
	switch {
	case err == nil:
		result.LeadID = &lead.ID
	case apperr.Is(err, apperr.KindNotFound) || apperr.Is(err, apperr.KindUnresolvable):
		// The number does not belong to any known lead. The call is still a
		// fact of record and still costs money; it just has no lead to move.
		s.log.Warn("call outcome could not be attributed to a lead",
			"account_id", event.AccountID, "phone_suffix", suffixForLog(event.Phone))
	default:
		return nil, err
	}

	if !result.ShortCall {
		call, err := s.store.Insert(ctx, &Call{
			AccountID:       event.AccountID,
			LeadID:          result.LeadID,
			Phone:           phone.NormalizeE164(event.Phone),
			PhoneSuffix:     suffixForLog(event.Phone),
			DurationSeconds: event.DurationSeconds,
			Disposition:     disposition(answered),
			Outcome:         outcome,
			AgentName:       event.AgentName,
			RecordingKey:    event.RecordingKey,
			OccurredAt:      event.OccurredAt,
		})
		if err != nil {
			return nil, err
		}
		result.CallID = &call.ID
	}

	if lead != nil {
		if err := s.advanceLead(ctx, lead, event, answered, outcome, result); err != nil {
			return nil, err
		}
	}

	charge, err := s.charger.ChargeForCall(ctx, event.AccountID, result.CallID, event.DurationSeconds)
	if err != nil {
		s.log.Error("call recorded but charge failed",
			"account_id", event.AccountID, "call_id", result.CallID, "error", err)
		return result, nil
	}
	result.ChargeCents = charge.CostCents

	return result, nil
}

// advanceLead applies the lifecycle transition and, on a booked outcome, the
// appointment placeholder, all under the per-lead mutex so a concurrent
// booking confirmation for the same lead cannot interleave.
func (s *Service) advanceLead(ctx context.Context, lead *repository.Lead, event OutcomeEvent, answered bool, outcome *string, result *ProcessResult) error {
	unlock, err := s.locks.Lock(ctx, "lead:"+lead.ID.String())
	if err != nil {
		return err
	}
	defer unlock()

	applied, err := s.leads.ApplyDialAttempt(ctx, lead.ID, answered, outcome, event.OccurredAt)
	if err != nil {
		return err
	}
	result.Applied = applied

	if event.Age != nil || event.State != nil {
		if err := s.leads.UpdateCallDetails(ctx, lead.ID, event.Age, event.State, event.OccurredAt); err != nil {
			s.log.Error("failed to store call details on lead", "lead_id", lead.ID, "error", err)
		}
	}

	if outcome != nil && *outcome == domain.OutcomeBooked {
		if err := s.appointments.EnsureForBookedCall(ctx, event.AccountID, lead.ID, result.CallID, event.RecordingKey, event.OccurredAt); err != nil {
			s.log.Error("failed to open appointment for booked call", "lead_id", lead.ID, "error", err)
		}
	}

	return nil
}

// Get returns one call scoped to the account.
func (s *Service) Get(ctx context.Context, accountID, id uuid.UUID) (*Call, error) {
	return s.store.GetByID(ctx, accountID, id)
}

// List returns the account's call history page.
func (s *Service) List(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]Call, error) {
	return s.store.ListByAccount(ctx, accountID, limit, offset)
}

// ListForLead returns the calls attributed to one lead.
func (s *Service) ListForLead(ctx context.Context, accountID, leadID uuid.UUID) ([]Call, error) {
	return s.store.ListByLead(ctx, accountID, leadID)
}

func disposition(answered bool) string {
	if answered {
		return DispositionAnswered
	}
	return DispositionNoAnswer
}

func suffixForLog(rawPhone string) string {
	suffix, _ := phone.MatchSuffix(rawPhone)
	return suffix
}
