package calls

import (
	"context"
	"testing"
	"time"

	"dialerdesk_backend/internal/billing"
	"dialerdesk_backend/internal/leads/domain"
	"dialerdesk_backend/internal/leads/repository"
	"dialerdesk_backend/platform/apperr"
	"dialerdesk_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeCallStore struct {
	calls []Call
}

func (f *fakeCallStore) Insert(_ context.Context, call *Call) (*Call, error) {
	stored := *call
	stored.ID = uuid.New()
	stored.CreatedAt = time.Now()
	f.calls = append(f.calls, stored)
	return &stored, nil
}

func (f *fakeCallStore) GetByID(_ context.Context, accountID, id uuid.UUID) (*Call, error) {
	for i := range f.calls {
		if f.calls[i].ID == id && f.calls[i].AccountID == accountID {
			return &f.calls[i], nil
		}
	}
	return nil, apperr.NotFound("call not found")
}

func (f *fakeCallStore) ListByAccount(_ context.Context, accountID uuid.UUID, _, _ int) ([]Call, error) {
	var out []Call
	for _, c := range f.calls {
		if c.AccountID == accountID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCallStore) ListByLead(_ context.Context, accountID, leadID uuid.UUID) ([]Call, error) {
	var out []Call
	for _, c := range f.calls {
		if c.AccountID == accountID && c.LeadID != nil && *c.LeadID == leadID {
			out = append(out, c)
		}
	}
	return out, nil
}

type dialRecord struct {
	leadID   uuid.UUID
	answered bool
	outcome  *string
}

type fakeLeads struct {
	lead     *repository.Lead
	attempts []dialRecord
	details  int
}

func (f *fakeLeads) Resolve(_ context.Context, rawPhone string, _ *uuid.UUID) (*repository.Lead, error) {
	if f.lead == nil {
		return nil, apperr.NotFound("lead not found")
	}
	return f.lead, nil
}

func (f *fakeLeads) ApplyDialAttempt(_ context.Context, leadID uuid.UUID, answered bool, outcome *string, _ time.Time) (bool, error) {
	f.attempts = append(f.attempts, dialRecord{leadID, answered, outcome})
	return f.lead.Status != domain.StatusAppointmentBooked, nil
}

func (f *fakeLeads) UpdateCallDetails(_ context.Context, _ uuid.UUID, _ *int, _ *string, _ time.Time) error {
	f.details++
	return nil
}

type ensuredAppointment struct {
	leadID       uuid.UUID
	callID       *uuid.UUID
	recordingKey *string
}

type fakeAppointments struct {
	ensured []ensuredAppointment
}

func (f *fakeAppointments) EnsureForBookedCall(_ context.Context, _ uuid.UUID, leadID uuid.UUID, callID *uuid.UUID, recordingKey *string, _ time.Time) error {
	f.ensured = append(f.ensured, ensuredAppointment{leadID, callID, recordingKey})
	return nil
}

type chargeRecord struct {
	callID  *uuid.UUID
	seconds int
}

type fakeCharger struct {
	charges []chargeRecord
	err     error
}

func (f *fakeCharger) ChargeForCall(_ context.Context, _ uuid.UUID, callID *uuid.UUID, durationSeconds int) (*billing.ChargeResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.charges = append(f.charges, chargeRecord{callID, durationSeconds})
	cost := (int64(durationSeconds)*65 + 30) / 60
	return &billing.ChargeResult{CostCents: cost}, nil
}

type fakeLocker struct {
	locked []string
}

func (f *fakeLocker) Lock(_ context.Context, key string) (func(), error) {
	f.locked = append(f.locked, key)
	return func() {}, nil
}

type billingConfig struct{}

func (billingConfig) GetDefaultRatePerMinuteCents() int64  { return 65 }
func (billingConfig) GetOperatorCostPerMinuteCents() int64 { return 18 }
func (billingConfig) GetReplenishFloorCents() int64        { return 1000 }
func (billingConfig) GetMinBillableCallSeconds() int       { return 5 }

type fixture struct {
	svc          *Service
	store        *fakeCallStore
	leads        *fakeLeads
	appointments *fakeAppointments
	charger      *fakeCharger
	locker       *fakeLocker
	accountID    uuid.UUID
}

func setup(lead *repository.Lead) *fixture {
	f := &fixture{
		store:        &fakeCallStore{},
		leads:        &fakeLeads{lead: lead},
		appointments: &fakeAppointments{},
		charger:      &fakeCharger{},
		locker:       &fakeLocker{},
		accountID:    uuid.New(),
	}
	f.svc = New(f.store, f.leads, f.appointments, f.charger, f.locker, billingConfig{}, logger.New("development"))
	return f
}

func testLead(accountID uuid.UUID) *repository.Lead {
	return &repository.Lead{
		ID:        uuid.New(),
		AccountID: accountID,
		Name:      "Maria Santos",
		Phone:     "+12015550123",
		Status:    domain.StatusDialing,
	}
}

func strp(s string) *string { return &s }

func TestProcessOutcomeRecordsCallAndAdvancesLead(t *testing.T) {
	f := setup(nil)
	lead := testLead(f.accountID)
	f.leads.lead = lead

	result, err := f.svc.ProcessOutcome(context.Background(), OutcomeEvent{
		AccountID:       f.accountID,
		Phone:           "(201) 555-0123",
		DurationSeconds: 185,
		Answered:        true,
		Outcome:         strp(domain.OutcomeNotInterested),
		OccurredAt:      time.Now(),
	})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}

	if result.ShortCall {
		t.Fatal("a 185s call is not short")
	}
	if result.CallID == nil {
		t.Fatal("expected a call record")
	}
	if result.LeadID == nil || *result.LeadID != lead.ID {
		t.Fatal("expected the call attributed to the lead")
	}
	if !result.Applied {
		t.Fatal("expected the dial attempt to apply")
	}

	if len(f.store.calls) != 1 {
		t.Fatalf("expected one call row, got %d", len(f.store.calls))
	}
	row := f.store.calls[0]
	if row.Disposition != DispositionAnswered {
		t.Fatalf("expected answered disposition, got %s", row.Disposition)
	}
	if row.PhoneSuffix != "2015550123" {
		t.Fatalf("expected normalized suffix, got %s", row.PhoneSuffix)
	}

	if len(f.charger.charges) != 1 || f.charger.charges[0].seconds != 185 {
		t.Fatalf("expected one 185s charge, got %+v", f.charger.charges)
	}
	if len(f.locker.locked) != 1 || f.locker.locked[0] != "lead:"+lead.ID.String() {
		t.Fatalf("expected the per-lead lock, got %v", f.locker.locked)
	}
}

func TestProcessOutcomeShortCallBilledButNotRecorded(t *testing.T) {
	f := setup(nil)
	lead := testLead(f.accountID)
	f.leads.lead = lead

	result, err := f.svc.ProcessOutcome(context.Background(), OutcomeEvent{
		AccountID:       f.accountID,
		Phone:           lead.Phone,
		DurationSeconds: 3,
		Answered:        true,
		Outcome:         strp(domain.OutcomeBooked),
		OccurredAt:      time.Now(),
	})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}

	if !result.ShortCall {
		t.Fatal("a 3s call is short")
	}
	if result.CallID != nil || len(f.store.calls) != 0 {
		t.Fatal("short calls must stay out of the call history")
	}

	// The reported outcome is discarded: the attempt lands as unanswered.
	if len(f.leads.attempts) != 1 {
		t.Fatalf("expected one dial attempt, got %d", len(f.leads.attempts))
	}
	if f.leads.attempts[0].answered || f.leads.attempts[0].outcome != nil {
		t.Fatalf("expected short call treated as no answer, got %+v", f.leads.attempts[0])
	}
	if len(f.appointments.ensured) != 0 {
		t.Fatal("a discarded booked outcome must not open an appointment")
	}

	// Still billed.
	if len(f.charger.charges) != 1 || f.charger.charges[0].seconds != 3 {
		t.Fatalf("expected the 3s charge, got %+v", f.charger.charges)
	}
	if result.ChargeCents != 3 {
		t.Fatalf("expected 3 cents charged, got %d", result.ChargeCents)
	}
}

func TestProcessOutcomeBookedOpensAppointment(t *testing.T) {
	f := setup(nil)
	lead := testLead(f.accountID)
	f.leads.lead = lead

	recording := strp("recordings/abc.mp3")
	result, err := f.svc.ProcessOutcome(context.Background(), OutcomeEvent{
		AccountID:       f.accountID,
		Phone:           lead.Phone,
		DurationSeconds: 240,
		Answered:        true,
		Outcome:         strp(domain.OutcomeBooked),
		RecordingKey:    recording,
		OccurredAt:      time.Now(),
	})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}

	if len(f.appointments.ensured) != 1 {
		t.Fatalf("expected one appointment ensure, got %d", len(f.appointments.ensured))
	}
	ensured := f.appointments.ensured[0]
	if ensured.leadID != lead.ID {
		t.Fatal("appointment must reference the resolved lead")
	}
	if ensured.callID == nil || *ensured.callID != *result.CallID {
		t.Fatal("appointment must reference the call record")
	}
	if ensured.recordingKey == nil || *ensured.recordingKey != *recording {
		t.Fatal("appointment must carry the recording reference")
	}
}

func TestProcessOutcomeUnattributedStillRecordedAndBilled(t *testing.T) {
	f := setup(nil) // no lead resolves

	result, err := f.svc.ProcessOutcome(context.Background(), OutcomeEvent{
		AccountID:       f.accountID,
		Phone:           "+12125550000",
		DurationSeconds: 60,
		Answered:        false,
		OccurredAt:      time.Now(),
	})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}

	if result.LeadID != nil {
		t.Fatal("expected no lead attribution")
	}
	if result.CallID == nil || len(f.store.calls) != 1 {
		t.Fatal("unattributed calls are still facts of record")
	}
	if f.store.calls[0].LeadID != nil {
		t.Fatal("call row must carry a null lead")
	}
	if len(f.leads.attempts) != 0 {
		t.Fatal("no lead, no lifecycle transition")
	}
	if len(f.charger.charges) != 1 {
		t.Fatal("unattributed calls are still charged")
	}
}

func TestProcessOutcomeBookedLeadSkipsCounters(t *testing.T) {
	f := setup(nil)
	lead := testLead(f.accountID)
	lead.Status = domain.StatusAppointmentBooked
	f.leads.lead = lead

	result, err := f.svc.ProcessOutcome(context.Background(), OutcomeEvent{
		AccountID:       f.accountID,
		Phone:           lead.Phone,
		DurationSeconds: 90,
		Answered:        true,
		Outcome:         strp(domain.OutcomeCallback),
		OccurredAt:      time.Now(),
	})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}

	if result.Applied {
		t.Fatal("a booked lead must not re-apply counters")
	}
	// The call itself is still history and still costs money.
	if result.CallID == nil || len(f.charger.charges) != 1 {
		t.Fatal("call record and charge happen regardless of the guard")
	}
}

func TestProcessOutcomeChargeFailureDoesNotAbort(t *testing.T) {
	f := setup(nil)
	lead := testLead(f.accountID)
	f.leads.lead = lead
	f.charger.err = apperr.Internal("ledger down")

	result, err := f.svc.ProcessOutcome(context.Background(), OutcomeEvent{
		AccountID:       f.accountID,
		Phone:           lead.Phone,
		DurationSeconds: 60,
		Answered:        true,
		Outcome:         strp(domain.OutcomeCallback),
		OccurredAt:      time.Now(),
	})
	if err != nil {
		t.Fatalf("a billing failure must not fail the event: %v", err)
	}

	if result.CallID == nil {
		t.Fatal("call record must survive the ledger outage")
	}
	if len(f.leads.attempts) != 1 {
		t.Fatal("lead transition must survive the ledger outage")
	}
	if result.ChargeCents != 0 {
		t.Fatal("no charge was made")
	}
}

func TestProcessOutcomeStoresCallDetails(t *testing.T) {
	f := setup(nil)
	lead := testLead(f.accountID)
	f.leads.lead = lead

	age := 47
	state := "TX"
	_, err := f.svc.ProcessOutcome(context.Background(), OutcomeEvent{
		AccountID:       f.accountID,
		Phone:           lead.Phone,
		DurationSeconds: 120,
		Answered:        true,
		Outcome:         strp(domain.OutcomeCallback),
		Age:             &age,
		State:           &state,
		OccurredAt:      time.Now(),
	})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if f.leads.details != 1 {
		t.Fatal("expected call details stored on the lead")
	}
}
