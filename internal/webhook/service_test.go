package webhook

import (
	"context"
	"testing"
	"time"

	"dialerdesk_backend/internal/appointments"
	"dialerdesk_backend/internal/billing"
	"dialerdesk_backend/internal/calls"
	"dialerdesk_backend/platform/apperr"
	"dialerdesk_backend/platform/logger"

	"github.com/google/uuid"
)

type loggedDelivery struct {
	id     uuid.UUID
	source string
	status string
	detail *string
}

type fakeDeliveryLog struct {
	deliveries []*loggedDelivery
}

func (f *fakeDeliveryLog) RecordDelivery(_ context.Context, _, _ *uuid.UUID, source string, _ []byte) (uuid.UUID, error) {
	d := &loggedDelivery{id: uuid.New(), source: source, status: StatusReceived}
	f.deliveries = append(f.deliveries, d)
	return d.id, nil
}

func (f *fakeDeliveryLog) FinishDelivery(_ context.Context, id uuid.UUID, status string, detail *string) error {
	for _, d := range f.deliveries {
		if d.id == id {
			d.status = status
			d.detail = detail
			return nil
		}
	}
	return apperr.NotFound("delivery not found")
}

type stubCalls struct {
	err error
}

func (s *stubCalls) ProcessOutcome(_ context.Context, _ calls.OutcomeEvent) (*calls.ProcessResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	id := uuid.New()
	return &calls.ProcessResult{CallID: &id, ChargeCents: 65}, nil
}

type stubBookings struct {
	err error
}

func (s *stubBookings) ReconcileBooking(_ context.Context, _ appointments.BookingEvent) (*appointments.ReconcileResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &appointments.ReconcileResult{
		Appointment: &appointments.Appointment{ID: uuid.New(), AccountID: uuid.New()},
		MatchedBy:   appointments.MatchedByNone,
		Created:     true,
	}, nil
}

type stubRefills struct{}

func (stubRefills) ApplyRefill(_ context.Context, _ uuid.UUID, amountCents int64, _ string) (*billing.LedgerEntry, error) {
	return &billing.LedgerEntry{BalanceAfterCents: amountCents}, nil
}

func outcomeEvent(accountID uuid.UUID) calls.OutcomeEvent {
	return calls.OutcomeEvent{
		AccountID:       accountID,
		Phone:           "+12015550123",
		DurationSeconds: 60,
		Answered:        true,
		OccurredAt:      time.Now(),
	}
}

func TestIngestCallOutcomeLogsAndAccepts(t *testing.T) {
	log := &fakeDeliveryLog{}
	svc := NewService(log, &stubCalls{}, &stubBookings{}, stubRefills{}, logger.New("development"))

	result, err := svc.IngestCallOutcome(context.Background(), nil, []byte(`{}`), outcomeEvent(uuid.New()))
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if result.ChargeCents != 65 {
		t.Fatalf("unexpected result: %+v", result)
	}

	if len(log.deliveries) != 1 {
		t.Fatalf("expected one logged delivery, got %d", len(log.deliveries))
	}
	d := log.deliveries[0]
	if d.source != SourceCalls || d.status != StatusAccepted {
		t.Fatalf("expected an accepted calls delivery, got %+v", d)
	}
}

func TestIngestCallOutcomeFailureStillLogged(t *testing.T) {
	log := &fakeDeliveryLog{}
	svc := NewService(log, &stubCalls{err: apperr.Internal("store down")}, &stubBookings{}, stubRefills{}, logger.New("development"))

	_, err := svc.IngestCallOutcome(context.Background(), nil, []byte(`{}`), outcomeEvent(uuid.New()))
	if err == nil {
		t.Fatal("expected the processing error surfaced")
	}

	if len(log.deliveries) != 1 {
		t.Fatal("the delivery must be on record before processing")
	}
	if log.deliveries[0].status != StatusRejected {
		t.Fatalf("expected rejected, got %s", log.deliveries[0].status)
	}
	if log.deliveries[0].detail == nil {
		t.Fatal("expected the error detail stamped")
	}
}

func TestIngestBookingUnresolvableStamped(t *testing.T) {
	log := &fakeDeliveryLog{}
	svc := NewService(log, &stubCalls{}, &stubBookings{err: apperr.Unresolvable("no lead, no account")}, stubRefills{}, logger.New("development"))

	_, err := svc.IngestBooking(context.Background(), nil, nil, []byte(`{}`), appointments.BookingEvent{
		AttendeePhone: "+13035550100",
		ScheduledAt:   time.Now(),
		OccurredAt:    time.Now(),
	})
	if err == nil {
		t.Fatal("expected the unresolvable error surfaced")
	}

	if len(log.deliveries) != 1 || log.deliveries[0].status != StatusUnresolvable {
		t.Fatalf("expected an unresolvable delivery on record, got %+v", log.deliveries)
	}
}
