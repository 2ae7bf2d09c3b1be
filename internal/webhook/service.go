package webhook

import (
	"context"

	"dialerdesk_backend/internal/appointments"
	"dialerdesk_backend/internal/billing"
	"dialerdesk_backend/internal/calls"
	"dialerdesk_backend/platform/apperr"
	"dialerdesk_backend/platform/logger"

	"github.com/google/uuid"
)

// CallProcessor is the slice of the calls service the webhook surface uses.
type CallProcessor interface {
	ProcessOutcome(ctx context.Context, event calls.OutcomeEvent) (*calls.ProcessResult, error)
}

// BookingReconciler is the slice of the appointments service this module uses.
type BookingReconciler interface {
	ReconcileBooking(ctx context.Context, event appointments.BookingEvent) (*appointments.ReconcileResult, error)
}

// RefillApplier credits processor-confirmed replenishments.
type RefillApplier interface {
	ApplyRefill(ctx context.Context, accountID uuid.UUID, amountCents int64, reference string) (*billing.LedgerEntry, error)
}

// DeliveryLog is the persistence surface for the delivery record. Satisfied
// by Repository.
type DeliveryLog interface {
	RecordDelivery(ctx context.Context, apiKeyID, accountID *uuid.UUID, source string, payload []byte) (uuid.UUID, error)
	FinishDelivery(ctx context.Context, id uuid.UUID, status string, deliveryErr *string) error
}

// Service logs every delivery, then hands the decoded event to the owning
// module. The log write comes first: an event that fails resolution is still
// a fact of record and can be replayed.
type Service struct {
	deliveries DeliveryLog
	calls      CallProcessor
	bookings   BookingReconciler
	refills    RefillApplier
	log        *logger.Logger
}

// NewService creates a new webhook service.
func NewService(deliveries DeliveryLog, callProcessor CallProcessor, bookings BookingReconciler, refills RefillApplier, log *logger.Logger) *Service {
	return &Service{
		deliveries: deliveries,
		calls:      callProcessor,
		bookings:   bookings,
		refills:    refills,
		log:        log,
	}
}

// IngestCallOutcome logs and processes one call-outcome delivery.
func (s *Service) IngestCallOutcome(ctx context.Context, apiKeyID *uuid.UUID, raw []byte, event calls.OutcomeEvent) (*calls.ProcessResult, error) {
	deliveryID, err := s.deliveries.RecordDelivery(ctx, apiKeyID, &event.AccountID, SourceCalls, raw)
	if err != nil {
		return nil, err
	}

	result, err := s.calls.ProcessOutcome(ctx, event)
	s.finish(ctx, deliveryID, err)
	if err != nil {
		return nil, err
	}

	s.log.WebhookEvent(SourceCalls, "call_outcome", event.AccountID.String(), true, "")
	return result, nil
}

// IngestBooking logs and reconciles one booking-confirmation delivery.
// scope is the API key's account when the key is account-bound; the booking
// provider's platform key carries none and resolution goes global.
func (s *Service) IngestBooking(ctx context.Context, apiKeyID, scope *uuid.UUID, raw []byte, event appointments.BookingEvent) (*appointments.ReconcileResult, error) {
	deliveryID, err := s.deliveries.RecordDelivery(ctx, apiKeyID, scope, SourceBookings, raw)
	if err != nil {
		return nil, err
	}

	result, err := s.bookings.ReconcileBooking(ctx, event)
	s.finish(ctx, deliveryID, err)
	if err != nil {
		return nil, err
	}

	accountID := ""
	if result.Appointment != nil {
		accountID = result.Appointment.AccountID.String()
	}
	s.log.WebhookEvent(SourceBookings, "booking_confirmation", accountID, true, "")
	return result, nil
}

// IngestRefill logs and applies one payment-processor refill callback.
func (s *Service) IngestRefill(ctx context.Context, apiKeyID *uuid.UUID, raw []byte, accountID uuid.UUID, amountCents int64, reference string) (*billing.LedgerEntry, error) {
	deliveryID, err := s.deliveries.RecordDelivery(ctx, apiKeyID, &accountID, SourceRefill, raw)
	if err != nil {
		return nil, err
	}

	entry, err := s.refills.ApplyRefill(ctx, accountID, amountCents, reference)
	s.finish(ctx, deliveryID, err)
	if err != nil {
		return nil, err
	}

	s.log.WebhookEvent(SourceRefill, "refill_confirmed", accountID.String(), true, "")
	return entry, nil
}

// finish stamps the delivery row with the processing outcome. The stamp is
// best-effort; the delivery itself was already recorded.
func (s *Service) finish(ctx context.Context, deliveryID uuid.UUID, processErr error) {
	ctx = context.WithoutCancel(ctx)

	status := StatusAccepted
	var detail *string
	if processErr != nil {
		msg := processErr.Error()
		detail = &msg
		if apperr.Is(processErr, apperr.KindUnresolvable) || apperr.Is(processErr, apperr.KindNotFound) {
			status = StatusUnresolvable
		} else {
			status = StatusRejected
		}
	}

	if err := s.deliveries.FinishDelivery(ctx, deliveryID, status, detail); err != nil {
		s.log.Error("failed to stamp webhook delivery", "delivery_id", deliveryID, "error", err)
	}
}
