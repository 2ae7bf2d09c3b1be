package scheduler

import (
	"context"
	"fmt"
	"time"

	"dialerdesk_backend/platform/logger"

	"github.com/google/uuid"
)

// PaymentProcessor triggers a charge against the account's stored payment
// method. The processor confirms asynchronously through the refill webhook;
// triggering here never credits the balance directly.
type PaymentProcessor interface {
	TriggerReplenishment(ctx context.Context, accountID uuid.UUID, amountCents int64) (reference string, err error)
}

// LogOnlyProcessor stands in when no payment processor is configured. It
// fabricates a reference and logs the trigger so the rest of the pipeline is
// exercisable in development.
type LogOnlyProcessor struct {
	log *logger.Logger
}

// NewLogOnlyProcessor creates the development processor.
func NewLogOnlyProcessor(log *logger.Logger) *LogOnlyProcessor {
	return &LogOnlyProcessor{log: log}
}

// TriggerReplenishment logs the trigger and returns a synthetic reference.
func (p *LogOnlyProcessor) TriggerReplenishment(_ context.Context, accountID uuid.UUID, amountCents int64) (string, error) {
	reference := fmt.Sprintf("dev-%d-%s", time.Now().Unix(), accountID.String()[:8])
	p.log.Info("payment trigger (log only)",
		"account_id", accountID, "amount_cents", amountCents, "reference", reference)
	return reference, nil
}

var _ PaymentProcessor = (*LogOnlyProcessor)(nil)
