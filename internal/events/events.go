// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"dialerdesk_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Billing Domain Events
// =============================================================================

// CallCharged is published after a call has been metered and deducted from
// the account balance. The profit aggregator folds these into daily rows;
// its failures never affect the charge itself.
type CallCharged struct {
	BaseEvent
	AccountID       uuid.UUID  `json:"accountId"`
	CallID          *uuid.UUID `json:"callId,omitempty"`
	DurationSeconds int        `json:"durationSeconds"`
	ChargeCents     int64      `json:"chargeCents"`
	ChargedOn       time.Time  `json:"chargedOn"`
}

func (e CallCharged) EventName() string { return "billing.call.charged" }

// ReplenishmentRequested is published when a charge takes the balance across
// the auto-refill floor. The payment trigger itself runs on the worker.
type ReplenishmentRequested struct {
	BaseEvent
	AccountID    uuid.UUID `json:"accountId"`
	BalanceCents int64     `json:"balanceCents"`
	RefillCents  int64     `json:"refillCents"`
}

func (e ReplenishmentRequested) EventName() string { return "billing.replenishment.requested" }

// =============================================================================
// Reconciliation Domain Events
// =============================================================================

// AppointmentReconciled is published when a booking-confirmation event has
// been merged into an appointment record, whether by update or create.
type AppointmentReconciled struct {
	BaseEvent
	AppointmentID uuid.UUID  `json:"appointmentId"`
	AccountID     uuid.UUID  `json:"accountId"`
	LeadID        *uuid.UUID `json:"leadId,omitempty"`
	MatchedBy     string     `json:"matchedBy"`
	Created       bool       `json:"created"`
	ScheduledAt   time.Time  `json:"scheduledAt"`
}

func (e AppointmentReconciled) EventName() string { return "appointments.reconciled" }

// LeadBooked is published when a lead first reaches appointment_booked.
type LeadBooked struct {
	BaseEvent
	LeadID    uuid.UUID `json:"leadId"`
	AccountID uuid.UUID `json:"accountId"`
}

func (e LeadBooked) EventName() string { return "leads.booked" }
