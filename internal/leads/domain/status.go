// Package domain provides core business rules for the leads bounded context.
package domain

// Lead lifecycle statuses. appointment_booked is sticky: once a lead reaches
// it, later events must not revert it or re-apply counters.
const (
	StatusNew               = "new"
	StatusDialing           = "dialing"
	StatusAppointmentBooked = "appointment_booked"
	StatusNotInterested     = "not_interested"
	StatusCallbackLater     = "callback_later"
	StatusNoAnswer          = "no_answer"
)

// Call outcomes as reported by the telephony provider. Outcome is only
// meaningful on answered calls.
const (
	OutcomeBooked        = "booked"
	OutcomeNotInterested = "not_interested"
	OutcomeCallback      = "callback"
	OutcomeLiveTransfer  = "live_transfer"
)

var knownOutcomes = map[string]struct{}{
	OutcomeBooked:        {},
	OutcomeNotInterested: {},
	OutcomeCallback:      {},
	OutcomeLiveTransfer:  {},
}

// IsKnownOutcome reports whether the outcome value is one the state machine
// understands. A nil/empty outcome (unanswered call) is handled separately.
func IsKnownOutcome(outcome string) bool {
	_, ok := knownOutcomes[outcome]
	return ok
}

// IsSticky reports whether the status must never be reverted by a later event.
func IsSticky(status string) bool {
	return status == StatusAppointmentBooked
}

// StatusForOutcome derives the lead status that a call attempt should
// transition to. Unanswered calls land on no_answer; answered calls follow
// the reported outcome. An answered call with no recognizable outcome keeps
// the lead in dialing.
func StatusForOutcome(answered bool, outcome string) string {
	if !answered {
		return StatusNoAnswer
	}

	switch outcome {
	case OutcomeBooked:
		return StatusAppointmentBooked
	case OutcomeNotInterested:
		return StatusNotInterested
	case OutcomeCallback:
		return StatusCallbackLater
	case OutcomeLiveTransfer:
		// A live transfer hands the prospect to a human agent; the lead
		// stays in the dialing funnel until a terminal outcome is reported.
		return StatusDialing
	default:
		return StatusDialing
	}
}
