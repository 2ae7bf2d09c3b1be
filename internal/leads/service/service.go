// Package service implements lead resolution and lifecycle operations.
package service

import (
	"context"
	"time"

	"dialerdesk_backend/internal/leads/domain"
	"dialerdesk_backend/internal/leads/repository"
	"dialerdesk_backend/platform/apperr"
	"dialerdesk_backend/platform/logger"
	"dialerdesk_backend/platform/phone"

	"github.com/google/uuid"
)

// Store is the persistence surface the service needs. Satisfied by
// repository.Repository.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*repository.Lead, error)
	FindBySuffix(ctx context.Context, suffix string, accountID *uuid.UUID) (*repository.Lead, int, error)
	ApplyDialAttempt(ctx context.Context, leadID uuid.UUID, attempt repository.DialAttempt) (bool, error)
	MarkBooked(ctx context.Context, leadID uuid.UUID, at time.Time) (bool, error)
	UpdateCallDetails(ctx context.Context, leadID uuid.UUID, age *int, state *string, at time.Time) error
}

// Service resolves leads from phone numbers and applies lifecycle changes.
type Service struct {
	store Store
	log   *logger.Logger
}

// New creates a new leads service.
func New(store Store, log *logger.Logger) *Service {
	return &Service{store: store, log: log}
}

// Resolve finds the lead owning the given phone number. A non-nil scope
// restricts the search to that account; the booking provider does not know
// the owning account, so its events resolve globally. Global resolution is
// best-effort: the same suffix can belong to leads in two accounts and the
// newest-lead tie break can pick wrong. That ambiguity is logged, not hidden.
func (s *Service) Resolve(ctx context.Context, rawPhone string, scope *uuid.UUID) (*repository.Lead, error) {
	suffix, ok := phone.MatchSuffix(rawPhone)
	if !ok {
		return nil, apperr.Unresolvable("phone number has fewer than ten digits and cannot be matched")
	}

	lead, candidates, err := s.store.FindBySuffix(ctx, suffix, scope)
	if err != nil {
		return nil, err
	}

	if scope == nil && candidates > 1 {
		s.log.Warn("ambiguous global phone match, picked most recent lead",
			"suffix", suffix,
			"candidates", candidates,
			"lead_id", lead.ID,
			"account_id", lead.AccountID,
		)
	}

	return lead, nil
}

// Get returns the lead by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*repository.Lead, error) {
	return s.store.GetByID(ctx, id)
}

// ApplyDialAttempt records one real-world call attempt against the lead.
// The status transition is derived from answered/outcome; leads already at
// appointment_booked are untouched and the attempt reports as not applied.
func (s *Service) ApplyDialAttempt(ctx context.Context, leadID uuid.UUID, answered bool, outcome *string, at time.Time) (bool, error) {
	outcomeValue := ""
	if outcome != nil {
		outcomeValue = *outcome
	}

	attempt := repository.DialAttempt{
		Outcome:  outcome,
		PickedUp: answered,
		Status:   domain.StatusForOutcome(answered, outcomeValue),
		At:       at,
	}

	applied, err := s.store.ApplyDialAttempt(ctx, leadID, attempt)
	if err != nil {
		return false, err
	}
	if !applied {
		s.log.Info("dial attempt skipped, lead already booked", "lead_id", leadID)
	}
	return applied, nil
}

// MarkBooked moves the lead to appointment_booked. Returns true only for the
// transition that actually happened, so callers can publish LeadBooked once.
func (s *Service) MarkBooked(ctx context.Context, leadID uuid.UUID, at time.Time) (bool, error) {
	return s.store.MarkBooked(ctx, leadID, at)
}

// UpdateCallDetails stores age/state gathered during the call so whichever
// reconciliation path runs next sees the freshest prospect data.
func (s *Service) UpdateCallDetails(ctx context.Context, leadID uuid.UUID, age *int, state *string, at time.Time) error {
	return s.store.UpdateCallDetails(ctx, leadID, age, state, at)
}
