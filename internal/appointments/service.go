package appointments

import (
	"context"
	"strconv"
	"strings"
	"time"

	"dialerdesk_backend/internal/events"
	"dialerdesk_backend/internal/leads/repository"
	"dialerdesk_backend/platform/apperr"
	"dialerdesk_backend/platform/config"
	"dialerdesk_backend/platform/logger"
	"dialerdesk_backend/platform/phone"

	"github.com/google/uuid"
)

// Matching strategies, in the order they are tried.
const (
	MatchedByLeadID      = "lead_id"
	MatchedByPhoneSuffix = "phone_suffix"
	MatchedByNameWindow  = "name_window"
	MatchedByNewest      = "recent_window"
	MatchedByNone        = "none"
)

// BookingEvent is a booking-confirmation event after transport decoding.
// AccountID is set when the delivery was authenticated with an account-scoped
// key; the booking provider itself does not know the owning account.
type BookingEvent struct {
	AccountID     *uuid.UUID
	AttendeeName  string
	AttendeePhone string
	ScheduledAt   time.Time
	Responses     map[string]string
	OccurredAt    time.Time
}

// ReconcileResult reports how a booking event was merged.
type ReconcileResult struct {
	Appointment *Appointment
	MatchedBy   string
	Created     bool
	LeadID      *uuid.UUID
}

// Store is the persistence surface the reconciler needs. Satisfied by Repository.
type Store interface {
	Create(ctx context.Context, appt *Appointment) (*Appointment, error)
	MergeBooking(ctx context.Context, id uuid.UUID, merge BookingMerge) (*Appointment, error)
	AttachCallMetadata(ctx context.Context, id uuid.UUID, callID *uuid.UUID, recordingKey *string) error
	FindByLead(ctx context.Context, leadID uuid.UUID) (*Appointment, error)
	FindBySuffix(ctx context.Context, accountID uuid.UUID, suffix string) (*Appointment, error)
	FindByNameSubstring(ctx context.Context, accountID uuid.UUID, fragment string, createdAfter time.Time) (*Appointment, error)
	FindNewest(ctx context.Context, accountID uuid.UUID, createdAfter time.Time) (*Appointment, error)
	GetByID(ctx context.Context, accountID, id uuid.UUID) (*Appointment, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]Appointment, error)
	UpdateFlags(ctx context.Context, accountID, id uuid.UUID, isSold, isNoShow *bool, status *string) error
}

// LeadDirectory is the slice of the leads service the reconciler uses.
type LeadDirectory interface {
	Resolve(ctx context.Context, rawPhone string, scope *uuid.UUID) (*repository.Lead, error)
	Get(ctx context.Context, id uuid.UUID) (*repository.Lead, error)
	MarkBooked(ctx context.Context, leadID uuid.UUID, at time.Time) (bool, error)
	UpdateCallDetails(ctx context.Context, leadID uuid.UUID, age *int, state *string, at time.Time) error
}

// Locker serializes lifecycle writes per lead. Satisfied by keymutex.Mutex.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Service is the appointment reconciler. Booking confirmations and call
// outcomes arrive on independent streams in arbitrary order; whichever side
// arrives first creates the appointment and the other enriches it.
type Service struct {
	store Store
	leads LeadDirectory
	locks Locker
	bus   events.Bus
	cfg   config.ReconcilerConfig
	log   *logger.Logger
	clock func() time.Time
}

// New creates a new appointments service.
func New(store Store, leads LeadDirectory, locks Locker, bus events.Bus, cfg config.ReconcilerConfig, log *logger.Logger) *Service {
	return &Service{
		store: store,
		leads: leads,
		locks: locks,
		bus:   bus,
		cfg:   cfg,
		log:   log,
		clock: time.Now,
	}
}

// ReconcileBooking merges one booking-confirmation event into the appointment
// book. The booking time is authoritative: a matched appointment has its
// scheduled_at overwritten, a miss creates a fresh row. A second delivery for
// the same lead inside the match window lands on the same row.
func (s *Service) ReconcileBooking(ctx context.Context, event BookingEvent) (*ReconcileResult, error) {
	lead, err := s.resolveLead(ctx, event)
	if err != nil {
		return nil, err
	}

	accountID, ok := s.accountFor(lead, event)
	if !ok {
		return nil, apperr.Unresolvable("booking event matches no lead and carries no account")
	}

	if lead != nil {
		unlock, err := s.locks.Lock(ctx, "lead:"+lead.ID.String())
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	age, state := prospectDetails(event.Responses)

	match, matchedBy, err := s.findMatch(ctx, accountID, lead, event)
	if err != nil {
		return nil, err
	}

	result := &ReconcileResult{MatchedBy: matchedBy}
	if lead != nil {
		result.LeadID = &lead.ID
	}

	if match != nil {
		merge := BookingMerge{
			ScheduledAt:   event.ScheduledAt,
			ProspectAge:   age,
			ProspectState: state,
		}
		if lead != nil {
			merge.LeadID = &lead.ID
		}
		if event.AttendeeName != "" {
			merge.ProspectName = &event.AttendeeName
		}
		if normalized := phone.NormalizeE164(event.AttendeePhone); normalized != "" {
			merge.ProspectPhone = &normalized
		}

		appt, err := s.store.MergeBooking(ctx, match.ID, merge)
		if err != nil {
			return nil, err
		}
		result.Appointment = appt
	} else {
		appt, err := s.store.Create(ctx, s.newFromBooking(accountID, lead, event, age, state))
		if err != nil {
			return nil, err
		}
		result.Appointment = appt
		result.Created = true
	}

	if lead != nil {
		s.advanceLead(ctx, lead, age, state, event.OccurredAt)
	}

	s.bus.Publish(ctx, events.AppointmentReconciled{
		BaseEvent:     events.NewBaseEvent(),
		AppointmentID: result.Appointment.ID,
		AccountID:     accountID,
		LeadID:        result.LeadID,
		MatchedBy:     result.MatchedBy,
		Created:       result.Created,
		ScheduledAt:   event.ScheduledAt,
	})

	return result, nil
}

// EnsureForBookedCall is the call-outcome side of the protocol. If the
// booking confirmation already created the appointment, only the call
// metadata is attached; otherwise a placeholder is opened whose provisional
// time stands until (and unless) the booking event arrives.
func (s *Service) EnsureForBookedCall(ctx context.Context, accountID, leadID uuid.UUID, callID *uuid.UUID, recordingKey *string, at time.Time) error {
	existing, err := s.store.FindByLead(ctx, leadID)
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return err
	}

	if existing != nil {
		return s.store.AttachCallMetadata(ctx, existing.ID, callID, recordingKey)
	}

	lead, err := s.leads.Get(ctx, leadID)
	if err != nil {
		return err
	}

	note := PlaceholderNote
	suffix, _ := phone.MatchSuffix(lead.Phone)
	_, err = s.store.Create(ctx, &Appointment{
		AccountID:           accountID,
		LeadID:              &leadID,
		ProspectName:        lead.Name,
		ProspectPhone:       lead.Phone,
		ProspectPhoneSuffix: suffix,
		ProspectAge:         lead.Age,
		ProspectState:       lead.State,
		ScheduledAt:         at,
		Status:              StatusScheduled,
		Note:                &note,
		CallID:              callID,
		CallRecordingKey:    recordingKey,
	})
	return err
}

// Get returns one appointment scoped to the account.
func (s *Service) Get(ctx context.Context, accountID, id uuid.UUID) (*Appointment, error) {
	return s.store.GetByID(ctx, accountID, id)
}

// List returns the account's appointments page.
func (s *Service) List(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return s.store.ListByAccount(ctx, accountID, limit, offset)
}

// UpdateFlags sets the sold/no-show markers from the dashboard.
func (s *Service) UpdateFlags(ctx context.Context, accountID, id uuid.UUID, isSold, isNoShow *bool, status *string) error {
	return s.store.UpdateFlags(ctx, accountID, id, isSold, isNoShow, status)
}

func (s *Service) resolveLead(ctx context.Context, event BookingEvent) (*repository.Lead, error) {
	lead, err := s.leads.Resolve(ctx, event.AttendeePhone, event.AccountID)
	if err == nil {
		return lead, nil
	}
	if apperr.Is(err, apperr.KindNotFound) || apperr.Is(err, apperr.KindUnresolvable) {
		s.log.Warn("booking event resolved no lead",
			"attendee", event.AttendeeName, "has_account", event.AccountID != nil)
		return nil, nil
	}
	return nil, err
}

func (s *Service) accountFor(lead *repository.Lead, event BookingEvent) (uuid.UUID, bool) {
	if lead != nil {
		return lead.AccountID, true
	}
	if event.AccountID != nil {
		return *event.AccountID, true
	}
	return uuid.Nil, false
}

// findMatch walks the matching strategies in order until one hits.
func (s *Service) findMatch(ctx context.Context, accountID uuid.UUID, lead *repository.Lead, event BookingEvent) (*Appointment, string, error) {
	now := s.clock()

	if lead != nil {
		appt, err := s.store.FindByLead(ctx, lead.ID)
		if err == nil {
			return appt, MatchedByLeadID, nil
		}
		if !apperr.Is(err, apperr.KindNotFound) {
			return nil, "", err
		}
	}

	if suffix, ok := phone.MatchSuffix(event.AttendeePhone); ok {
		appt, err := s.store.FindBySuffix(ctx, accountID, suffix)
		if err == nil {
			return appt, MatchedByPhoneSuffix, nil
		}
		if !apperr.Is(err, apperr.KindNotFound) {
			return nil, "", err
		}
	}

	if name := strings.TrimSpace(event.AttendeeName); name != "" {
		appt, err := s.store.FindByNameSubstring(ctx, accountID, name, now.Add(-s.cfg.GetNameMatchWindow()))
		if err == nil {
			return appt, MatchedByNameWindow, nil
		}
		if !apperr.Is(err, apperr.KindNotFound) {
			return nil, "", err
		}
	}

	appt, err := s.store.FindNewest(ctx, accountID, now.Add(-s.cfg.GetMatchWindow()))
	if err == nil {
		return appt, MatchedByNewest, nil
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return nil, "", err
	}

	return nil, MatchedByNone, nil
}

func (s *Service) newFromBooking(accountID uuid.UUID, lead *repository.Lead, event BookingEvent, age *int, state *string) *Appointment {
	appt := &Appointment{
		AccountID:     accountID,
		ProspectName:  event.AttendeeName,
		ProspectPhone: phone.NormalizeE164(event.AttendeePhone),
		ScheduledAt:   event.ScheduledAt,
		Status:        StatusScheduled,
		ProspectAge:   age,
		ProspectState: state,
	}
	if suffix, ok := phone.MatchSuffix(event.AttendeePhone); ok {
		appt.ProspectPhoneSuffix = suffix
	}
	if lead != nil {
		appt.LeadID = &lead.ID
		if appt.ProspectName == "" {
			appt.ProspectName = lead.Name
		}
	}
	return appt
}

// advanceLead marks the lead booked and stores fresh prospect details. Both
// are best-effort: the appointment merge already happened and must stand.
func (s *Service) advanceLead(ctx context.Context, lead *repository.Lead, age *int, state *string, at time.Time) {
	ctx = context.WithoutCancel(ctx)

	transitioned, err := s.leads.MarkBooked(ctx, lead.ID, at)
	if err != nil {
		s.log.Error("failed to mark lead booked", "lead_id", lead.ID, "error", err)
	} else if transitioned {
		s.bus.Publish(ctx, events.LeadBooked{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    lead.ID,
			AccountID: lead.AccountID,
		})
	}

	if age != nil || state != nil {
		if err := s.leads.UpdateCallDetails(ctx, lead.ID, age, state, at); err != nil {
			s.log.Error("failed to store booking details on lead", "lead_id", lead.ID, "error", err)
		}
	}
}

// prospectDetails pulls age and state out of the booking form responses.
func prospectDetails(responses map[string]string) (*int, *string) {
	var age *int
	var state *string

	for key, value := range responses {
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "age", "your age":
			if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && parsed > 0 {
				age = &parsed
			}
		case "state", "your state":
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				state = &trimmed
			}
		}
	}

	return age, state
}
