package appointments

import (
	"context"
	"strings"
	"testing"
	"time"

	"dialerdesk_backend/internal/events"
	"dialerdesk_backend/internal/leads/domain"
	"dialerdesk_backend/internal/leads/repository"
	"dialerdesk_backend/platform/apperr"
	"dialerdesk_backend/platform/logger"
	"dialerdesk_backend/platform/phone"

	"github.com/google/uuid"
)

type fakeStore struct {
	appts []*Appointment
}

func (f *fakeStore) Create(_ context.Context, appt *Appointment) (*Appointment, error) {
	stored := *appt
	stored.ID = uuid.New()
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	f.appts = append(f.appts, &stored)
	return &stored, nil
}

func (f *fakeStore) MergeBooking(_ context.Context, id uuid.UUID, merge BookingMerge) (*Appointment, error) {
	for _, a := range f.appts {
		if a.ID != id {
			continue
		}
		a.ScheduledAt = merge.ScheduledAt
		if a.LeadID == nil {
			a.LeadID = merge.LeadID
		}
		if merge.ProspectName != nil {
			a.ProspectName = *merge.ProspectName
		}
		if merge.ProspectPhone != nil {
			a.ProspectPhone = *merge.ProspectPhone
		}
		if merge.ProspectAge != nil {
			a.ProspectAge = merge.ProspectAge
		}
		if merge.ProspectState != nil {
			a.ProspectState = merge.ProspectState
		}
		a.Note = nil
		a.UpdatedAt = time.Now()
		return a, nil
	}
	return nil, apperr.NotFound("appointment not found")
}

func (f *fakeStore) AttachCallMetadata(_ context.Context, id uuid.UUID, callID *uuid.UUID, recordingKey *string) error {
	for _, a := range f.appts {
		if a.ID == id {
			if callID != nil {
				a.CallID = callID
			}
			if recordingKey != nil {
				a.CallRecordingKey = recordingKey
			}
			return nil
		}
	}
	return apperr.NotFound("appointment not found")
}

func (f *fakeStore) FindByLead(_ context.Context, leadID uuid.UUID) (*Appointment, error) {
	return f.newestWhere(func(a *Appointment) bool {
		return a.LeadID != nil && *a.LeadID == leadID
	})
}

func (f *fakeStore) FindBySuffix(_ context.Context, accountID uuid.UUID, suffix string) (*Appointment, error) {
	return f.newestWhere(func(a *Appointment) bool {
		return a.AccountID == accountID && a.ProspectPhoneSuffix == suffix
	})
}

func (f *fakeStore) FindByNameSubstring(_ context.Context, accountID uuid.UUID, fragment string, createdAfter time.Time) (*Appointment, error) {
	lower := strings.ToLower(fragment)
	return f.newestWhere(func(a *Appointment) bool {
		name := strings.ToLower(a.ProspectName)
		return a.AccountID == accountID && a.CreatedAt.After(createdAfter) &&
			(strings.Contains(name, lower) || strings.Contains(lower, name))
	})
}

func (f *fakeStore) FindNewest(_ context.Context, accountID uuid.UUID, createdAfter time.Time) (*Appointment, error) {
	return f.newestWhere(func(a *Appointment) bool {
		return a.AccountID == accountID && a.CreatedAt.After(createdAfter)
	})
}

func (f *fakeStore) GetByID(_ context.Context, accountID, id uuid.UUID) (*Appointment, error) {
	return f.newestWhere(func(a *Appointment) bool {
		return a.ID == id && a.AccountID == accountID
	})
}

func (f *fakeStore) ListByAccount(_ context.Context, accountID uuid.UUID, _, _ int) ([]Appointment, error) {
	var out []Appointment
	for _, a := range f.appts {
		if a.AccountID == accountID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateFlags(_ context.Context, accountID, id uuid.UUID, isSold, isNoShow *bool, status *string) error {
	for _, a := range f.appts {
		if a.ID == id && a.AccountID == accountID {
			if isSold != nil {
				a.IsSold = *isSold
			}
			if isNoShow != nil {
				a.IsNoShow = *isNoShow
			}
			if status != nil {
				a.Status = *status
			}
			return nil
		}
	}
	return apperr.NotFound("appointment not found")
}

func (f *fakeStore) newestWhere(match func(*Appointment) bool) (*Appointment, error) {
	var best *Appointment
	for _, a := range f.appts {
		if match(a) && (best == nil || a.CreatedAt.After(best.CreatedAt)) {
			best = a
		}
	}
	if best == nil {
		return nil, apperr.NotFound("appointment not found")
	}
	return best, nil
}

type fakeLeadDirectory struct {
	leads   map[string]*repository.Lead // keyed by phone suffix
	booked  map[uuid.UUID]bool
	details int
}

func newFakeLeadDirectory() *fakeLeadDirectory {
	return &fakeLeadDirectory{
		leads:  make(map[string]*repository.Lead),
		booked: make(map[uuid.UUID]bool),
	}
}

func (f *fakeLeadDirectory) add(lead *repository.Lead) {
	suffix, _ := phone.MatchSuffix(lead.Phone)
	f.leads[suffix] = lead
}

func (f *fakeLeadDirectory) Resolve(_ context.Context, rawPhone string, scope *uuid.UUID) (*repository.Lead, error) {
	suffix, ok := phone.MatchSuffix(rawPhone)
	if !ok {
		return nil, apperr.Unresolvable("phone number has fewer than ten digits and cannot be matched")
	}
	lead, found := f.leads[suffix]
	if !found || (scope != nil && lead.AccountID != *scope) {
		return nil, apperr.NotFound("lead not found")
	}
	return lead, nil
}

func (f *fakeLeadDirectory) Get(_ context.Context, id uuid.UUID) (*repository.Lead, error) {
	for _, lead := range f.leads {
		if lead.ID == id {
			return lead, nil
		}
	}
	return nil, apperr.NotFound("lead not found")
}

func (f *fakeLeadDirectory) MarkBooked(_ context.Context, leadID uuid.UUID, _ time.Time) (bool, error) {
	if f.booked[leadID] {
		return false, nil
	}
	f.booked[leadID] = true
	return true, nil
}

func (f *fakeLeadDirectory) UpdateCallDetails(_ context.Context, _ uuid.UUID, _ *int, _ *string, _ time.Time) error {
	f.details++
	return nil
}

type fakeLocker struct{}

func (fakeLocker) Lock(_ context.Context, _ string) (func(), error) {
	return func() {}, nil
}

type recordingBus struct {
	published []events.Event
}

func (b *recordingBus) Publish(_ context.Context, event events.Event)              { b.published = append(b.published, event) }
func (b *recordingBus) Subscribe(_ string, _ events.Handler)                       {}
func (b *recordingBus) PublishSync(_ context.Context, event events.Event) error {
	b.published = append(b.published, event)
	return nil
}

func (b *recordingBus) count(name string) int {
	n := 0
	for _, e := range b.published {
		if e.EventName() == name {
			n++
		}
	}
	return n
}

type reconcilerConfig struct{}

func (reconcilerConfig) GetMatchWindow() time.Duration     { return 5 * time.Minute }
func (reconcilerConfig) GetNameMatchWindow() time.Duration { return 10 * time.Minute }

type fixture struct {
	svc       *Service
	store     *fakeStore
	leads     *fakeLeadDirectory
	bus       *recordingBus
	accountID uuid.UUID
}

func setup() *fixture {
	f := &fixture{
		store:     &fakeStore{},
		leads:     newFakeLeadDirectory(),
		bus:       &recordingBus{},
		accountID: uuid.New(),
	}
	f.svc = New(f.store, f.leads, fakeLocker{}, f.bus, reconcilerConfig{}, logger.New("development"))
	return f
}

func (f *fixture) lead(name, phoneNumber string) *repository.Lead {
	lead := &repository.Lead{
		ID:        uuid.New(),
		AccountID: f.accountID,
		Name:      name,
		Phone:     phoneNumber,
		Status:    domain.StatusDialing,
		CreatedAt: time.Now(),
	}
	f.leads.add(lead)
	return lead
}

func booking(name, phoneNumber string, scheduledAt time.Time) BookingEvent {
	return BookingEvent{
		AttendeeName:  name,
		AttendeePhone: phoneNumber,
		ScheduledAt:   scheduledAt,
		OccurredAt:    time.Now(),
	}
}

func TestBookingFirstThenCallEnriches(t *testing.T) {
	f := setup()
	lead := f.lead("Maria Santos", "+12015550123")
	scheduledAt := time.Now().Add(48 * time.Hour)

	// Booking confirmation arrives before any call outcome.
	result, err := f.svc.ReconcileBooking(context.Background(), booking("Maria Santos", "(201) 555-0123", scheduledAt))
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if !result.Created {
		t.Fatal("nothing existed, the booking must create")
	}
	if result.LeadID == nil || *result.LeadID != lead.ID {
		t.Fatal("expected the lead resolved globally by phone")
	}
	if !f.leads.booked[lead.ID] {
		t.Fatal("expected the lead marked booked")
	}
	if f.bus.count("leads.booked") != 1 {
		t.Fatal("expected one LeadBooked event")
	}

	// The call side then only attaches metadata.
	callID := uuid.New()
	recording := "recordings/xyz.mp3"
	if err := f.svc.EnsureForBookedCall(context.Background(), f.accountID, lead.ID, &callID, &recording, time.Now()); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}

	if len(f.store.appts) != 1 {
		t.Fatalf("expected a single appointment, got %d", len(f.store.appts))
	}
	appt := f.store.appts[0]
	if appt.CallID == nil || *appt.CallID != callID {
		t.Fatal("expected call metadata attached to the booking-created appointment")
	}
	if !appt.ScheduledAt.Equal(scheduledAt) {
		t.Fatal("the booking time is authoritative and must stand")
	}
}

func TestCallFirstThenBookingOverwritesPlaceholder(t *testing.T) {
	f := setup()
	lead := f.lead("Maria Santos", "+12015550123")
	callID := uuid.New()
	callAt := time.Now()

	// Call outcome arrives first and opens a placeholder.
	if err := f.svc.EnsureForBookedCall(context.Background(), f.accountID, lead.ID, &callID, nil, callAt); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if len(f.store.appts) != 1 {
		t.Fatal("expected the placeholder created")
	}
	if f.store.appts[0].Note == nil || *f.store.appts[0].Note != PlaceholderNote {
		t.Fatal("expected the placeholder note set")
	}

	// Booking confirmation then merges into the same row.
	scheduledAt := time.Now().Add(72 * time.Hour)
	age := map[string]string{"Age": "52", "State": "FL"}
	event := booking("Maria Santos", "201-555-0123", scheduledAt)
	event.Responses = age

	result, err := f.svc.ReconcileBooking(context.Background(), event)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Created {
		t.Fatal("the placeholder must be updated in place, not duplicated")
	}
	if result.MatchedBy != MatchedByLeadID {
		t.Fatalf("expected the lead_id strategy, got %s", result.MatchedBy)
	}

	if len(f.store.appts) != 1 {
		t.Fatalf("expected a single appointment, got %d", len(f.store.appts))
	}
	appt := f.store.appts[0]
	if !appt.ScheduledAt.Equal(scheduledAt) {
		t.Fatal("the booking time must overwrite the provisional time")
	}
	if appt.Note != nil {
		t.Fatal("the placeholder note must be cleared")
	}
	if appt.CallID == nil || *appt.CallID != callID {
		t.Fatal("call metadata attached first must survive the merge")
	}
	if appt.ProspectAge == nil || *appt.ProspectAge != 52 {
		t.Fatal("expected age pulled from the responses map")
	}
	if appt.ProspectState == nil || *appt.ProspectState != "FL" {
		t.Fatal("expected state pulled from the responses map")
	}
}

func TestDuplicateBookingUpdatesSameRecord(t *testing.T) {
	f := setup()
	f.lead("Maria Santos", "+12015550123")

	first := time.Now().Add(24 * time.Hour)
	second := time.Now().Add(26 * time.Hour)

	if _, err := f.svc.ReconcileBooking(context.Background(), booking("Maria Santos", "+12015550123", first)); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	result, err := f.svc.ReconcileBooking(context.Background(), booking("Maria Santos", "+12015550123", second))
	if err != nil {
		t.Fatalf("second delivery failed: %v", err)
	}

	if result.Created {
		t.Fatal("the second delivery must not create a sibling")
	}
	if len(f.store.appts) != 1 {
		t.Fatalf("expected exactly one appointment, got %d", len(f.store.appts))
	}
	if !f.store.appts[0].ScheduledAt.Equal(second) {
		t.Fatal("the second delivery's scheduled time must win")
	}
	if f.bus.count("leads.booked") != 1 {
		t.Fatal("the sticky transition must publish LeadBooked exactly once")
	}
}

func TestBookingMatchesBySuffixWithoutLeadLink(t *testing.T) {
	f := setup()

	// An appointment exists with the prospect's number but no lead link, and
	// the attendee's number belongs to no lead.
	existing, _ := f.store.Create(context.Background(), &Appointment{
		AccountID:           f.accountID,
		ProspectName:        "Walk In",
		ProspectPhone:       "+12125550199",
		ProspectPhoneSuffix: "2125550199",
		ScheduledAt:         time.Now(),
		Status:              StatusScheduled,
	})

	event := booking("Walk In", "(212) 555-0199", time.Now().Add(24*time.Hour))
	event.AccountID = &f.accountID

	result, err := f.svc.ReconcileBooking(context.Background(), event)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.MatchedBy != MatchedByPhoneSuffix {
		t.Fatalf("expected the phone_suffix strategy, got %s", result.MatchedBy)
	}
	if result.Appointment.ID != existing.ID {
		t.Fatal("expected the existing appointment updated")
	}
}

func TestBookingMatchesByNameInsideWindow(t *testing.T) {
	f := setup()

	f.store.Create(context.Background(), &Appointment{
		AccountID:    f.accountID,
		ProspectName: "Robert Miller",
		ScheduledAt:  time.Now(),
		Status:       StatusScheduled,
	})

	// The booking payload renamed the contact and stripped the phone.
	event := booking("Robert Miller Jr", "", time.Now().Add(24*time.Hour))
	event.AccountID = &f.accountID

	result, err := f.svc.ReconcileBooking(context.Background(), event)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.MatchedBy != MatchedByNameWindow {
		t.Fatalf("expected the name window strategy, got %s", result.MatchedBy)
	}
}

func TestBookingFallsBackToNewestInWindow(t *testing.T) {
	f := setup()

	f.store.Create(context.Background(), &Appointment{
		AccountID:    f.accountID,
		ProspectName: "Someone Else",
		ScheduledAt:  time.Now(),
		Status:       StatusScheduled,
	})

	event := booking("Completely Different", "", time.Now().Add(24*time.Hour))
	event.AccountID = &f.accountID

	result, err := f.svc.ReconcileBooking(context.Background(), event)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.MatchedBy != MatchedByNewest {
		t.Fatalf("expected the recent window fallback, got %s", result.MatchedBy)
	}
}

func TestBookingWithNoLeadAndNoAccountIsUnresolvable(t *testing.T) {
	f := setup()

	_, err := f.svc.ReconcileBooking(context.Background(), booking("Nobody", "+13035550100", time.Now()))
	if err == nil {
		t.Fatal("expected an error")
	}
	if !apperr.Is(err, apperr.KindUnresolvable) {
		t.Fatalf("expected unresolvable, got %v", err)
	}
}

func TestBookingCreatesWhenNothingMatches(t *testing.T) {
	f := setup()
	lead := f.lead("Maria Santos", "+12015550123")

	result, err := f.svc.ReconcileBooking(context.Background(), booking("Maria Santos", "+12015550123", time.Now().Add(24*time.Hour)))
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if !result.Created || result.MatchedBy != MatchedByNone {
		t.Fatalf("expected a fresh appointment, got matched_by=%s created=%v", result.MatchedBy, result.Created)
	}
	appt := result.Appointment
	if appt.LeadID == nil || *appt.LeadID != lead.ID {
		t.Fatal("expected the new appointment linked to the lead")
	}
	if appt.ProspectPhoneSuffix != "2015550123" {
		t.Fatalf("expected the normalized suffix stored, got %s", appt.ProspectPhoneSuffix)
	}
	if f.bus.count("appointments.reconciled") != 1 {
		t.Fatal("expected one AppointmentReconciled event")
	}
}
