package service

import (
	"context"
	"sort"
	"testing"
	"time"

	"dialerdesk_backend/internal/leads/domain"
	"dialerdesk_backend/internal/leads/repository"
	"dialerdesk_backend/platform/apperr"
	"dialerdesk_backend/platform/logger"

	"github.com/google/uuid"
)

// fakeStore implements Store with the same conditional-update semantics as
// the SQL repository.
type fakeStore struct {
	leads map[uuid.UUID]*repository.Lead
}

func newFakeStore() *fakeStore {
	return &fakeStore{leads: make(map[uuid.UUID]*repository.Lead)}
}

func (f *fakeStore) add(lead *repository.Lead) {
	f.leads[lead.ID] = lead
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*repository.Lead, error) {
	lead, ok := f.leads[id]
	if !ok {
		return nil, apperr.NotFound("lead not found")
	}
	return lead, nil
}

func (f *fakeStore) FindBySuffix(_ context.Context, suffix string, accountID *uuid.UUID) (*repository.Lead, int, error) {
	var matches []*repository.Lead
	for _, lead := range f.leads {
		if lead.PhoneSuffix != suffix {
			continue
		}
		if accountID != nil && lead.AccountID != *accountID {
			continue
		}
		matches = append(matches, lead)
	}
	if len(matches) == 0 {
		return nil, 0, apperr.NotFound("lead not found")
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	return matches[0], len(matches), nil
}

func (f *fakeStore) ApplyDialAttempt(_ context.Context, leadID uuid.UUID, attempt repository.DialAttempt) (bool, error) {
	lead, ok := f.leads[leadID]
	if !ok || lead.Status == domain.StatusAppointmentBooked {
		return false, nil
	}
	lead.TimesDialed++
	lead.TotalCallsMade++
	if attempt.PickedUp {
		lead.TotalPickups++
	}
	lead.CallAttemptsToday++
	lead.LastCallOutcome = attempt.Outcome
	lead.Status = attempt.Status
	lead.LastDialAt = &attempt.At
	lead.LastCalledAt = &attempt.At
	lead.UpdatedAt = attempt.At
	return true, nil
}

func (f *fakeStore) MarkBooked(_ context.Context, leadID uuid.UUID, at time.Time) (bool, error) {
	lead, ok := f.leads[leadID]
	if !ok || lead.Status == domain.StatusAppointmentBooked {
		return false, nil
	}
	lead.Status = domain.StatusAppointmentBooked
	lead.UpdatedAt = at
	return true, nil
}

func (f *fakeStore) UpdateCallDetails(_ context.Context, leadID uuid.UUID, age *int, state *string, at time.Time) error {
	lead, ok := f.leads[leadID]
	if !ok {
		return apperr.NotFound("lead not found")
	}
	if age != nil {
		lead.Age = age
	}
	if state != nil {
		lead.State = state
	}
	lead.UpdatedAt = at
	return nil
}

func newTestService(store Store) *Service {
	return New(store, logger.New("development"))
}

func newLead(accountID uuid.UUID, suffix string, createdAt time.Time) *repository.Lead {
	return &repository.Lead{
		ID:          uuid.New(),
		AccountID:   accountID,
		Name:        "Test Lead",
		Phone:       "+1" + suffix,
		PhoneSuffix: suffix,
		Status:      domain.StatusNew,
		CreatedAt:   createdAt,
	}
}

func TestResolveMatchesAcrossFormats(t *testing.T) {
	store := newFakeStore()
	accountID := uuid.New()
	lead := newLead(accountID, "5551234567", time.Now())
	store.add(lead)

	svc := newTestService(store)

	for _, raw := range []string{"+15551234567", "(555) 123-4567", "555-123-4567"} {
		got, err := svc.Resolve(context.Background(), raw, &accountID)
		if err != nil {
			t.Fatalf("resolve %q failed: %v", raw, err)
		}
		if got.ID != lead.ID {
			t.Fatalf("resolve %q matched wrong lead", raw)
		}
	}
}

func TestResolveShortNumberIsUnresolvable(t *testing.T) {
	svc := newTestService(newFakeStore())

	_, err := svc.Resolve(context.Background(), "123-4567", nil)
	if !apperr.Is(err, apperr.KindUnresolvable) {
		t.Fatalf("expected unresolvable error, got %v", err)
	}
}

func TestResolveGlobalPicksMostRecent(t *testing.T) {
	store := newFakeStore()
	older := newLead(uuid.New(), "5550001111", time.Now().Add(-48*time.Hour))
	newer := newLead(uuid.New(), "5550001111", time.Now())
	store.add(older)
	store.add(newer)

	svc := newTestService(store)

	got, err := svc.Resolve(context.Background(), "+15550001111", nil)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got.ID != newer.ID {
		t.Fatal("global resolution should favor the most recently created lead")
	}
}

func TestResolveScopeRestrictsAccount(t *testing.T) {
	store := newFakeStore()
	accountA := uuid.New()
	accountB := uuid.New()
	leadA := newLead(accountA, "5559998888", time.Now().Add(-time.Hour))
	leadB := newLead(accountB, "5559998888", time.Now())
	store.add(leadA)
	store.add(leadB)

	svc := newTestService(store)

	got, err := svc.Resolve(context.Background(), "5559998888", &accountA)
	if err != nil {
		t.Fatalf("scoped resolve failed: %v", err)
	}
	if got.ID != leadA.ID {
		t.Fatal("scoped resolution must stay inside the given account")
	}
}

func TestApplyDialAttemptSkipsBookedLead(t *testing.T) {
	store := newFakeStore()
	lead := newLead(uuid.New(), "5551112222", time.Now())
	lead.Status = domain.StatusAppointmentBooked
	lead.TotalCallsMade = 3
	store.add(lead)

	svc := newTestService(store)

	outcome := domain.OutcomeBooked
	applied, err := svc.ApplyDialAttempt(context.Background(), lead.ID, true, &outcome, time.Now())
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if applied {
		t.Fatal("attempt against a booked lead must not apply")
	}
	if lead.TotalCallsMade != 3 {
		t.Fatalf("counters must not move on a booked lead, got %d", lead.TotalCallsMade)
	}
}

func TestApplyDialAttemptAdvancesCounters(t *testing.T) {
	store := newFakeStore()
	lead := newLead(uuid.New(), "5553334444", time.Now())
	store.add(lead)

	svc := newTestService(store)

	outcome := domain.OutcomeBooked
	applied, err := svc.ApplyDialAttempt(context.Background(), lead.ID, true, &outcome, time.Now())
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if !applied {
		t.Fatal("expected attempt to apply")
	}
	if lead.TotalCallsMade != 1 || lead.TotalPickups != 1 || lead.CallAttemptsToday != 1 {
		t.Fatalf("unexpected counters: calls=%d pickups=%d today=%d",
			lead.TotalCallsMade, lead.TotalPickups, lead.CallAttemptsToday)
	}
	if lead.Status != domain.StatusAppointmentBooked {
		t.Fatalf("expected appointment_booked, got %s", lead.Status)
	}

	// Redelivery of the same outcome must be a no-op now.
	applied, err = svc.ApplyDialAttempt(context.Background(), lead.ID, true, &outcome, time.Now())
	if err != nil {
		t.Fatalf("second apply failed: %v", err)
	}
	if applied || lead.TotalCallsMade != 1 {
		t.Fatal("duplicate booked outcome must not re-apply counters")
	}
}

func TestMarkBookedIsSticky(t *testing.T) {
	store := newFakeStore()
	lead := newLead(uuid.New(), "5556667777", time.Now())
	store.add(lead)

	svc := newTestService(store)

	first, err := svc.MarkBooked(context.Background(), lead.ID, time.Now())
	if err != nil {
		t.Fatalf("mark booked failed: %v", err)
	}
	second, err := svc.MarkBooked(context.Background(), lead.ID, time.Now())
	if err != nil {
		t.Fatalf("second mark booked failed: %v", err)
	}

	if !first || second {
		t.Fatalf("expected exactly one transition, got first=%v second=%v", first, second)
	}
}
