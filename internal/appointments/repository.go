// Package appointments reconciles booking confirmations and call outcomes
// into a single appointment record per lead.
package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dialerdesk_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Appointment statuses.
const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// PlaceholderNote marks an appointment opened by the call side before the
// booking confirmation has arrived. Cleared when the booking merges in.
const PlaceholderNote = "awaiting booking confirmation"

// Appointment is a scheduled meeting with a prospect. The lead reference is
// weak: the row survives if the lead is later deleted. Prospect fields are a
// snapshot taken at merge time, not a live join.
type Appointment struct {
	ID                  uuid.UUID  `db:"id"`
	AccountID           uuid.UUID  `db:"account_id"`
	LeadID              *uuid.UUID `db:"lead_id"`
	ProspectName        string     `db:"prospect_name"`
	ProspectPhone       string     `db:"prospect_phone"`
	ProspectPhoneSuffix string     `db:"prospect_phone_suffix"`
	ProspectAge         *int       `db:"prospect_age"`
	ProspectState       *string    `db:"prospect_state"`
	ScheduledAt         time.Time  `db:"scheduled_at"`
	Status              string     `db:"status"`
	IsSold              bool       `db:"is_sold"`
	IsNoShow            bool       `db:"is_no_show"`
	Note                *string    `db:"note"`
	CallID              *uuid.UUID `db:"call_id"`
	CallRecordingKey    *string    `db:"call_recording_key"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

// BookingMerge carries the authoritative booking fields applied to a matched
// appointment. Nil prospect fields leave the existing snapshot untouched.
type BookingMerge struct {
	ScheduledAt   time.Time
	LeadID        *uuid.UUID
	ProspectName  *string
	ProspectPhone *string
	ProspectAge   *int
	ProspectState *string
}

const appointmentNotFoundMsg = "appointment not found"

const appointmentColumns = `id, account_id, lead_id, prospect_name, prospect_phone,
	prospect_phone_suffix, prospect_age, prospect_state, scheduled_at, status,
	is_sold, is_no_show, note, call_id, call_recording_key, created_at, updated_at`

// Repository provides database operations for appointments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new appointments repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new appointment and returns it with generated fields.
func (r *Repository) Create(ctx context.Context, appt *Appointment) (*Appointment, error) {
	query := `
		INSERT INTO appointments (account_id, lead_id, prospect_name, prospect_phone,
			prospect_phone_suffix, prospect_age, prospect_state, scheduled_at, status,
			note, call_id, call_recording_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + appointmentColumns

	created, err := scanAppointment(r.pool.QueryRow(ctx, query,
		appt.AccountID, appt.LeadID, appt.ProspectName, appt.ProspectPhone,
		appt.ProspectPhoneSuffix, appt.ProspectAge, appt.ProspectState,
		appt.ScheduledAt, appt.Status, appt.Note, appt.CallID, appt.CallRecordingKey,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create appointment: %w", err)
	}
	return created, nil
}

// MergeBooking overwrites the matched appointment with the authoritative
// booking time, fills the prospect snapshot, links the lead if it was not
// already linked, and clears the placeholder note.
func (r *Repository) MergeBooking(ctx context.Context, id uuid.UUID, merge BookingMerge) (*Appointment, error) {
	query := `
		UPDATE appointments
		SET scheduled_at = $2,
			lead_id = COALESCE(lead_id, $3),
			prospect_name = COALESCE($4, prospect_name),
			prospect_phone = COALESCE($5, prospect_phone),
			prospect_age = COALESCE($6, prospect_age),
			prospect_state = COALESCE($7, prospect_state),
			note = NULL,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + appointmentColumns

	appt, err := scanAppointment(r.pool.QueryRow(ctx, query,
		id, merge.ScheduledAt, merge.LeadID,
		merge.ProspectName, merge.ProspectPhone, merge.ProspectAge, merge.ProspectState,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(appointmentNotFoundMsg)
		}
		return nil, fmt.Errorf("failed to merge booking: %w", err)
	}
	return appt, nil
}

// AttachCallMetadata links the call record and its recording to an
// appointment that the booking side created first.
func (r *Repository) AttachCallMetadata(ctx context.Context, id uuid.UUID, callID *uuid.UUID, recordingKey *string) error {
	query := `
		UPDATE appointments
		SET call_id = COALESCE($2, call_id),
			call_recording_key = COALESCE($3, call_recording_key),
			updated_at = NOW()
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, callID, recordingKey)
	if err != nil {
		return fmt.Errorf("failed to attach call metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(appointmentNotFoundMsg)
	}
	return nil
}

// FindByLead returns the most recent appointment linked to the lead.
func (r *Repository) FindByLead(ctx context.Context, leadID uuid.UUID) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE lead_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	return r.findOne(ctx, query, leadID)
}

// FindBySuffix returns the account's most recent appointment whose prospect
// phone ends with the given suffix.
func (r *Repository) FindBySuffix(ctx context.Context, accountID uuid.UUID, suffix string) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE account_id = $1 AND prospect_phone_suffix = $2
		ORDER BY created_at DESC
		LIMIT 1`

	return r.findOne(ctx, query, accountID, suffix)
}

// FindByNameSubstring returns the account's most recent appointment created
// after the cutoff whose prospect name contains the fragment, case folded.
func (r *Repository) FindByNameSubstring(ctx context.Context, accountID uuid.UUID, fragment string, createdAfter time.Time) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE account_id = $1
			AND created_at > $3
			AND (prospect_name ILIKE '%' || $2 || '%' OR $2 ILIKE '%' || prospect_name || '%')
		ORDER BY created_at DESC
		LIMIT 1`

	return r.findOne(ctx, query, accountID, fragment, createdAfter)
}

// FindNewest returns the account's single most recent appointment created
// after the cutoff.
func (r *Repository) FindNewest(ctx context.Context, accountID uuid.UUID, createdAfter time.Time) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE account_id = $1 AND created_at > $2
		ORDER BY created_at DESC
		LIMIT 1`

	return r.findOne(ctx, query, accountID, createdAfter)
}

// GetByID retrieves an appointment scoped to the given account.
func (r *Repository) GetByID(ctx context.Context, accountID, id uuid.UUID) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE id = $1 AND account_id = $2`

	return r.findOne(ctx, query, id, accountID)
}

// ListByAccount returns the account's appointments ordered by scheduled time.
func (r *Repository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE account_id = $1
		ORDER BY scheduled_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	defer rows.Close()

	var appts []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		appts = append(appts, *appt)
	}
	return appts, rows.Err()
}

// UpdateFlags sets the sold/no-show markers from the dashboard.
func (r *Repository) UpdateFlags(ctx context.Context, accountID, id uuid.UUID, isSold, isNoShow *bool, status *string) error {
	query := `
		UPDATE appointments
		SET is_sold = COALESCE($3, is_sold),
			is_no_show = COALESCE($4, is_no_show),
			status = COALESCE($5, status),
			updated_at = NOW()
		WHERE id = $1 AND account_id = $2`

	tag, err := r.pool.Exec(ctx, query, id, accountID, isSold, isNoShow, status)
	if err != nil {
		return fmt.Errorf("failed to update appointment flags: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(appointmentNotFoundMsg)
	}
	return nil
}

func (r *Repository) findOne(ctx context.Context, query string, args ...any) (*Appointment, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(appointmentNotFoundMsg)
		}
		return nil, fmt.Errorf("failed to query appointment: %w", err)
	}
	return appt, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID, &a.AccountID, &a.LeadID, &a.ProspectName, &a.ProspectPhone,
		&a.ProspectPhoneSuffix, &a.ProspectAge, &a.ProspectState,
		&a.ScheduledAt, &a.Status, &a.IsSold, &a.IsNoShow, &a.Note,
		&a.CallID, &a.CallRecordingKey, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
