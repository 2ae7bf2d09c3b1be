// Package dashboard provides the JWT-protected read API for the operator
// console: balance, ledger history, appointments, call history, and the
// daily profit and revenue aggregates.
package dashboard

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"dialerdesk_backend/internal/appointments"
	"dialerdesk_backend/internal/billing"
	"dialerdesk_backend/internal/calls"
	"dialerdesk_backend/internal/profit"
	"dialerdesk_backend/internal/recordings"
	"dialerdesk_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const dayFormat = "2006-01-02"

// BalanceReader is the slice of the billing service the dashboard uses.
type BalanceReader interface {
	GetBalance(ctx context.Context, accountID uuid.UUID) (*billing.CallBalance, error)
	ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]billing.Transaction, error)
}

// AppointmentReader is the slice of the appointments service this module uses.
type AppointmentReader interface {
	Get(ctx context.Context, accountID, id uuid.UUID) (*appointments.Appointment, error)
	List(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]appointments.Appointment, error)
	UpdateFlags(ctx context.Context, accountID, id uuid.UUID, isSold, isNoShow *bool, status *string) error
}

// CallReader is the slice of the calls service this module uses.
type CallReader interface {
	Get(ctx context.Context, accountID, id uuid.UUID) (*calls.Call, error)
	List(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]calls.Call, error)
}

// StatsReader is the slice of the profit service this module uses.
type StatsReader interface {
	ListProfit(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]profit.DailyProfit, error)
	ListRevenue(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]profit.DailyRevenue, error)
}

// Handler serves the dashboard read endpoints.
type Handler struct {
	billing      BalanceReader
	appointments AppointmentReader
	calls        CallReader
	stats        StatsReader
	archive      recordings.Archive
}

// NewHandler creates a new dashboard handler. A nil archive disables the
// recording playback endpoint.
func NewHandler(billingReader BalanceReader, appointmentReader AppointmentReader, callReader CallReader, statsReader StatsReader, archive recordings.Archive) *Handler {
	return &Handler{
		billing:      billingReader,
		appointments: appointmentReader,
		calls:        callReader,
		stats:        statsReader,
		archive:      archive,
	}
}

// HandleGetBalance returns the account's current balance and refill settings.
// GET /api/v1/billing/balance
func (h *Handler) HandleGetBalance(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	balance, err := h.billing.GetBalance(c.Request.Context(), accountID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, balance)
}

// HandleListTransactions returns the account's ledger history page.
// GET /api/v1/billing/transactions
func (h *Handler) HandleListTransactions(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	limit, offset := pagination(c)
	transactions, err := h.billing.ListTransactions(c.Request.Context(), accountID, limit, offset)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transactions)
}

// HandleListAppointments returns the account's appointments page.
// GET /api/v1/appointments
func (h *Handler) HandleListAppointments(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	limit, offset := pagination(c)
	appts, err := h.appointments.List(c.Request.Context(), accountID, limit, offset)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, appts)
}

// AppointmentFlagsRequest sets the post-meeting markers.
type AppointmentFlagsRequest struct {
	IsSold   *bool   `json:"isSold"`
	IsNoShow *bool   `json:"isNoShow"`
	Status   *string `json:"status" validate:"omitempty,oneof=scheduled completed cancelled"`
}

// HandleUpdateAppointment updates the sold/no-show markers.
// PATCH /api/v1/appointments/:appointmentId
func (h *Handler) HandleUpdateAppointment(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("appointmentId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid appointment ID", nil)
		return
	}

	var req AppointmentFlagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	if err := h.appointments.UpdateFlags(c.Request.Context(), accountID, id, req.IsSold, req.IsNoShow, req.Status); httpkit.HandleError(c, err) {
		return
	}

	appt, err := h.appointments.Get(c.Request.Context(), accountID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, appt)
}

// HandleListCalls returns the account's call history page.
// GET /api/v1/calls
func (h *Handler) HandleListCalls(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	limit, offset := pagination(c)
	history, err := h.calls.List(c.Request.Context(), accountID, limit, offset)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, history)
}

// HandleGetRecording presigns a playback URL for one call's recording.
// GET /api/v1/calls/:callId/recording
func (h *Handler) HandleGetRecording(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	if h.archive == nil {
		httpkit.Error(c, http.StatusNotImplemented, "recording storage is not configured", nil)
		return
	}

	id, err := uuid.Parse(c.Param("callId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid call ID", nil)
		return
	}

	call, err := h.calls.Get(c.Request.Context(), accountID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	if call.RecordingKey == nil {
		httpkit.Error(c, http.StatusNotFound, "call has no recording", nil)
		return
	}

	playback, err := h.archive.PresignPlayback(c.Request.Context(), *call.RecordingKey)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, playback)
}

// HandleProfitStats returns the daily profit rows for a day range.
// GET /api/v1/stats/profit?from=2026-08-01&to=2026-08-31
func (h *Handler) HandleProfitStats(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	from, to, ok := dayRange(c)
	if !ok {
		return
	}

	rows, err := h.stats.ListProfit(c.Request.Context(), accountID, from, to)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, rows)
}

// HandleRevenueStats returns the daily revenue rows for a day range.
// GET /api/v1/stats/revenue?from=2026-08-01&to=2026-08-31
func (h *Handler) HandleRevenueStats(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	from, to, ok := dayRange(c)
	if !ok {
		return
	}

	rows, err := h.stats.ListRevenue(c.Request.Context(), accountID, from, to)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, rows)
}

func requireAccount(c *gin.Context) (uuid.UUID, bool) {
	accountID, ok := httpkit.GetAccountID(c)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, "no account context", nil)
		return uuid.Nil, false
	}
	return accountID, true
}

// dayRange parses from/to query days, defaulting to the last 30 days.
func dayRange(c *gin.Context) (time.Time, time.Time, bool) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -30)
	to := now

	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(dayFormat, raw)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid from date, expected YYYY-MM-DD", nil)
			return time.Time{}, time.Time{}, false
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(dayFormat, raw)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid to date, expected YYYY-MM-DD", nil)
			return time.Time{}, time.Time{}, false
		}
		to = parsed
	}

	if to.Before(from) {
		httpkit.Error(c, http.StatusBadRequest, "to date precedes from date", nil)
		return time.Time{}, time.Time{}, false
	}

	return from, to, true
}

func pagination(c *gin.Context) (int, int) {
	return queryInt(c, "limit", 50), queryInt(c, "offset", 0)
}

func queryInt(c *gin.Context, name string, fallback int) int {
	value := c.Query(name)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
