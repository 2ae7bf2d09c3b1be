package webhook

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"dialerdesk_backend/internal/appointments"
	"dialerdesk_backend/internal/calls"
	"dialerdesk_backend/platform/httpkit"
	"dialerdesk_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	errInvalidRequest = "invalid request body"
	errValidation     = "validation error"
	errNoAccountKey   = "this endpoint requires an account-scoped API key"
)

// Handler handles webhook HTTP requests.
type Handler struct {
	service *Service
	repo    *Repository
	val     *validator.Validator
}

// NewHandler creates a new webhook handler.
func NewHandler(service *Service, repo *Repository, val *validator.Validator) *Handler {
	return &Handler{service: service, repo: repo, val: val}
}

// ---- Inbound deliveries (API-key authenticated) ----

// CallOutcomeRequest is the telephony provider's call-outcome payload.
type CallOutcomeRequest struct {
	Phone           string     `json:"phone" validate:"required,max=32"`
	DurationSeconds int        `json:"durationSeconds" validate:"min=0"`
	Answered        bool       `json:"answered"`
	Outcome         *string    `json:"outcome" validate:"omitempty,oneof=booked not_interested callback live_transfer"`
	AgentName       *string    `json:"agentName" validate:"omitempty,max=200"`
	RecordingKey    *string    `json:"recordingKey" validate:"omitempty,max=500"`
	Age             *int       `json:"age" validate:"omitempty,min=1,max=120"`
	State           *string    `json:"state" validate:"omitempty,max=50"`
	OccurredAt      *time.Time `json:"occurredAt"`
}

// CallOutcomeResponse acknowledges a processed call-outcome delivery.
type CallOutcomeResponse struct {
	CallID      *uuid.UUID `json:"callId,omitempty"`
	LeadID      *uuid.UUID `json:"leadId,omitempty"`
	ShortCall   bool       `json:"shortCall"`
	ChargeCents int64      `json:"chargeCents"`
}

// HandleCallOutcome processes an inbound call-outcome event.
// POST /api/v1/webhook/calls
func (h *Handler) HandleCallOutcome(c *gin.Context) {
	accountID := keyAccountID(c)
	if accountID == nil {
		httpkit.Error(c, http.StatusForbidden, errNoAccountKey, nil)
		return
	}

	var req CallOutcomeRequest
	raw, ok := h.readAndValidate(c, &req)
	if !ok {
		return
	}

	occurredAt := time.Now()
	if req.OccurredAt != nil {
		occurredAt = *req.OccurredAt
	}

	result, err := h.service.IngestCallOutcome(c.Request.Context(), keyID(c), raw, calls.OutcomeEvent{
		AccountID:       *accountID,
		Phone:           req.Phone,
		DurationSeconds: req.DurationSeconds,
		Answered:        req.Answered,
		Outcome:         req.Outcome,
		AgentName:       req.AgentName,
		RecordingKey:    req.RecordingKey,
		Age:             req.Age,
		State:           req.State,
		OccurredAt:      occurredAt,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, CallOutcomeResponse{
		CallID:      result.CallID,
		LeadID:      result.LeadID,
		ShortCall:   result.ShortCall,
		ChargeCents: result.ChargeCents,
	})
}

// BookingConfirmationRequest is the booking provider's confirmation payload.
type BookingConfirmationRequest struct {
	AttendeeName  string            `json:"attendeeName" validate:"max=200"`
	AttendeePhone string            `json:"attendeePhone" validate:"max=32"`
	ScheduledAt   time.Time         `json:"scheduledAt" validate:"required"`
	Responses     map[string]string `json:"responses" validate:"omitempty,max=50"`
	OccurredAt    *time.Time        `json:"occurredAt"`
}

// BookingConfirmationResponse acknowledges a reconciled booking delivery.
type BookingConfirmationResponse struct {
	AppointmentID uuid.UUID  `json:"appointmentId"`
	LeadID        *uuid.UUID `json:"leadId,omitempty"`
	MatchedBy     string     `json:"matchedBy"`
	Created       bool       `json:"created"`
}

// HandleBookingConfirmation reconciles an inbound booking confirmation.
// POST /api/v1/webhook/bookings
func (h *Handler) HandleBookingConfirmation(c *gin.Context) {
	var req BookingConfirmationRequest
	raw, ok := h.readAndValidate(c, &req)
	if !ok {
		return
	}

	occurredAt := time.Now()
	if req.OccurredAt != nil {
		occurredAt = *req.OccurredAt
	}

	scope := keyAccountID(c)
	result, err := h.service.IngestBooking(c.Request.Context(), keyID(c), scope, raw, appointments.BookingEvent{
		AccountID:     scope,
		AttendeeName:  req.AttendeeName,
		AttendeePhone: req.AttendeePhone,
		ScheduledAt:   req.ScheduledAt,
		Responses:     req.Responses,
		OccurredAt:    occurredAt,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, BookingConfirmationResponse{
		AppointmentID: result.Appointment.ID,
		LeadID:        result.LeadID,
		MatchedBy:     result.MatchedBy,
		Created:       result.Created,
	})
}

// RefillCallbackRequest is the payment processor's confirmation payload.
type RefillCallbackRequest struct {
	AccountID   uuid.UUID `json:"accountId" validate:"required"`
	AmountCents int64     `json:"amountCents" validate:"required,min=1"`
	Reference   string    `json:"reference" validate:"required,max=200"`
}

// HandleRefillCallback credits a processor-confirmed replenishment.
// POST /api/v1/webhook/refills
func (h *Handler) HandleRefillCallback(c *gin.Context) {
	var req RefillCallbackRequest
	raw, ok := h.readAndValidate(c, &req)
	if !ok {
		return
	}

	// An account-scoped key may only credit its own account.
	if scope := keyAccountID(c); scope != nil && *scope != req.AccountID {
		httpkit.Error(c, http.StatusForbidden, "API key not valid for this account", nil)
		return
	}

	entry, err := h.service.IngestRefill(c.Request.Context(), keyID(c), raw, req.AccountID, req.AmountCents, req.Reference)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{
		"balanceCents": entry.BalanceAfterCents,
	})
}

// ---- API key management (JWT authenticated) ----

// CreateAPIKeyRequest is the request body for creating a new API key.
type CreateAPIKeyRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

// APIKeyResponse is returned when listing or creating API keys.
type APIKeyResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	KeyPrefix string    `json:"keyPrefix"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateAPIKeyResponse includes the plaintext key, shown only once.
type CreateAPIKeyResponse struct {
	APIKeyResponse
	Key string `json:"key"`
}

// HandleCreateAPIKey creates a new account-scoped webhook API key.
// POST /api/v1/webhook/keys
func (h *Handler) HandleCreateAPIKey(c *gin.Context) {
	accountID, ok := httpkit.GetAccountID(c)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, "no account context", nil)
		return
	}

	var req CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errValidation, err.Error())
		return
	}

	plaintext, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		httpkit.Error(c, http.StatusInternalServerError, "failed to generate key", nil)
		return
	}

	key, err := h.repo.CreateKey(c.Request.Context(), &accountID, req.Name, hash, prefix)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.Created(c, CreateAPIKeyResponse{
		APIKeyResponse: toKeyResponse(key),
		Key:            plaintext,
	})
}

// HandleListAPIKeys lists the account's webhook API keys.
// GET /api/v1/webhook/keys
func (h *Handler) HandleListAPIKeys(c *gin.Context) {
	accountID, ok := httpkit.GetAccountID(c)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, "no account context", nil)
		return
	}

	keys, err := h.repo.ListKeys(c.Request.Context(), accountID)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]APIKeyResponse, 0, len(keys))
	for i := range keys {
		out = append(out, toKeyResponse(&keys[i]))
	}
	httpkit.OK(c, out)
}

// HandleRevokeAPIKey deactivates a webhook API key.
// DELETE /api/v1/webhook/keys/:keyId
func (h *Handler) HandleRevokeAPIKey(c *gin.Context) {
	accountID, ok := httpkit.GetAccountID(c)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, "no account context", nil)
		return
	}

	keyID, err := uuid.Parse(c.Param("keyId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid key ID", nil)
		return
	}

	if err := h.repo.RevokeKey(c.Request.Context(), accountID, keyID); httpkit.HandleError(c, err) {
		return
	}

	c.Status(http.StatusNoContent)
}

// HandleListDeliveries returns the account's webhook delivery log.
// GET /api/v1/webhook/deliveries
func (h *Handler) HandleListDeliveries(c *gin.Context) {
	accountID, ok := httpkit.GetAccountID(c)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, "no account context", nil)
		return
	}

	limit, offset := pagination(c)
	deliveries, err := h.repo.ListDeliveries(c.Request.Context(), accountID, limit, offset)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, deliveries)
}

// readAndValidate reads the raw body, decodes it into req, and validates it.
// The raw bytes are returned so the delivery log can keep the payload as the
// provider sent it.
func (h *Handler) readAndValidate(c *gin.Context, req any) ([]byte, bool) {
	raw, err := c.GetRawData()
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, nil)
		return nil, false
	}
	if err := json.Unmarshal(raw, req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, nil)
		return nil, false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errValidation, err.Error())
		return nil, false
	}
	return raw, true
}

func toKeyResponse(key *APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:        key.ID,
		Name:      key.Name,
		KeyPrefix: key.KeyPrefix,
		IsActive:  key.IsActive,
		CreatedAt: key.CreatedAt,
	}
}

func pagination(c *gin.Context) (int, int) {
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)
	return limit, offset
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
