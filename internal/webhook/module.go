package webhook

import (
	apphttp "dialerdesk_backend/internal/http"
	"dialerdesk_backend/platform/logger"
	"dialerdesk_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the webhook bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	repo    *Repository
}

// NewModule creates and initializes the webhook module with all its dependencies.
func NewModule(pool *pgxpool.Pool, callProcessor CallProcessor, bookings BookingReconciler, refills RefillApplier, val *validator.Validator, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	service := NewService(repo, callProcessor, bookings, refills, log)
	handler := NewHandler(service, repo, val)

	return &Module{
		handler: handler,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts webhook routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Inbound deliveries (API key auth, no JWT).
	deliveries := ctx.V1.Group("/webhook")
	deliveries.Use(ctx.WebhookRateLimiter.RateLimit())
	deliveries.Use(APIKeyAuthMiddleware(m.repo))
	deliveries.POST("/calls", m.handler.HandleCallOutcome)
	deliveries.POST("/bookings", m.handler.HandleBookingConfirmation)
	deliveries.POST("/refills", m.handler.HandleRefillCallback)

	// Key management and delivery log (JWT auth).
	keys := ctx.Protected.Group("/webhook/keys")
	keys.POST("", m.handler.HandleCreateAPIKey)
	keys.GET("", m.handler.HandleListAPIKeys)
	keys.DELETE("/:keyId", m.handler.HandleRevokeAPIKey)

	ctx.Protected.GET("/webhook/deliveries", m.handler.HandleListDeliveries)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
