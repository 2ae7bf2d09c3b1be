package dashboard

import (
	apphttp "dialerdesk_backend/internal/http"
	"dialerdesk_backend/internal/recordings"
)

// Module is the dashboard read API module implementing http.Module.
type Module struct {
	handler *Handler
}

// NewModule creates the dashboard module.
func NewModule(billingReader BalanceReader, appointmentReader AppointmentReader, callReader CallReader, statsReader StatsReader, archive recordings.Archive) *Module {
	return &Module{
		handler: NewHandler(billingReader, appointmentReader, callReader, statsReader, archive),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "dashboard"
}

// RegisterRoutes mounts the dashboard routes on the protected group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	billing := ctx.Protected.Group("/billing")
	billing.GET("/balance", m.handler.HandleGetBalance)
	billing.GET("/transactions", m.handler.HandleListTransactions)

	appts := ctx.Protected.Group("/appointments")
	appts.GET("", m.handler.HandleListAppointments)
	appts.PATCH("/:appointmentId", m.handler.HandleUpdateAppointment)

	callsGroup := ctx.Protected.Group("/calls")
	callsGroup.GET("", m.handler.HandleListCalls)
	callsGroup.GET("/:callId/recording", m.handler.HandleGetRecording)

	stats := ctx.Protected.Group("/stats")
	stats.GET("/profit", m.handler.HandleProfitStats)
	stats.GET("/revenue", m.handler.HandleRevenueStats)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
