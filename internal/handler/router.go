package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/segyhp/payout-engine/pkg/response"
	"go.uber.org/zap"
)

type Handlers struct {
	Health       *HealthHandler
	Professional *ProfessionalHandler
	Appointment  *AppointmentHandler
	Admin        *AdminHandler
	Pipeline     *PipelineHandler

	// InternalAPIKey is required on the /internal routes.
	InternalAPIKey string
}

func NewRouter(h Handlers, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(response.LoggingMiddleware(logger), response.CORSMiddleware)

	// Health check
	router.HandleFunc("/health", h.Health.Health).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", h.Health.Ready).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/cycles/current", h.Professional.CurrentCycle).Methods(http.MethodGet)
	api.HandleFunc("/professionals/{id}/earnings/current", h.Professional.CurrentEarnings).Methods(http.MethodGet)
	api.HandleFunc("/professionals/{id}/earnings/lifetime", h.Professional.LifetimeEarnings).Methods(http.MethodGet)
	api.HandleFunc("/professionals/{id}/payouts", h.Professional.Payouts).Methods(http.MethodGet)
	api.HandleFunc("/professionals/{id}/fee-charges", h.Professional.FeeCharges).Methods(http.MethodGet)
	api.HandleFunc("/professionals/{id}/payment-method", h.Professional.PaymentMethod).Methods(http.MethodGet)
	api.HandleFunc("/professionals/{id}/payment-method", h.Professional.UpdatePaymentMethod).Methods(http.MethodPut)
	api.HandleFunc("/professionals/{id}/payment-method", h.Professional.RemovePaymentMethod).Methods(http.MethodDelete)

	api.HandleFunc("/users/{id}/confirmations/pending", h.Appointment.PendingConfirmations).Methods(http.MethodGet)
	api.HandleFunc("/bookings", h.Appointment.AcceptBooking).Methods(http.MethodPost)
	api.HandleFunc("/appointments/{id}", h.Appointment.GetAppointment).Methods(http.MethodGet)
	api.HandleFunc("/appointments/{id}/confirmation", h.Appointment.CreateConfirmation).Methods(http.MethodPost)
	api.HandleFunc("/appointments/{id}/dispute", h.Appointment.RaiseDispute).Methods(http.MethodPost)
	api.HandleFunc("/confirmations/{id}/confirm", h.Appointment.Confirm).Methods(http.MethodPost)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(RequireAdmin)
	admin.HandleFunc("/cycles", h.Admin.ListCycles).Methods(http.MethodGet)
	admin.HandleFunc("/cycles/{id}", h.Admin.GetCycle).Methods(http.MethodGet)
	admin.HandleFunc("/disputes", h.Admin.ListDisputes).Methods(http.MethodGet)
	admin.HandleFunc("/confirmations/{id}/resolve", h.Admin.ResolveDispute).Methods(http.MethodPost)
	admin.HandleFunc("/professionals/blocked", h.Admin.ListBlocked).Methods(http.MethodGet)
	admin.HandleFunc("/professionals/{id}/unblock", h.Admin.Unblock).Methods(http.MethodPost)
	admin.HandleFunc("/fee-charges/{id}/waive", h.Admin.WaiveFeeCharge).Methods(http.MethodPost)
	admin.HandleFunc("/payouts/run", h.Admin.RunPayouts).Methods(http.MethodPost)
	admin.HandleFunc("/settings/platform-cut", h.Admin.GetPlatformCut).Methods(http.MethodGet)
	admin.HandleFunc("/settings/platform-cut", h.Admin.SetPlatformCut).Methods(http.MethodPut)

	internal := router.PathPrefix("/internal").Subrouter()
	internal.Use(RequireInternalKey(h.InternalAPIKey))
	internal.HandleFunc("/pipeline/run", h.Pipeline.Run).Methods(http.MethodPost)
	internal.HandleFunc("/pipeline/runs/{requestID}", h.Pipeline.GetRun).Methods(http.MethodGet)

	return router
}
