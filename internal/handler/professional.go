package handler

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/segyhp/payout-engine/internal/domain"
	"github.com/segyhp/payout-engine/pkg/response"
)

type CycleReader interface {
	GetCurrentCycleInfo(ctx context.Context) (*domain.CycleInfo, error)
}

type EarningsReader interface {
	CurrentCycleSummary(ctx context.Context, professionalID uuid.UUID) (*domain.EarningsSummary, error)
	LifetimeSummary(ctx context.Context, professionalID uuid.UUID) (*domain.EarningsSummary, error)
}

type PayoutHistory interface {
	ListForProfessional(ctx context.Context, professionalID uuid.UUID) (*domain.PayoutHistoryResponse, error)
}

// FeeAccount is the professional's side of platform fees and the card on file.
type FeeAccount interface {
	ListForProfessional(ctx context.Context, professionalID uuid.UUID) (*domain.FeeChargeHistoryResponse, error)
	GetPaymentMethodStatus(ctx context.Context, professionalID uuid.UUID) (*domain.PaymentMethodStatusResponse, error)
	UpdatePaymentMethod(ctx context.Context, req domain.UpdatePaymentMethodRequest) (*domain.PaymentMethod, error)
	RemovePaymentMethod(ctx context.Context, professionalID uuid.UUID) error
}

// ProfessionalHandler serves the dashboard read endpoints and payment
// method management.
type ProfessionalHandler struct {
	cycles    CycleReader
	earnings  EarningsReader
	payouts   PayoutHistory
	fees      FeeAccount
	validator *validator.Validate
}

func NewProfessionalHandler(cycles CycleReader, earnings EarningsReader, payouts PayoutHistory, fees FeeAccount) *ProfessionalHandler {
	return &ProfessionalHandler{
		cycles:    cycles,
		earnings:  earnings,
		payouts:   payouts,
		fees:      fees,
		validator: NewValidator(),
	}
}

func (h *ProfessionalHandler) CurrentCycle(w http.ResponseWriter, r *http.Request) {
	info, err := h.cycles.GetCurrentCycleInfo(r.Context())
	if err != nil {
		response.ServiceError(w, "Failed to load current cycle", err)
		return
	}
	response.Success(w, info)
}

// professional resolves the {id} path variable and checks the caller may
// read it.
func (h *ProfessionalHandler) professional(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return uuid.Nil, false
	}
	return id, selfOrAdmin(w, actor, id)
}

func (h *ProfessionalHandler) CurrentEarnings(w http.ResponseWriter, r *http.Request) {
	id, ok := h.professional(w, r)
	if !ok {
		return
	}
	summary, err := h.earnings.CurrentCycleSummary(r.Context(), id)
	if err != nil {
		response.ServiceError(w, "Failed to load earnings", err)
		return
	}
	response.Success(w, summary)
}

func (h *ProfessionalHandler) LifetimeEarnings(w http.ResponseWriter, r *http.Request) {
	id, ok := h.professional(w, r)
	if !ok {
		return
	}
	summary, err := h.earnings.LifetimeSummary(r.Context(), id)
	if err != nil {
		response.ServiceError(w, "Failed to load earnings", err)
		return
	}
	response.Success(w, summary)
}

func (h *ProfessionalHandler) Payouts(w http.ResponseWriter, r *http.Request) {
	id, ok := h.professional(w, r)
	if !ok {
		return
	}
	history, err := h.payouts.ListForProfessional(r.Context(), id)
	if err != nil {
		response.ServiceError(w, "Failed to load payouts", err)
		return
	}
	response.Success(w, history)
}

func (h *ProfessionalHandler) FeeCharges(w http.ResponseWriter, r *http.Request) {
	id, ok := h.professional(w, r)
	if !ok {
		return
	}
	history, err := h.fees.ListForProfessional(r.Context(), id)
	if err != nil {
		response.ServiceError(w, "Failed to load fee charges", err)
		return
	}
	response.Success(w, history)
}

func (h *ProfessionalHandler) PaymentMethod(w http.ResponseWriter, r *http.Request) {
	id, ok := h.professional(w, r)
	if !ok {
		return
	}
	status, err := h.fees.GetPaymentMethodStatus(r.Context(), id)
	if err != nil {
		response.ServiceError(w, "Failed to load payment method", err)
		return
	}
	response.Success(w, status)
}

func (h *ProfessionalHandler) UpdatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	id, ok := h.professional(w, r)
	if !ok {
		return
	}
	var req domain.UpdatePaymentMethodRequest
	if !decode(w, r, h.validator, &req) {
		return
	}
	req.ProfessionalID = id

	method, err := h.fees.UpdatePaymentMethod(r.Context(), req)
	if err != nil {
		response.ServiceError(w, "Failed to update payment method", err)
		return
	}
	response.Success(w, method)
}

func (h *ProfessionalHandler) RemovePaymentMethod(w http.ResponseWriter, r *http.Request) {
	id, ok := h.professional(w, r)
	if !ok {
		return
	}
	if err := h.fees.RemovePaymentMethod(r.Context(), id); err != nil {
		response.ServiceError(w, "Failed to remove payment method", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
