package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/segyhp/payout-engine/internal/clock"
	"github.com/segyhp/payout-engine/internal/domain"
	"github.com/segyhp/payout-engine/pkg/response"
	"github.com/shopspring/decimal"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type CycleAdmin interface {
	ListCyclesWithStats(ctx context.Context, limit, offset int) ([]*domain.CycleStats, error)
	GetCycle(ctx context.Context, cycleID uuid.UUID) (*domain.CycleStats, error)
}

type DisputeAdmin interface {
	ListDisputed(ctx context.Context) ([]*domain.PendingConfirmation, error)
	ResolveDispute(ctx context.Context, confirmationID uuid.UUID, actor domain.Actor, req domain.ResolveDisputeRequest) (*domain.Confirmation, error)
}

type FeeAdmin interface {
	ListBlocked(ctx context.Context) ([]*domain.BlockedProfessional, error)
	UnblockProfessional(ctx context.Context, professionalID uuid.UUID, actor domain.Actor) error
	WaiveFeeCharge(ctx context.Context, chargeID uuid.UUID, actor domain.Actor, reason string) (*domain.FeeCharge, error)
}

type PayoutAdmin interface {
	ProcessAllReadyCycles(ctx context.Context) (*domain.ReadyCyclesReport, error)
	ProcessCycleByID(ctx context.Context, cycleID uuid.UUID) (*domain.ReadyCyclesReport, error)
	CreatePayoutsForCycle(ctx context.Context, cycleID uuid.UUID) (int, error)
}

type SettingsAdmin interface {
	GetPlatformCut(ctx context.Context) (decimal.Decimal, error)
	SetPlatformCut(ctx context.Context, percentage decimal.Decimal, now time.Time) error
}

// AdminHandler backs the external admin tooling. Routes are mounted behind
// RequireAdmin.
type AdminHandler struct {
	cycles    CycleAdmin
	disputes  DisputeAdmin
	fees      FeeAdmin
	payouts   PayoutAdmin
	settings  SettingsAdmin
	clock     clock.Clock
	validator *validator.Validate
}

func NewAdminHandler(cycles CycleAdmin, disputes DisputeAdmin, fees FeeAdmin, payouts PayoutAdmin, settings SettingsAdmin, clk clock.Clock) *AdminHandler {
	return &AdminHandler{
		cycles:    cycles,
		disputes:  disputes,
		fees:      fees,
		payouts:   payouts,
		settings:  settings,
		clock:     clk,
		validator: NewValidator(),
	}
}

func (h *AdminHandler) ListCycles(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}
	cycles, err := h.cycles.ListCyclesWithStats(r.Context(), limit, offset)
	if err != nil {
		response.ServiceError(w, "Failed to list cycles", err)
		return
	}
	response.Success(w, cycles)
}

func (h *AdminHandler) GetCycle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	cycle, err := h.cycles.GetCycle(r.Context(), id)
	if err != nil {
		response.ServiceError(w, "Failed to load cycle", err)
		return
	}
	response.Success(w, cycle)
}

func (h *AdminHandler) ListDisputes(w http.ResponseWriter, r *http.Request) {
	disputes, err := h.disputes.ListDisputed(r.Context())
	if err != nil {
		response.ServiceError(w, "Failed to list disputes", err)
		return
	}
	response.Success(w, disputes)
}

func (h *AdminHandler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req domain.ResolveDisputeRequest
	if !decode(w, r, h.validator, &req) {
		return
	}

	confirmation, err := h.disputes.ResolveDispute(r.Context(), id, actor, req)
	if err != nil {
		response.ServiceError(w, "Failed to resolve dispute", err)
		return
	}
	response.Success(w, confirmation)
}

func (h *AdminHandler) ListBlocked(w http.ResponseWriter, r *http.Request) {
	blocked, err := h.fees.ListBlocked(r.Context())
	if err != nil {
		response.ServiceError(w, "Failed to list blocked professionals", err)
		return
	}
	response.Success(w, blocked)
}

func (h *AdminHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.fees.UnblockProfessional(r.Context(), id, actor); err != nil {
		response.ServiceError(w, "Failed to unblock professional", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) WaiveFeeCharge(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req domain.WaiveFeeChargeRequest
	if !decode(w, r, h.validator, &req) {
		return
	}

	charge, err := h.fees.WaiveFeeCharge(r.Context(), id, actor, req.Reason)
	if err != nil {
		response.ServiceError(w, "Failed to waive fee charge", err)
		return
	}
	response.Success(w, charge)
}

func (h *AdminHandler) RunPayouts(w http.ResponseWriter, r *http.Request) {
	var req domain.RunPayoutsRequest
	if !decode(w, r, h.validator, &req) {
		return
	}

	switch req.Action {
	case domain.PayoutActionProcessAll:
		report, err := h.payouts.ProcessAllReadyCycles(r.Context())
		if err != nil {
			response.ServiceError(w, "Failed to process ready cycles", err)
			return
		}
		response.Success(w, report)
	case domain.PayoutActionProcessCycle:
		report, err := h.payouts.ProcessCycleByID(r.Context(), *req.CycleID)
		if err != nil {
			response.ServiceError(w, "Failed to process cycle", err)
			return
		}
		response.Success(w, report)
	default:
		created, err := h.payouts.CreatePayoutsForCycle(r.Context(), *req.CycleID)
		if err != nil {
			response.ServiceError(w, "Failed to create payouts", err)
			return
		}
		response.Success(w, map[string]int{"payouts_created": created})
	}
}

func (h *AdminHandler) GetPlatformCut(w http.ResponseWriter, r *http.Request) {
	cut, err := h.settings.GetPlatformCut(r.Context())
	if err != nil {
		response.ServiceError(w, "Failed to load platform cut", err)
		return
	}
	response.Success(w, domain.PlatformCutResponse{Percentage: cut})
}

func (h *AdminHandler) SetPlatformCut(w http.ResponseWriter, r *http.Request) {
	var req domain.PlatformCutRequest
	if !decode(w, r, h.validator, &req) {
		return
	}
	if err := h.settings.SetPlatformCut(r.Context(), req.Percentage, h.clock.Now()); err != nil {
		response.ServiceError(w, "Failed to update platform cut", err)
		return
	}
	response.Success(w, domain.PlatformCutResponse{Percentage: req.Percentage})
}

func pagination(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	limit, offset := defaultPageSize, 0
	q := r.URL.Query()
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.BadRequest(w, "Invalid limit", err)
			return 0, 0, false
		}
		limit = min(n, maxPageSize)
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.BadRequest(w, "Invalid offset", err)
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}
