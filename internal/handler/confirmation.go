package handler

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/segyhp/payout-engine/internal/domain"
	"github.com/segyhp/payout-engine/pkg/response"
)

type ConfirmationAPI interface {
	CreateConfirmation(ctx context.Context, appointmentID uuid.UUID, actor domain.Actor) (*domain.Confirmation, error)
	ConfirmByClient(ctx context.Context, confirmationID, userID uuid.UUID) (*domain.Confirmation, error)
	ConfirmByProfessional(ctx context.Context, confirmationID, userID uuid.UUID) (*domain.Confirmation, error)
	RaiseDispute(ctx context.Context, appointmentID uuid.UUID, actor domain.Actor, reason string) (*domain.Confirmation, error)
	ListPendingForUser(ctx context.Context, userID uuid.UUID) (*domain.PendingConfirmationsResponse, error)
}

type BookingAPI interface {
	AcceptBooking(ctx context.Context, req domain.AcceptBookingRequest, actor domain.Actor) (*domain.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID, actor domain.Actor) (*domain.Appointment, error)
}

// AppointmentHandler serves the participant actions around a session:
// booking, confirming and disputing.
type AppointmentHandler struct {
	confirmations ConfirmationAPI
	bookings      BookingAPI
	validator     *validator.Validate
}

func NewAppointmentHandler(confirmations ConfirmationAPI, bookings BookingAPI) *AppointmentHandler {
	return &AppointmentHandler{
		confirmations: confirmations,
		bookings:      bookings,
		validator:     NewValidator(),
	}
}

func (h *AppointmentHandler) AcceptBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req domain.AcceptBookingRequest
	if !decode(w, r, h.validator, &req) {
		return
	}

	appointment, err := h.bookings.AcceptBooking(r.Context(), req, actor)
	if err != nil {
		response.ServiceError(w, "Failed to accept booking", err)
		return
	}
	response.Created(w, appointment)
}

func (h *AppointmentHandler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	appointment, err := h.bookings.GetAppointment(r.Context(), id, actor)
	if err != nil {
		response.ServiceError(w, "Failed to load appointment", err)
		return
	}
	response.Success(w, appointment)
}

func (h *AppointmentHandler) CreateConfirmation(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	confirmation, err := h.confirmations.CreateConfirmation(r.Context(), id, actor)
	if err != nil {
		response.ServiceError(w, "Failed to create confirmation", err)
		return
	}
	response.Created(w, confirmation)
}

func (h *AppointmentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req domain.ConfirmRequest
	if !decode(w, r, h.validator, &req) {
		return
	}

	var (
		confirmation *domain.Confirmation
		err          error
	)
	if req.Party == domain.PartyClient {
		confirmation, err = h.confirmations.ConfirmByClient(r.Context(), id, actor.UserID)
	} else {
		confirmation, err = h.confirmations.ConfirmByProfessional(r.Context(), id, actor.UserID)
	}
	if err != nil {
		response.ServiceError(w, "Failed to confirm", err)
		return
	}
	response.Success(w, confirmation)
}

func (h *AppointmentHandler) RaiseDispute(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req domain.RaiseDisputeRequest
	if !decode(w, r, h.validator, &req) {
		return
	}

	confirmation, err := h.confirmations.RaiseDispute(r.Context(), id, actor, req.Reason)
	if err != nil {
		response.ServiceError(w, "Failed to raise dispute", err)
		return
	}
	response.Success(w, confirmation)
}

func (h *AppointmentHandler) PendingConfirmations(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if !selfOrAdmin(w, actor, id) {
		return
	}

	pending, err := h.confirmations.ListPendingForUser(r.Context(), id)
	if err != nil {
		response.ServiceError(w, "Failed to load pending confirmations", err)
		return
	}
	response.Success(w, pending)
}
