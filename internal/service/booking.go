package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/segyhp/payout-engine/internal/clock"
	"github.com/segyhp/payout-engine/internal/domain"
	"github.com/segyhp/payout-engine/internal/repository"
	customError "github.com/segyhp/payout-engine/pkg/errors"
	"go.uber.org/zap"
)

// BookingService accepts new appointments on behalf of professionals. It is
// the point where the fee-charge block is enforced.
type BookingService struct {
	AppointmentRepo repository.AppointmentRepository
	fees            *FeeChargeService
	clock           clock.Clock
	logger          *zap.Logger
}

func NewBookingService(
	appointmentRepo repository.AppointmentRepository,
	fees *FeeChargeService,
	clk clock.Clock,
	logger *zap.Logger,
) *BookingService {
	return &BookingService{
		AppointmentRepo: appointmentRepo,
		fees:            fees,
		clock:           clk,
		logger:          logger.Named("booking"),
	}
}

// AcceptBooking books a free slot for the professional. Blocked professionals
// and those with outstanding fees above the threshold are rejected.
func (s *BookingService) AcceptBooking(ctx context.Context, req domain.AcceptBookingRequest, actor domain.Actor) (*domain.Appointment, error) {
	if actor.UserID != req.ProfessionalID && !actor.IsAdmin() {
		return nil, customError.WrapForbidden("only the professional can accept this booking")
	}
	if !req.Rate.IsPositive() {
		return nil, customError.WrapValidation("rate must be positive")
	}
	if req.AdjustedRate != nil && req.AdjustedRate.IsNegative() {
		return nil, customError.WrapValidation("adjusted rate cannot be negative")
	}

	if err := s.fees.EnsureCanAcceptAppointments(ctx, req.ProfessionalID); err != nil {
		return nil, err
	}

	slot, err := s.AppointmentRepo.GetSlot(ctx, req.SlotID)
	if err != nil {
		return nil, notFoundOr(err, customError.ErrSlotNotFound, req.SlotID)
	}
	if slot.ProfessionalID != req.ProfessionalID {
		return nil, customError.WrapNotFound(customError.ErrSlotNotFound, req.SlotID.String())
	}
	if slot.Booked {
		return nil, customError.WrapSlotAlreadyBooked(req.SlotID.String())
	}

	now := s.clock.Now()
	slotID := slot.ID
	appointment := &domain.Appointment{
		ID:               uuid.New(),
		ClientID:         req.ClientID,
		ProfessionalID:   req.ProfessionalID,
		SlotID:           &slotID,
		StartTime:        slot.StartTime,
		EndTime:          slot.EndTime,
		Status:           domain.AppointmentStatusUpcoming,
		Rate:             req.Rate,
		AdjustedRate:     req.AdjustedRate,
		DisputeStatus:    domain.DisputeStatusNone,
		Venue:            req.Venue,
		PaymentReference: req.PaymentRef,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.AppointmentRepo.CreateWithSlot(ctx, appointment); err != nil {
		switch {
		case errors.Is(err, customError.ErrSlotAlreadyBooked):
			return nil, customError.WrapSlotAlreadyBooked(req.SlotID.String())
		case errors.Is(err, customError.ErrSlotNotFound):
			return nil, customError.WrapNotFound(customError.ErrSlotNotFound, req.SlotID.String())
		}
		return nil, customError.WrapDatabaseError(err)
	}

	s.logger.Info("booking accepted",
		zap.String("appointment_id", appointment.ID.String()),
		zap.String("professional_id", appointment.ProfessionalID.String()),
		zap.String("slot_id", slotID.String()))
	return appointment, nil
}

// GetAppointment returns an appointment visible to one of its parties or an admin.
func (s *BookingService) GetAppointment(ctx context.Context, id uuid.UUID, actor domain.Actor) (*domain.Appointment, error) {
	appointment, err := s.AppointmentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, customError.ErrAppointmentNotFound, id)
	}
	if !appointment.IsParticipant(actor.UserID) && !actor.IsAdmin() {
		return nil, customError.WrapNotParticipant(id.String())
	}
	return appointment, nil
}
