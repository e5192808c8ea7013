package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/payout-engine/internal/clock"
	"github.com/segyhp/payout-engine/internal/config"
	"github.com/segyhp/payout-engine/internal/domain"
	"github.com/segyhp/payout-engine/internal/gateway"
	"github.com/segyhp/payout-engine/internal/repository"
	customError "github.com/segyhp/payout-engine/pkg/errors"
	"go.uber.org/zap"
)

const sweepBatchSize = 500

var errConcurrentUpdate = customError.NewBusinessError(
	customError.ErrCodeConfirmationResolved,
	"confirmation was changed by another request, retry",
	customError.ErrConfirmationConflict,
)

type ConfirmationService struct {
	AppointmentRepo  repository.AppointmentRepository
	ConfirmationRepo repository.ConfirmationRepository
	earnings         *EarningsService
	gateway          gateway.Gateway
	notifier         Notifier
	clock            clock.Clock
	config           *config.Config
	logger           *zap.Logger
}

func NewConfirmationService(
	appointmentRepo repository.AppointmentRepository,
	confirmationRepo repository.ConfirmationRepository,
	earnings *EarningsService,
	gw gateway.Gateway,
	notifier Notifier,
	clk clock.Clock,
	config *config.Config,
	logger *zap.Logger,
) *ConfirmationService {
	return &ConfirmationService{
		AppointmentRepo:  appointmentRepo,
		ConfirmationRepo: confirmationRepo,
		earnings:         earnings,
		gateway:          gw,
		notifier:         notifier,
		clock:            clk,
		config:           config,
		logger:           logger.Named("confirmation"),
	}
}

func (s *ConfirmationService) getAppointment(ctx context.Context, id uuid.UUID) (*domain.Appointment, error) {
	appointment, err := s.AppointmentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, customError.ErrAppointmentNotFound, id)
	}
	return appointment, nil
}

func (s *ConfirmationService) getConfirmation(ctx context.Context, id uuid.UUID) (*domain.Confirmation, error) {
	confirmation, err := s.ConfirmationRepo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, customError.ErrConfirmationNotFound, id)
	}
	return confirmation, nil
}

// CreateConfirmation opens the confirmation for an ended appointment. Calling
// it again returns the existing confirmation.
func (s *ConfirmationService) CreateConfirmation(ctx context.Context, appointmentID uuid.UUID, actor domain.Actor) (*domain.Confirmation, error) {
	appointment, err := s.getAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !appointment.IsParticipant(actor.UserID) {
		return nil, customError.WrapNotParticipant(appointmentID.String())
	}

	confirmation, _, err := s.createConfirmation(ctx, appointment, s.clock.Now())
	return confirmation, err
}

func (s *ConfirmationService) createConfirmation(ctx context.Context, appointment *domain.Appointment, now time.Time) (*domain.Confirmation, bool, error) {
	existing, err := s.ConfirmationRepo.GetByAppointmentID(ctx, appointment.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, customError.WrapDatabaseError(err)
	}

	switch appointment.Status {
	case domain.AppointmentStatusUpcoming:
		if !appointment.HasEnded(now) {
			return nil, false, customError.WrapAppointmentNotEnded(appointment.ID.String())
		}
		ok, err := s.AppointmentRepo.MarkCompleted(ctx, appointment.ID, now)
		if err != nil {
			return nil, false, customError.WrapDatabaseError(err)
		}
		if !ok {
			current, err := s.getAppointment(ctx, appointment.ID)
			if err != nil {
				return nil, false, err
			}
			if current.Status != domain.AppointmentStatusCompleted {
				return nil, false, customError.WrapAppointmentNotCompletable(appointment.ID.String(), current.Status)
			}
		}
	case domain.AppointmentStatusCompleted:
	default:
		return nil, false, customError.WrapAppointmentNotCompletable(appointment.ID.String(), appointment.Status)
	}

	confirmation := &domain.Confirmation{
		ID:                  uuid.New(),
		AppointmentID:       appointment.ID,
		Resolution:          domain.ResolutionPending,
		AutoConfirmDeadline: now.Add(s.config.GetAutoConfirmWindow()),
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	created, err := s.ConfirmationRepo.Create(ctx, confirmation)
	if err != nil {
		return nil, false, customError.WrapDatabaseError(err)
	}
	if !created {
		existing, err := s.ConfirmationRepo.GetByAppointmentID(ctx, appointment.ID)
		if err != nil {
			return nil, false, customError.WrapDatabaseError(err)
		}
		return existing, false, nil
	}

	s.logger.Info("confirmation created",
		zap.String("confirmation_id", confirmation.ID.String()),
		zap.String("appointment_id", appointment.ID.String()),
		zap.Time("auto_confirm_deadline", confirmation.AutoConfirmDeadline))
	return confirmation, true, nil
}

// ConfirmByClient records the client's acknowledgement.
func (s *ConfirmationService) ConfirmByClient(ctx context.Context, confirmationID, userID uuid.UUID) (*domain.Confirmation, error) {
	return s.confirm(ctx, confirmationID, userID, domain.PartyClient)
}

// ConfirmByProfessional records the professional's acknowledgement.
func (s *ConfirmationService) ConfirmByProfessional(ctx context.Context, confirmationID, userID uuid.UUID) (*domain.Confirmation, error) {
	return s.confirm(ctx, confirmationID, userID, domain.PartyProfessional)
}

// confirm sets one side's flag. When both sides have confirmed, the
// resolution becomes both_confirmed and the earning is written in the same
// transition, guarded by the resolution read here.
func (s *ConfirmationService) confirm(ctx context.Context, confirmationID, userID uuid.UUID, party string) (*domain.Confirmation, error) {
	for attempt := 0; attempt < maxTransitionRetries; attempt++ {
		current, err := s.getConfirmation(ctx, confirmationID)
		if err != nil {
			return nil, err
		}
		appointment, err := s.getAppointment(ctx, current.AppointmentID)
		if err != nil {
			return nil, err
		}

		if (party == domain.PartyClient && appointment.ClientID != userID) ||
			(party == domain.PartyProfessional && appointment.ProfessionalID != userID) {
			return nil, customError.WrapNotParticipant(appointment.ID.String())
		}
		if domain.IsTerminalResolution(current.Resolution) || current.Resolution == domain.ResolutionDisputed {
			return nil, customError.WrapConfirmationResolved(current.ID.String(), current.Resolution)
		}

		now := s.clock.Now()
		next := *current
		next.UpdatedAt = now
		at := now

		switch party {
		case domain.PartyClient:
			if current.ClientConfirmed {
				return nil, customError.WrapAlreadyConfirmed(current.ID.String(), party)
			}
			next.ClientConfirmed = true
			next.ClientConfirmedAt = &at
			next.Resolution = domain.ResolutionClientConfirmed
		case domain.PartyProfessional:
			if current.ProfessionalConfirmed {
				return nil, customError.WrapAlreadyConfirmed(current.ID.String(), party)
			}
			next.ProfessionalConfirmed = true
			next.ProfessionalConfirmedAt = &at
			next.Resolution = domain.ResolutionProfessionalConfirmed
		}

		transition := &domain.ConfirmationTransition{
			FromResolution: current.Resolution,
			Confirmation:   &next,
		}
		if next.ClientConfirmed && next.ProfessionalConfirmed {
			next.Resolution = domain.ResolutionBothConfirmed
			next.ResolvedAt = &at
		}
		if domain.ProducesEarning(next.Resolution) {
			earning, err := s.earnings.BuildEarning(ctx, appointment, now)
			if err != nil {
				return nil, err
			}
			transition.Earning = earning
		}

		err = s.ConfirmationRepo.ApplyTransition(ctx, transition)
		if errors.Is(err, customError.ErrConfirmationConflict) {
			continue
		}
		if err != nil {
			return nil, customError.WrapDatabaseError(err)
		}

		s.logger.Info("confirmation updated",
			zap.String("confirmation_id", next.ID.String()),
			zap.String("party", party),
			zap.String("resolution", next.Resolution))
		return &next, nil
	}
	return nil, errConcurrentUpdate
}

// RaiseDispute puts the appointment and its confirmation into dispute. A
// confirmation is created in the disputed state when none exists yet.
func (s *ConfirmationService) RaiseDispute(ctx context.Context, appointmentID uuid.UUID, actor domain.Actor, reason string) (*domain.Confirmation, error) {
	if len(reason) < 3 {
		return nil, customError.WrapValidation("dispute reason is required")
	}

	for attempt := 0; attempt < maxTransitionRetries; attempt++ {
		appointment, err := s.getAppointment(ctx, appointmentID)
		if err != nil {
			return nil, err
		}
		if !actor.IsAdmin() && !appointment.IsParticipant(actor.UserID) {
			return nil, customError.WrapNotParticipant(appointmentID.String())
		}
		if appointment.Status == domain.AppointmentStatusCancelled {
			return nil, customError.WrapDispute(customError.ErrDisputeNotAllowed, appointmentID.String())
		}
		if appointment.DisputeStatus != domain.DisputeStatusNone {
			return nil, customError.WrapDispute(customError.ErrDisputeAlreadyRaised, appointmentID.String())
		}

		now := s.clock.Now()
		disputedBy := actor.UserID
		transition := &domain.ConfirmationTransition{
			Appointment: &domain.AppointmentChange{
				AppointmentID: appointmentID,
				Status:        domain.AppointmentStatusDisputed,
				DisputeStatus: domain.DisputeStatusOpen,
				DisputeReason: &reason,
				DisputedBy:    &disputedBy,
			},
		}

		current, err := s.ConfirmationRepo.GetByAppointmentID(ctx, appointmentID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			transition.Confirmation = &domain.Confirmation{
				ID:                  uuid.New(),
				AppointmentID:       appointmentID,
				Resolution:          domain.ResolutionDisputed,
				AutoConfirmDeadline: now.Add(s.config.GetAutoConfirmWindow()),
				CreatedAt:           now,
				UpdatedAt:           now,
			}
		case err != nil:
			return nil, customError.WrapDatabaseError(err)
		default:
			if !domain.CanTransition(current.Resolution, domain.ResolutionDisputed) {
				return nil, customError.WrapDispute(customError.ErrDisputeNotAllowed, appointmentID.String())
			}
			next := *current
			next.Resolution = domain.ResolutionDisputed
			next.UpdatedAt = now
			transition.FromResolution = current.Resolution
			transition.Confirmation = &next
		}

		err = s.ConfirmationRepo.ApplyTransition(ctx, transition)
		if errors.Is(err, customError.ErrConfirmationConflict) {
			continue
		}
		if err != nil {
			return nil, customError.WrapDatabaseError(err)
		}

		s.logger.Info("dispute raised",
			zap.String("appointment_id", appointmentID.String()),
			zap.String("confirmation_id", transition.Confirmation.ID.String()),
			zap.String("raised_by", actor.UserID.String()))
		return transition.Confirmation, nil
	}
	return nil, errConcurrentUpdate
}

// ResolveDispute settles a disputed confirmation. admin_confirmed pays the
// professional as if both parties confirmed; admin_cancelled cancels the
// appointment, frees its slot and refunds the client's payment.
func (s *ConfirmationService) ResolveDispute(ctx context.Context, confirmationID uuid.UUID, actor domain.Actor, req domain.ResolveDisputeRequest) (*domain.Confirmation, error) {
	if !actor.IsAdmin() {
		return nil, customError.WrapAdminRequired()
	}
	if req.Resolution != domain.ResolutionAdminConfirmed && req.Resolution != domain.ResolutionAdminCancelled {
		return nil, customError.WrapValidation("resolution must be admin_confirmed or admin_cancelled")
	}

	for attempt := 0; attempt < maxTransitionRetries; attempt++ {
		current, err := s.getConfirmation(ctx, confirmationID)
		if err != nil {
			return nil, err
		}
		if current.Resolution != domain.ResolutionDisputed {
			if domain.IsTerminalResolution(current.Resolution) {
				return nil, customError.WrapConfirmationResolved(current.ID.String(), current.Resolution)
			}
			return nil, customError.WrapDispute(customError.ErrConfirmationNotDisputed, current.AppointmentID.String())
		}
		appointment, err := s.getAppointment(ctx, current.AppointmentID)
		if err != nil {
			return nil, err
		}

		now := s.clock.Now()
		at := now
		adminID := actor.UserID
		next := *current
		next.Resolution = req.Resolution
		next.ResolvedBy = &adminID
		next.ResolvedAt = &at
		next.UpdatedAt = now
		if req.Notes != "" {
			notes := req.Notes
			next.ResolutionNotes = &notes
		}

		transition := &domain.ConfirmationTransition{
			FromResolution: current.Resolution,
			Confirmation:   &next,
			Appointment: &domain.AppointmentChange{
				AppointmentID: appointment.ID,
				DisputeStatus: domain.DisputeStatusResolved,
			},
		}
		if domain.ProducesEarning(req.Resolution) {
			earning, err := s.earnings.BuildEarning(ctx, appointment, now)
			if err != nil {
				return nil, err
			}
			transition.Earning = earning
			transition.Appointment.Status = domain.AppointmentStatusCompleted
		} else {
			transition.Appointment.Status = domain.AppointmentStatusCancelled
			transition.ReleaseSlot = true
		}

		err = s.ConfirmationRepo.ApplyTransition(ctx, transition)
		if errors.Is(err, customError.ErrConfirmationConflict) {
			continue
		}
		if err != nil {
			return nil, customError.WrapDatabaseError(err)
		}

		s.logger.Info("dispute resolved",
			zap.String("confirmation_id", next.ID.String()),
			zap.String("resolution", next.Resolution),
			zap.String("admin_id", adminID.String()))

		data := map[string]string{"resolution": next.Resolution, "appointment_id": appointment.ID.String()}
		s.notify(ctx, newNotification(domain.NotificationDisputeResolved, appointment.ClientID, next.ID, now, data))
		s.notify(ctx, newNotification(domain.NotificationDisputeResolved, appointment.ProfessionalID, next.ID, now, data))

		if req.Resolution == domain.ResolutionAdminCancelled {
			s.refund(ctx, appointment, now)
		}
		return &next, nil
	}
	return nil, errConcurrentUpdate
}

// refund returns a captured client payment. The cancellation is already
// committed, so a failed refund is reported for manual follow-up rather than
// returned to the caller.
func (s *ConfirmationService) refund(ctx context.Context, appointment *domain.Appointment, now time.Time) {
	if appointment.PaymentReference == nil || *appointment.PaymentReference == "" || appointment.RefundReference != nil {
		return
	}

	key := "refund-" + appointment.ID.String()
	result, err := s.gateway.Refund(ctx, gateway.RefundRequest{
		IdempotencyKey:   key,
		AppointmentID:    appointment.ID,
		PaymentReference: *appointment.PaymentReference,
		Reason:           "appointment cancelled after dispute",
	})
	if err == nil && result.Outcome != gateway.OutcomeDeclined {
		reference := result.Reference
		if reference == "" {
			reference = key
		}
		if err := s.AppointmentRepo.SetRefundReference(ctx, appointment.ID, reference, now); err != nil {
			s.logger.Error("failed to record refund reference",
				zap.String("appointment_id", appointment.ID.String()),
				zap.Error(err))
		}
		return
	}

	reason := "declined"
	if err != nil {
		reason = err.Error()
	} else if result.DeclineReason != "" {
		reason = result.DeclineReason
	}
	s.logger.Error("refund failed",
		zap.String("appointment_id", appointment.ID.String()),
		zap.String("idempotency_key", key),
		zap.String("reason", reason))
	s.notify(ctx, newNotification(domain.NotificationRefundFailed, appointment.ClientID, appointment.ID, now,
		map[string]string{"reason": reason, "idempotency_key": key}))
}

func (s *ConfirmationService) notify(ctx context.Context, notification domain.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, notification); err != nil {
		s.logger.Warn("notification not delivered",
			zap.String("kind", notification.Kind),
			zap.String("recipient_id", notification.RecipientID.String()),
			zap.Error(err))
	}
}

// AutoConfirmSweep resolves every open, undisputed confirmation past its
// deadline as auto_confirmed, producing the same earning as a manual confirm.
func (s *ConfirmationService) AutoConfirmSweep(ctx context.Context) (*domain.BatchReport, error) {
	report := domain.NewBatchReport(domain.BatchKindAutoConfirm)
	now := s.clock.Now()

	due, err := s.ConfirmationRepo.ListDueForAutoConfirm(ctx, now, sweepBatchSize)
	if err != nil {
		return report, customError.WrapDatabaseError(err)
	}

	for _, confirmation := range due {
		appointment, applied, err := s.autoConfirm(ctx, confirmation.ID, now)
		switch {
		case err != nil:
			s.logger.Warn("auto-confirm failed", zap.String("confirmation_id", confirmation.ID.String()), zap.Error(err))
			report.Fail(confirmation.ID, err)
		case !applied:
			report.Add(domain.ItemResult{EntityID: confirmation.ID, Outcome: domain.ItemSkipped})
		default:
			report.Succeed(confirmation.ID)
			report.Notify(newNotification(domain.NotificationAutoConfirmed, appointment.ClientID, confirmation.ID, now, nil))
			report.Notify(newNotification(domain.NotificationAutoConfirmed, appointment.ProfessionalID, confirmation.ID, now, nil))
		}
	}

	if len(due) > 0 {
		s.logger.Info("auto-confirm sweep finished",
			zap.Int("due", len(due)),
			zap.Int("confirmed", report.Succeeded),
			zap.Int("failed", report.Failed))
	}
	return report, nil
}

func (s *ConfirmationService) autoConfirm(ctx context.Context, confirmationID uuid.UUID, now time.Time) (*domain.Appointment, bool, error) {
	for attempt := 0; attempt < maxTransitionRetries; attempt++ {
		current, err := s.getConfirmation(ctx, confirmationID)
		if err != nil {
			return nil, false, err
		}
		if !domain.CanTransition(current.Resolution, domain.ResolutionAutoConfirmed) || now.Before(current.AutoConfirmDeadline) {
			return nil, false, nil
		}
		appointment, err := s.getAppointment(ctx, current.AppointmentID)
		if err != nil {
			return nil, false, err
		}

		earning, err := s.earnings.BuildEarning(ctx, appointment, now)
		if err != nil {
			return nil, false, err
		}

		at := now
		next := *current
		next.Resolution = domain.ResolutionAutoConfirmed
		next.ResolvedAt = &at
		next.UpdatedAt = now

		err = s.ConfirmationRepo.ApplyTransition(ctx, &domain.ConfirmationTransition{
			FromResolution: current.Resolution,
			Confirmation:   &next,
			Earning:        earning,
		})
		if errors.Is(err, customError.ErrConfirmationConflict) {
			continue
		}
		if err != nil {
			return nil, false, customError.WrapDatabaseError(err)
		}
		return appointment, true, nil
	}
	return nil, false, errConcurrentUpdate
}

// SweepEndedAppointments completes upcoming appointments whose end time has
// passed and opens their confirmations.
func (s *ConfirmationService) SweepEndedAppointments(ctx context.Context) (*domain.BatchReport, error) {
	report := domain.NewBatchReport(domain.BatchKindConfirmation)
	now := s.clock.Now()

	ended, err := s.AppointmentRepo.ListEndedUpcoming(ctx, now, sweepBatchSize)
	if err != nil {
		return report, customError.WrapDatabaseError(err)
	}

	for _, appointment := range ended {
		confirmation, created, err := s.createConfirmation(ctx, appointment, now)
		switch {
		case err != nil:
			s.logger.Warn("confirmation not created", zap.String("appointment_id", appointment.ID.String()), zap.Error(err))
			report.Fail(appointment.ID, err)
		case !created:
			report.Add(domain.ItemResult{EntityID: appointment.ID, Outcome: domain.ItemSkipped})
		default:
			report.Succeed(appointment.ID)
			data := map[string]string{"deadline": confirmation.AutoConfirmDeadline.Format(time.RFC3339)}
			report.Notify(newNotification(domain.NotificationConfirmationRequested, appointment.ClientID, confirmation.ID, now, data))
			report.Notify(newNotification(domain.NotificationConfirmationRequested, appointment.ProfessionalID, confirmation.ID, now, data))
		}
	}
	return report, nil
}

// ListPendingForUser splits the user's open confirmations by the role they
// play in each appointment.
func (s *ConfirmationService) ListPendingForUser(ctx context.Context, userID uuid.UUID) (*domain.PendingConfirmationsResponse, error) {
	items, err := s.ConfirmationRepo.ListOpenForUser(ctx, userID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	response := &domain.PendingConfirmationsResponse{
		AsClient:       []*domain.PendingConfirmation{},
		AsProfessional: []*domain.PendingConfirmation{},
	}
	for _, item := range items {
		if item.Appointment == nil {
			continue
		}
		disputed := item.Confirmation.Resolution == domain.ResolutionDisputed
		if item.Appointment.ClientID == userID {
			c := *item
			c.AwaitingAction = !disputed && !item.Confirmation.ClientConfirmed
			response.AsClient = append(response.AsClient, &c)
		}
		if item.Appointment.ProfessionalID == userID {
			p := *item
			p.AwaitingAction = !disputed && !item.Confirmation.ProfessionalConfirmed
			response.AsProfessional = append(response.AsProfessional, &p)
		}
	}
	return response, nil
}

// ListDisputed returns confirmations waiting for an admin decision.
func (s *ConfirmationService) ListDisputed(ctx context.Context) ([]*domain.PendingConfirmation, error) {
	items, err := s.ConfirmationRepo.ListDisputed(ctx)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	if items == nil {
		items = []*domain.PendingConfirmation{}
	}
	return items, nil
}
