package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/payout-engine/internal/config"
	"github.com/segyhp/payout-engine/internal/domain"
	"github.com/segyhp/payout-engine/internal/repository"
	customError "github.com/segyhp/payout-engine/pkg/errors"
	"github.com/segyhp/payout-engine/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var maxCutPercentage = decimal.NewFromInt(100)

type EarningsService struct {
	EarningRepo      repository.EarningRepository
	SettingsRepo     repository.SettingsRepository
	ConfirmationRepo repository.ConfirmationRepository
	cycles           *CycleService
	config           *config.Config
	logger           *zap.Logger
}

func NewEarningsService(
	earningRepo repository.EarningRepository,
	settingsRepo repository.SettingsRepository,
	confirmationRepo repository.ConfirmationRepository,
	cycles *CycleService,
	config *config.Config,
	logger *zap.Logger,
) *EarningsService {
	return &EarningsService{
		EarningRepo:      earningRepo,
		SettingsRepo:     settingsRepo,
		ConfirmationRepo: confirmationRepo,
		cycles:           cycles,
		config:           config,
		logger:           logger.Named("earnings"),
	}
}

// GetPlatformCut returns the stored cut percentage, or the configured default.
func (s *EarningsService) GetPlatformCut(ctx context.Context) (decimal.Decimal, error) {
	cut, ok, err := s.SettingsRepo.GetPlatformCut(ctx)
	if err != nil {
		return decimal.Zero, customError.WrapDatabaseError(err)
	}
	if !ok {
		return s.config.GetDefaultPlatformCut(), nil
	}
	return cut, nil
}

// SetPlatformCut changes the cut applied to earnings created from now on.
// Existing earnings keep the cut they were created with.
func (s *EarningsService) SetPlatformCut(ctx context.Context, percentage decimal.Decimal, now time.Time) error {
	if percentage.IsNegative() || percentage.GreaterThan(maxCutPercentage) {
		return customError.WrapValidation("platform cut must be between 0 and 100")
	}
	if err := s.SettingsRepo.SetPlatformCut(ctx, percentage, now); err != nil {
		return customError.WrapDatabaseError(err)
	}
	s.logger.Info("platform cut updated", zap.String("percentage", percentage.String()))
	return nil
}

// BuildEarning computes the earning for a resolved appointment. The cut is
// captured now. The earning belongs to the cycle containing the session's
// end, unless that cycle is already past its cutoff and closed, in which
// case it lands in the current cycle.
func (s *EarningsService) BuildEarning(ctx context.Context, appointment *domain.Appointment, now time.Time) (*domain.Earning, error) {
	cut, err := s.GetPlatformCut(ctx)
	if err != nil {
		return nil, err
	}

	cycle, err := s.cycles.CycleForTime(ctx, appointment.EndTime)
	if err != nil {
		return nil, err
	}
	if !cycle.AcceptsEarnings() || (!cycle.IsOpen() && !now.Before(cycle.CutoffDate)) {
		late := cycle.ID
		cycle, err = s.cycles.GetOrCreateCurrentCycle(ctx)
		if err != nil {
			return nil, err
		}
		s.logger.Info("late earning attributed to current cycle",
			zap.String("appointment_id", appointment.ID.String()),
			zap.String("performed_in_cycle", late.String()),
			zap.String("cycle_id", cycle.ID.String()))
	}

	gross := appointment.GrossAmount()
	fee := utils.CalculatePlatformFee(gross, cut)

	return &domain.Earning{
		ID:             uuid.New(),
		ProfessionalID: appointment.ProfessionalID,
		AppointmentID:  appointment.ID,
		CycleID:        cycle.ID,
		GrossAmount:    gross,
		PlatformFee:    fee,
		NetAmount:      gross.Sub(fee),
		CutPercentage:  cut,
		CreatedAt:      now,
	}, nil
}

// CurrentCycleSummary sums the professional's earnings in the current cycle.
// Confirmations still open are reported separately.
func (s *EarningsService) CurrentCycleSummary(ctx context.Context, professionalID uuid.UUID) (*domain.EarningsSummary, error) {
	cycle, err := s.cycles.GetOrCreateCurrentCycle(ctx)
	if err != nil {
		return nil, err
	}
	return s.summary(ctx, professionalID, cycle)
}

// LifetimeSummary sums every earning the professional has.
func (s *EarningsService) LifetimeSummary(ctx context.Context, professionalID uuid.UUID) (*domain.EarningsSummary, error) {
	return s.summary(ctx, professionalID, nil)
}

func (s *EarningsService) summary(ctx context.Context, professionalID uuid.UUID, cycle *domain.Cycle) (*domain.EarningsSummary, error) {
	var cycleID *uuid.UUID
	if cycle != nil {
		cycleID = &cycle.ID
	}

	totals, err := s.EarningRepo.TotalsForProfessional(ctx, professionalID, cycleID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	pending, err := s.ConfirmationRepo.CountOpenForProfessional(ctx, professionalID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	return &domain.EarningsSummary{
		ProfessionalID:       professionalID,
		Cycle:                cycle,
		Gross:                totals.Gross,
		PlatformFee:          totals.Fee,
		Net:                  totals.Net,
		ConfirmedSessions:    totals.Sessions,
		PendingConfirmations: pending,
	}, nil
}
