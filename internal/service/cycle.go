package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/payout-engine/internal/clock"
	"github.com/segyhp/payout-engine/internal/config"
	"github.com/segyhp/payout-engine/internal/domain"
	"github.com/segyhp/payout-engine/internal/repository"
	customError "github.com/segyhp/payout-engine/pkg/errors"
	"github.com/segyhp/payout-engine/pkg/utils"
	"go.uber.org/zap"
)

type CycleService struct {
	CycleRepo repository.CycleRepository
	clock     clock.Clock
	config    *config.Config
	logger    *zap.Logger
}

func NewCycleService(
	cycleRepo repository.CycleRepository,
	clk clock.Clock,
	config *config.Config,
	logger *zap.Logger,
) *CycleService {
	return &CycleService{
		CycleRepo: cycleRepo,
		clock:     clk,
		config:    config,
		logger:    logger.Named("cycle"),
	}
}

// GetOrCreateCurrentCycle returns the active cycle containing now, creating
// it if needed. Expired active cycles are closed first so the single-active
// constraint never blocks the new row. Concurrent callers converge on one row.
func (s *CycleService) GetOrCreateCurrentCycle(ctx context.Context) (*domain.Cycle, error) {
	now := s.clock.Now()

	if _, err := s.CycleRepo.CloseExpired(ctx, now); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	start, end := utils.CycleBounds(s.config.GetCycleAnchor(), s.config.GetCycleLength(), now)
	return s.findOrCreate(ctx, start, end, domain.CycleStatusActive, now)
}

// CycleForTime returns the cycle whose range contains t. A missing cycle for
// a past period is created already in processing.
func (s *CycleService) CycleForTime(ctx context.Context, t time.Time) (*domain.Cycle, error) {
	now := s.clock.Now()
	start, end := utils.CycleBounds(s.config.GetCycleAnchor(), s.config.GetCycleLength(), t)

	cycle, err := s.CycleRepo.GetByBounds(ctx, start, end)
	if err == nil {
		return cycle, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, customError.WrapDatabaseError(err)
	}

	if end.After(now) {
		if !start.After(now) {
			return s.GetOrCreateCurrentCycle(ctx)
		}
		return nil, customError.WrapValidation(fmt.Sprintf("no cycle exists yet for future time %s", t.Format(time.RFC3339)))
	}
	return s.findOrCreate(ctx, start, end, domain.CycleStatusProcessing, now)
}

func (s *CycleService) findOrCreate(ctx context.Context, start, end time.Time, status string, now time.Time) (*domain.Cycle, error) {
	cycle, err := s.CycleRepo.GetByBounds(ctx, start, end)
	if err == nil {
		return cycle, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, customError.WrapDatabaseError(err)
	}

	cycle = &domain.Cycle{
		ID:         uuid.New(),
		StartDate:  start,
		EndDate:    end,
		CutoffDate: end.Add(s.config.GetCycleCutoff()),
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if status == domain.CycleStatusProcessing {
		started := now
		cycle.ProcessingStartedAt = &started
	}

	created, err := s.CycleRepo.Create(ctx, cycle)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	if created {
		s.logger.Info("cycle created",
			zap.String("cycle_id", cycle.ID.String()),
			zap.Time("start", start),
			zap.Time("end", end),
			zap.String("status", status))
		return cycle, nil
	}

	// lost the race; the winner's row is authoritative
	existing, err := s.CycleRepo.GetByBounds(ctx, start, end)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customError.WrapDatabaseError(fmt.Errorf("cycle %s..%s conflicts with another active cycle", start.Format(time.RFC3339), end.Format(time.RFC3339)))
		}
		return nil, customError.WrapDatabaseError(err)
	}
	return existing, nil
}

// GetCurrentCycleInfo returns the current cycle with its derived countdowns.
func (s *CycleService) GetCurrentCycleInfo(ctx context.Context) (*domain.CycleInfo, error) {
	cycle, err := s.GetOrCreateCurrentCycle(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	info := &domain.CycleInfo{
		Cycle:            cycle,
		DaysRemaining:    utils.DaysRemaining(now, cycle.EndDate),
		HoursUntilCutoff: utils.HoursUntil(now, cycle.CutoffDate),
	}

	previous, err := s.CycleRepo.GetPrevious(ctx, cycle.StartDate)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, customError.WrapDatabaseError(err)
	}
	if previous != nil {
		info.PreviousCycle = previous
		info.PreviousCycleProcessing = previous.Status != domain.CycleStatusCompleted
	}
	return info, nil
}

// Rollover closes expired active cycles and makes sure the next one exists.
// Running it again inside the same period changes nothing.
func (s *CycleService) Rollover(ctx context.Context) (int64, error) {
	closed, err := s.CycleRepo.CloseExpired(ctx, s.clock.Now())
	if err != nil {
		return 0, customError.WrapDatabaseError(err)
	}
	if closed > 0 {
		s.logger.Info("cycles moved to processing", zap.Int64("count", closed))
	}

	if _, err := s.GetOrCreateCurrentCycle(ctx); err != nil {
		return closed, err
	}
	return closed, nil
}

// BeginProcessing moves a ready cycle to processing. A cycle already in
// processing is accepted as is; completed cycles are rejected.
func (s *CycleService) BeginProcessing(ctx context.Context, cycle *domain.Cycle) error {
	if cycle.Status == domain.CycleStatusProcessing {
		return nil
	}
	now := s.clock.Now()
	if cycle.Status == domain.CycleStatusActive && now.Before(cycle.EndDate) {
		return customError.WrapCycleState(customError.ErrCycleStillOpen, cycle.ID.String(), cycle.Status)
	}

	ok, err := s.CycleRepo.TransitionStatus(ctx, cycle.ID,
		[]string{domain.CycleStatusActive, domain.CycleStatusFailed},
		domain.CycleStatusProcessing, nil, now)
	if err != nil {
		return customError.WrapDatabaseError(err)
	}
	if !ok {
		current, err := s.CycleRepo.GetByID(ctx, cycle.ID)
		if err != nil {
			return notFoundOr(err, customError.ErrCycleNotFound, cycle.ID)
		}
		if current.Status != domain.CycleStatusProcessing {
			return customError.WrapCycleState(customError.ErrCycleNotProcessing, cycle.ID.String(), current.Status)
		}
	}
	cycle.Status = domain.CycleStatusProcessing
	return nil
}

// Seal stops a closed cycle from taking new earnings. Later confirmations for
// sessions in it are attributed to the current cycle instead.
func (s *CycleService) Seal(ctx context.Context, cycleID uuid.UUID) error {
	ok, err := s.CycleRepo.Seal(ctx, cycleID, s.clock.Now())
	if err != nil {
		return customError.WrapDatabaseError(err)
	}
	if !ok {
		current, err := s.CycleRepo.GetByID(ctx, cycleID)
		if err != nil {
			return notFoundOr(err, customError.ErrCycleNotFound, cycleID)
		}
		return customError.WrapCycleState(customError.ErrCycleStillOpen, cycleID.String(), current.Status)
	}
	return nil
}

// MarkCompleted records that the run over a cycle finished. Failures of
// individual payouts or charges do not prevent completion.
func (s *CycleService) MarkCompleted(ctx context.Context, cycleID uuid.UUID) error {
	ok, err := s.CycleRepo.TransitionStatus(ctx, cycleID,
		[]string{domain.CycleStatusProcessing, domain.CycleStatusFailed},
		domain.CycleStatusCompleted, nil, s.clock.Now())
	if err != nil {
		return customError.WrapDatabaseError(err)
	}
	if !ok {
		return s.stateConflict(ctx, cycleID)
	}
	s.logger.Info("cycle completed", zap.String("cycle_id", cycleID.String()))
	return nil
}

// MarkFailed records that the run over a cycle could not finish.
func (s *CycleService) MarkFailed(ctx context.Context, cycleID uuid.UUID, reason string) error {
	ok, err := s.CycleRepo.TransitionStatus(ctx, cycleID,
		[]string{domain.CycleStatusActive, domain.CycleStatusProcessing},
		domain.CycleStatusFailed, &reason, s.clock.Now())
	if err != nil {
		return customError.WrapDatabaseError(err)
	}
	if !ok {
		return s.stateConflict(ctx, cycleID)
	}
	s.logger.Warn("cycle failed", zap.String("cycle_id", cycleID.String()), zap.String("reason", reason))
	return nil
}

func (s *CycleService) stateConflict(ctx context.Context, cycleID uuid.UUID) error {
	current, err := s.CycleRepo.GetByID(ctx, cycleID)
	if err != nil {
		return notFoundOr(err, customError.ErrCycleNotFound, cycleID)
	}
	return customError.WrapCycleState(customError.ErrCycleNotProcessing, cycleID.String(), current.Status)
}

// ListCyclesWithStats returns cycles newest first with ledger totals.
func (s *CycleService) ListCyclesWithStats(ctx context.Context, limit, offset int) ([]*domain.CycleStats, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	cycles, err := s.CycleRepo.ListWithStats(ctx, limit, offset)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return cycles, nil
}

func (s *CycleService) GetCycle(ctx context.Context, cycleID uuid.UUID) (*domain.CycleStats, error) {
	cycle, err := s.CycleRepo.GetStats(ctx, cycleID)
	if err != nil {
		return nil, notFoundOr(err, customError.ErrCycleNotFound, cycleID)
	}
	return cycle, nil
}

// ListReady returns cycles past their cutoff that have not completed.
func (s *CycleService) ListReady(ctx context.Context) ([]*domain.Cycle, error) {
	cycles, err := s.CycleRepo.ListReady(ctx, s.clock.Now())
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return cycles, nil
}
