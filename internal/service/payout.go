package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/segyhp/payout-engine/internal/clock"
	"github.com/segyhp/payout-engine/internal/config"
	"github.com/segyhp/payout-engine/internal/domain"
	"github.com/segyhp/payout-engine/internal/gateway"
	"github.com/segyhp/payout-engine/internal/repository"
	customError "github.com/segyhp/payout-engine/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type PayoutService struct {
	PayoutRepo  repository.PayoutRepository
	EarningRepo repository.EarningRepository
	cycles      *CycleService
	fees        *FeeChargeService
	gateway     gateway.Gateway
	clock       clock.Clock
	config      *config.Config
	logger      *zap.Logger
}

func NewPayoutService(
	payoutRepo repository.PayoutRepository,
	earningRepo repository.EarningRepository,
	cycles *CycleService,
	fees *FeeChargeService,
	gw gateway.Gateway,
	clk clock.Clock,
	config *config.Config,
	logger *zap.Logger,
) *PayoutService {
	return &PayoutService{
		PayoutRepo:  payoutRepo,
		EarningRepo: earningRepo,
		cycles:      cycles,
		fees:        fees,
		gateway:     gw,
		clock:       clk,
		config:      config,
		logger:      logger.Named("payout"),
	}
}

// CreatePayoutsForCycle creates one pending payout per professional with a
// positive balance in a processing or failed cycle. The amount is gross minus
// fees summed over the cycle's earnings. The cycle is sealed first so no
// earning lands in it after the totals are read. Re-running creates nothing new.
func (s *PayoutService) CreatePayoutsForCycle(ctx context.Context, cycleID uuid.UUID) (int, error) {
	cycle, err := s.cycles.CycleRepo.GetByID(ctx, cycleID)
	if err != nil {
		return 0, notFoundOr(err, customError.ErrCycleNotFound, cycleID)
	}
	if cycle.Status != domain.CycleStatusProcessing && cycle.Status != domain.CycleStatusFailed {
		return 0, customError.WrapCycleState(customError.ErrCycleNotProcessing, cycleID.String(), cycle.Status)
	}
	if err := s.cycles.Seal(ctx, cycleID); err != nil {
		return 0, err
	}

	totals, err := s.EarningRepo.TotalsByProfessional(ctx, cycleID)
	if err != nil {
		return 0, customError.WrapDatabaseError(err)
	}

	now := s.clock.Now()
	created := 0
	for _, t := range totals {
		amount := t.Gross.Sub(t.Fee)
		if !amount.IsPositive() {
			continue
		}
		ok, err := s.PayoutRepo.Create(ctx, &domain.Payout{
			ID:             uuid.New(),
			ProfessionalID: t.ProfessionalID,
			CycleID:        cycleID,
			Amount:         amount,
			Status:         domain.PayoutStatusPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		if err != nil {
			return created, customError.WrapDatabaseError(err)
		}
		if ok {
			created++
		}
	}

	s.logger.Info("payouts created", zap.String("cycle_id", cycleID.String()), zap.Int("count", created))
	return created, nil
}

// ProcessPayoutsForCycle sends every pending payout of a closed cycle to the
// gateway. One payout failing does not stop the others.
func (s *PayoutService) ProcessPayoutsForCycle(ctx context.Context, cycleID uuid.UUID) (*domain.BatchReport, error) {
	report := domain.NewBatchReport(domain.BatchKindPayout)

	cycle, err := s.cycles.CycleRepo.GetByID(ctx, cycleID)
	if err != nil {
		return report, notFoundOr(err, customError.ErrCycleNotFound, cycleID)
	}
	if cycle.IsOpen() {
		return report, customError.WrapCycleState(customError.ErrCycleStillOpen, cycleID.String(), cycle.Status)
	}

	payouts, err := s.PayoutRepo.ListByCycle(ctx, cycleID, []string{domain.PayoutStatusPending})
	if err != nil {
		return report, customError.WrapDatabaseError(err)
	}

	s.send(ctx, payouts, []string{domain.PayoutStatusPending}, report)
	return report, nil
}

// RetryFailedPayouts re-sends failed payouts below the attempt bound. Each
// retry gets a fresh idempotency key.
func (s *PayoutService) RetryFailedPayouts(ctx context.Context) (*domain.BatchReport, error) {
	report := domain.NewBatchReport(domain.BatchKindPayout)

	payouts, err := s.PayoutRepo.ListRetryable(ctx, s.config.Business.PayoutMaxAttempts)
	if err != nil {
		return report, customError.WrapDatabaseError(err)
	}

	s.send(ctx, payouts, []string{domain.PayoutStatusFailed}, report)
	return report, nil
}

func (s *PayoutService) send(ctx context.Context, payouts []*domain.Payout, from []string, report *domain.BatchReport) {
	dispatch(ctx, s.config.Business.DispatchConcurrency, payouts, report,
		func(ctx context.Context, payout *domain.Payout) (domain.ItemResult, []domain.Notification) {
			return s.sendOne(ctx, payout, from)
		})
}

func (s *PayoutService) sendOne(ctx context.Context, payout *domain.Payout, from []string) (domain.ItemResult, []domain.Notification) {
	item := domain.ItemResult{EntityID: payout.ID}

	claimed, err := s.PayoutRepo.Claim(ctx, payout.ID, from, s.clock.Now())
	if err != nil {
		item.Outcome, item.Err = domain.ItemFailed, customError.WrapDatabaseError(err)
		return item, nil
	}
	if claimed == nil {
		item.Outcome = domain.ItemSkipped
		return item, nil
	}

	result, err := s.gateway.Payout(ctx, gateway.PayoutRequest{
		IdempotencyKey: claimed.IdempotencyKey(),
		ProfessionalID: claimed.ProfessionalID,
		Amount:         claimed.Amount,
		Currency:       s.config.Business.Currency,
		Description:    fmt.Sprintf("Earnings for cycle %s", claimed.CycleID),
	})
	if errors.Is(err, gateway.ErrIndeterminate) {
		s.logger.Warn("payout outcome unknown; left processing",
			zap.String("payout_id", claimed.ID.String()),
			zap.String("idempotency_key", claimed.IdempotencyKey()),
			zap.Error(err))
		item.Outcome = domain.ItemIndeterminate
		return item, nil
	}
	if err != nil {
		return s.fail(ctx, claimed, err.Error())
	}
	return s.applyResult(ctx, claimed, result)
}

func (s *PayoutService) applyResult(ctx context.Context, payout *domain.Payout, result *gateway.Result) (domain.ItemResult, []domain.Notification) {
	item := domain.ItemResult{EntityID: payout.ID}
	now := s.clock.Now()

	switch result.Outcome {
	case gateway.OutcomeSucceeded:
		ok, err := s.PayoutRepo.Complete(ctx, payout.ID, result.Reference, now)
		if err != nil {
			item.Outcome, item.Err = domain.ItemFailed, customError.WrapDatabaseError(err)
			return item, nil
		}
		if !ok {
			item.Outcome = domain.ItemSkipped
			return item, nil
		}
		s.logger.Info("payout completed",
			zap.String("payout_id", payout.ID.String()),
			zap.String("professional_id", payout.ProfessionalID.String()),
			zap.String("amount", payout.Amount.StringFixed(2)))
		item.Outcome = domain.ItemSucceeded
		return item, []domain.Notification{
			newNotification(domain.NotificationPayoutCompleted, payout.ProfessionalID, payout.ID, now, map[string]string{
				"amount":    payout.Amount.StringFixed(2),
				"reference": result.Reference,
			}),
		}

	case gateway.OutcomeDeclined:
		reason := result.DeclineReason
		if reason == "" {
			reason = "payout declined"
		}
		return s.fail(ctx, payout, reason)

	default:
		item.Outcome = domain.ItemIndeterminate
		return item, nil
	}
}

func (s *PayoutService) fail(ctx context.Context, payout *domain.Payout, reason string) (domain.ItemResult, []domain.Notification) {
	item := domain.ItemResult{EntityID: payout.ID, Outcome: domain.ItemFailed}
	now := s.clock.Now()

	ok, err := s.PayoutRepo.Fail(ctx, payout.ID, reason, now)
	if err != nil {
		item.Err = customError.WrapDatabaseError(err)
		return item, nil
	}
	if !ok {
		item.Outcome = domain.ItemSkipped
		return item, nil
	}
	item.Err = errors.New(reason)

	s.logger.Warn("payout failed",
		zap.String("payout_id", payout.ID.String()),
		zap.Int("attempts", payout.Attempts),
		zap.String("reason", reason))

	return item, []domain.Notification{
		newNotification(domain.NotificationPayoutFailed, payout.ProfessionalID, payout.ID, now, map[string]string{
			"amount":   payout.Amount.StringFixed(2),
			"reason":   reason,
			"attempts": fmt.Sprintf("%d", payout.Attempts),
		}),
	}
}

// ReconcileProcessing settles payouts whose gateway outcome was unknown by
// looking them up under the idempotency key of their last attempt.
func (s *PayoutService) ReconcileProcessing(ctx context.Context) (*domain.BatchReport, error) {
	report := domain.NewBatchReport(domain.BatchKindPayout)
	cutoff := s.clock.Now().Add(-s.config.GetReconcileAfter())

	stale, err := s.PayoutRepo.ListStaleProcessing(ctx, cutoff)
	if err != nil {
		return report, customError.WrapDatabaseError(err)
	}

	dispatch(ctx, s.config.Business.DispatchConcurrency, stale, report,
		func(ctx context.Context, payout *domain.Payout) (domain.ItemResult, []domain.Notification) {
			result, err := s.gateway.Lookup(ctx, payout.IdempotencyKey())
			switch {
			case errors.Is(err, gateway.ErrNotFound):
				return s.fail(ctx, payout, "payout never reached the gateway")
			case err != nil:
				return domain.ItemResult{EntityID: payout.ID, Outcome: domain.ItemIndeterminate}, nil
			}
			return s.applyResult(ctx, payout, result)
		})
	return report, nil
}

// ProcessAllReadyCycles is the weekly payout run. Outcomes left unknown by
// earlier runs are reconciled and failed items retried first; then every
// cycle past its cutoff gets its payouts and fee charges created and sent.
// A cycle is completed even when some of its items failed, but stays
// processing while any gateway outcome is unknown; it is marked failed only
// when its run could not finish.
func (s *PayoutService) ProcessAllReadyCycles(ctx context.Context) (*domain.ReadyCyclesReport, error) {
	report := &domain.ReadyCyclesReport{
		PayoutErrors:    []string{},
		FeeChargeErrors: []string{},
	}

	carryOver := []struct {
		kind string
		run  func(context.Context) (*domain.BatchReport, error)
	}{
		{domain.BatchKindPayout, s.ReconcileProcessing},
		{domain.BatchKindFeeCharge, s.fees.ReconcileProcessing},
		{domain.BatchKindPayout, s.RetryFailedPayouts},
		{domain.BatchKindFeeCharge, s.fees.RetryFailedCharges},
	}
	for _, stage := range carryOver {
		batch, err := stage.run(ctx)
		report.Merge(stage.kind, batch)
		if err != nil {
			return report, err
		}
	}

	cycles, err := s.cycles.ListReady(ctx)
	if err != nil {
		return report, err
	}

	for _, cycle := range cycles {
		if err := s.ProcessCycle(ctx, cycle, report); err != nil {
			report.CyclesFailed++
			report.PayoutErrors = append(report.PayoutErrors, fmt.Sprintf("cycle %s: %v", cycle.ID, err))
			s.logger.Error("cycle run failed", zap.String("cycle_id", cycle.ID.String()), zap.Error(err))

			if !customError.IsStateConflict(err) {
				if markErr := s.cycles.MarkFailed(ctx, cycle.ID, err.Error()); markErr != nil {
					s.logger.Error("failed to mark cycle failed", zap.String("cycle_id", cycle.ID.String()), zap.Error(markErr))
				}
			}
			continue
		}
	}

	s.logger.Info("payout run finished",
		zap.Int("cycles_processed", report.CyclesProcessed),
		zap.Int("cycles_failed", report.CyclesFailed),
		zap.Int("payouts_processed", report.PayoutsProcessed),
		zap.Int("payouts_failed", report.PayoutsFailed),
		zap.Int("fee_charges_processed", report.FeeChargesProcessed),
		zap.Int("fee_charges_failed", report.FeeChargesFailed))
	return report, nil
}

// ProcessCycle runs one ready cycle end to end, folding its outcomes into report.
// The cycle is completed only once none of its payouts or fee charges are
// still processing.
func (s *PayoutService) ProcessCycle(ctx context.Context, cycle *domain.Cycle, report *domain.ReadyCyclesReport) error {
	if err := s.cycles.BeginProcessing(ctx, cycle); err != nil {
		return err
	}

	created, err := s.CreatePayoutsForCycle(ctx, cycle.ID)
	report.PayoutsCreated += created
	if err != nil {
		return err
	}
	feesCreated, err := s.fees.CreateFeeChargesForCycle(ctx, cycle.ID)
	report.FeeChargesCreated += feesCreated
	if err != nil {
		return err
	}

	payouts, err := s.ProcessPayoutsForCycle(ctx, cycle.ID)
	report.Merge(domain.BatchKindPayout, payouts)
	if err != nil {
		return err
	}
	charges, err := s.fees.ProcessFeeChargesForCycle(ctx, cycle.ID)
	report.Merge(domain.BatchKindFeeCharge, charges)
	if err != nil {
		return err
	}

	inFlight, err := s.inFlight(ctx, cycle.ID)
	if err != nil {
		return err
	}
	if inFlight > 0 {
		report.CyclesUnsettled++
		s.logger.Info("cycle left processing until gateway outcomes are known",
			zap.String("cycle_id", cycle.ID.String()),
			zap.Int("in_flight", inFlight))
		return nil
	}

	if err := s.cycles.MarkCompleted(ctx, cycle.ID); err != nil {
		return err
	}
	report.CyclesProcessed++
	return nil
}

// inFlight counts a cycle's payouts and fee charges still awaiting a gateway outcome.
func (s *PayoutService) inFlight(ctx context.Context, cycleID uuid.UUID) (int, error) {
	payouts, err := s.PayoutRepo.ListByCycle(ctx, cycleID, []string{domain.PayoutStatusProcessing})
	if err != nil {
		return 0, customError.WrapDatabaseError(err)
	}
	charges, err := s.fees.FeeChargeRepo.ListByCycle(ctx, cycleID, []string{domain.FeeChargeStatusProcessing})
	if err != nil {
		return 0, customError.WrapDatabaseError(err)
	}
	return len(payouts) + len(charges), nil
}

// ProcessCycleByID runs a single cycle on admin request. Like the weekly run
// it refuses a cycle whose cutoff has not passed.
func (s *PayoutService) ProcessCycleByID(ctx context.Context, cycleID uuid.UUID) (*domain.ReadyCyclesReport, error) {
	cycle, err := s.cycles.CycleRepo.GetByID(ctx, cycleID)
	if err != nil {
		return nil, notFoundOr(err, customError.ErrCycleNotFound, cycleID)
	}
	if cycle.Status == domain.CycleStatusCompleted {
		return nil, customError.WrapCycleState(customError.ErrCycleNotProcessing, cycleID.String(), cycle.Status)
	}
	if s.clock.Now().Before(cycle.CutoffDate) {
		return nil, customError.WrapCycleState(customError.ErrCycleStillOpen, cycleID.String(), cycle.Status)
	}

	report := &domain.ReadyCyclesReport{
		PayoutErrors:    []string{},
		FeeChargeErrors: []string{},
	}
	if err := s.ProcessCycle(ctx, cycle, report); err != nil {
		report.CyclesFailed++
		if !customError.IsStateConflict(err) {
			if markErr := s.cycles.MarkFailed(ctx, cycle.ID, err.Error()); markErr != nil {
				s.logger.Error("failed to mark cycle failed", zap.String("cycle_id", cycle.ID.String()), zap.Error(markErr))
			}
		}
		return report, err
	}
	return report, nil
}

// ListForProfessional returns the professional's payouts with an estimate of
// the next one from the current cycle's earnings.
func (s *PayoutService) ListForProfessional(ctx context.Context, professionalID uuid.UUID) (*domain.PayoutHistoryResponse, error) {
	payouts, err := s.PayoutRepo.ListByProfessional(ctx, professionalID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	if payouts == nil {
		payouts = []*domain.Payout{}
	}

	cycle, err := s.cycles.GetOrCreateCurrentCycle(ctx)
	if err != nil {
		return nil, err
	}
	totals, err := s.EarningRepo.TotalsForProfessional(ctx, professionalID, &cycle.ID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	estimate := totals.Gross.Sub(totals.Fee)
	if estimate.IsNegative() {
		estimate = decimal.Zero
	}
	return &domain.PayoutHistoryResponse{
		Payouts:          payouts,
		UpcomingEstimate: estimate,
		UpcomingCycle:    cycle,
	}, nil
}
