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
	"github.com/segyhp/payout-engine/internal/gateway"
	"github.com/segyhp/payout-engine/internal/repository"
	customError "github.com/segyhp/payout-engine/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type FeeChargeService struct {
	FeeChargeRepo     repository.FeeChargeRepository
	PaymentMethodRepo repository.PaymentMethodRepository
	EarningRepo       repository.EarningRepository
	cycles            *CycleService
	gateway           gateway.Gateway
	clock             clock.Clock
	config            *config.Config
	logger            *zap.Logger
}

func NewFeeChargeService(
	feeChargeRepo repository.FeeChargeRepository,
	paymentMethodRepo repository.PaymentMethodRepository,
	earningRepo repository.EarningRepository,
	cycles *CycleService,
	gw gateway.Gateway,
	clk clock.Clock,
	config *config.Config,
	logger *zap.Logger,
) *FeeChargeService {
	return &FeeChargeService{
		FeeChargeRepo:     feeChargeRepo,
		PaymentMethodRepo: paymentMethodRepo,
		EarningRepo:       earningRepo,
		cycles:            cycles,
		gateway:           gw,
		clock:             clk,
		config:            config,
		logger:            logger.Named("fee_charge"),
	}
}

func (s *FeeChargeService) closedCycle(ctx context.Context, cycleID uuid.UUID) (*domain.Cycle, error) {
	cycle, err := s.cycles.CycleRepo.GetByID(ctx, cycleID)
	if err != nil {
		return nil, notFoundOr(err, customError.ErrCycleNotFound, cycleID)
	}
	if cycle.IsOpen() {
		return nil, customError.WrapCycleState(customError.ErrCycleStillOpen, cycleID.String(), cycle.Status)
	}
	return cycle, nil
}

// CreateFeeChargesForCycle creates one pending charge per professional equal
// to the sum of their per-session platform fees. Re-running creates nothing new.
func (s *FeeChargeService) CreateFeeChargesForCycle(ctx context.Context, cycleID uuid.UUID) (int, error) {
	if _, err := s.closedCycle(ctx, cycleID); err != nil {
		return 0, err
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
		if !t.Fee.IsPositive() {
			continue
		}
		ok, err := s.FeeChargeRepo.Create(ctx, &domain.FeeCharge{
			ID:             uuid.New(),
			ProfessionalID: t.ProfessionalID,
			CycleID:        cycleID,
			Amount:         t.Fee,
			AmountPaid:     decimal.Zero,
			Status:         domain.FeeChargeStatusPending,
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

	s.logger.Info("fee charges created", zap.String("cycle_id", cycleID.String()), zap.Int("count", created))
	return created, nil
}

// ProcessFeeChargesForCycle charges every pending fee charge of a closed cycle.
func (s *FeeChargeService) ProcessFeeChargesForCycle(ctx context.Context, cycleID uuid.UUID) (*domain.BatchReport, error) {
	report := domain.NewBatchReport(domain.BatchKindFeeCharge)
	if _, err := s.closedCycle(ctx, cycleID); err != nil {
		return report, err
	}

	charges, err := s.FeeChargeRepo.ListByCycle(ctx, cycleID, []string{domain.FeeChargeStatusPending})
	if err != nil {
		return report, customError.WrapDatabaseError(err)
	}

	s.charge(ctx, charges, []string{domain.FeeChargeStatusPending}, report)
	return report, nil
}

// RetryFailedCharges re-attempts declined and partially paid charges that
// have not reached the failure bound.
func (s *FeeChargeService) RetryFailedCharges(ctx context.Context) (*domain.BatchReport, error) {
	report := domain.NewBatchReport(domain.BatchKindFeeCharge)

	charges, err := s.FeeChargeRepo.ListRetryable(ctx, s.config.Business.FeeChargeMaxFailures)
	if err != nil {
		return report, customError.WrapDatabaseError(err)
	}

	s.charge(ctx, charges, []string{domain.FeeChargeStatusFailed, domain.FeeChargeStatusPartiallyPaid}, report)
	return report, nil
}

func (s *FeeChargeService) charge(ctx context.Context, charges []*domain.FeeCharge, from []string, report *domain.BatchReport) {
	dispatch(ctx, s.config.Business.DispatchConcurrency, charges, report,
		func(ctx context.Context, charge *domain.FeeCharge) (domain.ItemResult, []domain.Notification) {
			return s.chargeOne(ctx, charge, from)
		})
}

func (s *FeeChargeService) chargeOne(ctx context.Context, charge *domain.FeeCharge, from []string) (domain.ItemResult, []domain.Notification) {
	item := domain.ItemResult{EntityID: charge.ID}

	method, err := s.PaymentMethodRepo.Get(ctx, charge.ProfessionalID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		item.Outcome, item.Err = domain.ItemFailed, customError.WrapDatabaseError(err)
		return item, nil
	}

	now := s.clock.Now()
	claimed, err := s.FeeChargeRepo.Claim(ctx, charge.ID, from, now)
	if err != nil {
		item.Outcome, item.Err = domain.ItemFailed, customError.WrapDatabaseError(err)
		return item, nil
	}
	if claimed == nil {
		item.Outcome = domain.ItemSkipped
		return item, nil
	}

	if !method.HasCard() {
		return s.fail(ctx, claimed, domain.FailureReasonNoPaymentMethod, domain.BlockReasonNoPaymentMethod, true, method)
	}

	result, err := s.gateway.Charge(ctx, gateway.ChargeRequest{
		IdempotencyKey: claimed.IdempotencyKey(),
		ProfessionalID: claimed.ProfessionalID,
		PaymentToken:   *method.GatewayToken,
		Amount:         claimed.Remaining(),
		Currency:       s.config.Business.Currency,
		Description:    fmt.Sprintf("Platform fees for cycle %s", claimed.CycleID),
	})
	if errors.Is(err, gateway.ErrIndeterminate) {
		s.logger.Warn("fee charge outcome unknown; left processing",
			zap.String("fee_charge_id", claimed.ID.String()),
			zap.String("idempotency_key", claimed.IdempotencyKey()),
			zap.Error(err))
		item.Outcome = domain.ItemIndeterminate
		return item, nil
	}
	if err != nil {
		return s.fail(ctx, claimed, err.Error(), domain.BlockReasonRepeatedDeclines, false, method)
	}
	return s.applyResult(ctx, claimed, result, method)
}

// applyResult records a settled gateway answer for a processing charge.
func (s *FeeChargeService) applyResult(ctx context.Context, charge *domain.FeeCharge, result *gateway.Result, method *domain.PaymentMethod) (domain.ItemResult, []domain.Notification) {
	item := domain.ItemResult{EntityID: charge.ID}
	now := s.clock.Now()

	switch result.Outcome {
	case gateway.OutcomeSucceeded:
		if _, err := s.FeeChargeRepo.Complete(ctx, charge.ID, result.Reference, now); err != nil {
			item.Outcome, item.Err = domain.ItemFailed, customError.WrapDatabaseError(err)
			return item, nil
		}
		item.Outcome = domain.ItemSucceeded
		return item, nil

	case gateway.OutcomePartial:
		if _, err := s.FeeChargeRepo.PartiallyPay(ctx, charge.ID, result.Captured, result.Reference, now); err != nil {
			item.Outcome, item.Err = domain.ItemFailed, customError.WrapDatabaseError(err)
			return item, nil
		}
		if result.Captured.GreaterThanOrEqual(charge.Remaining()) {
			item.Outcome = domain.ItemSucceeded
			return item, nil
		}
		item.Outcome = domain.ItemFailed
		item.Err = fmt.Errorf("partially captured %s of %s", result.Captured.StringFixed(2), charge.Remaining().StringFixed(2))
		return item, nil

	case gateway.OutcomeDeclined:
		reason := result.DeclineReason
		if reason == "" {
			reason = "card declined"
		}
		return s.fail(ctx, charge, reason, domain.BlockReasonRepeatedDeclines, false, method)

	default:
		item.Outcome = domain.ItemIndeterminate
		return item, nil
	}
}

// fail marks a processing charge failed. The professional is blocked
// immediately when blockNow is set, otherwise once the retry count reaches
// the configured bound.
func (s *FeeChargeService) fail(ctx context.Context, charge *domain.FeeCharge, reason, blockReason string, blockNow bool, method *domain.PaymentMethod) (domain.ItemResult, []domain.Notification) {
	item := domain.ItemResult{EntityID: charge.ID, Outcome: domain.ItemFailed}
	now := s.clock.Now()

	retries, err := s.FeeChargeRepo.Fail(ctx, charge.ID, reason, now)
	if err != nil {
		item.Err = customError.WrapDatabaseError(err)
		return item, nil
	}
	item.Err = errors.New(reason)

	notifications := []domain.Notification{
		newNotification(domain.NotificationFeeChargeFailed, charge.ProfessionalID, charge.ID, now, map[string]string{
			"reason":      reason,
			"amount":      charge.Remaining().StringFixed(2),
			"retry_count": fmt.Sprintf("%d", retries),
		}),
	}

	s.logger.Warn("fee charge failed",
		zap.String("fee_charge_id", charge.ID.String()),
		zap.String("professional_id", charge.ProfessionalID.String()),
		zap.Int("retry_count", retries),
		zap.String("reason", reason))

	alreadyBlocked := method != nil && method.Blocked
	if alreadyBlocked || (!blockNow && retries < s.config.Business.FeeChargeMaxFailures) {
		return item, notifications
	}

	if err := s.PaymentMethodRepo.Block(ctx, charge.ProfessionalID, blockReason, now); err != nil {
		item.Err = customError.WrapDatabaseError(err)
		return item, notifications
	}
	s.logger.Warn("professional blocked",
		zap.String("professional_id", charge.ProfessionalID.String()),
		zap.String("reason", blockReason))
	notifications = append(notifications, newNotification(domain.NotificationProfessionalBlocked, charge.ProfessionalID, charge.ProfessionalID, now,
		map[string]string{"reason": blockReason}))
	return item, notifications
}

// ReconcileProcessing settles charges whose gateway outcome was unknown by
// looking them up under the idempotency key of their last attempt.
func (s *FeeChargeService) ReconcileProcessing(ctx context.Context) (*domain.BatchReport, error) {
	report := domain.NewBatchReport(domain.BatchKindFeeCharge)
	cutoff := s.clock.Now().Add(-s.config.GetReconcileAfter())

	stale, err := s.FeeChargeRepo.ListStaleProcessing(ctx, cutoff)
	if err != nil {
		return report, customError.WrapDatabaseError(err)
	}

	dispatch(ctx, s.config.Business.DispatchConcurrency, stale, report,
		func(ctx context.Context, charge *domain.FeeCharge) (domain.ItemResult, []domain.Notification) {
			method, err := s.PaymentMethodRepo.Get(ctx, charge.ProfessionalID)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return domain.ItemResult{EntityID: charge.ID, Outcome: domain.ItemFailed, Err: customError.WrapDatabaseError(err)}, nil
			}

			result, err := s.gateway.Lookup(ctx, charge.IdempotencyKey())
			switch {
			case errors.Is(err, gateway.ErrNotFound):
				return s.fail(ctx, charge, "charge never reached the gateway", domain.BlockReasonRepeatedDeclines, false, method)
			case err != nil:
				return domain.ItemResult{EntityID: charge.ID, Outcome: domain.ItemIndeterminate}, nil
			}
			return s.applyResult(ctx, charge, result, method)
		})
	return report, nil
}

// GetPendingFeeTotal sums what the professional still owes.
func (s *FeeChargeService) GetPendingFeeTotal(ctx context.Context, professionalID uuid.UUID) (decimal.Decimal, error) {
	total, err := s.FeeChargeRepo.PendingTotal(ctx, professionalID)
	if err != nil {
		return decimal.Zero, customError.WrapDatabaseError(err)
	}
	return total, nil
}

func (s *FeeChargeService) ListForProfessional(ctx context.Context, professionalID uuid.UUID) (*domain.FeeChargeHistoryResponse, error) {
	charges, err := s.FeeChargeRepo.ListByProfessional(ctx, professionalID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	if charges == nil {
		charges = []*domain.FeeCharge{}
	}
	pending, err := s.GetPendingFeeTotal(ctx, professionalID)
	if err != nil {
		return nil, err
	}
	method, err := s.paymentMethod(ctx, professionalID)
	if err != nil {
		return nil, err
	}

	return &domain.FeeChargeHistoryResponse{
		FeeCharges:   charges,
		PendingTotal: pending,
		Blocked:      method != nil && method.Blocked,
	}, nil
}

func (s *FeeChargeService) paymentMethod(ctx context.Context, professionalID uuid.UUID) (*domain.PaymentMethod, error) {
	method, err := s.PaymentMethodRepo.Get(ctx, professionalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return method, nil
}

// WaiveFeeCharge forgives an outstanding charge and lifts the professional's
// block once nothing else is owed.
func (s *FeeChargeService) WaiveFeeCharge(ctx context.Context, chargeID uuid.UUID, actor domain.Actor, reason string) (*domain.FeeCharge, error) {
	if !actor.IsAdmin() {
		return nil, customError.WrapAdminRequired()
	}
	if len(reason) < 3 {
		return nil, customError.WrapValidation("waive reason is required")
	}

	charge, err := s.FeeChargeRepo.GetByID(ctx, chargeID)
	if err != nil {
		return nil, notFoundOr(err, customError.ErrFeeChargeNotFound, chargeID)
	}

	now := s.clock.Now()
	ok, err := s.FeeChargeRepo.Waive(ctx, chargeID, actor.UserID, reason, now)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	if !ok {
		return nil, customError.WrapFeeChargeNotWaivable(chargeID.String(), charge.Status)
	}
	s.logger.Info("fee charge waived",
		zap.String("fee_charge_id", chargeID.String()),
		zap.String("admin_id", actor.UserID.String()))

	pending, err := s.GetPendingFeeTotal(ctx, charge.ProfessionalID)
	if err != nil {
		return nil, err
	}
	if pending.IsZero() {
		method, err := s.paymentMethod(ctx, charge.ProfessionalID)
		if err != nil {
			return nil, err
		}
		if method != nil && method.Blocked {
			if err := s.PaymentMethodRepo.Unblock(ctx, charge.ProfessionalID, now); err != nil {
				return nil, customError.WrapDatabaseError(err)
			}
			s.logger.Info("professional unblocked after waiver", zap.String("professional_id", charge.ProfessionalID.String()))
		}
	}

	updated, err := s.FeeChargeRepo.GetByID(ctx, chargeID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return updated, nil
}

// UnblockProfessional lifts a block by admin decision. Outstanding charges
// get a fresh retry budget.
func (s *FeeChargeService) UnblockProfessional(ctx context.Context, professionalID uuid.UUID, actor domain.Actor) error {
	if !actor.IsAdmin() {
		return customError.WrapAdminRequired()
	}
	now := s.clock.Now()
	if err := s.PaymentMethodRepo.Unblock(ctx, professionalID, now); err != nil {
		return customError.WrapDatabaseError(err)
	}
	if err := s.FeeChargeRepo.ResetRetryCounts(ctx, professionalID, now); err != nil {
		return customError.WrapDatabaseError(err)
	}
	s.logger.Info("professional unblocked",
		zap.String("professional_id", professionalID.String()),
		zap.String("admin_id", actor.UserID.String()))
	return nil
}

func (s *FeeChargeService) ListBlocked(ctx context.Context) ([]*domain.BlockedProfessional, error) {
	blocked, err := s.PaymentMethodRepo.ListBlocked(ctx)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	if blocked == nil {
		blocked = []*domain.BlockedProfessional{}
	}
	return blocked, nil
}

func (s *FeeChargeService) GetPaymentMethodStatus(ctx context.Context, professionalID uuid.UUID) (*domain.PaymentMethodStatusResponse, error) {
	method, err := s.paymentMethod(ctx, professionalID)
	if err != nil {
		return nil, err
	}
	pending, err := s.GetPendingFeeTotal(ctx, professionalID)
	if err != nil {
		return nil, err
	}
	return &domain.PaymentMethodStatusResponse{
		PaymentMethod: method,
		HasCard:       method.HasCard(),
		Blocked:       method != nil && method.Blocked,
		PendingTotal:  pending,
	}, nil
}

// UpdatePaymentMethod stores a new card. A new card lifts any block and
// gives outstanding charges a fresh retry budget.
func (s *FeeChargeService) UpdatePaymentMethod(ctx context.Context, req domain.UpdatePaymentMethodRequest) (*domain.PaymentMethod, error) {
	now := s.clock.Now()
	method := &domain.PaymentMethod{
		ProfessionalID: req.ProfessionalID,
		CardBrand:      &req.CardBrand,
		CardLast4:      &req.CardLast4,
		ExpMonth:       &req.ExpMonth,
		ExpYear:        &req.ExpYear,
		GatewayToken:   &req.GatewayToken,
		UpdatedAt:      now,
	}
	if expired(req.ExpYear, req.ExpMonth, now) {
		return nil, customError.WrapValidation("card has expired")
	}

	if err := s.PaymentMethodRepo.Upsert(ctx, method); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	if err := s.FeeChargeRepo.ResetRetryCounts(ctx, req.ProfessionalID, now); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	s.logger.Info("payment method updated", zap.String("professional_id", req.ProfessionalID.String()))
	return method, nil
}

func expired(year, month int, now time.Time) bool {
	// a card is valid through the last day of its expiry month
	firstInvalid := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return !now.Before(firstInvalid)
}

// RemovePaymentMethod deletes the stored card unless fees are outstanding.
func (s *FeeChargeService) RemovePaymentMethod(ctx context.Context, professionalID uuid.UUID) error {
	pending, err := s.GetPendingFeeTotal(ctx, professionalID)
	if err != nil {
		return err
	}
	if pending.IsPositive() {
		return customError.WrapOutstandingFees(professionalID.String(), pending.StringFixed(2))
	}
	if err := s.PaymentMethodRepo.RemoveCard(ctx, professionalID, s.clock.Now()); err != nil {
		return customError.WrapDatabaseError(err)
	}
	return nil
}

// EnsureCanAcceptAppointments rejects blocked professionals and those whose
// outstanding fees exceed the configured threshold.
func (s *FeeChargeService) EnsureCanAcceptAppointments(ctx context.Context, professionalID uuid.UUID) error {
	method, err := s.paymentMethod(ctx, professionalID)
	if err != nil {
		return err
	}
	if method != nil && method.Blocked {
		reason := ""
		if method.BlockedReason != nil {
			reason = *method.BlockedReason
		}
		return customError.WrapProfessionalBlocked(professionalID.String(), reason)
	}

	pending, err := s.GetPendingFeeTotal(ctx, professionalID)
	if err != nil {
		return err
	}
	if pending.GreaterThan(s.config.GetFeeBlockThreshold()) {
		return customError.WrapOutstandingFees(professionalID.String(), pending.StringFixed(2))
	}
	return nil
}
