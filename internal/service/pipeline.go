package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/segyhp/payout-engine/internal/clock"
	"github.com/segyhp/payout-engine/internal/config"
	"github.com/segyhp/payout-engine/internal/domain"
	customError "github.com/segyhp/payout-engine/pkg/errors"
	"go.uber.org/zap"
)

// ConfirmationSweeper is the confirmation side of a pipeline run.
type ConfirmationSweeper interface {
	SweepEndedAppointments(ctx context.Context) (*domain.BatchReport, error)
	AutoConfirmSweep(ctx context.Context) (*domain.BatchReport, error)
}

// CycleRoller closes expired cycles and opens the next one.
type CycleRoller interface {
	Rollover(ctx context.Context) (int64, error)
}

// PayoutRunner moves money for every cycle past its cutoff.
type PayoutRunner interface {
	ProcessAllReadyCycles(ctx context.Context) (*domain.ReadyCyclesReport, error)
}

// Pipeline is the single entry point the scheduler, the lambda and the
// internal HTTP endpoint invoke.
type Pipeline struct {
	confirmations ConfirmationSweeper
	cycles        CycleRoller
	payouts       PayoutRunner
	notifier      Notifier
	runs          RunStore
	clock         clock.Clock
	config        *config.Config
	logger        *zap.Logger
}

func NewPipeline(
	confirmations ConfirmationSweeper,
	cycles CycleRoller,
	payouts PayoutRunner,
	notifier Notifier,
	runs RunStore,
	clk clock.Clock,
	config *config.Config,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		confirmations: confirmations,
		cycles:        cycles,
		payouts:       payouts,
		notifier:      notifier,
		runs:          runs,
		clock:         clk,
		config:        config,
		logger:        logger.Named("pipeline"),
	}
}

// Run executes the stages selected by the trigger. A request id that already
// finished without errors returns the stored result instead of running again.
// Overlapping runs of the same trigger are skipped.
func (p *Pipeline) Run(ctx context.Context, req domain.PipelineRequest) (*domain.PipelineResult, error) {
	req.RequestID = strings.TrimSpace(req.RequestID)
	if req.RequestID == "" {
		return nil, customError.WrapValidation("request_id is required")
	}
	if !domain.ValidTrigger(req.Trigger) {
		return nil, customError.WrapValidation(fmt.Sprintf("unknown trigger %q", req.Trigger))
	}

	log := p.logger.With(zap.String("trigger", req.Trigger), zap.String("request_id", req.RequestID))
	result := domain.NewPipelineResult(req, p.clock.Now())

	if p.runs != nil {
		previous, err := p.runs.GetResult(ctx, req.RequestID)
		switch {
		case err == nil && previous.Trigger != req.Trigger:
			return nil, customError.WrapValidation(fmt.Sprintf(
				"request_id %q was already used for trigger %q", req.RequestID, previous.Trigger))
		case err == nil && previous.Success && !previous.HasErrors():
			log.Info("request already completed; returning stored result")
			previous.Replayed = true
			return previous, nil
		case err != nil && !errors.Is(err, customError.ErrPipelineRunNotFound):
			log.Warn("failed to read stored run", zap.Error(err))
		}

		token, acquired, err := p.runs.AcquireLock(ctx, req.Trigger, p.config.GetRunLockTTL())
		if err != nil {
			return p.abort(result, err), nil
		}
		if !acquired {
			log.Info("another run holds the lock; skipping")
			result.Skipped = true
			result.FinishedAt = p.clock.Now()
			return result, nil
		}
		defer func() {
			if err := p.runs.ReleaseLock(context.WithoutCancel(ctx), req.Trigger, token); err != nil {
				log.Warn("failed to release run lock", zap.Error(err))
			}
		}()
	}

	log.Info("pipeline run started")
	var notifications []domain.Notification

	if req.Trigger == domain.TriggerDailyConfirmation || req.Trigger == domain.TriggerManual {
		report, err := p.confirmations.SweepEndedAppointments(ctx)
		result.ConfirmationsCreated += report.Succeeded
		result.ConfirmationErrors = append(result.ConfirmationErrors, report.ErrorMessages()...)
		notifications = append(notifications, report.Notifications...)
		if err != nil {
			result.ConfirmationErrors = append(result.ConfirmationErrors, err.Error())
		}
	}

	if req.Trigger == domain.TriggerAutoConfirm || req.Trigger == domain.TriggerManual {
		report, err := p.confirmations.AutoConfirmSweep(ctx)
		result.AutoConfirmed += report.Succeeded
		result.ConfirmationErrors = append(result.ConfirmationErrors, report.ErrorMessages()...)
		notifications = append(notifications, report.Notifications...)
		if err != nil {
			result.ConfirmationErrors = append(result.ConfirmationErrors, err.Error())
		}
	}

	if req.Trigger == domain.TriggerWeeklyPayout || req.Trigger == domain.TriggerManual {
		if _, err := p.cycles.Rollover(ctx); err != nil {
			result.PayoutErrors = append(result.PayoutErrors, fmt.Sprintf("rollover: %v", err))
		}

		report, err := p.payouts.ProcessAllReadyCycles(ctx)
		if report != nil {
			result.CyclesProcessed += report.CyclesProcessed
			result.CyclesUnsettled += report.CyclesUnsettled
			result.PayoutsProcessed += report.PayoutsProcessed
			result.PayoutsFailed += report.PayoutsFailed
			result.PayoutErrors = append(result.PayoutErrors, report.PayoutErrors...)
			result.FeeChargesProcessed += report.FeeChargesProcessed
			result.FeeChargesFailed += report.FeeChargesFailed
			result.FeeChargeErrors = append(result.FeeChargeErrors, report.FeeChargeErrors...)
			notifications = append(notifications, report.Notifications...)
		}
		if err != nil {
			result.PayoutErrors = append(result.PayoutErrors, err.Error())
		}
	}

	p.publish(ctx, notifications, result)

	result.FinishedAt = p.clock.Now()
	if p.runs != nil {
		if err := p.runs.SaveResult(context.WithoutCancel(ctx), result); err != nil {
			log.Warn("failed to store run result", zap.Error(err))
		}
	}

	log.Info("pipeline run finished",
		zap.Int("confirmations_created", result.ConfirmationsCreated),
		zap.Int("auto_confirmed", result.AutoConfirmed),
		zap.Int("cycles_processed", result.CyclesProcessed),
		zap.Int("cycles_unsettled", result.CyclesUnsettled),
		zap.Int("payouts_processed", result.PayoutsProcessed),
		zap.Int("payouts_failed", result.PayoutsFailed),
		zap.Int("fee_charges_processed", result.FeeChargesProcessed),
		zap.Int("fee_charges_failed", result.FeeChargesFailed),
		zap.Int("emails_sent", result.EmailsSent),
		zap.Bool("has_errors", result.HasErrors()))
	return result, nil
}

func (p *Pipeline) abort(result *domain.PipelineResult, err error) *domain.PipelineResult {
	p.logger.Error("pipeline run could not start",
		zap.String("trigger", result.Trigger),
		zap.String("request_id", result.RequestID),
		zap.Error(err))
	result.Success = false
	result.Error = err.Error()
	result.FinishedAt = p.clock.Now()
	return result
}

func (p *Pipeline) publish(ctx context.Context, notifications []domain.Notification, result *domain.PipelineResult) {
	if p.notifier == nil {
		return
	}
	for _, n := range notifications {
		if err := p.notifier.Notify(ctx, n); err != nil {
			result.EmailErrors = append(result.EmailErrors, fmt.Sprintf("%s to %s: %v", n.Kind, n.RecipientID, err))
			continue
		}
		result.EmailsSent++
	}
}

// GetRun returns the stored result of a previous run.
func (p *Pipeline) GetRun(ctx context.Context, requestID string) (*domain.PipelineResult, error) {
	if p.runs == nil {
		return nil, customError.WrapNotFound(customError.ErrPipelineRunNotFound, requestID)
	}
	result, err := p.runs.GetResult(ctx, requestID)
	if errors.Is(err, customError.ErrPipelineRunNotFound) {
		return nil, customError.WrapNotFound(customError.ErrPipelineRunNotFound, requestID)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}
