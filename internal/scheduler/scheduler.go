package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/segyhp/payout-engine/internal/config"
	"github.com/segyhp/payout-engine/internal/domain"
	"go.uber.org/zap"
)

// Runner is the pipeline entry point the jobs invoke.
type Runner interface {
	Run(ctx context.Context, req domain.PipelineRequest) (*domain.PipelineResult, error)
}

// Scheduler maps cron specs (with seconds) to pipeline triggers.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	timeout time.Duration
	logger  *zap.Logger
	entries map[string]cron.EntryID
}

func New(cfg *config.Config, runner Runner, logger *zap.Logger) (*Scheduler, error) {
	logger = logger.Named("scheduler")
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger))

	s := &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(cfg.GetSchedulerLocation()),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		runner:  runner,
		timeout: cfg.GetRunLockTTL(),
		logger:  logger,
		entries: make(map[string]cron.EntryID),
	}

	jobs := []struct {
		trigger string
		spec    string
	}{
		{domain.TriggerDailyConfirmation, cfg.Scheduler.DailyConfirmation},
		{domain.TriggerAutoConfirm, cfg.Scheduler.AutoConfirm},
		{domain.TriggerWeeklyPayout, cfg.Scheduler.WeeklyPayout},
	}
	for _, job := range jobs {
		trigger := job.trigger
		id, err := s.cron.AddFunc(job.spec, func() { s.RunTrigger(trigger) })
		if err != nil {
			return nil, fmt.Errorf("schedule %s job %q: %w", trigger, job.spec, err)
		}
		s.entries[trigger] = id
		logger.Info("scheduled pipeline job", zap.String("trigger", trigger), zap.String("schedule", job.spec))
	}

	return s, nil
}

// RunTrigger runs the pipeline once for trigger with a fresh request id.
func (s *Scheduler) RunTrigger(trigger string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	req := domain.PipelineRequest{
		Trigger:   trigger,
		RequestID: fmt.Sprintf("%s-%s", trigger, uuid.NewString()),
	}
	log := s.logger.With(zap.String("trigger", trigger), zap.String("request_id", req.RequestID))

	result, err := s.runner.Run(ctx, req)
	if err != nil {
		log.Error("pipeline run rejected", zap.Error(err))
		return
	}
	switch {
	case result.Skipped:
		log.Info("pipeline run skipped; previous run still holds the lock")
	case !result.Success:
		log.Error("pipeline run failed", zap.String("error", result.Error))
	case result.HasErrors():
		log.Warn("pipeline run finished with errors",
			zap.Strings("confirmation_errors", result.ConfirmationErrors),
			zap.Strings("payout_errors", result.PayoutErrors),
			zap.Strings("fee_charge_errors", result.FeeChargeErrors),
			zap.Strings("email_errors", result.EmailErrors))
	default:
		log.Info("pipeline run finished")
	}
}

// Next reports when trigger fires after from; zero if it is not scheduled.
func (s *Scheduler) Next(trigger string, from time.Time) time.Time {
	id, ok := s.entries[trigger]
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Schedule.Next(from)
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and returns a context done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
