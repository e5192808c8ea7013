package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/segyhp/payout-engine/internal/config"
	"github.com/segyhp/payout-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockRunner struct{ mock.Mock }

func (m *mockRunner) Run(ctx context.Context, req domain.PipelineRequest) (*domain.PipelineResult, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*domain.PipelineResult)
	return result, args.Error(1)
}

func testConfig() *config.Config {
	return &config.Config{
		Scheduler: config.SchedulerConfig{
			DailyConfirmation: "0 0 1 * * *",
			AutoConfirm:       "0 0 * * * *",
			WeeklyPayout:      "0 0 6 * * MON",
			Timezone:          "UTC",
			RunLockTTL:        "15m",
		},
	}
}

func TestNew_SchedulesEveryTrigger(t *testing.T) {
	s, err := New(testConfig(), &mockRunner{}, zap.NewNop())
	require.NoError(t, err)

	// Wednesday 2025-03-12 10:30 UTC
	from := time.Date(2025, 3, 12, 10, 30, 0, 0, time.UTC)

	assert.WithinDuration(t, time.Date(2025, 3, 13, 1, 0, 0, 0, time.UTC), s.Next(domain.TriggerDailyConfirmation, from), 0)
	assert.WithinDuration(t, time.Date(2025, 3, 12, 11, 0, 0, 0, time.UTC), s.Next(domain.TriggerAutoConfirm, from), 0)
	assert.WithinDuration(t, time.Date(2025, 3, 17, 6, 0, 0, 0, time.UTC), s.Next(domain.TriggerWeeklyPayout, from), 0)
	assert.True(t, s.Next(domain.TriggerManual, from).IsZero())
}

func TestNew_RejectsBadSpec(t *testing.T) {
	cfg := testConfig()
	cfg.Scheduler.WeeklyPayout = "every monday"

	_, err := New(cfg, &mockRunner{}, zap.NewNop())
	assert.ErrorContains(t, err, domain.TriggerWeeklyPayout)
}

func TestRunTrigger(t *testing.T) {
	tests := []struct {
		name   string
		result *domain.PipelineResult
		err    error
	}{
		{name: "success", result: &domain.PipelineResult{Success: true}},
		{name: "skipped", result: &domain.PipelineResult{Success: true, Skipped: true}},
		{name: "could not start", result: &domain.PipelineResult{Success: false, Error: "lock store down"}},
		{name: "rejected", err: errors.New("validation failed")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &mockRunner{}
			runner.On("Run", mock.Anything, mock.MatchedBy(func(req domain.PipelineRequest) bool {
				return req.Trigger == domain.TriggerAutoConfirm &&
					strings.HasPrefix(req.RequestID, domain.TriggerAutoConfirm+"-")
			})).Return(tt.result, tt.err).Once()

			s, err := New(testConfig(), runner, zap.NewNop())
			require.NoError(t, err)

			s.RunTrigger(domain.TriggerAutoConfirm)
			runner.AssertExpectations(t)
		})
	}
}
