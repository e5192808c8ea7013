package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		{ResolutionPending, ResolutionClientConfirmed, true},
		{ResolutionPending, ResolutionProfessionalConfirmed, true},
		{ResolutionPending, ResolutionDisputed, true},
		{ResolutionPending, ResolutionAutoConfirmed, true},
		{ResolutionPending, ResolutionAdminConfirmed, false},
		{ResolutionClientConfirmed, ResolutionBothConfirmed, true},
		{ResolutionProfessionalConfirmed, ResolutionBothConfirmed, true},
		{ResolutionClientConfirmed, ResolutionPending, false},
		{ResolutionDisputed, ResolutionAdminConfirmed, true},
		{ResolutionDisputed, ResolutionAdminCancelled, true},
		{ResolutionDisputed, ResolutionAutoConfirmed, false},
		{ResolutionAutoConfirmed, ResolutionClientConfirmed, false},
		{ResolutionBothConfirmed, ResolutionDisputed, false},
		{ResolutionAdminCancelled, ResolutionAdminConfirmed, false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			assert.Equal(t, tt.expected, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTerminalResolutionsHaveNoTransitions(t *testing.T) {
	all := []string{
		ResolutionPending, ResolutionClientConfirmed, ResolutionProfessionalConfirmed,
		ResolutionBothConfirmed, ResolutionDisputed, ResolutionAdminConfirmed,
		ResolutionAdminCancelled, ResolutionAutoConfirmed,
	}

	for _, from := range all {
		if !IsTerminalResolution(from) {
			continue
		}
		for _, to := range all {
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestProducesEarning(t *testing.T) {
	assert.True(t, ProducesEarning(ResolutionBothConfirmed))
	assert.True(t, ProducesEarning(ResolutionAdminConfirmed))
	assert.True(t, ProducesEarning(ResolutionAutoConfirmed))
	assert.False(t, ProducesEarning(ResolutionAdminCancelled))
	assert.False(t, ProducesEarning(ResolutionDisputed))
}

func TestBatchReport(t *testing.T) {
	report := NewBatchReport(BatchKindPayout)
	failedID := uuid.New()

	report.Succeed(uuid.New())
	report.Fail(failedID, errors.New("card declined"))
	report.Add(ItemResult{EntityID: uuid.New(), Outcome: ItemIndeterminate})

	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Indeterminate)
	assert.Equal(t, []string{"payout " + failedID.String() + ": card declined"}, report.ErrorMessages())

	var totals ReadyCyclesReport
	totals.Merge(BatchKindPayout, report)
	assert.Equal(t, 1, totals.PayoutsProcessed)
	assert.Equal(t, 1, totals.PayoutsFailed)
	assert.Equal(t, 1, totals.PayoutsPending)
	assert.Len(t, totals.PayoutErrors, 1)
}
