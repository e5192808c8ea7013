package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/payout-engine/internal/domain"
	"github.com/segyhp/payout-engine/internal/gateway"
	"github.com/segyhp/payout-engine/internal/repository"
	customError "github.com/segyhp/payout-engine/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// afterCutoff is one hour past the cutoff of the cycle containing testNow.
var afterCutoff = time.Date(2025, 3, 20, 1, 0, 0, 0, time.UTC)

func attempt(n int) func(key string) bool {
	suffix := fmt.Sprintf("-%d", n)
	return func(key string) bool { return strings.HasSuffix(key, suffix) }
}

func TestPayoutService_WeeklyRunPaysNetAndChargesFees(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	professionalID := uuid.New()
	h.cardOnFile(professionalID)

	h.confirmedEarning(t, professionalID, "75")
	h.confirmedEarning(t, professionalID, "75")

	h.gateway.On("Payout", mock.Anything, mock.MatchedBy(func(req gateway.PayoutRequest) bool {
		return req.ProfessionalID == professionalID &&
			req.Amount.Equal(decimal.NewFromInt(120)) &&
			req.Currency == "USD" &&
			attempt(1)(req.IdempotencyKey)
	})).Return(succeeded("po_1"), nil).Once()
	h.gateway.On("Charge", mock.Anything, mock.MatchedBy(func(req gateway.ChargeRequest) bool {
		return req.ProfessionalID == professionalID &&
			req.Amount.Equal(decimal.NewFromInt(30)) &&
			strings.HasPrefix(req.IdempotencyKey, "fee-")
	})).Return(succeeded("ch_1"), nil).Once()

	h.clock.Set(afterCutoff)
	report, err := h.payouts.ProcessAllReadyCycles(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.CyclesProcessed)
	assert.Equal(t, 1, report.PayoutsCreated)
	assert.Equal(t, 1, report.PayoutsProcessed)
	assert.Equal(t, 1, report.FeeChargesCreated)
	assert.Equal(t, 1, report.FeeChargesProcessed)
	assert.Empty(t, report.PayoutErrors)
	assert.Empty(t, report.FeeChargeErrors)

	payouts := h.store.AllPayouts()
	require.Len(t, payouts, 1)
	assert.Equal(t, domain.PayoutStatusCompleted, payouts[0].Status)
	assert.True(t, payouts[0].Amount.Equal(decimal.NewFromInt(120)))
	require.NotNil(t, payouts[0].GatewayReference)
	assert.Equal(t, "po_1", *payouts[0].GatewayReference)

	charges := h.store.AllFeeCharges()
	require.Len(t, charges, 1)
	assert.Equal(t, domain.FeeChargeStatusCompleted, charges[0].Status)
	assert.True(t, charges[0].Amount.Equal(decimal.NewFromInt(30)))

	assert.Equal(t, 1, h.store.CountCycles(domain.CycleStatusCompleted))

	// a second run finds nothing left to pay
	report, err = h.payouts.ProcessAllReadyCycles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.CyclesProcessed)
	assert.Equal(t, 0, report.PayoutsProcessed)
	h.gateway.AssertNumberOfCalls(t, "Payout", 1)
	h.gateway.AssertNumberOfCalls(t, "Charge", 1)
}

func TestPayoutService_ManyProfessionalsDispatchedInParallel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	professionals := make([]uuid.UUID, 12)
	for i := range professionals {
		professionals[i] = uuid.New()
		h.cardOnFile(professionals[i])
		h.confirmedEarning(t, professionals[i], "50")
	}

	h.gateway.On("Payout", mock.Anything, mock.Anything).Return(succeeded("po"), nil)
	h.gateway.On("Charge", mock.Anything, mock.Anything).Return(succeeded("ch"), nil)

	h.clock.Set(afterCutoff)
	report, err := h.payouts.ProcessAllReadyCycles(ctx)
	require.NoError(t, err)

	assert.Equal(t, 12, report.PayoutsProcessed)
	assert.Equal(t, 12, report.FeeChargesProcessed)
	for _, payout := range h.store.AllPayouts() {
		assert.True(t, payout.Amount.Equal(decimal.NewFromInt(40)))
		assert.Equal(t, domain.PayoutStatusCompleted, payout.Status)
	}
}

func TestPayoutService_IndeterminateOutcomeIsReconciled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	professionalID := uuid.New()
	h.cardOnFile(professionalID)
	h.confirmedEarning(t, professionalID, "75")

	h.gateway.On("Payout", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: context deadline exceeded", gateway.ErrIndeterminate)).Once()
	h.gateway.On("Charge", mock.Anything, mock.Anything).Return(succeeded("ch_1"), nil).Once()

	h.clock.Set(afterCutoff)
	report, err := h.payouts.ProcessAllReadyCycles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.CyclesProcessed)
	assert.Equal(t, 1, report.CyclesUnsettled)
	assert.Equal(t, 1, report.PayoutsPending)
	assert.Equal(t, 0, report.PayoutsFailed)

	payouts := h.store.AllPayouts()
	require.Len(t, payouts, 1)
	assert.Equal(t, domain.PayoutStatusProcessing, payouts[0].Status)
	key := payouts[0].IdempotencyKey()
	assert.Equal(t, "payout-"+payouts[0].ID.String()+"-1", key)

	cycle, err := h.store.Cycles.GetByID(ctx, payouts[0].CycleID)
	require.NoError(t, err)
	assert.Equal(t, domain.CycleStatusProcessing, cycle.Status, "cycle waits for the payout outcome")

	// not stale yet: left alone
	report, err = h.payouts.ProcessAllReadyCycles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.PayoutsProcessed)
	assert.Equal(t, 1, report.CyclesUnsettled)
	assert.Equal(t, 0, h.store.CountCycles(domain.CycleStatusCompleted))

	h.gateway.On("Lookup", mock.Anything, key).Return(succeeded("po_late"), nil).Once()
	h.clock.Advance(20 * time.Minute)

	report, err = h.payouts.ProcessAllReadyCycles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.PayoutsProcessed)
	assert.Equal(t, 1, report.CyclesProcessed)
	assert.Equal(t, 0, report.CyclesUnsettled)

	cycle, err = h.store.Cycles.GetByID(ctx, payouts[0].CycleID)
	require.NoError(t, err)
	assert.Equal(t, domain.CycleStatusCompleted, cycle.Status)

	stored, err := h.store.Payouts.GetByID(ctx, payouts[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusCompleted, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	h.gateway.AssertNumberOfCalls(t, "Payout", 1)
}

func TestPayoutService_UnknownAtGatewayBecomesRetryable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	professionalID := uuid.New()
	h.cardOnFile(professionalID)
	h.confirmedEarning(t, professionalID, "75")

	h.gateway.On("Payout", mock.Anything, mock.MatchedBy(func(req gateway.PayoutRequest) bool {
		return attempt(1)(req.IdempotencyKey)
	})).Return(nil, gateway.ErrIndeterminate).Once()
	h.gateway.On("Charge", mock.Anything, mock.Anything).Return(succeeded("ch_1"), nil)
	h.gateway.On("Lookup", mock.Anything, mock.Anything).Return(nil, gateway.ErrNotFound).Once()

	h.clock.Set(afterCutoff)
	_, err := h.payouts.ProcessAllReadyCycles(ctx)
	require.NoError(t, err)

	h.clock.Advance(20 * time.Minute)
	batch, err := h.payouts.ReconcileProcessing(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Failed)

	h.gateway.On("Payout", mock.Anything, mock.MatchedBy(func(req gateway.PayoutRequest) bool {
		return attempt(2)(req.IdempotencyKey)
	})).Return(succeeded("po_2"), nil).Once()

	batch, err = h.payouts.RetryFailedPayouts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Succeeded)

	payouts := h.store.AllPayouts()
	require.Len(t, payouts, 1)
	assert.Equal(t, domain.PayoutStatusCompleted, payouts[0].Status)
	assert.Equal(t, 2, payouts[0].Attempts)
}

func TestPayoutService_DeclinedPayoutRetriedWithFreshKeyUpToLimit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	professionalID := uuid.New()
	h.cardOnFile(professionalID)
	h.confirmedEarning(t, professionalID, "75")

	var keys []string
	h.gateway.On("Payout", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			keys = append(keys, args.Get(1).(gateway.PayoutRequest).IdempotencyKey)
		}).
		Return(declined("account closed"), nil)
	h.gateway.On("Charge", mock.Anything, mock.Anything).Return(succeeded("ch_1"), nil)

	h.clock.Set(afterCutoff)
	report, err := h.payouts.ProcessAllReadyCycles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.CyclesProcessed)
	assert.Equal(t, 1, report.PayoutsFailed)
	require.Len(t, report.PayoutErrors, 1)
	assert.Contains(t, report.PayoutErrors[0], "account closed")
	assert.Equal(t, 1, h.store.CountCycles(domain.CycleStatusCompleted))

	for i := 0; i < 4; i++ {
		h.clock.Advance(24 * time.Hour)
		_, err := h.payouts.ProcessAllReadyCycles(ctx)
		require.NoError(t, err)
	}

	h.gateway.AssertNumberOfCalls(t, "Payout", h.config.Business.PayoutMaxAttempts)
	require.Len(t, keys, 3)
	assert.True(t, attempt(1)(keys[0]))
	assert.True(t, attempt(2)(keys[1]))
	assert.True(t, attempt(3)(keys[2]))

	payouts := h.store.AllPayouts()
	require.Len(t, payouts, 1)
	assert.Equal(t, domain.PayoutStatusFailed, payouts[0].Status)
	require.NotNil(t, payouts[0].FailureReason)
	assert.Equal(t, "account closed", *payouts[0].FailureReason)
}

func TestPayoutService_CreatePayoutsForCycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	professionalID := uuid.New()
	h.confirmedEarning(t, professionalID, "75")

	cycle, err := h.cycles.GetOrCreateCurrentCycle(ctx)
	require.NoError(t, err)

	_, err = h.payouts.CreatePayoutsForCycle(ctx, cycle.ID)
	assert.ErrorIs(t, err, customError.ErrCycleNotProcessing)

	h.clock.Set(time.Date(2025, 3, 17, 1, 0, 0, 0, time.UTC))
	_, err = h.cycles.Rollover(ctx)
	require.NoError(t, err)

	created, err := h.payouts.CreatePayoutsForCycle(ctx, cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	created, err = h.payouts.CreatePayoutsForCycle(ctx, cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	payouts := h.store.AllPayouts()
	require.Len(t, payouts, 1)
	assert.Equal(t, domain.PayoutStatusPending, payouts[0].Status)
	assert.True(t, payouts[0].Amount.Equal(decimal.NewFromInt(60)))

	_, err = h.payouts.CreatePayoutsForCycle(ctx, uuid.New())
	assert.ErrorIs(t, err, customError.ErrCycleNotFound)
}

func TestPayoutService_ListForProfessional(t *testing.T) {
	h := newHarness(t)
	professionalID := uuid.New()
	h.confirmedEarning(t, professionalID, "75")
	h.confirmedEarning(t, professionalID, "33.33")

	history, err := h.payouts.ListForProfessional(context.Background(), professionalID)
	require.NoError(t, err)

	assert.Empty(t, history.Payouts)
	assert.True(t, history.UpcomingEstimate.Equal(decimal.RequireFromString("86.66")), history.UpcomingEstimate.String())
	require.NotNil(t, history.UpcomingCycle)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), history.UpcomingCycle.StartDate)
}

func TestPayoutService_InFlightFeeChargeKeepsCycleProcessing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	professionalID := uuid.New()
	h.cardOnFile(professionalID)
	h.confirmedEarning(t, professionalID, "75")

	h.gateway.On("Payout", mock.Anything, mock.Anything).Return(succeeded("po_1"), nil).Once()
	h.gateway.On("Charge", mock.Anything, mock.Anything).Return(nil, gateway.ErrIndeterminate).Once()

	h.clock.Set(afterCutoff)
	report, err := h.payouts.ProcessAllReadyCycles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.CyclesProcessed)
	assert.Equal(t, 1, report.CyclesUnsettled)
	assert.Equal(t, 0, h.store.CountCycles(domain.CycleStatusCompleted))

	charges := h.store.AllFeeCharges()
	require.Len(t, charges, 1)
	require.Equal(t, domain.FeeChargeStatusProcessing, charges[0].Status)

	h.gateway.On("Lookup", mock.Anything, mock.Anything).Return(succeeded("ch_late"), nil).Once()
	h.clock.Advance(20 * time.Minute)

	report, err = h.payouts.ProcessAllReadyCycles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.CyclesProcessed)
	assert.Equal(t, 1, h.store.CountCycles(domain.CycleStatusCompleted))
	h.gateway.AssertNumberOfCalls(t, "Payout", 1)
}

func TestPayoutService_ProcessCycleByIDWaitsForCutoff(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	professionalID := uuid.New()
	h.cardOnFile(professionalID)
	h.confirmedEarning(t, professionalID, "100")

	cycle, err := h.cycles.GetOrCreateCurrentCycle(ctx)
	require.NoError(t, err)

	// the cycle has ended but its cutoff (03-20) has not passed
	h.clock.Set(time.Date(2025, 3, 18, 10, 0, 0, 0, time.UTC))
	_, err = h.cycles.Rollover(ctx)
	require.NoError(t, err)

	report, err := h.payouts.ProcessCycleByID(ctx, cycle.ID)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, customError.ErrCycleStillOpen)
	assert.Empty(t, h.store.AllPayouts())

	stored, err := h.store.Cycles.GetByID(ctx, cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CycleStatusProcessing, stored.Status)
	assert.True(t, stored.AcceptsEarnings())

	// a session from the ended cycle confirmed inside the cutoff window
	late := h.endedAppointment(professionalID, "50")
	late.StartTime = time.Date(2025, 3, 16, 9, 0, 0, 0, time.UTC)
	late.EndTime = time.Date(2025, 3, 16, 10, 0, 0, 0, time.UTC)
	h.store.PutAppointment(late)
	h.clock.Set(time.Date(2025, 3, 19, 10, 0, 0, 0, time.UTC))
	confirmation, err := h.confirmations.CreateConfirmation(ctx, late.ID, domain.Actor{UserID: late.ClientID})
	require.NoError(t, err)
	_, err = h.confirmations.ConfirmByClient(ctx, confirmation.ID, late.ClientID)
	require.NoError(t, err)
	_, err = h.confirmations.ConfirmByProfessional(ctx, confirmation.ID, professionalID)
	require.NoError(t, err)

	earning, err := h.store.Earnings.GetByAppointmentID(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, cycle.ID, earning.CycleID)

	h.gateway.On("Payout", mock.Anything, mock.MatchedBy(func(req gateway.PayoutRequest) bool {
		return req.Amount.Equal(decimal.NewFromInt(120))
	})).Return(succeeded("po_1"), nil).Once()
	h.gateway.On("Charge", mock.Anything, mock.Anything).Return(succeeded("ch_1"), nil).Once()

	h.clock.Set(afterCutoff)
	report, err = h.payouts.ProcessCycleByID(ctx, cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.CyclesProcessed)
	assertPayoutsMatchEarnings(t, h, cycle.ID)
}

// confirmationRepoHook runs before once ahead of the first transition that
// writes an earning.
type confirmationRepoHook struct {
	repository.ConfirmationRepository
	before func()
}

func (r *confirmationRepoHook) ApplyTransition(ctx context.Context, transition *domain.ConfirmationTransition) error {
	if transition.Earning != nil && r.before != nil {
		before := r.before
		r.before = nil
		before()
	}
	return r.ConfirmationRepository.ApplyTransition(ctx, transition)
}

func TestPayoutService_EarningRacingPayoutMovesToCurrentCycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	professionalID := uuid.New()
	h.confirmedEarning(t, professionalID, "100")

	ended, err := h.cycles.GetOrCreateCurrentCycle(ctx)
	require.NoError(t, err)

	h.clock.Set(time.Date(2025, 3, 16, 12, 0, 0, 0, time.UTC))
	late := h.endedAppointment(professionalID, "50")
	confirmation, err := h.confirmations.CreateConfirmation(ctx, late.ID, domain.Actor{UserID: late.ClientID})
	require.NoError(t, err)
	_, err = h.confirmations.ConfirmByClient(ctx, confirmation.ID, late.ClientID)
	require.NoError(t, err)

	h.clock.Set(time.Date(2025, 3, 19, 10, 0, 0, 0, time.UTC))
	_, err = h.cycles.Rollover(ctx)
	require.NoError(t, err)

	// payouts for the ended cycle are created after the earning was built
	// but before it is written
	hooked := &confirmationRepoHook{
		ConfirmationRepository: h.store.Confirmations,
		before: func() {
			created, err := h.payouts.CreatePayoutsForCycle(ctx, ended.ID)
			require.NoError(t, err)
			assert.Equal(t, 1, created)
		},
	}
	confirmations := NewConfirmationService(h.store.Appointments, hooked, h.earnings, h.gateway, h.notifier, h.clock, h.config, zap.NewNop())

	resolved, err := confirmations.ConfirmByProfessional(ctx, confirmation.ID, professionalID)
	require.NoError(t, err)
	assert.Equal(t, domain.ResolutionBothConfirmed, resolved.Resolution)

	earning, err := h.store.Earnings.GetByAppointmentID(ctx, late.ID)
	require.NoError(t, err)
	assert.NotEqual(t, ended.ID, earning.CycleID)
	current, err := h.cycles.GetOrCreateCurrentCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, current.ID, earning.CycleID)

	payouts := h.store.AllPayouts()
	require.Len(t, payouts, 1)
	assert.True(t, payouts[0].Amount.Equal(decimal.NewFromInt(80)))
	assertPayoutsMatchEarnings(t, h, ended.ID)
}

// assertPayoutsMatchEarnings checks that a cycle's payouts add up to the net
// of the earnings attributed to it.
func assertPayoutsMatchEarnings(t *testing.T, h *harness, cycleID uuid.UUID) {
	t.Helper()
	net := decimal.Zero
	for _, e := range h.store.AllEarnings() {
		if e.CycleID == cycleID {
			net = net.Add(e.NetAmount)
		}
	}
	paid := decimal.Zero
	for _, p := range h.store.AllPayouts() {
		if p.CycleID == cycleID {
			paid = paid.Add(p.Amount)
		}
	}
	assert.True(t, net.Equal(paid), "payouts %s, earnings net %s", paid, net)
}

func TestPayoutService_FeeChargeIsSumOfPerSessionFees(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	professionalID := uuid.New()
	h.cardOnFile(professionalID)
	for i := 0; i < 3; i++ {
		h.confirmedEarning(t, professionalID, "33.33")
	}

	for _, e := range h.store.AllEarnings() {
		require.True(t, e.PlatformFee.Equal(decimal.RequireFromString("6.67")), e.PlatformFee.String())
	}

	h.gateway.On("Payout", mock.Anything, mock.MatchedBy(func(req gateway.PayoutRequest) bool {
		return req.Amount.Equal(decimal.RequireFromString("79.98"))
	})).Return(succeeded("po_1"), nil).Once()
	h.gateway.On("Charge", mock.Anything, mock.MatchedBy(func(req gateway.ChargeRequest) bool {
		return req.Amount.Equal(decimal.RequireFromString("20.01"))
	})).Return(succeeded("ch_1"), nil).Once()

	h.clock.Set(afterCutoff)
	report, err := h.payouts.ProcessAllReadyCycles(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.PayoutErrors)
	assert.Empty(t, report.FeeChargeErrors)

	charges := h.store.AllFeeCharges()
	require.Len(t, charges, 1)
	assert.True(t, charges[0].Amount.Equal(decimal.RequireFromString("20.01")), charges[0].Amount.String())

	payouts := h.store.AllPayouts()
	require.Len(t, payouts, 1)
	assert.True(t, payouts[0].Amount.Equal(decimal.RequireFromString("79.98")), payouts[0].Amount.String())

	assert.False(t, charges[0].Amount.Equal(decimal.RequireFromString("20.00")), "fee is not recomputed on the cycle total")
	h.gateway.AssertExpectations(t)
}
