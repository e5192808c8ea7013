package handler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/payout-engine/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type mockCycles struct{ mock.Mock }

func (m *mockCycles) GetCurrentCycleInfo(ctx context.Context) (*domain.CycleInfo, error) {
	args := m.Called(ctx)
	info, _ := args.Get(0).(*domain.CycleInfo)
	return info, args.Error(1)
}

func (m *mockCycles) ListCyclesWithStats(ctx context.Context, limit, offset int) ([]*domain.CycleStats, error) {
	args := m.Called(ctx, limit, offset)
	stats, _ := args.Get(0).([]*domain.CycleStats)
	return stats, args.Error(1)
}

func (m *mockCycles) GetCycle(ctx context.Context, cycleID uuid.UUID) (*domain.CycleStats, error) {
	args := m.Called(ctx, cycleID)
	stats, _ := args.Get(0).(*domain.CycleStats)
	return stats, args.Error(1)
}

type mockEarnings struct{ mock.Mock }

func (m *mockEarnings) CurrentCycleSummary(ctx context.Context, professionalID uuid.UUID) (*domain.EarningsSummary, error) {
	args := m.Called(ctx, professionalID)
	summary, _ := args.Get(0).(*domain.EarningsSummary)
	return summary, args.Error(1)
}

func (m *mockEarnings) LifetimeSummary(ctx context.Context, professionalID uuid.UUID) (*domain.EarningsSummary, error) {
	args := m.Called(ctx, professionalID)
	summary, _ := args.Get(0).(*domain.EarningsSummary)
	return summary, args.Error(1)
}

func (m *mockEarnings) GetPlatformCut(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *mockEarnings) SetPlatformCut(ctx context.Context, percentage decimal.Decimal, now time.Time) error {
	return m.Called(ctx, percentage, now).Error(0)
}

type mockPayouts struct{ mock.Mock }

func (m *mockPayouts) ListForProfessional(ctx context.Context, professionalID uuid.UUID) (*domain.PayoutHistoryResponse, error) {
	args := m.Called(ctx, professionalID)
	history, _ := args.Get(0).(*domain.PayoutHistoryResponse)
	return history, args.Error(1)
}

func (m *mockPayouts) ProcessAllReadyCycles(ctx context.Context) (*domain.ReadyCyclesReport, error) {
	args := m.Called(ctx)
	report, _ := args.Get(0).(*domain.ReadyCyclesReport)
	return report, args.Error(1)
}

func (m *mockPayouts) ProcessCycleByID(ctx context.Context, cycleID uuid.UUID) (*domain.ReadyCyclesReport, error) {
	args := m.Called(ctx, cycleID)
	report, _ := args.Get(0).(*domain.ReadyCyclesReport)
	return report, args.Error(1)
}

func (m *mockPayouts) CreatePayoutsForCycle(ctx context.Context, cycleID uuid.UUID) (int, error) {
	args := m.Called(ctx, cycleID)
	return args.Int(0), args.Error(1)
}

type mockFees struct{ mock.Mock }

func (m *mockFees) ListForProfessional(ctx context.Context, professionalID uuid.UUID) (*domain.FeeChargeHistoryResponse, error) {
	args := m.Called(ctx, professionalID)
	history, _ := args.Get(0).(*domain.FeeChargeHistoryResponse)
	return history, args.Error(1)
}

func (m *mockFees) GetPaymentMethodStatus(ctx context.Context, professionalID uuid.UUID) (*domain.PaymentMethodStatusResponse, error) {
	args := m.Called(ctx, professionalID)
	status, _ := args.Get(0).(*domain.PaymentMethodStatusResponse)
	return status, args.Error(1)
}

func (m *mockFees) UpdatePaymentMethod(ctx context.Context, req domain.UpdatePaymentMethodRequest) (*domain.PaymentMethod, error) {
	args := m.Called(ctx, req)
	method, _ := args.Get(0).(*domain.PaymentMethod)
	return method, args.Error(1)
}

func (m *mockFees) RemovePaymentMethod(ctx context.Context, professionalID uuid.UUID) error {
	return m.Called(ctx, professionalID).Error(0)
}

func (m *mockFees) ListBlocked(ctx context.Context) ([]*domain.BlockedProfessional, error) {
	args := m.Called(ctx)
	blocked, _ := args.Get(0).([]*domain.BlockedProfessional)
	return blocked, args.Error(1)
}

func (m *mockFees) UnblockProfessional(ctx context.Context, professionalID uuid.UUID, actor domain.Actor) error {
	return m.Called(ctx, professionalID, actor).Error(0)
}

func (m *mockFees) WaiveFeeCharge(ctx context.Context, chargeID uuid.UUID, actor domain.Actor, reason string) (*domain.FeeCharge, error) {
	args := m.Called(ctx, chargeID, actor, reason)
	charge, _ := args.Get(0).(*domain.FeeCharge)
	return charge, args.Error(1)
}

type mockConfirmations struct{ mock.Mock }

func (m *mockConfirmations) confirmation(args mock.Arguments) (*domain.Confirmation, error) {
	confirmation, _ := args.Get(0).(*domain.Confirmation)
	return confirmation, args.Error(1)
}

func (m *mockConfirmations) CreateConfirmation(ctx context.Context, appointmentID uuid.UUID, actor domain.Actor) (*domain.Confirmation, error) {
	return m.confirmation(m.Called(ctx, appointmentID, actor))
}

func (m *mockConfirmations) ConfirmByClient(ctx context.Context, confirmationID, userID uuid.UUID) (*domain.Confirmation, error) {
	return m.confirmation(m.Called(ctx, confirmationID, userID))
}

func (m *mockConfirmations) ConfirmByProfessional(ctx context.Context, confirmationID, userID uuid.UUID) (*domain.Confirmation, error) {
	return m.confirmation(m.Called(ctx, confirmationID, userID))
}

func (m *mockConfirmations) RaiseDispute(ctx context.Context, appointmentID uuid.UUID, actor domain.Actor, reason string) (*domain.Confirmation, error) {
	return m.confirmation(m.Called(ctx, appointmentID, actor, reason))
}

func (m *mockConfirmations) ListPendingForUser(ctx context.Context, userID uuid.UUID) (*domain.PendingConfirmationsResponse, error) {
	args := m.Called(ctx, userID)
	pending, _ := args.Get(0).(*domain.PendingConfirmationsResponse)
	return pending, args.Error(1)
}

func (m *mockConfirmations) ListDisputed(ctx context.Context) ([]*domain.PendingConfirmation, error) {
	args := m.Called(ctx)
	disputed, _ := args.Get(0).([]*domain.PendingConfirmation)
	return disputed, args.Error(1)
}

func (m *mockConfirmations) ResolveDispute(ctx context.Context, confirmationID uuid.UUID, actor domain.Actor, req domain.ResolveDisputeRequest) (*domain.Confirmation, error) {
	return m.confirmation(m.Called(ctx, confirmationID, actor, req))
}

type mockBookings struct{ mock.Mock }

func (m *mockBookings) AcceptBooking(ctx context.Context, req domain.AcceptBookingRequest, actor domain.Actor) (*domain.Appointment, error) {
	args := m.Called(ctx, req, actor)
	appointment, _ := args.Get(0).(*domain.Appointment)
	return appointment, args.Error(1)
}

func (m *mockBookings) GetAppointment(ctx context.Context, id uuid.UUID, actor domain.Actor) (*domain.Appointment, error) {
	args := m.Called(ctx, id, actor)
	appointment, _ := args.Get(0).(*domain.Appointment)
	return appointment, args.Error(1)
}

type mockPipeline struct{ mock.Mock }

func (m *mockPipeline) Run(ctx context.Context, req domain.PipelineRequest) (*domain.PipelineResult, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*domain.PipelineResult)
	return result, args.Error(1)
}

func (m *mockPipeline) GetRun(ctx context.Context, requestID string) (*domain.PipelineResult, error) {
	args := m.Called(ctx, requestID)
	result, _ := args.Get(0).(*domain.PipelineResult)
	return result, args.Error(1)
}
