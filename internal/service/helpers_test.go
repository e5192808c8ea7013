package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/payout-engine/internal/clock"
	"github.com/segyhp/payout-engine/internal/config"
	"github.com/segyhp/payout-engine/internal/domain"
	"github.com/segyhp/payout-engine/internal/gateway"
	"github.com/segyhp/payout-engine/internal/repository/memory"
	customError "github.com/segyhp/payout-engine/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Wednesday of the cycle [2025-03-10, 2025-03-17); cutoff 2025-03-20.
var testNow = time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{Port: "8080", Env: "test"},
		Database: config.DatabaseConfig{URL: "postgres://test"},
		Scheduler: config.SchedulerConfig{
			DailyConfirmation: "0 0 1 * * *",
			AutoConfirm:       "0 0 * * * *",
			WeeklyPayout:      "0 0 6 * * MON",
			Timezone:          "UTC",
			RunLockTTL:        "15m",
		},
		Business: config.BusinessConfig{
			CycleLengthDays:       7,
			CycleAnchor:           "2024-01-01T00:00:00Z",
			CycleCutoffHours:      72,
			AutoConfirmHours:      48,
			DefaultPlatformCut:    "20",
			PayoutMaxAttempts:     3,
			FeeChargeMaxFailures:  3,
			FeeBlockThreshold:     "0",
			DispatchConcurrency:   4,
			Currency:              "USD",
			ReconcileAfterMinutes: 15,
		},
		Gateway: config.GatewayConfig{Timeout: "20s"},
		Health:  config.HealthConfig{Timeout: "5s"},
	}
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) result(args mock.Arguments) (*gateway.Result, error) {
	result, _ := args.Get(0).(*gateway.Result)
	return result, args.Error(1)
}

func (m *mockGateway) Charge(ctx context.Context, req gateway.ChargeRequest) (*gateway.Result, error) {
	return m.result(m.Called(ctx, req))
}

func (m *mockGateway) Payout(ctx context.Context, req gateway.PayoutRequest) (*gateway.Result, error) {
	return m.result(m.Called(ctx, req))
}

func (m *mockGateway) Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.Result, error) {
	return m.result(m.Called(ctx, req))
}

func (m *mockGateway) Lookup(ctx context.Context, idempotencyKey string) (*gateway.Result, error) {
	return m.result(m.Called(ctx, idempotencyKey))
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, notification domain.Notification) error {
	return m.Called(ctx, notification).Error(0)
}

// memoryRunStore keeps locks and results in maps.
type memoryRunStore struct {
	mu      sync.Mutex
	locks   map[string]string
	results map[string]*domain.PipelineResult
}

func newMemoryRunStore() *memoryRunStore {
	return &memoryRunStore{
		locks:   make(map[string]string),
		results: make(map[string]*domain.PipelineResult),
	}
}

func (s *memoryRunStore) AcquireLock(ctx context.Context, trigger string, ttl time.Duration) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.locks[trigger]; held {
		return "", false, nil
	}
	token := uuid.NewString()
	s.locks[trigger] = token
	return token, true, nil
}

func (s *memoryRunStore) ReleaseLock(ctx context.Context, trigger, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks[trigger] == token {
		delete(s.locks, trigger)
	}
	return nil
}

func (s *memoryRunStore) SaveResult(ctx context.Context, result *domain.PipelineResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *result
	s.results[result.RequestID] = &c
	return nil
}

func (s *memoryRunStore) GetResult(ctx context.Context, requestID string) (*domain.PipelineResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.results[requestID]
	if !ok {
		return nil, customError.ErrPipelineRunNotFound
	}
	c := *result
	return &c, nil
}

type harness struct {
	store    *memory.Store
	clock    *clock.Fixed
	config   *config.Config
	gateway  *mockGateway
	notifier *mockNotifier
	runs     *memoryRunStore

	cycles        *CycleService
	earnings      *EarningsService
	confirmations *ConfirmationService
	fees          *FeeChargeService
	payouts       *PayoutService
	bookings      *BookingService
	pipeline      *Pipeline
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store:    memory.New(),
		clock:    clock.NewFixed(testNow),
		config:   testConfig(),
		gateway:  &mockGateway{},
		notifier: &mockNotifier{},
		runs:     newMemoryRunStore(),
	}
	logger := zap.NewNop()

	h.cycles = NewCycleService(h.store.Cycles, h.clock, h.config, logger)
	h.earnings = NewEarningsService(h.store.Earnings, h.store.Settings, h.store.Confirmations, h.cycles, h.config, logger)
	h.confirmations = NewConfirmationService(h.store.Appointments, h.store.Confirmations, h.earnings, h.gateway, h.notifier, h.clock, h.config, logger)
	h.fees = NewFeeChargeService(h.store.FeeCharges, h.store.PaymentMethods, h.store.Earnings, h.cycles, h.gateway, h.clock, h.config, logger)
	h.payouts = NewPayoutService(h.store.Payouts, h.store.Earnings, h.cycles, h.fees, h.gateway, h.clock, h.config, logger)
	h.bookings = NewBookingService(h.store.Appointments, h.fees, h.clock, logger)
	h.pipeline = NewPipeline(h.confirmations, h.cycles, h.payouts, h.notifier, h.runs, h.clock, h.config, logger)

	h.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil).Maybe()
	return h
}

// endedAppointment stores an upcoming appointment that ended an hour ago.
func (h *harness) endedAppointment(professionalID uuid.UUID, rate string) *domain.Appointment {
	now := h.clock.Now()
	appointment := &domain.Appointment{
		ID:             uuid.New(),
		ClientID:       uuid.New(),
		ProfessionalID: professionalID,
		StartTime:      now.Add(-2 * time.Hour),
		EndTime:        now.Add(-time.Hour),
		Status:         domain.AppointmentStatusUpcoming,
		Rate:           decimal.RequireFromString(rate),
		DisputeStatus:  domain.DisputeStatusNone,
		CreatedAt:      now.Add(-72 * time.Hour),
		UpdatedAt:      now.Add(-72 * time.Hour),
	}
	h.store.PutAppointment(appointment)
	return appointment
}

// confirmedEarning drives an appointment through both confirmations.
func (h *harness) confirmedEarning(t *testing.T, professionalID uuid.UUID, rate string) *domain.Appointment {
	t.Helper()
	ctx := context.Background()

	appointment := h.endedAppointment(professionalID, rate)
	confirmation, err := h.confirmations.CreateConfirmation(ctx, appointment.ID, domain.Actor{UserID: appointment.ClientID})
	require.NoError(t, err)
	_, err = h.confirmations.ConfirmByClient(ctx, confirmation.ID, appointment.ClientID)
	require.NoError(t, err)
	resolved, err := h.confirmations.ConfirmByProfessional(ctx, confirmation.ID, professionalID)
	require.NoError(t, err)
	require.Equal(t, domain.ResolutionBothConfirmed, resolved.Resolution)
	return appointment
}

func (h *harness) cardOnFile(professionalID uuid.UUID) {
	token := "tok_" + professionalID.String()[:8]
	h.store.PutPaymentMethod(&domain.PaymentMethod{
		ProfessionalID: professionalID,
		GatewayToken:   &token,
		UpdatedAt:      h.clock.Now(),
	})
}

// closedCycle stores a processing cycle that ended before the current one.
func (h *harness) closedCycle(t *testing.T) *domain.Cycle {
	t.Helper()
	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	cycle := &domain.Cycle{
		ID:         uuid.New(),
		StartDate:  start,
		EndDate:    start.AddDate(0, 0, 7),
		CutoffDate: start.AddDate(0, 0, 7).Add(72 * time.Hour),
		Status:     domain.CycleStatusProcessing,
		CreatedAt:  start,
		UpdatedAt:  start,
	}
	created, err := h.store.Cycles.Create(context.Background(), cycle)
	require.NoError(t, err)
	require.True(t, created)
	return cycle
}

func (h *harness) pendingFeeCharge(t *testing.T, cycle *domain.Cycle, professionalID uuid.UUID, amount string) *domain.FeeCharge {
	t.Helper()
	charge := &domain.FeeCharge{
		ID:             uuid.New(),
		ProfessionalID: professionalID,
		CycleID:        cycle.ID,
		Amount:         decimal.RequireFromString(amount),
		AmountPaid:     decimal.Zero,
		Status:         domain.FeeChargeStatusPending,
		CreatedAt:      h.clock.Now(),
		UpdatedAt:      h.clock.Now(),
	}
	created, err := h.store.FeeCharges.Create(context.Background(), charge)
	require.NoError(t, err)
	require.True(t, created)
	return charge
}

func succeeded(reference string) *gateway.Result {
	return &gateway.Result{Outcome: gateway.OutcomeSucceeded, Reference: reference}
}

func declined(reason string) *gateway.Result {
	return &gateway.Result{Outcome: gateway.OutcomeDeclined, DeclineReason: reason}
}
