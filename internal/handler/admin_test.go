package handler

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/segyhp/payout-engine/internal/domain"
	customError "github.com/segyhp/payout-engine/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestAdminHandler_RequiresAdminRole(t *testing.T) {
	f := newFixture()
	user := uuid.New()

	w := f.do(http.MethodGet, "/api/v1/admin/cycles", nil, &user, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodGet, "/api/v1/admin/cycles", nil, nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	f.cycles.On("ListCyclesWithStats", mock.Anything, 20, 0).Return([]*domain.CycleStats{}, nil).Once()
	w = f.do(http.MethodGet, "/api/v1/admin/cycles", nil, &user, "ADMIN")
	assert.Equal(t, http.StatusOK, w.Code)
	f.assertExpectations(t)
}

func TestAdminHandler_ListCyclesPagination(t *testing.T) {
	admin := uuid.New()

	tests := []struct {
		name           string
		query          string
		wantLimit      int
		wantOffset     int
		expectedStatus int
	}{
		{"defaults", "", 20, 0, http.StatusOK},
		{"explicit page", "?limit=5&offset=10", 5, 10, http.StatusOK},
		{"limit capped", "?limit=1000", 100, 0, http.StatusOK},
		{"bad limit", "?limit=-1", 0, 0, http.StatusBadRequest},
		{"bad offset", "?offset=abc", 0, 0, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			if tt.expectedStatus == http.StatusOK {
				f.cycles.On("ListCyclesWithStats", mock.Anything, tt.wantLimit, tt.wantOffset).
					Return([]*domain.CycleStats{}, nil).Once()
			}

			w := f.do(http.MethodGet, "/api/v1/admin/cycles"+tt.query, nil, &admin, domain.RoleAdmin)

			assert.Equal(t, tt.expectedStatus, w.Code)
			f.assertExpectations(t)
		})
	}
}

func TestAdminHandler_GetCycleNotFound(t *testing.T) {
	f := newFixture()
	admin := uuid.New()
	cycleID := uuid.New()
	f.cycles.On("GetCycle", mock.Anything, cycleID).
		Return(nil, customError.WrapNotFound(customError.ErrCycleNotFound, cycleID.String())).Once()

	w := f.do(http.MethodGet, "/api/v1/admin/cycles/"+cycleID.String(), nil, &admin, domain.RoleAdmin)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), customError.ErrCodeNotFound)
}

func TestAdminHandler_RunPayouts(t *testing.T) {
	admin := uuid.New()
	cycleID := uuid.New()

	tests := []struct {
		name           string
		body           domain.RunPayoutsRequest
		setupMock      func(*mockPayouts)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "process all",
			body: domain.RunPayoutsRequest{Action: domain.PayoutActionProcessAll},
			setupMock: func(m *mockPayouts) {
				m.On("ProcessAllReadyCycles", mock.Anything).
					Return(&domain.ReadyCyclesReport{CyclesProcessed: 2}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"cycles_processed":2`,
		},
		{
			name: "process one cycle",
			body: domain.RunPayoutsRequest{Action: domain.PayoutActionProcessCycle, CycleID: &cycleID},
			setupMock: func(m *mockPayouts) {
				m.On("ProcessCycleByID", mock.Anything, cycleID).
					Return(&domain.ReadyCyclesReport{CyclesProcessed: 1}, nil).Once()
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "create payouts",
			body: domain.RunPayoutsRequest{Action: domain.PayoutActionCreatePayouts, CycleID: &cycleID},
			setupMock: func(m *mockPayouts) {
				m.On("CreatePayoutsForCycle", mock.Anything, cycleID).Return(3, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"payouts_created":3`,
		},
		{
			name: "create payouts on an open cycle",
			body: domain.RunPayoutsRequest{Action: domain.PayoutActionCreatePayouts, CycleID: &cycleID},
			setupMock: func(m *mockPayouts) {
				m.On("CreatePayoutsForCycle", mock.Anything, cycleID).
					Return(0, customError.WrapCycleState(customError.ErrCycleNotProcessing, cycleID.String(), domain.CycleStatusActive)).Once()
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "cycle id required",
			body:           domain.RunPayoutsRequest{Action: domain.PayoutActionProcessCycle},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "Validation failed",
		},
		{
			name:           "unknown action",
			body:           domain.RunPayoutsRequest{Action: "pay_everyone"},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			if tt.setupMock != nil {
				tt.setupMock(f.payouts)
			}

			w := f.do(http.MethodPost, "/api/v1/admin/payouts/run", tt.body, &admin, domain.RoleAdmin)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedBody != "" {
				assert.Contains(t, w.Body.String(), tt.expectedBody)
			}
			f.assertExpectations(t)
		})
	}
}

func TestAdminHandler_DisputesAndFees(t *testing.T) {
	f := newFixture()
	admin := uuid.New()
	actor := domain.Actor{UserID: admin, Role: domain.RoleAdmin}
	confirmationID := uuid.New()
	chargeID := uuid.New()
	professionalID := uuid.New()

	resolve := domain.ResolveDisputeRequest{Resolution: domain.ResolutionAdminCancelled, Notes: "no-show"}
	f.confirmations.On("ResolveDispute", mock.Anything, confirmationID, actor, resolve).
		Return(&domain.Confirmation{ID: confirmationID, Resolution: domain.ResolutionAdminCancelled}, nil).Once()
	w := f.do(http.MethodPost, "/api/v1/admin/confirmations/"+confirmationID.String()+"/resolve", resolve, &admin, domain.RoleAdmin)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/api/v1/admin/confirmations/"+confirmationID.String()+"/resolve",
		domain.ResolveDisputeRequest{Resolution: domain.ResolutionBothConfirmed}, &admin, domain.RoleAdmin)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.fees.On("WaiveFeeCharge", mock.Anything, chargeID, actor, "goodwill").
		Return(&domain.FeeCharge{ID: chargeID, Status: domain.FeeChargeStatusWaived}, nil).Once()
	w = f.do(http.MethodPost, "/api/v1/admin/fee-charges/"+chargeID.String()+"/waive",
		domain.WaiveFeeChargeRequest{Reason: "goodwill"}, &admin, domain.RoleAdmin)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.FeeChargeStatusWaived, envelope[domain.FeeCharge](t, w).Status)

	f.fees.On("UnblockProfessional", mock.Anything, professionalID, actor).Return(nil).Once()
	w = f.do(http.MethodPost, "/api/v1/admin/professionals/"+professionalID.String()+"/unblock", nil, &admin, domain.RoleAdmin)
	assert.Equal(t, http.StatusNoContent, w.Code)

	f.fees.On("ListBlocked", mock.Anything).Return([]*domain.BlockedProfessional{}, nil).Once()
	w = f.do(http.MethodGet, "/api/v1/admin/professionals/blocked", nil, &admin, domain.RoleAdmin)
	assert.Equal(t, http.StatusOK, w.Code)

	f.confirmations.On("ListDisputed", mock.Anything).Return([]*domain.PendingConfirmation{}, nil).Once()
	w = f.do(http.MethodGet, "/api/v1/admin/disputes", nil, &admin, domain.RoleAdmin)
	assert.Equal(t, http.StatusOK, w.Code)

	f.assertExpectations(t)
}

func TestAdminHandler_PlatformCut(t *testing.T) {
	f := newFixture()
	admin := uuid.New()

	f.earnings.On("GetPlatformCut", mock.Anything).Return(decimal.NewFromInt(20), nil).Once()
	w := f.do(http.MethodGet, "/api/v1/admin/settings/platform-cut", nil, &admin, domain.RoleAdmin)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, envelope[domain.PlatformCutResponse](t, w).Percentage.Equal(decimal.NewFromInt(20)))

	f.earnings.On("SetPlatformCut", mock.Anything, mock.MatchedBy(func(p decimal.Decimal) bool {
		return p.Equal(decimal.NewFromInt(15))
	}), fixedNow).Return(nil).Once()
	w = f.do(http.MethodPut, "/api/v1/admin/settings/platform-cut",
		domain.PlatformCutRequest{Percentage: decimal.NewFromInt(15)}, &admin, domain.RoleAdmin)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPut, "/api/v1/admin/settings/platform-cut",
		domain.PlatformCutRequest{Percentage: decimal.NewFromInt(101)}, &admin, domain.RoleAdmin)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.assertExpectations(t)
}
