package gatewayclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/payout-engine/internal/gateway"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClient_Payout(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantOutcome string
		wantErr     error
		wantAnyErr  bool
	}{
		{
			name:        "succeeded",
			status:      http.StatusOK,
			body:        `{"outcome":"succeeded","reference":"po_123"}`,
			wantOutcome: gateway.OutcomeSucceeded,
		},
		{
			name:        "declined",
			status:      http.StatusOK,
			body:        `{"outcome":"declined","decline_reason":"account_closed"}`,
			wantOutcome: gateway.OutcomeDeclined,
		},
		{
			name:    "server error is indeterminate",
			status:  http.StatusBadGateway,
			body:    `{}`,
			wantErr: gateway.ErrIndeterminate,
		},
		{
			name:       "client error is permanent",
			status:     http.StatusUnprocessableEntity,
			body:       `{"message":"amount must be positive"}`,
			wantAnyErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotKey string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/payouts", r.URL.Path)
				assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
				gotKey = r.Header.Get("Idempotency-Key")

				var payload gateway.PayoutRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
				assert.Equal(t, "90", payload.Amount.String())

				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, "secret", time.Second, zap.NewNop())
			result, err := client.Payout(t.Context(), gateway.PayoutRequest{
				IdempotencyKey: "payout-abc-1",
				ProfessionalID: uuid.New(),
				Amount:         decimal.RequireFromString("90.00"),
				Currency:       "USD",
			})

			assert.Equal(t, "payout-abc-1", gotKey)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantAnyErr:
				assert.Error(t, err)
				assert.NotErrorIs(t, err, gateway.ErrIndeterminate)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.wantOutcome, result.Outcome)
			}
		})
	}
}

func TestClient_Lookup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/requests/fee-known-1":
			_, _ = w.Write([]byte(`{"outcome":"partial","reference":"ch_9","captured":"4.00"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second, nil)

	result, err := client.Lookup(t.Context(), "fee-known-1")
	require.NoError(t, err)
	assert.Equal(t, gateway.OutcomePartial, result.Outcome)
	assert.True(t, decimal.RequireFromString("4.00").Equal(result.Captured))

	_, err = client.Lookup(t.Context(), "fee-unknown-1")
	assert.ErrorIs(t, err, gateway.ErrNotFound)
}

func TestClient_TransportFailureIsIndeterminate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 20*time.Millisecond, zap.NewNop())
	_, err := client.Charge(t.Context(), gateway.ChargeRequest{IdempotencyKey: "fee-x-1", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, gateway.ErrIndeterminate)
}
