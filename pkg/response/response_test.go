package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	customError "github.com/segyhp/payout-engine/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", customError.WrapValidation("bad"), http.StatusBadRequest},
		{"admin required", customError.WrapAdminRequired(), http.StatusForbidden},
		{"not participant", customError.WrapNotParticipant("a1"), http.StatusForbidden},
		{"not found", customError.WrapNotFound(customError.ErrCycleNotFound, "c1"), http.StatusNotFound},
		{"already confirmed", customError.WrapAlreadyConfirmed("c1", "client"), http.StatusConflict},
		{"cycle still open", customError.WrapCycleState(customError.ErrCycleStillOpen, "c1", "active"), http.StatusConflict},
		{"blocked", customError.WrapProfessionalBlocked("p1", "repeated_declines"), http.StatusPaymentRequired},
		{"gateway", customError.WrapGatewayError(errors.New("timeout")), http.StatusBadGateway},
		{"database", customError.WrapDatabaseError(errors.New("conn reset")), http.StatusInternalServerError},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestServiceError(t *testing.T) {
	t.Run("business error carries code", func(t *testing.T) {
		w := httptest.NewRecorder()
		ServiceError(w, "Failed to confirm", customError.WrapAlreadyConfirmed("c1", "client"))

		assert.Equal(t, http.StatusConflict, w.Code)
		var body ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.False(t, body.Success)
		assert.Equal(t, customError.ErrCodeAlreadyConfirmed, body.Code)
		assert.Equal(t, "Failed to confirm", body.Message)
	})

	t.Run("internal detail is hidden", func(t *testing.T) {
		w := httptest.NewRecorder()
		ServiceError(w, "Failed to load cycle", customError.WrapDatabaseError(errors.New("password authentication failed")))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "password")
	})
}

func TestLoggingMiddleware(t *testing.T) {
	handler := LoggingMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestCORSMiddlewareShortCircuitsPreflight(t *testing.T) {
	called := false
	handler := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/v1/bookings", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, called)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-User-ID")
}
