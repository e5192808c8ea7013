package handler

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/segyhp/payout-engine/internal/domain"
	"github.com/segyhp/payout-engine/pkg/response"
	"github.com/shopspring/decimal"
)

const (
	HeaderUserID         = "X-User-ID"
	HeaderUserRole       = "X-User-Role"
	HeaderInternalAPIKey = "X-Internal-API-Key"
)

// NewValidator returns a validator that understands decimal.Decimal fields
// through the decimal_gt, decimal_gte and decimal_lte tags.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	_ = v.RegisterValidation("decimal_gt", decimalCompare(func(value, bound decimal.Decimal) bool { return value.GreaterThan(bound) }))
	_ = v.RegisterValidation("decimal_gte", decimalCompare(func(value, bound decimal.Decimal) bool { return value.GreaterThanOrEqual(bound) }))
	_ = v.RegisterValidation("decimal_lte", decimalCompare(func(value, bound decimal.Decimal) bool { return value.LessThanOrEqual(bound) }))
	return v
}

func decimalCompare(cmp func(value, bound decimal.Decimal) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		value, err := decimal.NewFromString(fl.Field().String())
		if err != nil {
			return false
		}
		bound, err := decimal.NewFromString(fl.Param())
		if err != nil {
			return false
		}
		return cmp(value, bound)
	}
}

// actorFrom reads the caller identity set by the upstream auth layer. It
// writes the error response itself and returns false when the headers are
// missing or malformed.
func actorFrom(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	raw := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if raw == "" {
		response.Unauthorized(w, "Missing "+HeaderUserID+" header")
		return domain.Actor{}, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		response.BadRequest(w, "Invalid "+HeaderUserID+" header", err)
		return domain.Actor{}, false
	}
	return domain.Actor{
		UserID: id,
		Role:   strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderUserRole))),
	}, true
}

// RequireAdmin rejects callers without the admin role before the admin
// routes run.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		if !actor.IsAdmin() {
			response.Forbidden(w, "Admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireInternalKey admits service-to-service callers presenting key. With
// no key configured every request is rejected.
func RequireInternalKey(key string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(HeaderInternalAPIKey)
			if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				response.Unauthorized(w, "Invalid or missing "+HeaderInternalAPIKey+" header")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		response.BadRequest(w, "Invalid "+name, err)
		return uuid.Nil, false
	}
	return id, true
}

// selfOrAdmin allows a caller to read their own resources; admins can read
// anyone's.
func selfOrAdmin(w http.ResponseWriter, actor domain.Actor, ownerID uuid.UUID) bool {
	if actor.UserID != ownerID && !actor.IsAdmin() {
		response.Forbidden(w, "Cannot access another user's data")
		return false
	}
	return true
}

func decode(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.BadRequest(w, "Invalid JSON payload", err)
		return false
	}
	if err := v.Struct(dst); err != nil {
		response.BadRequest(w, "Validation failed", err)
		return false
	}
	return true
}
