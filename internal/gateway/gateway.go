// Package gateway describes the payment provider the engine moves money
// through. Every call carries an idempotency key; repeating a call with the
// same key must not move money twice.
package gateway

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Outcomes reported by the gateway for a settled request.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeDeclined  = "declined"
	OutcomePartial   = "partial"
	OutcomePending   = "pending"
)

var (
	// ErrIndeterminate means the request may or may not have been applied
	// (timeout, transport failure, 5xx). Callers leave the entity in
	// processing and reconcile later by idempotency key.
	ErrIndeterminate = errors.New("gateway outcome indeterminate")

	// ErrNotFound is returned by Lookup when the gateway has no record of the key.
	ErrNotFound = errors.New("gateway has no record of idempotency key")
)

// ChargeRequest debits a professional's stored card for platform fees.
type ChargeRequest struct {
	IdempotencyKey string          `json:"idempotency_key"`
	ProfessionalID uuid.UUID       `json:"professional_id"`
	PaymentToken   string          `json:"payment_token"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Description    string          `json:"description"`
}

// PayoutRequest sends a professional their net earnings for a cycle.
type PayoutRequest struct {
	IdempotencyKey string          `json:"idempotency_key"`
	ProfessionalID uuid.UUID       `json:"professional_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Description    string          `json:"description"`
}

// RefundRequest returns a captured client payment for a cancelled appointment.
type RefundRequest struct {
	IdempotencyKey   string    `json:"idempotency_key"`
	AppointmentID    uuid.UUID `json:"appointment_id"`
	PaymentReference string    `json:"payment_reference"`
	Reason           string    `json:"reason"`
}

// Result is the gateway's answer for a settled request. Captured is set for
// charges and may be lower than the requested amount on OutcomePartial.
type Result struct {
	Outcome       string          `json:"outcome"`
	Reference     string          `json:"reference"`
	Captured      decimal.Decimal `json:"captured"`
	DeclineReason string          `json:"decline_reason,omitempty"`
}

// Succeeded reports whether money moved in full.
func (r *Result) Succeeded() bool {
	return r != nil && r.Outcome == OutcomeSucceeded
}

// Gateway is the payment provider capability.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*Result, error)
	Payout(ctx context.Context, req PayoutRequest) (*Result, error)
	Refund(ctx context.Context, req RefundRequest) (*Result, error)

	// Lookup returns the settled outcome of an earlier request, or ErrNotFound.
	Lookup(ctx context.Context, idempotencyKey string) (*Result, error)
}
