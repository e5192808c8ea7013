package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	FeeChargeStatusPending       = "pending"
	FeeChargeStatusProcessing    = "processing"
	FeeChargeStatusCompleted     = "completed"
	FeeChargeStatusFailed        = "failed"
	FeeChargeStatusPartiallyPaid = "partially_paid"
	FeeChargeStatusWaived        = "waived"
)

const (
	FailureReasonNoPaymentMethod = "no_payment_method"
	BlockReasonNoPaymentMethod   = "no active payment method with outstanding platform fees"
	BlockReasonRepeatedDeclines  = "platform fee charge declined repeatedly"
)

// OutstandingFeeStatuses are the statuses that still owe money.
var OutstandingFeeStatuses = []string{
	FeeChargeStatusPending,
	FeeChargeStatusFailed,
	FeeChargeStatusPartiallyPaid,
}

// FeeCharge is a charge against a professional for a cycle's platform fees
type FeeCharge struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	ProfessionalID   uuid.UUID       `json:"professional_id" db:"professional_id"`
	CycleID          uuid.UUID       `json:"cycle_id" db:"cycle_id"`
	Amount           decimal.Decimal `json:"amount" db:"amount"`
	AmountPaid       decimal.Decimal `json:"amount_paid" db:"amount_paid"`
	Status           string          `json:"status" db:"status"`
	RetryCount       int             `json:"retry_count" db:"retry_count"`
	Attempts         int             `json:"attempts" db:"attempts"`
	GatewayReference *string         `json:"gateway_reference,omitempty" db:"gateway_reference"`
	FailureReason    *string         `json:"failure_reason,omitempty" db:"failure_reason"`
	WaiveReason      *string         `json:"waive_reason,omitempty" db:"waive_reason"`
	WaivedBy         *uuid.UUID      `json:"waived_by,omitempty" db:"waived_by"`
	LastAttemptAt    *time.Time      `json:"last_attempt_at,omitempty" db:"last_attempt_at"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// Remaining is the amount still owed on the charge.
func (f *FeeCharge) Remaining() decimal.Decimal {
	return f.Amount.Sub(f.AmountPaid)
}

// IdempotencyKey identifies the current attempt at the gateway.
func (f *FeeCharge) IdempotencyKey() string {
	return fmt.Sprintf("fee-%s-%d", f.ID, f.Attempts)
}

// IsOutstanding reports whether the charge still owes money.
func (f *FeeCharge) IsOutstanding() bool {
	for _, status := range OutstandingFeeStatuses {
		if f.Status == status {
			return true
		}
	}
	return false
}

// PaymentMethod is a professional's on-file card for fee collection
type PaymentMethod struct {
	ProfessionalID uuid.UUID  `json:"professional_id" db:"professional_id"`
	CardBrand      *string    `json:"card_brand,omitempty" db:"card_brand"`
	CardLast4      *string    `json:"card_last4,omitempty" db:"card_last4"`
	ExpMonth       *int       `json:"exp_month,omitempty" db:"exp_month"`
	ExpYear        *int       `json:"exp_year,omitempty" db:"exp_year"`
	GatewayToken   *string    `json:"-" db:"gateway_token"`
	Blocked        bool       `json:"blocked" db:"blocked"`
	BlockedReason  *string    `json:"blocked_reason,omitempty" db:"blocked_reason"`
	BlockedAt      *time.Time `json:"blocked_at,omitempty" db:"blocked_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// HasCard reports whether a chargeable instrument is on file.
func (m *PaymentMethod) HasCard() bool {
	return m != nil && m.GatewayToken != nil && *m.GatewayToken != ""
}

// BlockedProfessional is a blocked payment method with what is still owed.
type BlockedProfessional struct {
	PaymentMethod
	Outstanding decimal.Decimal `json:"outstanding" db:"outstanding"`
}

type FeeChargeHistoryResponse struct {
	FeeCharges   []*FeeCharge    `json:"fee_charges"`
	PendingTotal decimal.Decimal `json:"pending_total"`
	Blocked      bool            `json:"blocked"`
}

type PaymentMethodStatusResponse struct {
	PaymentMethod *PaymentMethod  `json:"payment_method,omitempty"`
	HasCard       bool            `json:"has_card"`
	Blocked       bool            `json:"blocked"`
	PendingTotal  decimal.Decimal `json:"pending_total"`
}

type UpdatePaymentMethodRequest struct {
	ProfessionalID uuid.UUID `json:"-"`
	CardBrand      string    `json:"card_brand" validate:"required,max=32"`
	CardLast4      string    `json:"card_last4" validate:"required,len=4,numeric"`
	ExpMonth       int       `json:"exp_month" validate:"required,min=1,max=12"`
	ExpYear        int       `json:"exp_year" validate:"required,min=2000,max=2100"`
	GatewayToken   string    `json:"gateway_token" validate:"required"`
}

type WaiveFeeChargeRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=2000"`
}
