package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	PayoutStatusPending    = "pending"
	PayoutStatusProcessing = "processing"
	PayoutStatusCompleted  = "completed"
	PayoutStatusFailed     = "failed"
)

// Payout is a disbursement to a professional for a closed cycle
type Payout struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	ProfessionalID   uuid.UUID       `json:"professional_id" db:"professional_id"`
	CycleID          uuid.UUID       `json:"cycle_id" db:"cycle_id"`
	Amount           decimal.Decimal `json:"amount" db:"amount"`
	Status           string          `json:"status" db:"status"`
	Attempts         int             `json:"attempts" db:"attempts"`
	GatewayReference *string         `json:"gateway_reference,omitempty" db:"gateway_reference"`
	FailureReason    *string         `json:"failure_reason,omitempty" db:"failure_reason"`
	LastAttemptAt    *time.Time      `json:"last_attempt_at,omitempty" db:"last_attempt_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// IdempotencyKey identifies the current attempt at the gateway. It changes
// only when the payout is claimed again after a definite failure.
func (p *Payout) IdempotencyKey() string {
	return fmt.Sprintf("payout-%s-%d", p.ID, p.Attempts)
}

type PayoutHistoryResponse struct {
	Payouts          []*Payout       `json:"payouts"`
	UpcomingEstimate decimal.Decimal `json:"upcoming_estimate"`
	UpcomingCycle    *Cycle          `json:"upcoming_cycle,omitempty"`
}

const (
	PayoutActionProcessAll    = "process_all"
	PayoutActionProcessCycle  = "process_cycle"
	PayoutActionCreatePayouts = "create_payouts"
)

type RunPayoutsRequest struct {
	Action  string     `json:"action" validate:"required,oneof=process_all process_cycle create_payouts"`
	CycleID *uuid.UUID `json:"cycle_id,omitempty" validate:"required_unless=Action process_all"`
}

// ReadyCyclesReport aggregates one payout run over every ready cycle.
type ReadyCyclesReport struct {
	CyclesProcessed     int            `json:"cycles_processed"`
	CyclesFailed        int            `json:"cycles_failed"`
	CyclesUnsettled     int            `json:"cycles_unsettled"`
	PayoutsCreated      int            `json:"payouts_created"`
	PayoutsProcessed    int            `json:"payouts_processed"`
	PayoutsFailed       int            `json:"payouts_failed"`
	PayoutsPending      int            `json:"payouts_pending"`
	FeeChargesCreated   int            `json:"fee_charges_created"`
	FeeChargesProcessed int            `json:"fee_charges_processed"`
	FeeChargesFailed    int            `json:"fee_charges_failed"`
	PayoutErrors        []string       `json:"payout_errors"`
	FeeChargeErrors     []string       `json:"fee_charge_errors"`
	Notifications       []Notification `json:"-"`
}

// Merge folds a batch report for one stage into the run totals.
func (r *ReadyCyclesReport) Merge(kind string, batch *BatchReport) {
	if batch == nil {
		return
	}
	switch kind {
	case BatchKindPayout:
		r.PayoutsProcessed += batch.Succeeded
		r.PayoutsFailed += batch.Failed
		r.PayoutsPending += batch.Indeterminate
		r.PayoutErrors = append(r.PayoutErrors, batch.ErrorMessages()...)
	case BatchKindFeeCharge:
		r.FeeChargesProcessed += batch.Succeeded
		r.FeeChargesFailed += batch.Failed
		r.FeeChargeErrors = append(r.FeeChargeErrors, batch.ErrorMessages()...)
	}
	r.Notifications = append(r.Notifications, batch.Notifications...)
}
