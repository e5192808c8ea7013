package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	TriggerDailyConfirmation = "daily-confirmation"
	TriggerAutoConfirm       = "auto-confirm"
	TriggerWeeklyPayout      = "weekly-payout"
	TriggerManual            = "manual"
)

// ValidTrigger reports whether trigger is one the pipeline understands.
func ValidTrigger(trigger string) bool {
	switch trigger {
	case TriggerDailyConfirmation, TriggerAutoConfirm, TriggerWeeklyPayout, TriggerManual:
		return true
	}
	return false
}

type PipelineRequest struct {
	Trigger   string `json:"trigger" validate:"required,oneof=daily-confirmation auto-confirm weekly-payout manual"`
	RequestID string `json:"request_id" validate:"required,max=128"`
}

// PipelineResult is returned by every pipeline invocation. Per-entity
// failures land in the *Errors slices; Success is false only when the run
// could not start or a stage was misconfigured.
type PipelineResult struct {
	RequestID            string    `json:"request_id"`
	Trigger              string    `json:"trigger"`
	Success              bool      `json:"success"`
	Skipped              bool      `json:"skipped"`
	Replayed             bool      `json:"replayed"`
	ConfirmationsCreated int       `json:"confirmations_created"`
	ConfirmationErrors   []string  `json:"confirmation_errors"`
	AutoConfirmed        int       `json:"auto_confirmed"`
	CyclesProcessed      int       `json:"cycles_processed"`
	CyclesUnsettled      int       `json:"cycles_unsettled"`
	PayoutsProcessed     int       `json:"payouts_processed"`
	PayoutsFailed        int       `json:"payouts_failed"`
	PayoutErrors         []string  `json:"payout_errors"`
	FeeChargesProcessed  int       `json:"fee_charges_processed"`
	FeeChargesFailed     int       `json:"fee_charges_failed"`
	FeeChargeErrors      []string  `json:"fee_charge_errors"`
	EmailsSent           int       `json:"emails_sent"`
	EmailErrors          []string  `json:"email_errors"`
	Error                string    `json:"error,omitempty"`
	StartedAt            time.Time `json:"started_at"`
	FinishedAt           time.Time `json:"finished_at"`
}

// NewPipelineResult returns a result with empty, non-nil error slices.
func NewPipelineResult(req PipelineRequest, startedAt time.Time) *PipelineResult {
	return &PipelineResult{
		RequestID:          req.RequestID,
		Trigger:            req.Trigger,
		Success:            true,
		ConfirmationErrors: []string{},
		PayoutErrors:       []string{},
		FeeChargeErrors:    []string{},
		EmailErrors:        []string{},
		StartedAt:          startedAt,
	}
}

// HasErrors reports whether any per-entity failure was recorded.
func (r *PipelineResult) HasErrors() bool {
	return len(r.ConfirmationErrors) > 0 ||
		len(r.PayoutErrors) > 0 ||
		len(r.FeeChargeErrors) > 0 ||
		len(r.EmailErrors) > 0 ||
		r.PayoutsFailed > 0 ||
		r.FeeChargesFailed > 0
}

const (
	BatchKindConfirmation = "confirmation"
	BatchKindAutoConfirm  = "auto_confirm"
	BatchKindPayout       = "payout"
	BatchKindFeeCharge    = "fee_charge"
)

const (
	ItemSucceeded     = "succeeded"
	ItemFailed        = "failed"
	ItemIndeterminate = "indeterminate"
	ItemSkipped       = "skipped"
)

// ItemResult is the outcome of one entity inside a batch.
type ItemResult struct {
	EntityID uuid.UUID `json:"entity_id"`
	Outcome  string    `json:"outcome"`
	Err      error     `json:"-"`
}

// BatchReport collects per-entity outcomes of one stage.
type BatchReport struct {
	Kind          string
	Items         []ItemResult
	Succeeded     int
	Failed        int
	Indeterminate int
	Skipped       int
	Notifications []Notification
}

func NewBatchReport(kind string) *BatchReport {
	return &BatchReport{Kind: kind}
}

// Add records one entity's outcome.
func (b *BatchReport) Add(item ItemResult) {
	b.Items = append(b.Items, item)
	switch item.Outcome {
	case ItemSucceeded:
		b.Succeeded++
	case ItemFailed:
		b.Failed++
	case ItemIndeterminate:
		b.Indeterminate++
	case ItemSkipped:
		b.Skipped++
	}
}

func (b *BatchReport) Succeed(id uuid.UUID) {
	b.Add(ItemResult{EntityID: id, Outcome: ItemSucceeded})
}

func (b *BatchReport) Fail(id uuid.UUID, err error) {
	b.Add(ItemResult{EntityID: id, Outcome: ItemFailed, Err: err})
}

func (b *BatchReport) Notify(n Notification) {
	b.Notifications = append(b.Notifications, n)
}

// ErrorMessages returns "<id>: <error>" for every failed item.
func (b *BatchReport) ErrorMessages() []string {
	messages := make([]string, 0, b.Failed)
	for _, item := range b.Items {
		if item.Err != nil {
			messages = append(messages, fmt.Sprintf("%s %s: %v", b.Kind, item.EntityID, item.Err))
		}
	}
	return messages
}

const (
	NotificationConfirmationRequested = "confirmation.requested"
	NotificationAutoConfirmed         = "confirmation.auto_confirmed"
	NotificationDisputeResolved       = "dispute.resolved"
	NotificationPayoutCompleted       = "payout.completed"
	NotificationPayoutFailed          = "payout.failed"
	NotificationFeeChargeFailed       = "fee_charge.failed"
	NotificationProfessionalBlocked   = "professional.blocked"
	NotificationRefundFailed          = "refund.failed"
)

// Notification is an outbound message for the external email/push service.
type Notification struct {
	Kind        string            `json:"kind"`
	RecipientID uuid.UUID         `json:"recipient_id"`
	EntityID    uuid.UUID         `json:"entity_id"`
	Data        map[string]string `json:"data,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}
