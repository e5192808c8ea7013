package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	CycleStatusActive     = "active"
	CycleStatusProcessing = "processing"
	CycleStatusCompleted  = "completed"
	CycleStatusFailed     = "failed"
)

// Cycle represents a fixed-length billing period
type Cycle struct {
	ID                  uuid.UUID  `json:"id" db:"id"`
	StartDate           time.Time  `json:"start_date" db:"start_date"`
	EndDate             time.Time  `json:"end_date" db:"end_date"`
	CutoffDate          time.Time  `json:"cutoff_date" db:"cutoff_date"`
	Status              string     `json:"status" db:"status"`
	ProcessingStartedAt *time.Time `json:"processing_started_at,omitempty" db:"processing_started_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	SealedAt            *time.Time `json:"sealed_at,omitempty" db:"sealed_at"`
	LastError           *string    `json:"last_error,omitempty" db:"last_error"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
}

// Contains reports whether t falls in [StartDate, EndDate).
func (c *Cycle) Contains(t time.Time) bool {
	return !t.Before(c.StartDate) && t.Before(c.EndDate)
}

// AcceptsEarnings reports whether new earnings may still be attributed to the
// cycle. Payout totals are read only after the cycle is sealed.
func (c *Cycle) AcceptsEarnings() bool {
	return c.Status != CycleStatusCompleted && c.SealedAt == nil
}

// IsOpen reports whether money movement must still wait for this cycle.
func (c *Cycle) IsOpen() bool {
	return c.Status == CycleStatusActive
}

type CycleInfo struct {
	Cycle                   *Cycle `json:"cycle"`
	DaysRemaining           int    `json:"days_remaining"`
	HoursUntilCutoff        int    `json:"hours_until_cutoff"`
	PreviousCycleProcessing bool   `json:"previous_cycle_processing"`
	PreviousCycle           *Cycle `json:"previous_cycle,omitempty"`
}

// CycleStats is a cycle with its ledger totals, for admin tooling.
type CycleStats struct {
	Cycle
	ProfessionalCount   int             `json:"professional_count" db:"professional_count"`
	EarningsCount       int             `json:"earnings_count" db:"earnings_count"`
	GrossTotal          decimal.Decimal `json:"gross_total" db:"gross_total"`
	FeeTotal            decimal.Decimal `json:"fee_total" db:"fee_total"`
	PayoutsCompleted    int             `json:"payouts_completed" db:"payouts_completed"`
	PayoutsFailed       int             `json:"payouts_failed" db:"payouts_failed"`
	PayoutsPending      int             `json:"payouts_pending" db:"payouts_pending"`
	FeeChargesCompleted int             `json:"fee_charges_completed" db:"fee_charges_completed"`
	FeeChargesFailed    int             `json:"fee_charges_failed" db:"fee_charges_failed"`
}
