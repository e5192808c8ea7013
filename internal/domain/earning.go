package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const SettingPlatformCut = "platform_cut_percentage"

// Earning is an immutable, cycle-attributed revenue line
type Earning struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	ProfessionalID uuid.UUID       `json:"professional_id" db:"professional_id"`
	AppointmentID  uuid.UUID       `json:"appointment_id" db:"appointment_id"`
	CycleID        uuid.UUID       `json:"cycle_id" db:"cycle_id"`
	GrossAmount    decimal.Decimal `json:"gross_amount" db:"gross_amount"`
	PlatformFee    decimal.Decimal `json:"platform_fee" db:"platform_fee"`
	NetAmount      decimal.Decimal `json:"net_amount" db:"net_amount"`
	CutPercentage  decimal.Decimal `json:"cut_percentage" db:"cut_percentage"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// EarningTotals are per-row sums; fees are never re-rounded in aggregate.
type EarningTotals struct {
	ProfessionalID uuid.UUID       `json:"professional_id" db:"professional_id"`
	Gross          decimal.Decimal `json:"gross" db:"gross"`
	Fee            decimal.Decimal `json:"fee" db:"fee"`
	Net            decimal.Decimal `json:"net" db:"net"`
	Sessions       int             `json:"sessions" db:"sessions"`
}

type EarningsSummary struct {
	ProfessionalID       uuid.UUID       `json:"professional_id"`
	Cycle                *Cycle          `json:"cycle,omitempty"`
	Gross                decimal.Decimal `json:"gross"`
	PlatformFee          decimal.Decimal `json:"platform_fee"`
	Net                  decimal.Decimal `json:"net"`
	ConfirmedSessions    int             `json:"confirmed_sessions"`
	PendingConfirmations int             `json:"pending_confirmations"`
}

type PlatformCutRequest struct {
	Percentage decimal.Decimal `json:"percentage" validate:"decimal_gte=0,decimal_lte=100"`
}

type PlatformCutResponse struct {
	Percentage decimal.Decimal `json:"percentage"`
}
