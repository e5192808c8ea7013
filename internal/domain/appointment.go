package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	AppointmentStatusUpcoming  = "upcoming"
	AppointmentStatusCompleted = "completed"
	AppointmentStatusCancelled = "cancelled"
	AppointmentStatusDisputed  = "disputed"
)

const (
	DisputeStatusNone     = "none"
	DisputeStatusOpen     = "open"
	DisputeStatusResolved = "resolved"
)

// Appointment represents a booked session between a client and a professional
type Appointment struct {
	ID               uuid.UUID        `json:"id" db:"id"`
	ClientID         uuid.UUID        `json:"client_id" db:"client_id"`
	ProfessionalID   uuid.UUID        `json:"professional_id" db:"professional_id"`
	SlotID           *uuid.UUID       `json:"slot_id,omitempty" db:"slot_id"`
	StartTime        time.Time        `json:"start_time" db:"start_time"`
	EndTime          time.Time        `json:"end_time" db:"end_time"`
	Status           string           `json:"status" db:"status"`
	Rate             decimal.Decimal  `json:"rate" db:"rate"`
	AdjustedRate     *decimal.Decimal `json:"adjusted_rate,omitempty" db:"adjusted_rate"`
	DisputeStatus    string           `json:"dispute_status" db:"dispute_status"`
	DisputeReason    *string          `json:"dispute_reason,omitempty" db:"dispute_reason"`
	DisputedBy       *uuid.UUID       `json:"disputed_by,omitempty" db:"disputed_by"`
	Venue            string           `json:"venue" db:"venue"`
	PaymentReference *string          `json:"payment_reference,omitempty" db:"payment_reference"`
	RefundReference  *string          `json:"refund_reference,omitempty" db:"refund_reference"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at" db:"updated_at"`
}

// GrossAmount is the amount the session is billed at: the adjusted rate when
// one was agreed, otherwise the booked rate.
func (a *Appointment) GrossAmount() decimal.Decimal {
	if a.AdjustedRate != nil {
		return *a.AdjustedRate
	}
	return a.Rate
}

// HasEnded reports whether the session's end time has passed at now.
func (a *Appointment) HasEnded(now time.Time) bool {
	return !now.Before(a.EndTime)
}

// IsParticipant reports whether userID is the client or the professional.
func (a *Appointment) IsParticipant(userID uuid.UUID) bool {
	return a.ClientID == userID || a.ProfessionalID == userID
}

// AvailabilitySlot is a bookable window in a professional's calendar
type AvailabilitySlot struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	ProfessionalID uuid.UUID  `json:"professional_id" db:"professional_id"`
	StartTime      time.Time  `json:"start_time" db:"start_time"`
	EndTime        time.Time  `json:"end_time" db:"end_time"`
	Booked         bool       `json:"booked" db:"booked"`
	AppointmentID  *uuid.UUID `json:"appointment_id,omitempty" db:"appointment_id"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// AppointmentChange is the appointment side of a confirmation transition.
type AppointmentChange struct {
	AppointmentID uuid.UUID
	Status        string
	DisputeStatus string
	DisputeReason *string
	DisputedBy    *uuid.UUID
}

// DTOs for requests and responses

type AcceptBookingRequest struct {
	ClientID       uuid.UUID        `json:"client_id" validate:"required"`
	ProfessionalID uuid.UUID        `json:"professional_id" validate:"required"`
	SlotID         uuid.UUID        `json:"slot_id" validate:"required"`
	Rate           decimal.Decimal  `json:"rate" validate:"decimal_gt=0"`
	AdjustedRate   *decimal.Decimal `json:"adjusted_rate,omitempty"`
	Venue          string           `json:"venue" validate:"max=255"`
	PaymentRef     *string          `json:"payment_reference,omitempty"`
}

type RaiseDisputeRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=2000"`
}
