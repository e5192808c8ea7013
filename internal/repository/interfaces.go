package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/payout-engine/internal/domain"
	"github.com/shopspring/decimal"
)

// AppointmentRepository defines the interface for appointment and slot data operations
type AppointmentRepository interface {
	// GetByID retrieves an appointment by id
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Appointment, error)

	// ListEndedUpcoming lists upcoming appointments whose end time is at or before now
	ListEndedUpcoming(ctx context.Context, now time.Time, limit int) ([]*domain.Appointment, error)

	// MarkCompleted moves an upcoming appointment that has ended to completed.
	// Returns false when the appointment was not upcoming.
	MarkCompleted(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)

	// CreateWithSlot books the slot and inserts the appointment in one transaction
	CreateWithSlot(ctx context.Context, appointment *domain.Appointment) error

	// GetSlot retrieves an availability slot by id
	GetSlot(ctx context.Context, id uuid.UUID) (*domain.AvailabilitySlot, error)

	// SetRefundReference records a completed refund for a cancelled appointment
	SetRefundReference(ctx context.Context, id uuid.UUID, reference string, now time.Time) error
}

// ConfirmationRepository defines the interface for confirmation data operations
type ConfirmationRepository interface {
	// Create inserts a confirmation unless one exists for the appointment.
	// Returns false when the row already existed.
	Create(ctx context.Context, confirmation *domain.Confirmation) (bool, error)

	GetByID(ctx context.Context, id uuid.UUID) (*domain.Confirmation, error)

	GetByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*domain.Confirmation, error)

	// ApplyTransition writes a resolution change together with its earning,
	// appointment update and slot release. Returns ErrConfirmationConflict when
	// the stored resolution no longer matches FromResolution, or when the
	// earning's cycle no longer accepts earnings.
	ApplyTransition(ctx context.Context, transition *domain.ConfirmationTransition) error

	// ListDueForAutoConfirm lists non-terminal, non-disputed confirmations past their deadline
	ListDueForAutoConfirm(ctx context.Context, now time.Time, limit int) ([]*domain.Confirmation, error)

	// ListDisputed lists confirmations awaiting admin resolution
	ListDisputed(ctx context.Context) ([]*domain.PendingConfirmation, error)

	// ListOpenForUser lists non-terminal confirmations where the user is a party
	ListOpenForUser(ctx context.Context, userID uuid.UUID) ([]*domain.PendingConfirmation, error)

	// CountOpenForProfessional counts non-terminal confirmations for a professional
	CountOpenForProfessional(ctx context.Context, professionalID uuid.UUID) (int, error)
}

// CycleRepository defines the interface for billing cycle data operations
type CycleRepository interface {
	// Create inserts a cycle unless one with the same bounds (or another
	// active cycle) exists. Returns false when nothing was inserted.
	Create(ctx context.Context, cycle *domain.Cycle) (bool, error)

	GetByID(ctx context.Context, id uuid.UUID) (*domain.Cycle, error)

	GetByBounds(ctx context.Context, start, end time.Time) (*domain.Cycle, error)

	// GetPrevious retrieves the latest cycle ending at or before t
	GetPrevious(ctx context.Context, t time.Time) (*domain.Cycle, error)

	// CloseExpired moves active cycles that ended at or before now to processing
	CloseExpired(ctx context.Context, now time.Time) (int64, error)

	// Seal stops a closed cycle from accepting earnings. Returns false when the
	// cycle is missing or still active.
	Seal(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)

	// TransitionStatus moves a cycle to status "to" only if its current status
	// is one of "from". Returns false when the guard did not match.
	TransitionStatus(ctx context.Context, id uuid.UUID, from []string, to string, lastError *string, now time.Time) (bool, error)

	// ListReady lists cycles whose cutoff has passed and that are not completed
	ListReady(ctx context.Context, now time.Time) ([]*domain.Cycle, error)

	ListWithStats(ctx context.Context, limit, offset int) ([]*domain.CycleStats, error)

	GetStats(ctx context.Context, id uuid.UUID) (*domain.CycleStats, error)
}

// EarningRepository defines the interface for earning reads. Earnings are
// written only through ConfirmationRepository.ApplyTransition.
type EarningRepository interface {
	GetByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*domain.Earning, error)

	ListByCycle(ctx context.Context, cycleID uuid.UUID) ([]*domain.Earning, error)

	// TotalsByProfessional sums per-row gross, fee and net for each professional in a cycle
	TotalsByProfessional(ctx context.Context, cycleID uuid.UUID) ([]*domain.EarningTotals, error)

	// TotalsForProfessional sums a professional's earnings, optionally within one cycle
	TotalsForProfessional(ctx context.Context, professionalID uuid.UUID, cycleID *uuid.UUID) (*domain.EarningTotals, error)
}

// PayoutRepository defines the interface for payout data operations
type PayoutRepository interface {
	// Create inserts a payout unless one exists for (professional, cycle).
	// Returns false when the row already existed.
	Create(ctx context.Context, payout *domain.Payout) (bool, error)

	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payout, error)

	ListByCycle(ctx context.Context, cycleID uuid.UUID, statuses []string) ([]*domain.Payout, error)

	ListByProfessional(ctx context.Context, professionalID uuid.UUID) ([]*domain.Payout, error)

	// Claim moves a payout from one of the given statuses to processing and
	// increments its attempt count. Returns nil when another worker got there first.
	Claim(ctx context.Context, id uuid.UUID, from []string, now time.Time) (*domain.Payout, error)

	// Complete moves a processing payout to completed
	Complete(ctx context.Context, id uuid.UUID, reference string, now time.Time) (bool, error)

	// Fail moves a processing payout to failed
	Fail(ctx context.Context, id uuid.UUID, reason string, now time.Time) (bool, error)

	// ListRetryable lists failed payouts of closed cycles with attempts below maxAttempts
	ListRetryable(ctx context.Context, maxAttempts int) ([]*domain.Payout, error)

	// ListStaleProcessing lists processing payouts last attempted before cutoff
	ListStaleProcessing(ctx context.Context, cutoff time.Time) ([]*domain.Payout, error)
}

// FeeChargeRepository defines the interface for fee charge data operations
type FeeChargeRepository interface {
	// Create inserts a fee charge unless one exists for (professional, cycle).
	Create(ctx context.Context, charge *domain.FeeCharge) (bool, error)

	GetByID(ctx context.Context, id uuid.UUID) (*domain.FeeCharge, error)

	ListByCycle(ctx context.Context, cycleID uuid.UUID, statuses []string) ([]*domain.FeeCharge, error)

	ListByProfessional(ctx context.Context, professionalID uuid.UUID) ([]*domain.FeeCharge, error)

	// Claim moves a charge from one of the given statuses to processing and
	// increments its attempt count. Returns nil when the guard did not match.
	Claim(ctx context.Context, id uuid.UUID, from []string, now time.Time) (*domain.FeeCharge, error)

	// Complete marks a processing charge as fully paid
	Complete(ctx context.Context, id uuid.UUID, reference string, now time.Time) (bool, error)

	// PartiallyPay adds captured to amount_paid and moves the charge to partially_paid
	PartiallyPay(ctx context.Context, id uuid.UUID, captured decimal.Decimal, reference string, now time.Time) (bool, error)

	// Fail moves a processing charge to failed and increments its retry count.
	// Returns the new retry count.
	Fail(ctx context.Context, id uuid.UUID, reason string, now time.Time) (int, error)

	// Waive marks an outstanding charge as waived
	Waive(ctx context.Context, id uuid.UUID, adminID uuid.UUID, reason string, now time.Time) (bool, error)

	// ListRetryable lists failed or partially paid charges with retry count below maxFailures
	ListRetryable(ctx context.Context, maxFailures int) ([]*domain.FeeCharge, error)

	ListStaleProcessing(ctx context.Context, cutoff time.Time) ([]*domain.FeeCharge, error)

	// PendingTotal sums amount - amount_paid over outstanding charges
	PendingTotal(ctx context.Context, professionalID uuid.UUID) (decimal.Decimal, error)

	// ResetRetryCounts zeroes the retry count of a professional's outstanding charges
	ResetRetryCounts(ctx context.Context, professionalID uuid.UUID, now time.Time) error
}

// PaymentMethodRepository defines the interface for on-file payment methods
type PaymentMethodRepository interface {
	Get(ctx context.Context, professionalID uuid.UUID) (*domain.PaymentMethod, error)

	// Upsert stores the card and lifts any block
	Upsert(ctx context.Context, method *domain.PaymentMethod) error

	// RemoveCard clears the stored card, keeping the block state
	RemoveCard(ctx context.Context, professionalID uuid.UUID, now time.Time) error

	// Block marks the professional blocked, creating the row if needed
	Block(ctx context.Context, professionalID uuid.UUID, reason string, now time.Time) error

	Unblock(ctx context.Context, professionalID uuid.UUID, now time.Time) error

	ListBlocked(ctx context.Context) ([]*domain.BlockedProfessional, error)
}

// SettingsRepository defines the interface for persisted platform settings
type SettingsRepository interface {
	// GetPlatformCut returns the stored cut percentage and whether one is stored
	GetPlatformCut(ctx context.Context) (decimal.Decimal, bool, error)

	SetPlatformCut(ctx context.Context, percentage decimal.Decimal, now time.Time) error
}
