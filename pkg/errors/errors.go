package errors

import (
	"errors"
	"fmt"
)

// Validation errors
var (
	ErrValidation    = errors.New("validation failed")
	ErrForbidden     = errors.New("caller is not allowed to perform this action")
	ErrAdminRequired = errors.New("admin role required")

	ErrNotParticipant = errors.New("caller is not a participant of this appointment")
)

// Not found errors
var (
	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrConfirmationNotFound = errors.New("confirmation not found")
	ErrCycleNotFound        = errors.New("cycle not found")
	ErrFeeChargeNotFound    = errors.New("fee charge not found")
	ErrSlotNotFound         = errors.New("availability slot not found")
	ErrPipelineRunNotFound  = errors.New("pipeline run not found")
)

// State conflict errors. Callers treat these as "already done": the prior
// state is left unchanged and retrying is safe.
var (
	ErrAppointmentNotEnded       = errors.New("appointment has not ended yet")
	ErrAppointmentNotCompletable = errors.New("appointment cannot be completed in its current status")
	ErrConfirmationResolved      = errors.New("confirmation is already resolved")
	ErrAlreadyConfirmed          = errors.New("party has already confirmed")
	ErrConfirmationConflict      = errors.New("confirmation was modified concurrently")
	ErrDisputeNotAllowed         = errors.New("appointment cannot be disputed in its current state")
	ErrDisputeAlreadyRaised      = errors.New("a dispute has already been raised for this appointment")
	ErrConfirmationNotDisputed   = errors.New("confirmation is not in dispute")
	ErrCycleNotProcessing        = errors.New("cycle is not in processing status")
	ErrCycleStillOpen            = errors.New("cycle is still open")
	ErrFeeChargeNotWaivable      = errors.New("fee charge cannot be waived in its current status")
	ErrSlotAlreadyBooked         = errors.New("availability slot is already booked")
)

// Booking guard errors
var (
	ErrProfessionalBlocked = errors.New("professional is blocked from accepting appointments")
	ErrOutstandingFees     = errors.New("professional has outstanding platform fees")
)

// BusinessError represents a business logic error
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeValidation             = "VALIDATION_ERROR"
	ErrCodeForbidden              = "FORBIDDEN"
	ErrCodeNotFound               = "NOT_FOUND"
	ErrCodeAppointmentNotEnded    = "APPOINTMENT_NOT_ENDED"
	ErrCodeAppointmentNotComplete = "APPOINTMENT_NOT_COMPLETABLE"
	ErrCodeConfirmationResolved   = "CONFIRMATION_RESOLVED"
	ErrCodeAlreadyConfirmed       = "ALREADY_CONFIRMED"
	ErrCodeDisputeNotAllowed      = "DISPUTE_NOT_ALLOWED"
	ErrCodeCycleState             = "CYCLE_STATE_CONFLICT"
	ErrCodeFeeChargeState         = "FEE_CHARGE_STATE_CONFLICT"
	ErrCodeProfessionalBlocked    = "PROFESSIONAL_BLOCKED"
	ErrCodeOutstandingFees        = "OUTSTANDING_FEES"
	ErrCodeSlotUnavailable        = "SLOT_UNAVAILABLE"
	ErrCodeDatabaseError          = "DATABASE_ERROR"
	ErrCodeCacheError             = "CACHE_ERROR"
	ErrCodeGatewayError           = "GATEWAY_ERROR"
)

func WrapValidation(message string) *BusinessError {
	return NewBusinessError(ErrCodeValidation, message, ErrValidation)
}

func WrapForbidden(message string) *BusinessError {
	return NewBusinessError(ErrCodeForbidden, message, ErrForbidden)
}

func WrapNotParticipant(appointmentID string) *BusinessError {
	return NewBusinessError(
		ErrCodeForbidden,
		fmt.Sprintf("Caller is not the expected party of appointment %s", appointmentID),
		ErrNotParticipant,
	)
}

func WrapAdminRequired() *BusinessError {
	return NewBusinessError(ErrCodeForbidden, "this action requires an admin", ErrAdminRequired)
}

// WrapNotFound attaches the entity id to one of the not found sentinels.
func WrapNotFound(sentinel error, id string) *BusinessError {
	return NewBusinessError(
		ErrCodeNotFound,
		fmt.Sprintf("%s: %s", sentinel.Error(), id),
		sentinel,
	)
}

func WrapAppointmentNotEnded(appointmentID string) *BusinessError {
	return NewBusinessError(
		ErrCodeAppointmentNotEnded,
		fmt.Sprintf("Appointment %s has not ended yet", appointmentID),
		ErrAppointmentNotEnded,
	)
}

func WrapAppointmentNotCompletable(appointmentID, status string) *BusinessError {
	return NewBusinessError(
		ErrCodeAppointmentNotComplete,
		fmt.Sprintf("Appointment %s is %s and cannot be confirmed", appointmentID, status),
		ErrAppointmentNotCompletable,
	)
}

func WrapConfirmationResolved(confirmationID, resolution string) *BusinessError {
	return NewBusinessError(
		ErrCodeConfirmationResolved,
		fmt.Sprintf("Confirmation %s is already %s", confirmationID, resolution),
		ErrConfirmationResolved,
	)
}

func WrapAlreadyConfirmed(confirmationID, party string) *BusinessError {
	return NewBusinessError(
		ErrCodeAlreadyConfirmed,
		fmt.Sprintf("The %s has already confirmed %s", party, confirmationID),
		ErrAlreadyConfirmed,
	)
}

func WrapDispute(sentinel error, appointmentID string) *BusinessError {
	return NewBusinessError(
		ErrCodeDisputeNotAllowed,
		fmt.Sprintf("Appointment %s: %s", appointmentID, sentinel.Error()),
		sentinel,
	)
}

func WrapCycleState(sentinel error, cycleID, status string) *BusinessError {
	return NewBusinessError(
		ErrCodeCycleState,
		fmt.Sprintf("Cycle %s is %s", cycleID, status),
		sentinel,
	)
}

func WrapFeeChargeNotWaivable(chargeID, status string) *BusinessError {
	return NewBusinessError(
		ErrCodeFeeChargeState,
		fmt.Sprintf("Fee charge %s is %s and cannot be waived", chargeID, status),
		ErrFeeChargeNotWaivable,
	)
}

func WrapProfessionalBlocked(professionalID, reason string) *BusinessError {
	return NewBusinessError(
		ErrCodeProfessionalBlocked,
		fmt.Sprintf("Professional %s is blocked: %s", professionalID, reason),
		ErrProfessionalBlocked,
	)
}

func WrapOutstandingFees(professionalID, total string) *BusinessError {
	return NewBusinessError(
		ErrCodeOutstandingFees,
		fmt.Sprintf("Professional %s has %s in outstanding platform fees", professionalID, total),
		ErrOutstandingFees,
	)
}

func WrapSlotAlreadyBooked(slotID string) *BusinessError {
	return NewBusinessError(
		ErrCodeSlotUnavailable,
		fmt.Sprintf("Slot %s is already booked", slotID),
		ErrSlotAlreadyBooked,
	)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeDatabaseError,
		"database operation failed",
		err,
	)
}

func WrapCacheError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeCacheError,
		"Cache operation failed",
		err,
	)
}

func WrapGatewayError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeGatewayError,
		"payment gateway call failed",
		err,
	)
}

// IsStateConflict reports whether err is one of the "already done" errors.
func IsStateConflict(err error) bool {
	for _, target := range []error{
		ErrAppointmentNotEnded,
		ErrAppointmentNotCompletable,
		ErrConfirmationResolved,
		ErrAlreadyConfirmed,
		ErrConfirmationConflict,
		ErrDisputeNotAllowed,
		ErrDisputeAlreadyRaised,
		ErrConfirmationNotDisputed,
		ErrCycleNotProcessing,
		ErrCycleStillOpen,
		ErrFeeChargeNotWaivable,
		ErrSlotAlreadyBooked,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err wraps any of the not found sentinels.
func IsNotFound(err error) bool {
	for _, target := range []error{
		ErrAppointmentNotFound,
		ErrConfirmationNotFound,
		ErrCycleNotFound,
		ErrFeeChargeNotFound,
		ErrSlotNotFound,
		ErrPipelineRunNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
