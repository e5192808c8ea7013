package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	ResolutionPending               = "pending"
	ResolutionClientConfirmed       = "client_confirmed"
	ResolutionProfessionalConfirmed = "professional_confirmed"
	ResolutionBothConfirmed         = "both_confirmed"
	ResolutionDisputed              = "disputed"
	ResolutionAdminConfirmed        = "admin_confirmed"
	ResolutionAdminCancelled        = "admin_cancelled"
	ResolutionAutoConfirmed         = "auto_confirmed"
)

const (
	PartyClient       = "client"
	PartyProfessional = "professional"
	PartyAdmin        = "admin"
)

// confirmationTransitions lists the resolutions reachable from each state.
// Terminal states have no entry.
var confirmationTransitions = map[string][]string{
	ResolutionPending: {
		ResolutionClientConfirmed,
		ResolutionProfessionalConfirmed,
		ResolutionDisputed,
		ResolutionAutoConfirmed,
	},
	ResolutionClientConfirmed: {
		ResolutionBothConfirmed,
		ResolutionDisputed,
		ResolutionAutoConfirmed,
	},
	ResolutionProfessionalConfirmed: {
		ResolutionBothConfirmed,
		ResolutionDisputed,
		ResolutionAutoConfirmed,
	},
	ResolutionDisputed: {
		ResolutionAdminConfirmed,
		ResolutionAdminCancelled,
	},
}

// IsTerminalResolution reports whether no further transition is accepted.
func IsTerminalResolution(resolution string) bool {
	switch resolution {
	case ResolutionBothConfirmed, ResolutionAdminConfirmed, ResolutionAdminCancelled, ResolutionAutoConfirmed:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal resolution change.
func CanTransition(from, to string) bool {
	for _, next := range confirmationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ProducesEarning reports whether reaching resolution creates an Earning.
func ProducesEarning(resolution string) bool {
	switch resolution {
	case ResolutionBothConfirmed, ResolutionAdminConfirmed, ResolutionAutoConfirmed:
		return true
	}
	return false
}

// Confirmation tracks both parties' acknowledgement that a session happened
type Confirmation struct {
	ID                      uuid.UUID  `json:"id" db:"id"`
	AppointmentID           uuid.UUID  `json:"appointment_id" db:"appointment_id"`
	ClientConfirmed         bool       `json:"client_confirmed" db:"client_confirmed"`
	ClientConfirmedAt       *time.Time `json:"client_confirmed_at,omitempty" db:"client_confirmed_at"`
	ProfessionalConfirmed   bool       `json:"professional_confirmed" db:"professional_confirmed"`
	ProfessionalConfirmedAt *time.Time `json:"professional_confirmed_at,omitempty" db:"professional_confirmed_at"`
	Resolution              string     `json:"resolution" db:"resolution"`
	ResolvedBy              *uuid.UUID `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolutionNotes         *string    `json:"resolution_notes,omitempty" db:"resolution_notes"`
	ResolvedAt              *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	AutoConfirmDeadline     time.Time  `json:"auto_confirm_deadline" db:"auto_confirm_deadline"`
	CreatedAt               time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at" db:"updated_at"`
}

// ConfirmationTransition is everything that changes together when a
// confirmation moves between resolutions. It is applied atomically and only
// if the stored resolution still equals FromResolution. An empty
// FromResolution inserts Confirmation instead.
type ConfirmationTransition struct {
	FromResolution string
	Confirmation   *Confirmation
	Earning        *Earning
	Appointment    *AppointmentChange
	ReleaseSlot    bool
}

// PendingConfirmation joins a confirmation with the appointment it covers.
type PendingConfirmation struct {
	Confirmation   *Confirmation `json:"confirmation"`
	Appointment    *Appointment  `json:"appointment"`
	AwaitingAction bool          `json:"awaiting_action"`
}

type PendingConfirmationsResponse struct {
	AsClient       []*PendingConfirmation `json:"as_client"`
	AsProfessional []*PendingConfirmation `json:"as_professional"`
}

type ConfirmRequest struct {
	Party string `json:"party" validate:"required,oneof=client professional"`
}

type ResolveDisputeRequest struct {
	Resolution string `json:"resolution" validate:"required,oneof=admin_confirmed admin_cancelled"`
	Notes      string `json:"notes" validate:"max=2000"`
}

const RoleAdmin = "admin"

// Actor is the caller identity forwarded by the upstream auth layer.
type Actor struct {
	UserID uuid.UUID
	Role   string
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
