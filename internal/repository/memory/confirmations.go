package memory

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/payout-engine/internal/domain"
	customError "github.com/segyhp/payout-engine/pkg/errors"
)

type ConfirmationRepository struct {
	s *state
}

func (r *ConfirmationRepository) findByAppointment(appointmentID uuid.UUID) *domain.Confirmation {
	for _, c := range r.s.confirmations {
		if c.AppointmentID == appointmentID {
			return c
		}
	}
	return nil
}

func (r *ConfirmationRepository) Create(ctx context.Context, confirmation *domain.Confirmation) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.findByAppointment(confirmation.AppointmentID) != nil {
		return false, nil
	}
	c := *confirmation
	r.s.confirmations[c.ID] = &c
	return true, nil
}

func (r *ConfirmationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Confirmation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.confirmations[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *c
	return &out, nil
}

func (r *ConfirmationRepository) GetByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*domain.Confirmation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c := r.findByAppointment(appointmentID)
	if c == nil {
		return nil, sql.ErrNoRows
	}
	out := *c
	return &out, nil
}

func (r *ConfirmationRepository) ApplyTransition(ctx context.Context, transition *domain.ConfirmationTransition) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	next := *transition.Confirmation
	if transition.FromResolution == "" {
		if r.findByAppointment(next.AppointmentID) != nil {
			return customError.ErrConfirmationConflict
		}
		if _, exists := r.s.confirmations[next.ID]; exists {
			return customError.ErrConfirmationConflict
		}
	} else {
		current, ok := r.s.confirmations[next.ID]
		if !ok || current.Resolution != transition.FromResolution {
			return customError.ErrConfirmationConflict
		}
	}

	if e := transition.Earning; e != nil {
		cycle, ok := r.s.cycles[e.CycleID]
		if !ok || !cycle.AcceptsEarnings() {
			return customError.ErrConfirmationConflict
		}
	}

	if transition.Appointment != nil {
		if _, ok := r.s.appointments[transition.Appointment.AppointmentID]; !ok {
			return sql.ErrNoRows
		}
	}

	// all checks passed; apply every write
	r.s.confirmations[next.ID] = &next

	if e := transition.Earning; e != nil {
		exists := false
		for _, existing := range r.s.earnings {
			if existing.AppointmentID == e.AppointmentID {
				exists = true
				break
			}
		}
		if !exists {
			c := *e
			r.s.earnings[c.ID] = &c
		}
	}

	if change := transition.Appointment; change != nil {
		a := r.s.appointments[change.AppointmentID]
		a.Status = change.Status
		a.DisputeStatus = change.DisputeStatus
		if change.DisputeReason != nil {
			a.DisputeReason = change.DisputeReason
		}
		if change.DisputedBy != nil {
			a.DisputedBy = change.DisputedBy
		}
		a.UpdatedAt = next.UpdatedAt
	}

	if transition.ReleaseSlot {
		for _, slot := range r.s.slots {
			if slot.AppointmentID != nil && *slot.AppointmentID == next.AppointmentID {
				slot.Booked = false
				slot.AppointmentID = nil
				slot.UpdatedAt = next.UpdatedAt
			}
		}
	}

	return nil
}

func (r *ConfirmationRepository) ListDueForAutoConfirm(ctx context.Context, now time.Time, limit int) ([]*domain.Confirmation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*domain.Confirmation
	for _, c := range r.s.confirmations {
		switch c.Resolution {
		case domain.ResolutionPending, domain.ResolutionClientConfirmed, domain.ResolutionProfessionalConfirmed:
		default:
			continue
		}
		if c.AutoConfirmDeadline.After(now) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AutoConfirmDeadline.Before(out[j].AutoConfirmDeadline) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *ConfirmationRepository) ListDisputed(ctx context.Context) ([]*domain.PendingConfirmation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return r.collect(func(c *domain.Confirmation, a *domain.Appointment) bool {
		return c.Resolution == domain.ResolutionDisputed
	}), nil
}

func (r *ConfirmationRepository) ListOpenForUser(ctx context.Context, userID uuid.UUID) ([]*domain.PendingConfirmation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return r.collect(func(c *domain.Confirmation, a *domain.Appointment) bool {
		return !domain.IsTerminalResolution(c.Resolution) && a != nil && a.IsParticipant(userID)
	}), nil
}

func (r *ConfirmationRepository) CountOpenForProfessional(ctx context.Context, professionalID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return len(r.collect(func(c *domain.Confirmation, a *domain.Appointment) bool {
		return !domain.IsTerminalResolution(c.Resolution) && a != nil && a.ProfessionalID == professionalID
	})), nil
}

func (r *ConfirmationRepository) collect(match func(*domain.Confirmation, *domain.Appointment) bool) []*domain.PendingConfirmation {
	var out []*domain.PendingConfirmation
	for _, c := range r.s.confirmations {
		a := r.s.appointments[c.AppointmentID]
		if !match(c, a) {
			continue
		}
		cc := *c
		item := &domain.PendingConfirmation{Confirmation: &cc}
		if a != nil {
			ac := *a
			item.Appointment = &ac
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Confirmation.CreatedAt.Before(out[j].Confirmation.CreatedAt)
	})
	return out
}
