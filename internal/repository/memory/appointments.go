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

type AppointmentRepository struct {
	s *state
}

func (r *AppointmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.appointments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	c := *a
	return &c, nil
}

func (r *AppointmentRepository) ListEndedUpcoming(ctx context.Context, now time.Time, limit int) ([]*domain.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*domain.Appointment
	for _, a := range r.s.appointments {
		if a.Status == domain.AppointmentStatusUpcoming && !a.EndTime.After(now) {
			c := *a
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.Before(out[j].EndTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *AppointmentRepository) MarkCompleted(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.appointments[id]
	if !ok || a.Status != domain.AppointmentStatusUpcoming || a.EndTime.After(now) {
		return false, nil
	}
	a.Status = domain.AppointmentStatusCompleted
	a.UpdatedAt = now
	return true, nil
}

func (r *AppointmentRepository) CreateWithSlot(ctx context.Context, appointment *domain.Appointment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if appointment.SlotID != nil {
		slot, ok := r.s.slots[*appointment.SlotID]
		if !ok || slot.ProfessionalID != appointment.ProfessionalID {
			return customError.ErrSlotNotFound
		}
		if slot.Booked {
			return customError.ErrSlotAlreadyBooked
		}
		slot.Booked = true
		id := appointment.ID
		slot.AppointmentID = &id
		slot.UpdatedAt = appointment.CreatedAt
	}

	c := *appointment
	r.s.appointments[appointment.ID] = &c
	return nil
}

func (r *AppointmentRepository) GetSlot(ctx context.Context, id uuid.UUID) (*domain.AvailabilitySlot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	slot, ok := r.s.slots[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	c := *slot
	return &c, nil
}

func (r *AppointmentRepository) SetRefundReference(ctx context.Context, id uuid.UUID, reference string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.appointments[id]
	if !ok {
		return sql.ErrNoRows
	}
	a.RefundReference = &reference
	a.UpdatedAt = now
	return nil
}
