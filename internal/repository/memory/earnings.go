package memory

import (
	"context"
	"database/sql"
	"sort"

	"github.com/google/uuid"
	"github.com/segyhp/payout-engine/internal/domain"
	"github.com/shopspring/decimal"
)

type EarningRepository struct {
	s *state
}

func (r *EarningRepository) GetByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*domain.Earning, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, e := range r.s.earnings {
		if e.AppointmentID == appointmentID {
			out := *e
			return &out, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *EarningRepository) ListByCycle(ctx context.Context, cycleID uuid.UUID) ([]*domain.Earning, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*domain.Earning
	for _, e := range r.s.earnings {
		if e.CycleID == cycleID {
			c := *e
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *EarningRepository) TotalsByProfessional(ctx context.Context, cycleID uuid.UUID) ([]*domain.EarningTotals, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	byProfessional := make(map[uuid.UUID]*domain.EarningTotals)
	for _, e := range r.s.earnings {
		if e.CycleID != cycleID {
			continue
		}
		totals, ok := byProfessional[e.ProfessionalID]
		if !ok {
			totals = newTotals(e.ProfessionalID)
			byProfessional[e.ProfessionalID] = totals
		}
		addEarning(totals, e)
	}

	out := make([]*domain.EarningTotals, 0, len(byProfessional))
	for _, totals := range byProfessional {
		out = append(out, totals)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProfessionalID.String() < out[j].ProfessionalID.String() })
	return out, nil
}

func (r *EarningRepository) TotalsForProfessional(ctx context.Context, professionalID uuid.UUID, cycleID *uuid.UUID) (*domain.EarningTotals, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	totals := newTotals(professionalID)
	for _, e := range r.s.earnings {
		if e.ProfessionalID != professionalID {
			continue
		}
		if cycleID != nil && e.CycleID != *cycleID {
			continue
		}
		addEarning(totals, e)
	}
	return totals, nil
}

func newTotals(professionalID uuid.UUID) *domain.EarningTotals {
	return &domain.EarningTotals{
		ProfessionalID: professionalID,
		Gross:          decimal.Zero,
		Fee:            decimal.Zero,
		Net:            decimal.Zero,
	}
}

func addEarning(totals *domain.EarningTotals, e *domain.Earning) {
	totals.Gross = totals.Gross.Add(e.GrossAmount)
	totals.Fee = totals.Fee.Add(e.PlatformFee)
	totals.Net = totals.Net.Add(e.NetAmount)
	totals.Sessions++
}
