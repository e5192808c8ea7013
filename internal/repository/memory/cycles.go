package memory

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/payout-engine/internal/domain"
	"github.com/shopspring/decimal"
)

type CycleRepository struct {
	s *state
}

func (r *CycleRepository) Create(ctx context.Context, cycle *domain.Cycle) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.cycles {
		if existing.StartDate.Equal(cycle.StartDate) && existing.EndDate.Equal(cycle.EndDate) {
			return false, nil
		}
		if cycle.Status == domain.CycleStatusActive && existing.Status == domain.CycleStatusActive {
			return false, nil
		}
	}
	c := *cycle
	r.s.cycles[c.ID] = &c
	return true, nil
}

func (r *CycleRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Cycle, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.cycles[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *c
	return &out, nil
}

func (r *CycleRepository) find(match func(*domain.Cycle) bool) (*domain.Cycle, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, c := range r.s.cycles {
		if match(c) {
			out := *c
			return &out, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *CycleRepository) GetByBounds(ctx context.Context, start, end time.Time) (*domain.Cycle, error) {
	return r.find(func(c *domain.Cycle) bool {
		return c.StartDate.Equal(start) && c.EndDate.Equal(end)
	})
}

func (r *CycleRepository) GetPrevious(ctx context.Context, t time.Time) (*domain.Cycle, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var best *domain.Cycle
	for _, c := range r.s.cycles {
		if c.EndDate.After(t) {
			continue
		}
		if best == nil || c.EndDate.After(best.EndDate) {
			best = c
		}
	}
	if best == nil {
		return nil, sql.ErrNoRows
	}
	out := *best
	return &out, nil
}

func (r *CycleRepository) CloseExpired(ctx context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for _, c := range r.s.cycles {
		if c.Status == domain.CycleStatusActive && !c.EndDate.After(now) {
			c.Status = domain.CycleStatusProcessing
			started := now
			c.ProcessingStartedAt = &started
			c.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (r *CycleRepository) Seal(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.cycles[id]
	if !ok || c.Status == domain.CycleStatusActive {
		return false, nil
	}
	if c.SealedAt == nil {
		at := now
		c.SealedAt = &at
	}
	c.UpdatedAt = now
	return true, nil
}

func (r *CycleRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from []string, to string, lastError *string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.cycles[id]
	if !ok || !containsStatus(from, c.Status) {
		return false, nil
	}
	c.Status = to
	c.LastError = lastError
	at := now
	switch to {
	case domain.CycleStatusProcessing:
		c.ProcessingStartedAt = &at
	case domain.CycleStatusCompleted:
		c.CompletedAt = &at
	}
	c.UpdatedAt = now
	return true, nil
}

func (r *CycleRepository) ListReady(ctx context.Context, now time.Time) ([]*domain.Cycle, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*domain.Cycle
	for _, c := range r.s.cycles {
		if c.CutoffDate.After(now) || c.Status == domain.CycleStatusCompleted {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (r *CycleRepository) ListWithStats(ctx context.Context, limit, offset int) ([]*domain.CycleStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cycles := make([]*domain.Cycle, 0, len(r.s.cycles))
	for _, c := range r.s.cycles {
		cycles = append(cycles, c)
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i].StartDate.After(cycles[j].StartDate) })

	if offset >= len(cycles) {
		return []*domain.CycleStats{}, nil
	}
	cycles = cycles[offset:]
	if limit > 0 && len(cycles) > limit {
		cycles = cycles[:limit]
	}

	out := make([]*domain.CycleStats, 0, len(cycles))
	for _, c := range cycles {
		out = append(out, r.stats(c))
	}
	return out, nil
}

func (r *CycleRepository) GetStats(ctx context.Context, id uuid.UUID) (*domain.CycleStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.cycles[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return r.stats(c), nil
}

func (r *CycleRepository) stats(c *domain.Cycle) *domain.CycleStats {
	out := &domain.CycleStats{Cycle: *c, GrossTotal: decimal.Zero, FeeTotal: decimal.Zero}

	professionals := make(map[uuid.UUID]struct{})
	for _, e := range r.s.earnings {
		if e.CycleID != c.ID {
			continue
		}
		professionals[e.ProfessionalID] = struct{}{}
		out.EarningsCount++
		out.GrossTotal = out.GrossTotal.Add(e.GrossAmount)
		out.FeeTotal = out.FeeTotal.Add(e.PlatformFee)
	}
	out.ProfessionalCount = len(professionals)

	for _, p := range r.s.payouts {
		if p.CycleID != c.ID {
			continue
		}
		switch p.Status {
		case domain.PayoutStatusCompleted:
			out.PayoutsCompleted++
		case domain.PayoutStatusFailed:
			out.PayoutsFailed++
		default:
			out.PayoutsPending++
		}
	}

	for _, f := range r.s.feeCharges {
		if f.CycleID != c.ID {
			continue
		}
		switch f.Status {
		case domain.FeeChargeStatusCompleted:
			out.FeeChargesCompleted++
		case domain.FeeChargeStatusFailed, domain.FeeChargeStatusPartiallyPaid:
			out.FeeChargesFailed++
		}
	}

	return out
}
