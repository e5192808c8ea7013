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

type FeeChargeRepository struct {
	s *state
}

func (r *FeeChargeRepository) Create(ctx context.Context, charge *domain.FeeCharge) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.feeCharges {
		if existing.ProfessionalID == charge.ProfessionalID && existing.CycleID == charge.CycleID {
			return false, nil
		}
	}
	c := *charge
	r.s.feeCharges[c.ID] = &c
	return true, nil
}

func (r *FeeChargeRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.FeeCharge, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	f, ok := r.s.feeCharges[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *f
	return &out, nil
}

func (r *FeeChargeRepository) list(match func(*domain.FeeCharge) bool, newestFirst bool) []*domain.FeeCharge {
	var out []*domain.FeeCharge
	for _, f := range r.s.feeCharges {
		if match(f) {
			c := *f
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if newestFirst {
			a, b = b, a
		}
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID.String() < b.ID.String()
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return out
}

func (r *FeeChargeRepository) ListByCycle(ctx context.Context, cycleID uuid.UUID, statuses []string) ([]*domain.FeeCharge, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return r.list(func(f *domain.FeeCharge) bool {
		return f.CycleID == cycleID && containsStatus(statuses, f.Status)
	}, false), nil
}

func (r *FeeChargeRepository) ListByProfessional(ctx context.Context, professionalID uuid.UUID) ([]*domain.FeeCharge, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return r.list(func(f *domain.FeeCharge) bool {
		return f.ProfessionalID == professionalID
	}, true), nil
}

func (r *FeeChargeRepository) Claim(ctx context.Context, id uuid.UUID, from []string, now time.Time) (*domain.FeeCharge, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	f, ok := r.s.feeCharges[id]
	if !ok || !containsStatus(from, f.Status) {
		return nil, nil
	}
	f.Status = domain.FeeChargeStatusProcessing
	f.Attempts++
	at := now
	f.LastAttemptAt = &at
	f.UpdatedAt = now
	out := *f
	return &out, nil
}

func (r *FeeChargeRepository) processing(id uuid.UUID) (*domain.FeeCharge, bool) {
	f, ok := r.s.feeCharges[id]
	if !ok || f.Status != domain.FeeChargeStatusProcessing {
		return nil, false
	}
	return f, true
}

func (r *FeeChargeRepository) Complete(ctx context.Context, id uuid.UUID, reference string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	f, ok := r.processing(id)
	if !ok {
		return false, nil
	}
	f.Status = domain.FeeChargeStatusCompleted
	f.AmountPaid = f.Amount
	if reference != "" {
		f.GatewayReference = &reference
	}
	f.FailureReason = nil
	f.UpdatedAt = now
	return true, nil
}

func (r *FeeChargeRepository) PartiallyPay(ctx context.Context, id uuid.UUID, captured decimal.Decimal, reference string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	f, ok := r.processing(id)
	if !ok {
		return false, nil
	}
	paid := f.AmountPaid.Add(captured)
	if paid.GreaterThanOrEqual(f.Amount) {
		f.AmountPaid = f.Amount
		f.Status = domain.FeeChargeStatusCompleted
	} else {
		f.AmountPaid = paid
		f.Status = domain.FeeChargeStatusPartiallyPaid
	}
	if reference != "" {
		f.GatewayReference = &reference
	}
	f.UpdatedAt = now
	return true, nil
}

func (r *FeeChargeRepository) Fail(ctx context.Context, id uuid.UUID, reason string, now time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	f, ok := r.processing(id)
	if !ok {
		return 0, sql.ErrNoRows
	}
	f.Status = domain.FeeChargeStatusFailed
	f.RetryCount++
	f.FailureReason = &reason
	f.UpdatedAt = now
	return f.RetryCount, nil
}

func (r *FeeChargeRepository) Waive(ctx context.Context, id uuid.UUID, adminID uuid.UUID, reason string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	f, ok := r.s.feeCharges[id]
	if !ok || !f.IsOutstanding() {
		return false, nil
	}
	f.Status = domain.FeeChargeStatusWaived
	admin := adminID
	f.WaivedBy = &admin
	f.WaiveReason = &reason
	f.UpdatedAt = now
	return true, nil
}

func (r *FeeChargeRepository) ListRetryable(ctx context.Context, maxFailures int) ([]*domain.FeeCharge, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return r.list(func(f *domain.FeeCharge) bool {
		return (f.Status == domain.FeeChargeStatusFailed || f.Status == domain.FeeChargeStatusPartiallyPaid) &&
			f.RetryCount < maxFailures
	}, false), nil
}

func (r *FeeChargeRepository) ListStaleProcessing(ctx context.Context, cutoff time.Time) ([]*domain.FeeCharge, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return r.list(func(f *domain.FeeCharge) bool {
		return f.Status == domain.FeeChargeStatusProcessing &&
			f.LastAttemptAt != nil && !f.LastAttemptAt.After(cutoff)
	}, false), nil
}

func (r *FeeChargeRepository) PendingTotal(ctx context.Context, professionalID uuid.UUID) (decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return sumOutstanding(r.s.feeCharges, professionalID), nil
}

func (r *FeeChargeRepository) ResetRetryCounts(ctx context.Context, professionalID uuid.UUID, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, f := range r.s.feeCharges {
		if f.ProfessionalID != professionalID {
			continue
		}
		if f.Status == domain.FeeChargeStatusFailed || f.Status == domain.FeeChargeStatusPartiallyPaid {
			f.RetryCount = 0
			f.UpdatedAt = now
		}
	}
	return nil
}
