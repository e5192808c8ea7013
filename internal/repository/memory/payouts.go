package memory

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/payout-engine/internal/domain"
)

type PayoutRepository struct {
	s *state
}

func (r *PayoutRepository) Create(ctx context.Context, payout *domain.Payout) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.payouts {
		if existing.ProfessionalID == payout.ProfessionalID && existing.CycleID == payout.CycleID {
			return false, nil
		}
	}
	c := *payout
	r.s.payouts[c.ID] = &c
	return true, nil
}

func (r *PayoutRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payout, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.payouts[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *p
	return &out, nil
}

func (r *PayoutRepository) list(match func(*domain.Payout) bool, less func(a, b *domain.Payout) bool) []*domain.Payout {
	var out []*domain.Payout
	for _, p := range r.s.payouts {
		if match(p) {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func byCreated(a, b *domain.Payout) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID.String() < b.ID.String()
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func (r *PayoutRepository) ListByCycle(ctx context.Context, cycleID uuid.UUID, statuses []string) ([]*domain.Payout, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return r.list(func(p *domain.Payout) bool {
		return p.CycleID == cycleID && containsStatus(statuses, p.Status)
	}, byCreated), nil
}

func (r *PayoutRepository) ListByProfessional(ctx context.Context, professionalID uuid.UUID) ([]*domain.Payout, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return r.list(func(p *domain.Payout) bool {
		return p.ProfessionalID == professionalID
	}, func(a, b *domain.Payout) bool { return byCreated(b, a) }), nil
}

func (r *PayoutRepository) Claim(ctx context.Context, id uuid.UUID, from []string, now time.Time) (*domain.Payout, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.payouts[id]
	if !ok || !containsStatus(from, p.Status) {
		return nil, nil
	}
	p.Status = domain.PayoutStatusProcessing
	p.Attempts++
	p.FailureReason = nil
	at := now
	p.LastAttemptAt = &at
	p.UpdatedAt = now
	out := *p
	return &out, nil
}

func (r *PayoutRepository) Complete(ctx context.Context, id uuid.UUID, reference string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.payouts[id]
	if !ok || p.Status != domain.PayoutStatusProcessing {
		return false, nil
	}
	p.Status = domain.PayoutStatusCompleted
	if reference != "" {
		p.GatewayReference = &reference
	}
	p.FailureReason = nil
	at := now
	p.CompletedAt = &at
	p.UpdatedAt = now
	return true, nil
}

func (r *PayoutRepository) Fail(ctx context.Context, id uuid.UUID, reason string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.payouts[id]
	if !ok || p.Status != domain.PayoutStatusProcessing {
		return false, nil
	}
	p.Status = domain.PayoutStatusFailed
	p.FailureReason = &reason
	p.UpdatedAt = now
	return true, nil
}

func (r *PayoutRepository) ListRetryable(ctx context.Context, maxAttempts int) ([]*domain.Payout, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return r.list(func(p *domain.Payout) bool {
		cycle, ok := r.s.cycles[p.CycleID]
		return p.Status == domain.PayoutStatusFailed &&
			p.Attempts < maxAttempts &&
			ok && cycle.Status != domain.CycleStatusActive
	}, byCreated), nil
}

func (r *PayoutRepository) ListStaleProcessing(ctx context.Context, cutoff time.Time) ([]*domain.Payout, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return r.list(func(p *domain.Payout) bool {
		return p.Status == domain.PayoutStatusProcessing &&
			p.LastAttemptAt != nil && !p.LastAttemptAt.After(cutoff)
	}, byCreated), nil
}
