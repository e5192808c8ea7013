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

type PaymentMethodRepository struct {
	s *state
}

func (r *PaymentMethodRepository) Get(ctx context.Context, professionalID uuid.UUID) (*domain.PaymentMethod, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.paymentMethods[professionalID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *m
	return &out, nil
}

func (r *PaymentMethodRepository) Upsert(ctx context.Context, method *domain.PaymentMethod) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c := *method
	c.Blocked = false
	c.BlockedReason = nil
	c.BlockedAt = nil
	r.s.paymentMethods[c.ProfessionalID] = &c
	return nil
}

func (r *PaymentMethodRepository) RemoveCard(ctx context.Context, professionalID uuid.UUID, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.paymentMethods[professionalID]
	if !ok {
		return nil
	}
	m.CardBrand, m.CardLast4, m.GatewayToken = nil, nil, nil
	m.ExpMonth, m.ExpYear = nil, nil
	m.UpdatedAt = now
	return nil
}

func (r *PaymentMethodRepository) Block(ctx context.Context, professionalID uuid.UUID, reason string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.paymentMethods[professionalID]
	if !ok {
		m = &domain.PaymentMethod{ProfessionalID: professionalID}
		r.s.paymentMethods[professionalID] = m
	}
	m.Blocked = true
	m.BlockedReason = &reason
	if m.BlockedAt == nil {
		at := now
		m.BlockedAt = &at
	}
	m.UpdatedAt = now
	return nil
}

func (r *PaymentMethodRepository) Unblock(ctx context.Context, professionalID uuid.UUID, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.paymentMethods[professionalID]
	if !ok {
		return nil
	}
	m.Blocked = false
	m.BlockedReason = nil
	m.BlockedAt = nil
	m.UpdatedAt = now
	return nil
}

func (r *PaymentMethodRepository) ListBlocked(ctx context.Context) ([]*domain.BlockedProfessional, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*domain.BlockedProfessional
	for _, m := range r.s.paymentMethods {
		if !m.Blocked {
			continue
		}
		out = append(out, &domain.BlockedProfessional{
			PaymentMethod: *m,
			Outstanding:   sumOutstanding(r.s.feeCharges, m.ProfessionalID),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockedAt.Before(*out[j].BlockedAt) })
	return out, nil
}

type SettingsRepository struct {
	s *state
}

func (r *SettingsRepository) GetPlatformCut(ctx context.Context) (decimal.Decimal, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	value, ok := r.s.settings[domain.SettingPlatformCut]
	if !ok {
		return decimal.Zero, false, nil
	}
	cut, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, false, err
	}
	return cut, true, nil
}

func (r *SettingsRepository) SetPlatformCut(ctx context.Context, percentage decimal.Decimal, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.settings[domain.SettingPlatformCut] = percentage.String()
	return nil
}
