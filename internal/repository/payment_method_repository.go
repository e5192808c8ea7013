package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/payout-engine/internal/domain"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const paymentMethodColumns = `professional_id, card_brand, card_last4, exp_month, exp_year, gateway_token,
	blocked, blocked_reason, blocked_at, updated_at`

type paymentMethodRepository struct {
	db *sqlx.DB
}

func NewPaymentMethodRepository(db *sqlx.DB) PaymentMethodRepository {
	return &paymentMethodRepository{db: db}
}

func (r *paymentMethodRepository) Get(ctx context.Context, professionalID uuid.UUID) (*domain.PaymentMethod, error) {
	var method domain.PaymentMethod
	err := r.db.GetContext(ctx, &method,
		`SELECT `+paymentMethodColumns+` FROM professional_payment_methods WHERE professional_id = $1`,
		professionalID)
	if err != nil {
		return nil, err
	}

	return &method, nil
}

func (r *paymentMethodRepository) Upsert(ctx context.Context, method *domain.PaymentMethod) error {
	query := `
		INSERT INTO professional_payment_methods (professional_id, card_brand, card_last4, exp_month, exp_year,
			gateway_token, blocked, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (professional_id) DO UPDATE
		SET card_brand = EXCLUDED.card_brand,
			card_last4 = EXCLUDED.card_last4,
			exp_month = EXCLUDED.exp_month,
			exp_year = EXCLUDED.exp_year,
			gateway_token = EXCLUDED.gateway_token,
			blocked = FALSE,
			blocked_reason = NULL,
			blocked_at = NULL,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		method.ProfessionalID,
		method.CardBrand,
		method.CardLast4,
		method.ExpMonth,
		method.ExpYear,
		method.GatewayToken,
		method.UpdatedAt,
	)

	return err
}

func (r *paymentMethodRepository) RemoveCard(ctx context.Context, professionalID uuid.UUID, now time.Time) error {
	query := `
		UPDATE professional_payment_methods
		SET card_brand = NULL, card_last4 = NULL, exp_month = NULL, exp_year = NULL, gateway_token = NULL,
			updated_at = $2
		WHERE professional_id = $1
	`

	_, err := r.db.ExecContext(ctx, query, professionalID, now)
	return err
}

func (r *paymentMethodRepository) Block(ctx context.Context, professionalID uuid.UUID, reason string, now time.Time) error {
	query := `
		INSERT INTO professional_payment_methods (professional_id, blocked, blocked_reason, blocked_at, updated_at)
		VALUES ($1, TRUE, $2, $3, $3)
		ON CONFLICT (professional_id) DO UPDATE
		SET blocked = TRUE,
			blocked_reason = EXCLUDED.blocked_reason,
			blocked_at = COALESCE(professional_payment_methods.blocked_at, EXCLUDED.blocked_at),
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query, professionalID, reason, now)
	return err
}

func (r *paymentMethodRepository) Unblock(ctx context.Context, professionalID uuid.UUID, now time.Time) error {
	query := `
		UPDATE professional_payment_methods
		SET blocked = FALSE, blocked_reason = NULL, blocked_at = NULL, updated_at = $2
		WHERE professional_id = $1
	`

	_, err := r.db.ExecContext(ctx, query, professionalID, now)
	return err
}

func (r *paymentMethodRepository) ListBlocked(ctx context.Context) ([]*domain.BlockedProfessional, error) {
	query := `
		SELECT m.professional_id, m.card_brand, m.card_last4, m.exp_month, m.exp_year, m.gateway_token,
			m.blocked, m.blocked_reason, m.blocked_at, m.updated_at,
			COALESCE((
				SELECT SUM(f.amount - f.amount_paid)
				FROM fee_charges f
				WHERE f.professional_id = m.professional_id AND f.status = ANY($1)
			), 0) AS outstanding
		FROM professional_payment_methods m
		WHERE m.blocked
		ORDER BY m.blocked_at
	`

	var blocked []*domain.BlockedProfessional
	if err := r.db.SelectContext(ctx, &blocked, query, pq.Array(domain.OutstandingFeeStatuses)); err != nil {
		return nil, err
	}

	return blocked, nil
}
