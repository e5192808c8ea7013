package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/payout-engine/internal/domain"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const payoutColumns = `id, professional_id, cycle_id, amount, status, attempts, gateway_reference, failure_reason,
	last_attempt_at, completed_at, created_at, updated_at`

type payoutRepository struct {
	db *sqlx.DB
}

func NewPayoutRepository(db *sqlx.DB) PayoutRepository {
	return &payoutRepository{db: db}
}

func (r *payoutRepository) Create(ctx context.Context, payout *domain.Payout) (bool, error) {
	query := `
		INSERT INTO payouts (id, professional_id, cycle_id, amount, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (professional_id, cycle_id) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		payout.ID,
		payout.ProfessionalID,
		payout.CycleID,
		payout.Amount,
		payout.Status,
		payout.Attempts,
		payout.CreatedAt,
		payout.UpdatedAt,
	)
	if err != nil {
		return false, err
	}

	return rowsChanged(result)
}

func (r *payoutRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payout, error) {
	var payout domain.Payout
	if err := r.db.GetContext(ctx, &payout, `SELECT `+payoutColumns+` FROM payouts WHERE id = $1`, id); err != nil {
		return nil, err
	}

	return &payout, nil
}

func (r *payoutRepository) ListByCycle(ctx context.Context, cycleID uuid.UUID, statuses []string) ([]*domain.Payout, error) {
	query := `
		SELECT ` + payoutColumns + `
		FROM payouts
		WHERE cycle_id = $1 AND status = ANY($2)
		ORDER BY created_at, id
	`

	var payouts []*domain.Payout
	if err := r.db.SelectContext(ctx, &payouts, query, cycleID, pq.Array(statuses)); err != nil {
		return nil, err
	}

	return payouts, nil
}

func (r *payoutRepository) ListByProfessional(ctx context.Context, professionalID uuid.UUID) ([]*domain.Payout, error) {
	query := `
		SELECT ` + payoutColumns + `
		FROM payouts
		WHERE professional_id = $1
		ORDER BY created_at DESC
	`

	var payouts []*domain.Payout
	if err := r.db.SelectContext(ctx, &payouts, query, professionalID); err != nil {
		return nil, err
	}

	return payouts, nil
}

func (r *payoutRepository) Claim(ctx context.Context, id uuid.UUID, from []string, now time.Time) (*domain.Payout, error) {
	query := `
		UPDATE payouts
		SET status = 'processing', attempts = attempts + 1, failure_reason = NULL,
			last_attempt_at = $3, updated_at = $3
		WHERE id = $1 AND status = ANY($2)
		RETURNING ` + payoutColumns

	var payout domain.Payout
	err := r.db.GetContext(ctx, &payout, query, id, pq.Array(from), now)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &payout, nil
}

func (r *payoutRepository) Complete(ctx context.Context, id uuid.UUID, reference string, now time.Time) (bool, error) {
	query := `
		UPDATE payouts
		SET status = 'completed', gateway_reference = NULLIF($2, ''), failure_reason = NULL,
			completed_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'processing'
	`

	result, err := r.db.ExecContext(ctx, query, id, reference, now)
	if err != nil {
		return false, err
	}

	return rowsChanged(result)
}

func (r *payoutRepository) Fail(ctx context.Context, id uuid.UUID, reason string, now time.Time) (bool, error) {
	query := `
		UPDATE payouts
		SET status = 'failed', failure_reason = $2, updated_at = $3
		WHERE id = $1 AND status = 'processing'
	`

	result, err := r.db.ExecContext(ctx, query, id, reason, now)
	if err != nil {
		return false, err
	}

	return rowsChanged(result)
}

func (r *payoutRepository) ListRetryable(ctx context.Context, maxAttempts int) ([]*domain.Payout, error) {
	query := `
		SELECT p.id, p.professional_id, p.cycle_id, p.amount, p.status, p.attempts, p.gateway_reference,
			p.failure_reason, p.last_attempt_at, p.completed_at, p.created_at, p.updated_at
		FROM payouts p
		JOIN cycles c ON c.id = p.cycle_id
		WHERE p.status = 'failed' AND p.attempts < $1 AND c.status <> 'active'
		ORDER BY p.last_attempt_at NULLS FIRST
	`

	var payouts []*domain.Payout
	if err := r.db.SelectContext(ctx, &payouts, query, maxAttempts); err != nil {
		return nil, err
	}

	return payouts, nil
}

func (r *payoutRepository) ListStaleProcessing(ctx context.Context, cutoff time.Time) ([]*domain.Payout, error) {
	query := `
		SELECT ` + payoutColumns + `
		FROM payouts
		WHERE status = 'processing' AND last_attempt_at <= $1
		ORDER BY last_attempt_at
	`

	var payouts []*domain.Payout
	if err := r.db.SelectContext(ctx, &payouts, query, cutoff); err != nil {
		return nil, err
	}

	return payouts, nil
}
