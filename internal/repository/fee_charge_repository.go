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
	"github.com/shopspring/decimal"
)

const feeChargeColumns = `id, professional_id, cycle_id, amount, amount_paid, status, retry_count, attempts,
	gateway_reference, failure_reason, waive_reason, waived_by, last_attempt_at, created_at, updated_at`

type feeChargeRepository struct {
	db *sqlx.DB
}

func NewFeeChargeRepository(db *sqlx.DB) FeeChargeRepository {
	return &feeChargeRepository{db: db}
}

func (r *feeChargeRepository) Create(ctx context.Context, charge *domain.FeeCharge) (bool, error) {
	query := `
		INSERT INTO fee_charges (id, professional_id, cycle_id, amount, amount_paid, status, retry_count, attempts,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (professional_id, cycle_id) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		charge.ID,
		charge.ProfessionalID,
		charge.CycleID,
		charge.Amount,
		charge.AmountPaid,
		charge.Status,
		charge.RetryCount,
		charge.Attempts,
		charge.CreatedAt,
		charge.UpdatedAt,
	)
	if err != nil {
		return false, err
	}

	return rowsChanged(result)
}

func (r *feeChargeRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.FeeCharge, error) {
	var charge domain.FeeCharge
	if err := r.db.GetContext(ctx, &charge, `SELECT `+feeChargeColumns+` FROM fee_charges WHERE id = $1`, id); err != nil {
		return nil, err
	}

	return &charge, nil
}

func (r *feeChargeRepository) ListByCycle(ctx context.Context, cycleID uuid.UUID, statuses []string) ([]*domain.FeeCharge, error) {
	query := `
		SELECT ` + feeChargeColumns + `
		FROM fee_charges
		WHERE cycle_id = $1 AND status = ANY($2)
		ORDER BY created_at, id
	`

	var charges []*domain.FeeCharge
	if err := r.db.SelectContext(ctx, &charges, query, cycleID, pq.Array(statuses)); err != nil {
		return nil, err
	}

	return charges, nil
}

func (r *feeChargeRepository) ListByProfessional(ctx context.Context, professionalID uuid.UUID) ([]*domain.FeeCharge, error) {
	query := `
		SELECT ` + feeChargeColumns + `
		FROM fee_charges
		WHERE professional_id = $1
		ORDER BY created_at DESC
	`

	var charges []*domain.FeeCharge
	if err := r.db.SelectContext(ctx, &charges, query, professionalID); err != nil {
		return nil, err
	}

	return charges, nil
}

func (r *feeChargeRepository) Claim(ctx context.Context, id uuid.UUID, from []string, now time.Time) (*domain.FeeCharge, error) {
	query := `
		UPDATE fee_charges
		SET status = 'processing', attempts = attempts + 1, last_attempt_at = $3, updated_at = $3
		WHERE id = $1 AND status = ANY($2)
		RETURNING ` + feeChargeColumns

	var charge domain.FeeCharge
	err := r.db.GetContext(ctx, &charge, query, id, pq.Array(from), now)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &charge, nil
}

func (r *feeChargeRepository) Complete(ctx context.Context, id uuid.UUID, reference string, now time.Time) (bool, error) {
	query := `
		UPDATE fee_charges
		SET status = 'completed', amount_paid = amount, gateway_reference = NULLIF($2, ''),
			failure_reason = NULL, updated_at = $3
		WHERE id = $1 AND status = 'processing'
	`

	result, err := r.db.ExecContext(ctx, query, id, reference, now)
	if err != nil {
		return false, err
	}

	return rowsChanged(result)
}

func (r *feeChargeRepository) PartiallyPay(ctx context.Context, id uuid.UUID, captured decimal.Decimal, reference string, now time.Time) (bool, error) {
	query := `
		UPDATE fee_charges
		SET status = CASE WHEN amount_paid + $2 >= amount THEN 'completed' ELSE 'partially_paid' END,
			amount_paid = LEAST(amount, amount_paid + $2),
			gateway_reference = NULLIF($3, ''),
			updated_at = $4
		WHERE id = $1 AND status = 'processing'
	`

	result, err := r.db.ExecContext(ctx, query, id, captured, reference, now)
	if err != nil {
		return false, err
	}

	return rowsChanged(result)
}

func (r *feeChargeRepository) Fail(ctx context.Context, id uuid.UUID, reason string, now time.Time) (int, error) {
	query := `
		UPDATE fee_charges
		SET status = 'failed', retry_count = retry_count + 1, failure_reason = $2, updated_at = $3
		WHERE id = $1 AND status = 'processing'
		RETURNING retry_count
	`

	var retryCount int
	if err := r.db.GetContext(ctx, &retryCount, query, id, reason, now); err != nil {
		return 0, err
	}

	return retryCount, nil
}

func (r *feeChargeRepository) Waive(ctx context.Context, id uuid.UUID, adminID uuid.UUID, reason string, now time.Time) (bool, error) {
	query := `
		UPDATE fee_charges
		SET status = 'waived', waived_by = $2, waive_reason = $3, updated_at = $4
		WHERE id = $1 AND status = ANY($5)
	`

	result, err := r.db.ExecContext(ctx, query, id, adminID, reason, now, pq.Array(domain.OutstandingFeeStatuses))
	if err != nil {
		return false, err
	}

	return rowsChanged(result)
}

func (r *feeChargeRepository) ListRetryable(ctx context.Context, maxFailures int) ([]*domain.FeeCharge, error) {
	query := `
		SELECT ` + feeChargeColumns + `
		FROM fee_charges
		WHERE status IN ('failed', 'partially_paid') AND retry_count < $1
		ORDER BY last_attempt_at NULLS FIRST
	`

	var charges []*domain.FeeCharge
	if err := r.db.SelectContext(ctx, &charges, query, maxFailures); err != nil {
		return nil, err
	}

	return charges, nil
}

func (r *feeChargeRepository) ListStaleProcessing(ctx context.Context, cutoff time.Time) ([]*domain.FeeCharge, error) {
	query := `
		SELECT ` + feeChargeColumns + `
		FROM fee_charges
		WHERE status = 'processing' AND last_attempt_at <= $1
		ORDER BY last_attempt_at
	`

	var charges []*domain.FeeCharge
	if err := r.db.SelectContext(ctx, &charges, query, cutoff); err != nil {
		return nil, err
	}

	return charges, nil
}

func (r *feeChargeRepository) PendingTotal(ctx context.Context, professionalID uuid.UUID) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount - amount_paid), 0)
		FROM fee_charges
		WHERE professional_id = $1 AND status = ANY($2)
	`

	var total decimal.Decimal
	if err := r.db.GetContext(ctx, &total, query, professionalID, pq.Array(domain.OutstandingFeeStatuses)); err != nil {
		return decimal.Zero, err
	}

	return total, nil
}

func (r *feeChargeRepository) ResetRetryCounts(ctx context.Context, professionalID uuid.UUID, now time.Time) error {
	query := `
		UPDATE fee_charges
		SET retry_count = 0, updated_at = $2
		WHERE professional_id = $1 AND status IN ('failed', 'partially_paid')
	`

	_, err := r.db.ExecContext(ctx, query, professionalID, now)
	return err
}
