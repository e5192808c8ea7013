package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/payout-engine/internal/domain"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const cycleColumns = `id, start_date, end_date, cutoff_date, status, processing_started_at, completed_at,
	sealed_at, last_error, created_at, updated_at`

const cycleStatsQuery = `
	SELECT c.id, c.start_date, c.end_date, c.cutoff_date, c.status, c.processing_started_at, c.completed_at,
		c.sealed_at, c.last_error, c.created_at, c.updated_at,
		COALESCE(e.professional_count, 0) AS professional_count,
		COALESCE(e.earnings_count, 0) AS earnings_count,
		COALESCE(e.gross_total, 0) AS gross_total,
		COALESCE(e.fee_total, 0) AS fee_total,
		COALESCE(p.completed, 0) AS payouts_completed,
		COALESCE(p.failed, 0) AS payouts_failed,
		COALESCE(p.pending, 0) AS payouts_pending,
		COALESCE(f.completed, 0) AS fee_charges_completed,
		COALESCE(f.failed, 0) AS fee_charges_failed
	FROM cycles c
	LEFT JOIN (
		SELECT cycle_id,
			COUNT(DISTINCT professional_id) AS professional_count,
			COUNT(*) AS earnings_count,
			SUM(gross_amount) AS gross_total,
			SUM(platform_fee) AS fee_total
		FROM earnings GROUP BY cycle_id
	) e ON e.cycle_id = c.id
	LEFT JOIN (
		SELECT cycle_id,
			COUNT(*) FILTER (WHERE status = 'completed') AS completed,
			COUNT(*) FILTER (WHERE status = 'failed') AS failed,
			COUNT(*) FILTER (WHERE status IN ('pending', 'processing')) AS pending
		FROM payouts GROUP BY cycle_id
	) p ON p.cycle_id = c.id
	LEFT JOIN (
		SELECT cycle_id,
			COUNT(*) FILTER (WHERE status = 'completed') AS completed,
			COUNT(*) FILTER (WHERE status IN ('failed', 'partially_paid')) AS failed
		FROM fee_charges GROUP BY cycle_id
	) f ON f.cycle_id = c.id
`

type cycleRepository struct {
	db *sqlx.DB
}

func NewCycleRepository(db *sqlx.DB) CycleRepository {
	return &cycleRepository{db: db}
}

func (r *cycleRepository) Create(ctx context.Context, cycle *domain.Cycle) (bool, error) {
	// No conflict target: both the period bounds and the single-active index
	// make a concurrent loser a no-op.
	query := `
		INSERT INTO cycles (id, start_date, end_date, cutoff_date, status, processing_started_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		cycle.ID,
		cycle.StartDate,
		cycle.EndDate,
		cycle.CutoffDate,
		cycle.Status,
		cycle.ProcessingStartedAt,
		cycle.CreatedAt,
		cycle.UpdatedAt,
	)
	if err != nil {
		return false, err
	}

	return rowsChanged(result)
}

func (r *cycleRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Cycle, error) {
	return r.getOne(ctx, `SELECT `+cycleColumns+` FROM cycles WHERE id = $1`, id)
}

func (r *cycleRepository) GetByBounds(ctx context.Context, start, end time.Time) (*domain.Cycle, error) {
	return r.getOne(ctx, `SELECT `+cycleColumns+` FROM cycles WHERE start_date = $1 AND end_date = $2`, start, end)
}

func (r *cycleRepository) GetPrevious(ctx context.Context, t time.Time) (*domain.Cycle, error) {
	return r.getOne(ctx, `
		SELECT `+cycleColumns+`
		FROM cycles
		WHERE end_date <= $1
		ORDER BY end_date DESC
		LIMIT 1
	`, t)
}

func (r *cycleRepository) getOne(ctx context.Context, query string, args ...interface{}) (*domain.Cycle, error) {
	var cycle domain.Cycle
	if err := r.db.GetContext(ctx, &cycle, query, args...); err != nil {
		return nil, err
	}
	return &cycle, nil
}

func (r *cycleRepository) CloseExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE cycles
		SET status = 'processing', processing_started_at = $1, updated_at = $1
		WHERE status = 'active' AND end_date <= $1
	`

	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

func (r *cycleRepository) Seal(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	// The row lock taken here waits for earning inserts holding FOR SHARE on
	// the cycle, so totals read after Seal include every committed earning.
	query := `
		UPDATE cycles
		SET sealed_at = COALESCE(sealed_at, $2), updated_at = $2
		WHERE id = $1 AND status IN ('processing', 'failed', 'completed')
	`

	result, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return false, err
	}

	return rowsChanged(result)
}

func (r *cycleRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from []string, to string, lastError *string, now time.Time) (bool, error) {
	query := `
		UPDATE cycles
		SET status = $3,
			last_error = $4,
			processing_started_at = CASE WHEN $3 = 'processing' THEN $5 ELSE processing_started_at END,
			completed_at = CASE WHEN $3 = 'completed' THEN $5 ELSE completed_at END,
			updated_at = $5
		WHERE id = $1 AND status = ANY($2)
	`

	result, err := r.db.ExecContext(ctx, query, id, pq.Array(from), to, lastError, now)
	if err != nil {
		return false, err
	}

	return rowsChanged(result)
}

func (r *cycleRepository) ListReady(ctx context.Context, now time.Time) ([]*domain.Cycle, error) {
	query := `
		SELECT ` + cycleColumns + `
		FROM cycles
		WHERE cutoff_date <= $1 AND status IN ('active', 'processing', 'failed')
		ORDER BY start_date
	`

	var cycles []*domain.Cycle
	if err := r.db.SelectContext(ctx, &cycles, query, now); err != nil {
		return nil, err
	}

	return cycles, nil
}

func (r *cycleRepository) ListWithStats(ctx context.Context, limit, offset int) ([]*domain.CycleStats, error) {
	query := cycleStatsQuery + ` ORDER BY c.start_date DESC LIMIT $1 OFFSET $2`

	var stats []*domain.CycleStats
	if err := r.db.SelectContext(ctx, &stats, query, limit, offset); err != nil {
		return nil, err
	}

	return stats, nil
}

func (r *cycleRepository) GetStats(ctx context.Context, id uuid.UUID) (*domain.CycleStats, error) {
	var stats domain.CycleStats
	if err := r.db.GetContext(ctx, &stats, cycleStatsQuery+` WHERE c.id = $1`, id); err != nil {
		return nil, err
	}

	return &stats, nil
}
