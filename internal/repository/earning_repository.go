package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/segyhp/payout-engine/internal/domain"

	"github.com/jmoiron/sqlx"
)

const earningColumns = `id, professional_id, appointment_id, cycle_id, gross_amount, platform_fee, net_amount,
	cut_percentage, created_at`

type earningRepository struct {
	db *sqlx.DB
}

func NewEarningRepository(db *sqlx.DB) EarningRepository {
	return &earningRepository{db: db}
}

func (r *earningRepository) GetByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*domain.Earning, error) {
	var earning domain.Earning
	err := r.db.GetContext(ctx, &earning,
		`SELECT `+earningColumns+` FROM earnings WHERE appointment_id = $1`, appointmentID)
	if err != nil {
		return nil, err
	}

	return &earning, nil
}

func (r *earningRepository) ListByCycle(ctx context.Context, cycleID uuid.UUID) ([]*domain.Earning, error) {
	var earnings []*domain.Earning
	err := r.db.SelectContext(ctx, &earnings,
		`SELECT `+earningColumns+` FROM earnings WHERE cycle_id = $1 ORDER BY created_at`, cycleID)
	if err != nil {
		return nil, err
	}

	return earnings, nil
}

func (r *earningRepository) TotalsByProfessional(ctx context.Context, cycleID uuid.UUID) ([]*domain.EarningTotals, error) {
	query := `
		SELECT professional_id,
			SUM(gross_amount) AS gross,
			SUM(platform_fee) AS fee,
			SUM(net_amount) AS net,
			COUNT(*) AS sessions
		FROM earnings
		WHERE cycle_id = $1
		GROUP BY professional_id
		ORDER BY professional_id
	`

	var totals []*domain.EarningTotals
	if err := r.db.SelectContext(ctx, &totals, query, cycleID); err != nil {
		return nil, err
	}

	return totals, nil
}

func (r *earningRepository) TotalsForProfessional(ctx context.Context, professionalID uuid.UUID, cycleID *uuid.UUID) (*domain.EarningTotals, error) {
	query := `
		SELECT $1::uuid AS professional_id,
			COALESCE(SUM(gross_amount), 0) AS gross,
			COALESCE(SUM(platform_fee), 0) AS fee,
			COALESCE(SUM(net_amount), 0) AS net,
			COUNT(*) AS sessions
		FROM earnings
		WHERE professional_id = $1 AND ($2::uuid IS NULL OR cycle_id = $2)
	`

	var totals domain.EarningTotals
	if err := r.db.GetContext(ctx, &totals, query, professionalID, cycleID); err != nil {
		return nil, err
	}

	return &totals, nil
}
