package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/segyhp/payout-engine/internal/domain"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type settingsRepository struct {
	db *sqlx.DB
}

func NewSettingsRepository(db *sqlx.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) GetPlatformCut(ctx context.Context) (decimal.Decimal, bool, error) {
	var value string
	err := r.db.GetContext(ctx, &value, `SELECT value FROM platform_settings WHERE key = $1`, domain.SettingPlatformCut)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}

	cut, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("stored %s is not a decimal: %w", domain.SettingPlatformCut, err)
	}

	return cut, true, nil
}

func (r *settingsRepository) SetPlatformCut(ctx context.Context, percentage decimal.Decimal, now time.Time) error {
	query := `
		INSERT INTO platform_settings (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query, domain.SettingPlatformCut, percentage.String(), now)
	return err
}
