package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/payouts?sslmode=disable")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 7*24*time.Hour, cfg.GetCycleLength())
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), cfg.GetCycleAnchor())
	assert.Equal(t, 48*time.Hour, cfg.GetAutoConfirmWindow())
	assert.Equal(t, 72*time.Hour, cfg.GetCycleCutoff())
	assert.True(t, cfg.GetDefaultPlatformCut().Equal(decimal.NewFromInt(20)))
	assert.Equal(t, 3, cfg.Business.PayoutMaxAttempts)
	assert.Equal(t, 3, cfg.Business.FeeChargeMaxFailures)
	assert.True(t, cfg.GetFeeBlockThreshold().Equal(decimal.NewFromInt(50)))
	assert.Equal(t, 20*time.Second, cfg.GetGatewayTimeout())
	assert.Equal(t, "localhost:6379", cfg.RedisAddr())
	assert.Equal(t, time.UTC, cfg.GetSchedulerLocation())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/payouts")
	t.Setenv("BUSINESS_CYCLE_LENGTH_DAYS", "14")
	t.Setenv("BUSINESS_DEFAULT_PLATFORM_CUT", "12.5")
	t.Setenv("SCHEDULER_WEEKLY_PAYOUT", "0 30 5 * * TUE")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 14*24*time.Hour, cfg.GetCycleLength())
	assert.True(t, cfg.GetDefaultPlatformCut().Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, "0 30 5 * * TUE", cfg.Scheduler.WeeklyPayout)
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Port: "8080"},
		Database: DatabaseConfig{URL: "postgres://localhost/payouts"},
		Scheduler: SchedulerConfig{
			Timezone:   "UTC",
			RunLockTTL: "15m",
		},
		Business: BusinessConfig{
			CycleLengthDays:       7,
			CycleAnchor:           "2024-01-01T00:00:00Z",
			CycleCutoffHours:      72,
			AutoConfirmHours:      48,
			DefaultPlatformCut:    "20",
			PayoutMaxAttempts:     3,
			FeeChargeMaxFailures:  3,
			FeeBlockThreshold:     "0",
			DispatchConcurrency:   4,
			ReconcileAfterMinutes: 15,
		},
		Gateway: GatewayConfig{Timeout: "20s"},
		Health:  HealthConfig{Timeout: "5s"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(*Config)
		errorContains string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:          "zero cycle length",
			mutate:        func(c *Config) { c.Business.CycleLengthDays = 0 },
			errorContains: "BUSINESS_CYCLE_LENGTH_DAYS",
		},
		{
			name:          "malformed anchor",
			mutate:        func(c *Config) { c.Business.CycleAnchor = "monday" },
			errorContains: "BUSINESS_CYCLE_ANCHOR",
		},
		{
			name:          "cutoff shorter than auto-confirm window",
			mutate:        func(c *Config) { c.Business.CycleCutoffHours = 24 },
			errorContains: "BUSINESS_CYCLE_CUTOFF_HOURS",
		},
		{
			name:          "cut above 100",
			mutate:        func(c *Config) { c.Business.DefaultPlatformCut = "120" },
			errorContains: "BUSINESS_DEFAULT_PLATFORM_CUT",
		},
		{
			name:          "negative block threshold",
			mutate:        func(c *Config) { c.Business.FeeBlockThreshold = "-1" },
			errorContains: "BUSINESS_FEE_BLOCK_THRESHOLD",
		},
		{
			name:          "no payout attempts",
			mutate:        func(c *Config) { c.Business.PayoutMaxAttempts = 0 },
			errorContains: "BUSINESS_PAYOUT_MAX_ATTEMPTS",
		},
		{
			name:          "bad gateway timeout",
			mutate:        func(c *Config) { c.Gateway.Timeout = "soon" },
			errorContains: "GATEWAY_TIMEOUT",
		},
		{
			name:          "unknown timezone",
			mutate:        func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" },
			errorContains: "SCHEDULER_TIMEZONE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.errorContains == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errorContains)
		})
	}
}
