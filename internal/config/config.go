package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all configuration for our application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Business  BusinessConfig  `mapstructure:"business"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	RabbitMQ  RabbitMQConfig  `mapstructure:"rabbitmq"`
	Health    HealthConfig    `mapstructure:"health"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	Env          string        `mapstructure:"env"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// InternalAPIKey guards the /internal routes; empty disables them.
	InternalAPIKey string `mapstructure:"internal_api_key"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SchedulerConfig holds one cron spec (with seconds) per pipeline trigger.
type SchedulerConfig struct {
	DailyConfirmation string `mapstructure:"daily_confirmation"`
	AutoConfirm       string `mapstructure:"auto_confirm"`
	WeeklyPayout      string `mapstructure:"weekly_payout"`
	Timezone          string `mapstructure:"timezone"`
	RunLockTTL        string `mapstructure:"run_lock_ttl"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type BusinessConfig struct {
	CycleLengthDays       int    `mapstructure:"cycle_length_days"`
	CycleAnchor           string `mapstructure:"cycle_anchor"`
	CycleCutoffHours      int    `mapstructure:"cycle_cutoff_hours"`
	AutoConfirmHours      int    `mapstructure:"auto_confirm_hours"`
	DefaultPlatformCut    string `mapstructure:"default_platform_cut"`
	PayoutMaxAttempts     int    `mapstructure:"payout_max_attempts"`
	FeeChargeMaxFailures  int    `mapstructure:"fee_charge_max_failures"`
	FeeBlockThreshold     string `mapstructure:"fee_block_threshold"`
	DispatchConcurrency   int    `mapstructure:"dispatch_concurrency"`
	Currency              string `mapstructure:"currency"`
	ReconcileAfterMinutes int    `mapstructure:"reconcile_after_minutes"`
}

type GatewayConfig struct {
	URL     string `mapstructure:"url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout string `mapstructure:"timeout"`
}

type RabbitMQConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

type HealthConfig struct {
	Timeout string `mapstructure:"timeout"`
}

// Load reads configuration from environment variables.
// Keys are nested ("business.cycle_length_days") and map to flat env names
// (BUSINESS_CYCLE_LENGTH_DAYS).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// .env files are loaded into the process environment by the cmd entry
	// points (godotenv), so only the environment is consulted here.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.internal_api_key", "")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("scheduler.daily_confirmation", "0 0 1 * * *")
	v.SetDefault("scheduler.auto_confirm", "0 0 * * * *")
	v.SetDefault("scheduler.weekly_payout", "0 0 6 * * MON")
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("scheduler.run_lock_ttl", "15m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("business.cycle_length_days", 7)
	v.SetDefault("business.cycle_anchor", "2024-01-01T00:00:00Z")
	v.SetDefault("business.cycle_cutoff_hours", 72)
	v.SetDefault("business.auto_confirm_hours", 48)
	v.SetDefault("business.default_platform_cut", "20")
	v.SetDefault("business.payout_max_attempts", 3)
	v.SetDefault("business.fee_charge_max_failures", 3)
	v.SetDefault("business.fee_block_threshold", "50")
	v.SetDefault("business.dispatch_concurrency", 8)
	v.SetDefault("business.currency", "USD")
	v.SetDefault("business.reconcile_after_minutes", 15)

	v.SetDefault("gateway.url", "")
	v.SetDefault("gateway.api_key", "")
	v.SetDefault("gateway.timeout", "20s")

	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.exchange", "marketplace.events")

	v.SetDefault("health.timeout", "5s")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Business.CycleLengthDays <= 0 {
		return fmt.Errorf("BUSINESS_CYCLE_LENGTH_DAYS must be greater than 0")
	}

	if _, err := time.Parse(time.RFC3339, c.Business.CycleAnchor); err != nil {
		return fmt.Errorf("BUSINESS_CYCLE_ANCHOR must be an RFC3339 timestamp: %w", err)
	}

	if c.Business.AutoConfirmHours <= 0 {
		return fmt.Errorf("BUSINESS_AUTO_CONFIRM_HOURS must be greater than 0")
	}

	if c.Business.CycleCutoffHours < c.Business.AutoConfirmHours {
		return fmt.Errorf("BUSINESS_CYCLE_CUTOFF_HOURS must not be shorter than BUSINESS_AUTO_CONFIRM_HOURS")
	}

	cut, err := decimal.NewFromString(c.Business.DefaultPlatformCut)
	if err != nil {
		return fmt.Errorf("BUSINESS_DEFAULT_PLATFORM_CUT must be a valid decimal: %w", err)
	}
	if cut.IsNegative() || cut.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("BUSINESS_DEFAULT_PLATFORM_CUT must be between 0 and 100")
	}

	threshold, err := decimal.NewFromString(c.Business.FeeBlockThreshold)
	if err != nil {
		return fmt.Errorf("BUSINESS_FEE_BLOCK_THRESHOLD must be a valid decimal: %w", err)
	}
	if threshold.IsNegative() {
		return fmt.Errorf("BUSINESS_FEE_BLOCK_THRESHOLD must not be negative")
	}

	if c.Business.PayoutMaxAttempts <= 0 {
		return fmt.Errorf("BUSINESS_PAYOUT_MAX_ATTEMPTS must be greater than 0")
	}

	if c.Business.FeeChargeMaxFailures <= 0 {
		return fmt.Errorf("BUSINESS_FEE_CHARGE_MAX_FAILURES must be greater than 0")
	}

	if c.Business.DispatchConcurrency <= 0 {
		return fmt.Errorf("BUSINESS_DISPATCH_CONCURRENCY must be greater than 0")
	}

	if _, err := time.ParseDuration(c.Gateway.Timeout); err != nil {
		return fmt.Errorf("GATEWAY_TIMEOUT must be a valid duration: %w", err)
	}

	if _, err := time.ParseDuration(c.Scheduler.RunLockTTL); err != nil {
		return fmt.Errorf("SCHEDULER_RUN_LOCK_TTL must be a valid duration: %w", err)
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("SCHEDULER_TIMEZONE must be a valid IANA zone: %w", err)
	}

	// Validate health check timeout
	if _, err := time.ParseDuration(c.Health.Timeout); err != nil {
		return fmt.Errorf("HEALTH_TIMEOUT must be a valid duration: %w", err)
	}

	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development" || c.Server.Env == "dev"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production" || c.Server.Env == "prod"
}

// GetDefaultPlatformCut returns the platform cut percentage used when no
// setting has been persisted yet.
func (c *Config) GetDefaultPlatformCut() decimal.Decimal {
	cut, _ := decimal.NewFromString(c.Business.DefaultPlatformCut)
	return cut
}

// GetFeeBlockThreshold returns the outstanding fee total above which a
// professional can no longer accept appointments. Zero refuses bookings on
// any unpaid fee.
func (c *Config) GetFeeBlockThreshold() decimal.Decimal {
	threshold, _ := decimal.NewFromString(c.Business.FeeBlockThreshold)
	return threshold
}

// GetCycleAnchor returns the instant cycle boundaries are counted from.
func (c *Config) GetCycleAnchor() time.Time {
	anchor, _ := time.Parse(time.RFC3339, c.Business.CycleAnchor)
	return anchor
}

// GetCycleLength returns the length of one billing cycle.
func (c *Config) GetCycleLength() time.Duration {
	return time.Duration(c.Business.CycleLengthDays) * 24 * time.Hour
}

func (c *Config) GetCycleCutoff() time.Duration {
	return time.Duration(c.Business.CycleCutoffHours) * time.Hour
}

func (c *Config) GetAutoConfirmWindow() time.Duration {
	return time.Duration(c.Business.AutoConfirmHours) * time.Hour
}

func (c *Config) GetReconcileAfter() time.Duration {
	return time.Duration(c.Business.ReconcileAfterMinutes) * time.Minute
}

func (c *Config) GetGatewayTimeout() time.Duration {
	timeout, _ := time.ParseDuration(c.Gateway.Timeout)
	return timeout
}

func (c *Config) GetRunLockTTL() time.Duration {
	ttl, _ := time.ParseDuration(c.Scheduler.RunLockTTL)
	return ttl
}

// GetSchedulerLocation returns the timezone cron specs are evaluated in.
func (c *Config) GetSchedulerLocation() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetHealthTimeout returns the health check timeout as duration
func (c *Config) GetHealthTimeout() time.Duration {
	timeout, _ := time.ParseDuration(c.Health.Timeout)
	return timeout
}

// RedisAddr returns host:port for the redis client.
func (c *Config) RedisAddr() string {
	return c.Redis.Host + ":" + c.Redis.Port
}
