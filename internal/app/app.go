// Package app wires the stores, adapters and services shared by every
// process entry point.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/segyhp/payout-engine/internal/cache"
	"github.com/segyhp/payout-engine/internal/clock"
	"github.com/segyhp/payout-engine/internal/config"
	"github.com/segyhp/payout-engine/internal/repository"
	"github.com/segyhp/payout-engine/internal/service"
	"github.com/segyhp/payout-engine/pkg/gatewayclient"
	"github.com/segyhp/payout-engine/pkg/rabbitmq"
	"go.uber.org/zap"
)

// runResultTTL is how long pipeline run records stay readable.
const runResultTTL = 14 * 24 * time.Hour

type App struct {
	DB    *sqlx.DB
	Redis *redis.Client
	Clock clock.Clock

	Cycles        *service.CycleService
	Earnings      *service.EarningsService
	Confirmations *service.ConfirmationService
	Fees          *service.FeeChargeService
	Payouts       *service.PayoutService
	Bookings      *service.BookingService
	Pipeline      *service.Pipeline

	publisher rabbitmq.Publisher
	logger    *zap.Logger
}

// New connects to Postgres and Redis, applies the schema and builds the
// services. RabbitMQ is optional: without it notifications are logged and
// dropped.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := initDB(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	if err := repository.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	redisClient := initRedis(cfg)

	a := &App{
		DB:     db,
		Redis:  redisClient,
		Clock:  clock.SystemClock{},
		logger: logger,
	}
	a.publisher = initPublisher(cfg, logger)

	if cfg.Gateway.URL == "" {
		logger.Warn("GATEWAY_URL is not set; gateway calls will fail and stay indeterminate")
	}
	gw := gatewayclient.NewClient(cfg.Gateway.URL, cfg.Gateway.APIKey, cfg.GetGatewayTimeout(), logger)
	notifier := rabbitmq.NewNotificationPublisher(a.publisher, cfg.RabbitMQ.Exchange)
	runs := cache.NewRunStore(redisClient, runResultTTL)

	a.Cycles = service.NewCycleService(repository.NewCycleRepository(db), a.Clock, cfg, logger)
	a.Earnings = service.NewEarningsService(
		repository.NewEarningRepository(db),
		repository.NewSettingsRepository(db),
		repository.NewConfirmationRepository(db),
		a.Cycles, cfg, logger)
	a.Confirmations = service.NewConfirmationService(
		repository.NewAppointmentRepository(db),
		repository.NewConfirmationRepository(db),
		a.Earnings, gw, notifier, a.Clock, cfg, logger)
	a.Fees = service.NewFeeChargeService(
		repository.NewFeeChargeRepository(db),
		repository.NewPaymentMethodRepository(db),
		repository.NewEarningRepository(db),
		a.Cycles, gw, a.Clock, cfg, logger)
	a.Payouts = service.NewPayoutService(
		repository.NewPayoutRepository(db),
		repository.NewEarningRepository(db),
		a.Cycles, a.Fees, gw, a.Clock, cfg, logger)
	a.Bookings = service.NewBookingService(repository.NewAppointmentRepository(db), a.Fees, a.Clock, logger)
	a.Pipeline = service.NewPipeline(a.Confirmations, a.Cycles, a.Payouts, notifier, runs, a.Clock, cfg, logger)

	return a, nil
}

func (a *App) Close() {
	a.publisher.Close()
	if err := a.Redis.Close(); err != nil {
		a.logger.Warn("failed to close redis", zap.Error(err))
	}
	if err := a.DB.Close(); err != nil {
		a.logger.Warn("failed to close database", zap.Error(err))
	}
}

func initDB(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	return db, nil
}

func initRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func initPublisher(cfg *config.Config, logger *zap.Logger) rabbitmq.Publisher {
	if cfg.RabbitMQ.URL == "" {
		logger.Warn("RABBITMQ_URL is not set; notifications will be dropped")
		return rabbitmq.NewEventProducerFallback(logger)
	}
	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQ.URL, logger)
	if err != nil {
		logger.Warn("failed to connect to RabbitMQ; notifications will be dropped", zap.Error(err))
		return rabbitmq.NewEventProducerFallback(logger)
	}
	return producer
}
