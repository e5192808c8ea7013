package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/segyhp/payout-engine/internal/app"
	"github.com/segyhp/payout-engine/internal/config"
	"github.com/segyhp/payout-engine/internal/scheduler"
	"github.com/segyhp/payout-engine/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger := logger.Must(cfg.Logging)
	defer zapLogger.Sync()
	zap.ReplaceGlobals(zapLogger)
	zapLogger.Info("Starting payout scheduler...")

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.New(initCtx, cfg, zapLogger)
	cancelInit()
	if err != nil {
		zapLogger.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer a.Close()

	s, err := scheduler.New(cfg, a.Pipeline, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to schedule pipeline jobs", zap.Error(err))
	}

	s.Start()
	zapLogger.Info("Scheduler started successfully", zap.String("timezone", cfg.Scheduler.Timezone))

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down scheduler...")
	select {
	case <-s.Stop().Done():
	case <-time.After(cfg.GetRunLockTTL()):
		zapLogger.Warn("Running pipeline job did not finish before shutdown")
	}
	zapLogger.Info("Scheduler stopped")
}
