package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/segyhp/payout-engine/internal/app"
	"github.com/segyhp/payout-engine/internal/config"
	"github.com/segyhp/payout-engine/internal/handler"
	"github.com/segyhp/payout-engine/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger := logger.Must(cfg.Logging)
	defer zapLogger.Sync()
	zap.ReplaceGlobals(zapLogger)

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.New(initCtx, cfg, zapLogger)
	cancelInit()
	if err != nil {
		zapLogger.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer a.Close()

	router := handler.NewRouter(handler.Handlers{
		Health:       handler.NewHealthHandler(a.DB, a.Redis, cfg.GetHealthTimeout()),
		Professional: handler.NewProfessionalHandler(a.Cycles, a.Earnings, a.Payouts, a.Fees),
		Appointment:  handler.NewAppointmentHandler(a.Confirmations, a.Bookings),
		Admin:        handler.NewAdminHandler(a.Cycles, a.Confirmations, a.Fees, a.Payouts, a.Earnings, a.Clock),
		Pipeline:     handler.NewPipelineHandler(a.Pipeline),

		InternalAPIKey: cfg.Server.InternalAPIKey,
	}, zapLogger)

	// Start server
	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		zapLogger.Info("Server starting", zap.String("addr", server.Addr), zap.String("env", cfg.Server.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
		return
	}

	zapLogger.Info("Server exited")
}
