package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"
	"github.com/segyhp/payout-engine/internal/app"
	"github.com/segyhp/payout-engine/internal/config"
	"github.com/segyhp/payout-engine/internal/domain"
	"github.com/segyhp/payout-engine/pkg/logger"
	"go.uber.org/zap"
)

var (
	pipeline *app.App
	zlog     *zap.Logger
)

func setup() {
	// Load environment variables from .env file (useful for local testing).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	zlog = logger.Must(cfg.Logging).Named("pipeline_lambda")
	zap.ReplaceGlobals(zlog)

	// Initialize dependencies once per container, before the first event.
	pipeline, err = app.New(context.Background(), cfg, zlog)
	if err != nil {
		zlog.Fatal("Failed to initialize application", zap.Error(err))
	}
}

// requestFromEvent reads the pipeline request from the EventBridge rule's
// detail. The event id stands in for a missing request id so EventBridge
// redeliveries replay the stored result.
func requestFromEvent(event events.CloudWatchEvent) (domain.PipelineRequest, error) {
	var req domain.PipelineRequest
	if len(event.Detail) > 0 {
		if err := json.Unmarshal(event.Detail, &req); err != nil {
			return req, fmt.Errorf("decode event detail: %w", err)
		}
	}
	if req.RequestID == "" {
		req.RequestID = event.ID
	}
	return req, nil
}

// HandleRequest runs one pipeline invocation. Only a run that could not
// start is returned as an error, so Lambda retries it.
func HandleRequest(ctx context.Context, event events.CloudWatchEvent) (*domain.PipelineResult, error) {
	req, err := requestFromEvent(event)
	if err != nil {
		zlog.Error("rejecting pipeline event", zap.String("event_id", event.ID), zap.Error(err))
		return nil, err
	}

	result, err := pipeline.Pipeline.Run(ctx, req)
	if err != nil {
		zlog.Error("pipeline request rejected", zap.String("request_id", req.RequestID), zap.Error(err))
		return nil, err
	}
	if !result.Success {
		return result, fmt.Errorf("pipeline run %s did not start: %s", req.RequestID, result.Error)
	}

	zlog.Info("pipeline run finished",
		zap.String("trigger", req.Trigger),
		zap.String("request_id", req.RequestID),
		zap.Bool("skipped", result.Skipped),
		zap.Bool("has_errors", result.HasErrors()))
	return result, nil
}

func main() {
	setup()
	lambda.Start(HandleRequest)
}
