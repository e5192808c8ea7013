package handler

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/segyhp/payout-engine/internal/domain"
	"github.com/segyhp/payout-engine/pkg/response"
)

type PipelineRunner interface {
	Run(ctx context.Context, req domain.PipelineRequest) (*domain.PipelineResult, error)
	GetRun(ctx context.Context, requestID string) (*domain.PipelineResult, error)
}

// PipelineHandler exposes the pipeline to internal callers.
type PipelineHandler struct {
	pipeline  PipelineRunner
	validator *validator.Validate
}

func NewPipelineHandler(pipeline PipelineRunner) *PipelineHandler {
	return &PipelineHandler{
		pipeline:  pipeline,
		validator: NewValidator(),
	}
}

// Run answers 200 with the result even when per-entity errors were
// recorded; a run that could not start is reported with 503.
func (h *PipelineHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req domain.PipelineRequest
	if !decode(w, r, h.validator, &req) {
		return
	}

	result, err := h.pipeline.Run(r.Context(), req)
	if err != nil {
		response.ServiceError(w, "Failed to run pipeline", err)
		return
	}
	if !result.Success {
		response.JSON(w, http.StatusServiceUnavailable, result)
		return
	}
	response.Success(w, result)
}

func (h *PipelineHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	result, err := h.pipeline.GetRun(r.Context(), mux.Vars(r)["requestID"])
	if err != nil {
		response.ServiceError(w, "Failed to load pipeline run", err)
		return
	}
	response.Success(w, result)
}
