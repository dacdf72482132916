package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/prompt-factory/api/internal/generation"
	"github.com/prompt-factory/api/internal/platform/httpx"
	"github.com/prompt-factory/api/internal/services"
)

// writeServiceError maps service and generation errors onto the JSON error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var upstreamErr *generation.UpstreamError

	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("session_not_found", "session not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCategoryNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("category_not_found", "category not found", http.StatusNotFound))
	case errors.Is(err, services.ErrRecipeNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("recipe_not_found", "recipe not found", http.StatusNotFound))
	case errors.Is(err, services.ErrNoRecipeSelected):
		httpx.WriteError(ctx, w, httpx.NewError("no_recipe_selected", "select a recipe first", http.StatusBadRequest))
	case errors.Is(err, services.ErrUnknownSelectionKey):
		httpx.WriteError(ctx, w, httpx.NewError("unknown_selection_key", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrSelectionsIncomplete):
		httpx.WriteError(ctx, w, httpx.NewError("selections_incomplete", "fill every placeholder before generating", http.StatusBadRequest))
	case errors.Is(err, services.ErrNoResult):
		httpx.WriteError(ctx, w, httpx.NewError("no_result", "generate a result before rating", http.StatusBadRequest))
	case errors.Is(err, services.ErrAlreadyRated):
		httpx.WriteError(ctx, w, httpx.NewError("already_rated", "this result has already been rated", http.StatusConflict))
	case errors.Is(err, services.ErrRatingOutOfRange):
		httpx.WriteError(ctx, w, httpx.NewError("rating_out_of_range", "score must be between 1 and 5", http.StatusBadRequest))
	case errors.Is(err, generation.ErrEmptyPrompt):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "prompt is required", http.StatusBadRequest))
	case errors.Is(err, generation.ErrUnsupportedKind):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unsupported generation type", http.StatusBadRequest))
	case errors.Is(err, generation.ErrConfigMissing):
		httpx.WriteError(ctx, w, httpx.NewError("generation_unconfigured", "text generation is not configured", http.StatusServiceUnavailable))
	case errors.Is(err, generation.ErrTimeout):
		httpx.WriteError(ctx, w, httpx.NewError("generation_timeout", "generation backend timed out", http.StatusGatewayTimeout))
	case errors.Is(err, generation.ErrMalformedResponse):
		httpx.WriteError(ctx, w, httpx.NewError("generation_malformed", "generation backend returned an unusable answer", http.StatusBadGateway))
	case errors.As(err, &upstreamErr):
		httpx.WriteError(ctx, w, httpx.NewError("generation_upstream", upstreamErr.Message, http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "an unexpected error occurred", http.StatusInternalServerError))
	}
}
