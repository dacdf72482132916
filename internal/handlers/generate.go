package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/prompt-factory/api/internal/domain"
	"github.com/prompt-factory/api/internal/platform/httpx"
	"github.com/prompt-factory/api/internal/services"
)

// GenerateHandlers serves the stateless generation endpoint.
type GenerateHandlers struct {
	generator services.Generator
}

// NewGenerateHandlers constructs the generation handlers.
func NewGenerateHandlers(generator services.Generator) *GenerateHandlers {
	return &GenerateHandlers{generator: generator}
}

// Routes wires the generation endpoint onto the provided router.
func (h *GenerateHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/generate", h.generate)
}

type generateRequest struct {
	Prompt string `json:"prompt"`
	Type   string `json:"type"`
}

type generateResponse struct {
	Result string `json:"result"`
}

func (h *GenerateHandlers) generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.generator == nil {
		httpx.WriteError(ctx, w, httpx.NewError("generation_unavailable", "generation service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req generateRequest
	if err := decodeJSONBody(r, &req); err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}

	if strings.TrimSpace(req.Prompt) == "" || strings.TrimSpace(req.Type) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "prompt and type are required", http.StatusBadRequest))
		return
	}

	kind := domain.GenerationKind(req.Type)
	if !kind.Valid() {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unsupported generation type", http.StatusBadRequest))
		return
	}

	result, err := h.generator.Generate(ctx, req.Prompt, kind)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, generateResponse{Result: result})
}
