package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/prompt-factory/api/internal/platform/httpx"
	"github.com/prompt-factory/api/internal/services"
)

// SessionHandlers serves the prompt-building session endpoints.
type SessionHandlers struct {
	sessions services.SessionService
}

// NewSessionHandlers constructs the session handlers.
func NewSessionHandlers(sessions services.SessionService) *SessionHandlers {
	return &SessionHandlers{sessions: sessions}
}

// Routes wires the session endpoints onto the provided router.
func (h *SessionHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.create)
	r.Route("/{sessionID}", func(session chi.Router) {
		session.Get("/", h.get)
		session.Post("/category", h.selectCategory)
		session.Post("/recipe", h.selectRecipe)
		session.Delete("/recipe", h.clearRecipe)
		session.Put("/selections", h.updateSelections)
		session.Get("/prompt", h.prompt)
		session.Post("/generate", h.generate)
		session.Post("/rating", h.rating)
	})
}

func (h *SessionHandlers) unavailable(w http.ResponseWriter, r *http.Request) bool {
	if h.sessions != nil {
		return false
	}
	httpx.WriteError(r.Context(), w, httpx.NewError("sessions_unavailable", "session service is unavailable", http.StatusServiceUnavailable))
	return true
}

func (h *SessionHandlers) create(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w, r) {
		return
	}
	session, err := h.sessions.Create(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, session)
}

func (h *SessionHandlers) get(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w, r) {
		return
	}
	session, err := h.sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, session)
}

type selectCategoryRequest struct {
	CategoryID string `json:"categoryId"`
}

func (h *SessionHandlers) selectCategory(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w, r) {
		return
	}
	ctx := r.Context()

	var req selectCategoryRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}
	if req.CategoryID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "categoryId is required", http.StatusBadRequest))
		return
	}

	session, err := h.sessions.SelectCategory(ctx, chi.URLParam(r, "sessionID"), req.CategoryID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, session)
}

type selectRecipeRequest struct {
	RecipeID string `json:"recipeId"`
}

func (h *SessionHandlers) selectRecipe(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w, r) {
		return
	}
	ctx := r.Context()

	var req selectRecipeRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}
	if req.RecipeID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "recipeId is required", http.StatusBadRequest))
		return
	}

	session, err := h.sessions.SelectRecipe(ctx, chi.URLParam(r, "sessionID"), req.RecipeID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, session)
}

func (h *SessionHandlers) clearRecipe(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w, r) {
		return
	}
	session, err := h.sessions.ClearRecipe(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, session)
}

type updateSelectionsRequest struct {
	Selections map[string]string `json:"selections"`
}

func (h *SessionHandlers) updateSelections(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w, r) {
		return
	}
	ctx := r.Context()

	var req updateSelectionsRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}
	if len(req.Selections) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "selections are required", http.StatusBadRequest))
		return
	}

	session, err := h.sessions.UpdateSelections(ctx, chi.URLParam(r, "sessionID"), req.Selections)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, session)
}

func (h *SessionHandlers) prompt(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w, r) {
		return
	}
	view, err := h.sessions.Prompt(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, view)
}

func (h *SessionHandlers) generate(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w, r) {
		return
	}
	outcome, err := h.sessions.Generate(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, outcome)
}

type ratingRequest struct {
	Score int `json:"score"`
}

func (h *SessionHandlers) rating(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w, r) {
		return
	}
	ctx := r.Context()

	var req ratingRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	session, err := h.sessions.SubmitRating(ctx, chi.URLParam(r, "sessionID"), req.Score)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, session)
}

func writeBodyError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}
