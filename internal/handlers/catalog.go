package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/prompt-factory/api/internal/domain"
	"github.com/prompt-factory/api/internal/platform/httpx"
	"github.com/prompt-factory/api/internal/services"
)

// CatalogHandlers serves read-only catalog browsing endpoints.
type CatalogHandlers struct {
	catalog services.CatalogService
}

// NewCatalogHandlers constructs handlers over the catalog service.
func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// Routes wires the catalog endpoints onto the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/catalog", h.getCatalog)
	r.Get("/categories", h.listCategories)
	r.Get("/categories/{categoryID}/recipes", h.listCategoryRecipes)
	r.Get("/recipes/{recipeID}", h.getRecipe)
}

type recipePayload struct {
	ID            string               `json:"id"`
	Title         string               `json:"title"`
	Description   string               `json:"description,omitempty"`
	Template      string               `json:"template"`
	Placeholders  []domain.Placeholder `json:"placeholders"`
	CategoryID    string               `json:"categoryId,omitempty"`
	Type          string               `json:"type"`
	TotalScore    float64              `json:"totalScore"`
	VoteCount     int64                `json:"voteCount"`
	AverageRating float64              `json:"averageRating"`
	Popular       bool                 `json:"popular"`
}

type categoryPayload struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Icon        string   `json:"icon,omitempty"`
	RecipeIDs   []string `json:"recipeIds"`
}

type catalogResponse struct {
	Source     string            `json:"source"`
	Categories []categoryPayload `json:"categories"`
	Recipes    []recipePayload   `json:"recipes"`
}

func (h *CatalogHandlers) getCatalog(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	response := catalogResponse{
		Source:     string(h.catalog.Source()),
		Categories: buildCategoryPayloads(h.catalog.Categories()),
		Recipes:    buildRecipePayloads(h.catalog.Recipes()),
	}
	writeJSONResponse(w, http.StatusOK, response)
}

func (h *CatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"source":     string(h.catalog.Source()),
		"categories": buildCategoryPayloads(h.catalog.Categories()),
	})
}

func (h *CatalogHandlers) listCategoryRecipes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	recipes, err := h.catalog.RecipesByCategory(chi.URLParam(r, "categoryID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"recipes": buildRecipePayloads(recipes),
	})
}

func (h *CatalogHandlers) getRecipe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	recipe, err := h.catalog.Recipe(chi.URLParam(r, "recipeID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildRecipePayload(recipe))
}

func buildRecipePayload(recipe domain.Recipe) recipePayload {
	return recipePayload{
		ID:            recipe.ID,
		Title:         recipe.Title,
		Description:   recipe.Description,
		Template:      recipe.Template,
		Placeholders:  recipe.Placeholders,
		CategoryID:    recipe.CategoryID,
		Type:          string(recipe.Kind),
		TotalScore:    recipe.TotalScore,
		VoteCount:     recipe.VoteCount,
		AverageRating: recipe.AverageRating(),
		Popular:       recipe.Popular(),
	}
}

func buildRecipePayloads(recipes []domain.Recipe) []recipePayload {
	payloads := make([]recipePayload, 0, len(recipes))
	for _, recipe := range recipes {
		payloads = append(payloads, buildRecipePayload(recipe))
	}
	return payloads
}

func buildCategoryPayloads(categories []domain.Category) []categoryPayload {
	payloads := make([]categoryPayload, 0, len(categories))
	for _, category := range categories {
		recipeIDs := category.RecipeIDs
		if recipeIDs == nil {
			recipeIDs = []string{}
		}
		payloads = append(payloads, categoryPayload{
			ID:          category.ID,
			Title:       category.Title,
			Description: category.Description,
			Icon:        category.Icon,
			RecipeIDs:   recipeIDs,
		})
	}
	return payloads
}
