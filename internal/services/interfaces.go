package services

import (
	"context"

	"github.com/prompt-factory/api/internal/domain"
	"github.com/prompt-factory/api/internal/prompt"
)

// CatalogService owns the resolved working dataset of recipes and categories.
// Reads are served from an in-memory snapshot; ratings mutate it in place.
type CatalogService interface {
	// Reload resolves the working dataset again, applying the fallback
	// precedence rules.
	Reload(ctx context.Context) error

	Source() domain.DataSource
	Categories() []domain.Category
	Category(categoryID string) (domain.Category, error)
	Recipes() []domain.Recipe
	Recipe(recipeID string) (domain.Recipe, error)
	RecipesByCategory(categoryID string) ([]domain.Recipe, error)

	// ApplyRating adds the score to the in-memory recipe and returns the
	// updated copy. It never touches the primary store.
	ApplyRating(recipeID string, score int) (domain.Recipe, error)
}

// RatingResult reports what happened to a rating submission.
type RatingResult struct {
	Recipe    domain.Recipe
	Persisted bool
}

// RatingService validates and applies recipe ratings, locally first and to
// the primary store when it is the active source.
type RatingService interface {
	SubmitRating(ctx context.Context, recipeID string, score int) (RatingResult, error)
}

// Session is the caller-visible state of a prompt-building session.
type Session struct {
	ID         string            `json:"id"`
	CategoryID string            `json:"categoryId,omitempty"`
	RecipeID   string            `json:"recipeId,omitempty"`
	Selections prompt.Selections `json:"selections,omitempty"`
	Generating bool              `json:"generating"`
	TakingLong bool              `json:"takingLong"`
	Result     string            `json:"result,omitempty"`
	ResultKind string            `json:"resultKind,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Rated      bool              `json:"rated"`
}

// PromptView is the rendered state of a session's prompt.
type PromptView struct {
	Prompt          string           `json:"prompt"`
	Segments        []prompt.Segment `json:"segments"`
	AllFieldsFilled bool             `json:"allFieldsFilled"`
}

// GenerationOutcome is the result of a session generation request.
type GenerationOutcome struct {
	Result     string `json:"result"`
	Kind       string `json:"kind"`
	Suggestion string `json:"suggestion,omitempty"`
	// Stale marks outcomes discarded because the session moved on while the
	// generation was in flight.
	Stale bool `json:"stale,omitempty"`
}

// SessionService manages prompt-building sessions.
type SessionService interface {
	Create(ctx context.Context) (Session, error)
	Get(ctx context.Context, sessionID string) (Session, error)
	SelectCategory(ctx context.Context, sessionID, categoryID string) (Session, error)
	SelectRecipe(ctx context.Context, sessionID, recipeID string) (Session, error)
	ClearRecipe(ctx context.Context, sessionID string) (Session, error)
	UpdateSelections(ctx context.Context, sessionID string, selections map[string]string) (Session, error)
	Prompt(ctx context.Context, sessionID string) (PromptView, error)
	Generate(ctx context.Context, sessionID string) (GenerationOutcome, error)
	SubmitRating(ctx context.Context, sessionID string, score int) (Session, error)

	// Close stops the background expiry sweeper.
	Close()
}

// Generator abstracts the generation client for services and tests.
type Generator interface {
	Generate(ctx context.Context, prompt string, kind domain.GenerationKind) (string, error)
}

// RatingEventSink receives successfully applied ratings for fan-out.
type RatingEventSink interface {
	RatingApplied(ctx context.Context, recipe domain.Recipe, score int, source domain.DataSource)
}
