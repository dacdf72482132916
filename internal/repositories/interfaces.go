package repositories

import (
	"context"
	"errors"

	"github.com/prompt-factory/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CatalogRepository reads recipe and category collections from the primary
// store and applies rating mutations.
type CatalogRepository interface {
	ListRecipes(ctx context.Context) ([]domain.Recipe, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)

	// IncrementRating atomically adds the score to the recipe's running total
	// and bumps its vote count by one.
	IncrementRating(ctx context.Context, recipeID string, score int) error
}

// IsNotFound reports whether err carries repository not-found semantics.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsUnavailable reports whether err carries repository unavailable semantics.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}
