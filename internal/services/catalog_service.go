package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/prompt-factory/api/internal/domain"
	"github.com/prompt-factory/api/internal/prompt"
	"github.com/prompt-factory/api/internal/repositories"
	"github.com/prompt-factory/api/internal/repositories/static"
)

var (
	// ErrCategoryNotFound indicates an unknown category ID.
	ErrCategoryNotFound = errors.New("catalog: category not found")
	// ErrRecipeNotFound indicates an unknown recipe ID.
	ErrRecipeNotFound = errors.New("catalog: recipe not found")
	// ErrRatingOutOfRange indicates a score outside the 1..5 scale.
	ErrRatingOutOfRange = errors.New("catalog: rating out of range")
)

// CatalogServiceDeps bundles collaborators required to construct a catalog service.
type CatalogServiceDeps struct {
	// Primary is the primary-store repository. Nil means the primary store is
	// not configured and the embedded dataset is used directly.
	Primary repositories.CatalogRepository
	Logger  *zap.Logger
}

type catalogService struct {
	primary repositories.CatalogRepository
	logger  *zap.Logger

	mu      sync.RWMutex
	catalog domain.Catalog
}

// NewCatalogService constructs the catalog service and resolves the initial
// working dataset. Resolution never fails: any primary-store problem lands on
// the embedded fallback.
func NewCatalogService(ctx context.Context, deps CatalogServiceDeps) (CatalogService, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	service := &catalogService{
		primary: deps.Primary,
		logger:  logger,
	}
	if err := service.Reload(ctx); err != nil {
		return nil, err
	}
	return service, nil
}

// Reload resolves the working dataset. Both collections are fetched from the
// primary store concurrently; any error, absence, or an empty collection on
// either side switches the whole dataset to the embedded fallback. The two
// collections never mix sources.
func (s *catalogService) Reload(ctx context.Context) error {
	recipes, categories, source := s.resolve(ctx)

	catalog := domain.Catalog{
		Recipes:    make(map[string]*domain.Recipe, len(recipes)),
		Categories: make(map[string]*domain.Category, len(categories)),
		Source:     source,
	}

	for i := range recipes {
		recipe := recipes[i]
		warnings, err := prompt.Validate(recipe)
		if err != nil {
			s.logger.Warn("skipping invalid recipe", zap.String("recipe_id", recipe.ID), zap.Error(err))
			continue
		}
		for _, warning := range warnings {
			s.logger.Warn("recipe template warning", zap.String("recipe_id", recipe.ID), zap.String("warning", warning))
		}
		catalog.Recipes[recipe.ID] = &recipe
	}

	for i := range categories {
		category := categories[i]
		if category.Icon == "" {
			category.Icon = static.IconFor(category.ID)
		}
		catalog.Categories[category.ID] = &category
	}

	s.mu.Lock()
	s.catalog = catalog
	s.mu.Unlock()

	s.logger.Info("catalog resolved",
		zap.String("source", string(source)),
		zap.Int("recipes", len(catalog.Recipes)),
		zap.Int("categories", len(catalog.Categories)),
	)
	return nil
}

func (s *catalogService) resolve(ctx context.Context) ([]domain.Recipe, []domain.Category, domain.DataSource) {
	if s.primary == nil {
		return s.fallback("primary store not configured")
	}

	var (
		wg            sync.WaitGroup
		recipes       []domain.Recipe
		categories    []domain.Category
		recipesErr    error
		categoriesErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		recipes, recipesErr = s.primary.ListRecipes(ctx)
	}()
	go func() {
		defer wg.Done()
		categories, categoriesErr = s.primary.ListCategories(ctx)
	}()
	wg.Wait()

	switch {
	case recipesErr != nil:
		return s.fallback(fmt.Sprintf("recipes fetch failed: %v", recipesErr))
	case categoriesErr != nil:
		return s.fallback(fmt.Sprintf("categories fetch failed: %v", categoriesErr))
	case len(recipes) == 0:
		return s.fallback("primary store has no recipes")
	case len(categories) == 0:
		return s.fallback("primary store has no categories")
	}
	return recipes, categories, domain.SourcePrimary
}

func (s *catalogService) fallback(reason string) ([]domain.Recipe, []domain.Category, domain.DataSource) {
	s.logger.Warn("using embedded fallback catalog", zap.String("reason", reason))
	recipes, categories, err := static.Dataset()
	if err != nil {
		// The embedded dataset is validated by tests; a parse failure here is
		// a build defect.
		s.logger.Error("embedded catalog unreadable", zap.Error(err))
		return nil, nil, domain.SourceFallback
	}
	return recipes, categories, domain.SourceFallback
}

func (s *catalogService) Source() domain.DataSource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog.Source
}

func (s *catalogService) Categories() []domain.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.catalog.Categories))
	for _, category := range s.catalog.Categories {
		categories = append(categories, *category)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].ID < categories[j].ID })
	return categories
}

func (s *catalogService) Category(categoryID string) (domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category, ok := s.catalog.Categories[strings.TrimSpace(categoryID)]
	if !ok {
		return domain.Category{}, fmt.Errorf("%w: %s", ErrCategoryNotFound, categoryID)
	}
	return *category, nil
}

func (s *catalogService) Recipes() []domain.Recipe {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recipes := make([]domain.Recipe, 0, len(s.catalog.Recipes))
	for _, recipe := range s.catalog.Recipes {
		recipes = append(recipes, *recipe)
	}
	sort.Slice(recipes, func(i, j int) bool { return recipes[i].ID < recipes[j].ID })
	return recipes
}

func (s *catalogService) Recipe(recipeID string) (domain.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recipe, ok := s.catalog.Recipes[strings.TrimSpace(recipeID)]
	if !ok {
		return domain.Recipe{}, fmt.Errorf("%w: %s", ErrRecipeNotFound, recipeID)
	}
	return *recipe, nil
}

// RecipesByCategory returns the category's recipes in the order listed by the
// category document. Dangling recipe references are skipped.
func (s *catalogService) RecipesByCategory(categoryID string) ([]domain.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category, ok := s.catalog.Categories[strings.TrimSpace(categoryID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCategoryNotFound, categoryID)
	}

	recipes := make([]domain.Recipe, 0, len(category.RecipeIDs))
	for _, recipeID := range category.RecipeIDs {
		if recipe, ok := s.catalog.Recipes[recipeID]; ok {
			recipes = append(recipes, *recipe)
		}
	}
	return recipes, nil
}

func (s *catalogService) ApplyRating(recipeID string, score int) (domain.Recipe, error) {
	if score < domain.MinRatingValue || score > domain.MaxRatingValue {
		return domain.Recipe{}, fmt.Errorf("%w: %d", ErrRatingOutOfRange, score)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recipe, ok := s.catalog.Recipes[strings.TrimSpace(recipeID)]
	if !ok {
		return domain.Recipe{}, fmt.Errorf("%w: %s", ErrRecipeNotFound, recipeID)
	}

	recipe.TotalScore += float64(score)
	recipe.VoteCount++
	return *recipe, nil
}
