// Package static embeds the fallback catalog used whenever the primary store
// is unreachable, misconfigured, or returns an incomplete dataset.
package static

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/prompt-factory/api/internal/domain"
)

//go:embed data/recipes.json
var recipesJSON []byte

//go:embed data/categories.json
var categoriesJSON []byte

var (
	parseOnce      sync.Once
	parsedRecipes  []domain.Recipe
	parsedCats     []domain.Category
	parseErr       error
	iconsByCatOnce sync.Once
	iconsByCat     map[string]string
)

// Dataset returns the embedded fallback recipes and categories. Callers
// receive fresh slices; the embedded data itself is parsed once.
func Dataset() ([]domain.Recipe, []domain.Category, error) {
	parseOnce.Do(func() {
		if err := json.Unmarshal(recipesJSON, &parsedRecipes); err != nil {
			parseErr = fmt.Errorf("static: parse recipes: %w", err)
			return
		}
		if err := json.Unmarshal(categoriesJSON, &parsedCats); err != nil {
			parseErr = fmt.Errorf("static: parse categories: %w", err)
			return
		}
	})
	if parseErr != nil {
		return nil, nil, parseErr
	}

	recipes := make([]domain.Recipe, len(parsedRecipes))
	copy(recipes, parsedRecipes)
	categories := make([]domain.Category, len(parsedCats))
	copy(categories, parsedCats)
	return recipes, categories, nil
}

// IconFor returns the presentational icon name bound to a category ID, or
// empty when the static dataset has no entry for it. Primary-store categories
// never persist icons, so they are rebound from here.
func IconFor(categoryID string) string {
	iconsByCatOnce.Do(func() {
		iconsByCat = make(map[string]string)
		_, categories, err := Dataset()
		if err != nil {
			return
		}
		for _, category := range categories {
			if category.Icon != "" {
				iconsByCat[category.ID] = category.Icon
			}
		}
	})
	return iconsByCat[categoryID]
}
