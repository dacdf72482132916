package static

import (
	"testing"

	"github.com/prompt-factory/api/internal/domain"
)

func TestDatasetParses(t *testing.T) {
	recipes, categories, err := Dataset()
	if err != nil {
		t.Fatalf("Dataset: %v", err)
	}
	if len(recipes) == 0 || len(categories) == 0 {
		t.Fatalf("dataset must not be empty: %d recipes, %d categories", len(recipes), len(categories))
	}

	recipeIDs := make(map[string]domain.RecipeKind, len(recipes))
	for _, recipe := range recipes {
		if recipe.ID == "" || recipe.Template == "" {
			t.Errorf("recipe %q missing id or template", recipe.ID)
		}
		if !recipe.Kind.Valid() {
			t.Errorf("recipe %q has invalid kind %q", recipe.ID, recipe.Kind)
		}
		recipeIDs[recipe.ID] = recipe.Kind
	}

	for _, category := range categories {
		if category.Icon == "" {
			t.Errorf("category %q missing icon", category.ID)
		}
		for _, id := range category.RecipeIDs {
			if _, ok := recipeIDs[id]; !ok {
				t.Errorf("category %q references unknown recipe %q", category.ID, id)
			}
		}
	}
}

func TestDatasetReturnsCopies(t *testing.T) {
	first, _, err := Dataset()
	if err != nil {
		t.Fatalf("Dataset: %v", err)
	}
	first[0].TotalScore = -1

	second, _, err := Dataset()
	if err != nil {
		t.Fatalf("Dataset: %v", err)
	}
	if second[0].TotalScore == -1 {
		t.Error("mutating a returned slice leaked into the embedded dataset")
	}
}

func TestIconFor(t *testing.T) {
	if icon := IconFor("gerar-ideias"); icon != "lightbulb" {
		t.Errorf(`IconFor("gerar-ideias") = %q, want "lightbulb"`, icon)
	}
	if icon := IconFor("unknown-category"); icon != "" {
		t.Errorf("IconFor unknown category = %q, want empty", icon)
	}
}
