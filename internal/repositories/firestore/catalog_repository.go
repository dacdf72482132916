package firestore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/firestore"

	"github.com/prompt-factory/api/internal/domain"
	pfirestore "github.com/prompt-factory/api/internal/platform/firestore"
)

const (
	recipesCollection    = "recipes"
	categoriesCollection = "categories"

	fieldTotalScore = "totalScore"
	fieldVoteCount  = "voteCount"
)

// CatalogRepository implements repositories.CatalogRepository backed by Firestore.
type CatalogRepository struct {
	provider   *pfirestore.Provider
	recipes    *pfirestore.BaseRepository[domain.Recipe]
	categories *pfirestore.BaseRepository[domain.Category]
}

// NewCatalogRepository constructs a Firestore-backed catalog repository.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{
		provider:   provider,
		recipes:    pfirestore.NewBaseRepository[domain.Recipe](provider, recipesCollection, decodeRecipe),
		categories: pfirestore.NewBaseRepository[domain.Category](provider, categoriesCollection, nil),
	}, nil
}

// recipeDoc mirrors the stored recipe shape. Option values arrive as strings
// or numbers depending on who authored the document, so they decode as raw
// values and are rendered to strings afterwards.
type recipeDoc struct {
	Title        string           `firestore:"title"`
	Description  string           `firestore:"description"`
	Template     string           `firestore:"template"`
	Placeholders []placeholderDoc `firestore:"placeholders"`
	CategoryID   string           `firestore:"categoryId"`
	Kind         string           `firestore:"type"`
	TotalScore   float64          `firestore:"totalScore"`
	VoteCount    int64            `firestore:"voteCount"`
}

type placeholderDoc struct {
	Key     string `firestore:"key"`
	Label   string `firestore:"label"`
	Options []any  `firestore:"options"`
}

func decodeRecipe(_ context.Context, snap *firestore.DocumentSnapshot) (domain.Recipe, error) {
	var doc recipeDoc
	if err := snap.DataTo(&doc); err != nil {
		return domain.Recipe{}, err
	}
	return doc.toRecipe(), nil
}

func (d recipeDoc) toRecipe() domain.Recipe {
	placeholders := make([]domain.Placeholder, 0, len(d.Placeholders))
	for _, p := range d.Placeholders {
		options := make([]domain.Option, 0, len(p.Options))
		for _, option := range p.Options {
			options = append(options, optionString(option))
		}
		placeholders = append(placeholders, domain.Placeholder{
			Key:     p.Key,
			Label:   p.Label,
			Options: options,
		})
	}
	return domain.Recipe{
		Title:        d.Title,
		Description:  d.Description,
		Template:     d.Template,
		Placeholders: placeholders,
		CategoryID:   d.CategoryID,
		Kind:         domain.RecipeKind(d.Kind),
		TotalScore:   d.TotalScore,
		VoteCount:    d.VoteCount,
	}
}

// optionString renders a stored option value the way clients display it:
// integers without a fraction, floats in their shortest form.
func optionString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// ListRecipes reads the full recipe collection. Document IDs become recipe IDs.
func (r *CatalogRepository) ListRecipes(ctx context.Context) ([]domain.Recipe, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("catalog repository not initialised")
	}

	docs, err := r.recipes.List(ctx)
	if err != nil {
		return nil, err
	}

	recipes := make([]domain.Recipe, 0, len(docs))
	for _, doc := range docs {
		recipe := doc.Data
		recipe.ID = doc.ID
		recipes = append(recipes, recipe)
	}
	return recipes, nil
}

// ListCategories reads the full category collection. Document IDs become
// category IDs; icons are never stored in Firestore and stay empty here.
func (r *CatalogRepository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("catalog repository not initialised")
	}

	docs, err := r.categories.List(ctx)
	if err != nil {
		return nil, err
	}

	categories := make([]domain.Category, 0, len(docs))
	for _, doc := range docs {
		category := doc.Data
		category.ID = doc.ID
		categories = append(categories, category)
	}
	return categories, nil
}

// IncrementRating applies the rating as two server-side increments so
// concurrent voters never clobber each other.
func (r *CatalogRepository) IncrementRating(ctx context.Context, recipeID string, score int) error {
	if r == nil || r.provider == nil {
		return errors.New("catalog repository not initialised")
	}
	id := strings.TrimSpace(recipeID)
	if id == "" {
		return fmt.Errorf("catalog repository: recipe id is required")
	}
	if score < domain.MinRatingValue || score > domain.MaxRatingValue {
		return fmt.Errorf("catalog repository: score %d out of range", score)
	}

	_, err := r.recipes.Update(ctx, id, []firestore.Update{
		{Path: fieldTotalScore, Value: firestore.Increment(float64(score))},
		{Path: fieldVoteCount, Value: firestore.Increment(1)},
	})
	return err
}
