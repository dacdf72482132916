package domain

// Option is a single selectable value for a placeholder. Firestore documents
// may carry options as strings or numbers, so the decoded form is always the
// string rendering.
type Option = string

// Placeholder is a named, delimiter-wrapped token inside a recipe template
// representing a user-selectable slot, e.g. "[tom]".
type Placeholder struct {
	Key     string   `firestore:"key" json:"key"`
	Label   string   `firestore:"label" json:"label"`
	Options []Option `firestore:"options" json:"options"`
}

// RecipeKind distinguishes recipes that produce text from those that produce
// an image reference.
type RecipeKind string

const (
	// RecipeKindText marks recipes whose final prompt is sent to the chat backend.
	RecipeKindText RecipeKind = "text"
	// RecipeKindImage marks recipes whose final prompt builds an image URL.
	RecipeKindImage RecipeKind = "image"
)

// Valid reports whether the kind is one of the supported recipe kinds.
func (k RecipeKind) Valid() bool {
	return k == RecipeKindText || k == RecipeKindImage
}

// Recipe is a reusable prompt template paired with a set of fillable slots
// and its accumulated rating state.
type Recipe struct {
	ID           string        `firestore:"-" json:"id"`
	Title        string        `firestore:"title" json:"title"`
	Description  string        `firestore:"description" json:"description"`
	Template     string        `firestore:"template" json:"template"`
	Placeholders []Placeholder `firestore:"placeholders" json:"placeholders"`
	CategoryID   string        `firestore:"categoryId" json:"categoryId"`
	Kind         RecipeKind    `firestore:"type" json:"type"`
	TotalScore   float64       `firestore:"totalScore" json:"totalScore"`
	VoteCount    int64         `firestore:"voteCount" json:"voteCount"`
}

const (
	// MaxRatingValue is the highest score a single rating may carry.
	MaxRatingValue = 5
	// MinRatingValue is the lowest score a single rating may carry.
	MinRatingValue = 1

	popularMinAverage = 4.0
	popularMinVotes   = 3
)

// AverageRating returns totalScore/voteCount, or zero when no votes exist.
func (r Recipe) AverageRating() float64 {
	if r.VoteCount <= 0 {
		return 0
	}
	return r.TotalScore / float64(r.VoteCount)
}

// Popular reports whether the recipe qualifies for the "popular" badge:
// average rating of at least 4.0 across at least 3 votes.
func (r Recipe) Popular() bool {
	return r.VoteCount >= popularMinVotes && r.AverageRating() >= popularMinAverage
}

// Category groups recipes for browsing. Icon is an opaque presentational
// handle; it is never persisted in the primary store and is rebound from the
// static dataset when categories are materialised from Firestore.
type Category struct {
	ID          string   `firestore:"-" json:"id"`
	Title       string   `firestore:"title" json:"title"`
	Description string   `firestore:"description" json:"description"`
	Icon        string   `firestore:"-" json:"icon,omitempty"`
	RecipeIDs   []string `firestore:"recipeIds" json:"recipeIds"`
}

// DataSource identifies which backing store produced the working dataset.
type DataSource string

const (
	// SourcePrimary indicates the dataset was read from the primary store.
	SourcePrimary DataSource = "primary"
	// SourceFallback indicates the embedded static dataset is in use.
	SourceFallback DataSource = "fallback"
)

// Catalog is the resolved working dataset: both collections always originate
// from the same source, never a mix.
type Catalog struct {
	Recipes    map[string]*Recipe
	Categories map[string]*Category
	Source     DataSource
}

// GenerationKind selects the backend behaviour for a generation request.
type GenerationKind string

const (
	// GenerationText forwards the prompt to the chat backend with the
	// conversational persona.
	GenerationText GenerationKind = "text"
	// GenerationImage builds a deterministic image URL from the prompt.
	GenerationImage GenerationKind = "image"
	// GenerationSuggestion asks the chat backend for a prompt-improvement tip.
	GenerationSuggestion GenerationKind = "suggestion"
)

// Valid reports whether the kind is one of the supported generation kinds.
func (k GenerationKind) Valid() bool {
	switch k {
	case GenerationText, GenerationImage, GenerationSuggestion:
		return true
	}
	return false
}
