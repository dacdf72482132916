package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/prompt-factory/api/internal/domain"
	"github.com/prompt-factory/api/internal/prompt"
)

var (
	// ErrSessionNotFound indicates an unknown or expired session ID.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrNoRecipeSelected indicates an operation that needs a selected recipe.
	ErrNoRecipeSelected = errors.New("session: no recipe selected")
	// ErrUnknownSelectionKey indicates a selection for a key the recipe does not declare.
	ErrUnknownSelectionKey = errors.New("session: unknown selection key")
	// ErrSelectionsIncomplete indicates generation was requested before every
	// placeholder had a value.
	ErrSelectionsIncomplete = errors.New("session: selections incomplete")
	// ErrNoResult indicates a rating was submitted before any generation finished.
	ErrNoResult = errors.New("session: no result to rate")
	// ErrAlreadyRated indicates the current result has already been rated.
	ErrAlreadyRated = errors.New("session: result already rated")
)

// suggestionFallback is shown when the tip request fails; the tip is a
// nice-to-have and never blocks the main result.
const suggestionFallback = "Não foi possível carregar uma dica neste momento."

const (
	sessionIDPrefix      = "ses_"
	defaultSessionTTL    = 2 * time.Hour
	defaultSweepInterval = 10 * time.Minute
	defaultSlowAfter     = 4 * time.Second
)

// SessionServiceDeps bundles collaborators required to construct a session service.
type SessionServiceDeps struct {
	Catalog   CatalogService
	Generator Generator
	Ratings   RatingService
	Logger    *zap.Logger

	// TTL bounds session idle lifetime; SweepInterval paces expiry scans.
	TTL           time.Duration
	SweepInterval time.Duration
	// SlowAfter is the delay before an in-flight generation flips the
	// session's cosmetic "taking long" flag.
	SlowAfter time.Duration

	// Clock and IDFactory are overridable for tests.
	Clock     func() time.Time
	IDFactory func() string
}

type sessionState struct {
	view      Session
	genSeq    uint64
	slowTimer *time.Timer
	touchedAt time.Time
}

type sessionService struct {
	catalog   CatalogService
	generator Generator
	ratings   RatingService
	logger    *zap.Logger

	ttl       time.Duration
	slowAfter time.Duration
	clock     func() time.Time
	newID     func() string

	mu       sync.Mutex
	sessions map[string]*sessionState

	sweepStop chan struct{}
	sweepDone chan struct{}
	closeOnce sync.Once
}

// NewSessionService constructs the in-memory session service and starts its
// expiry sweeper.
func NewSessionService(deps SessionServiceDeps) (SessionService, error) {
	if deps.Catalog == nil {
		return nil, errors.New("session service: catalog is required")
	}
	if deps.Generator == nil {
		return nil, errors.New("session service: generator is required")
	}
	if deps.Ratings == nil {
		return nil, errors.New("session service: ratings is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := deps.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	sweep := deps.SweepInterval
	if sweep <= 0 {
		sweep = defaultSweepInterval
	}
	slowAfter := deps.SlowAfter
	if slowAfter <= 0 {
		slowAfter = defaultSlowAfter
	}
	clock := deps.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	newID := deps.IDFactory
	if newID == nil {
		newID = func() string {
			return sessionIDPrefix + strings.ToLower(ulid.Make().String())
		}
	}

	service := &sessionService{
		catalog:   deps.Catalog,
		generator: deps.Generator,
		ratings:   deps.Ratings,
		logger:    logger,
		ttl:       ttl,
		slowAfter: slowAfter,
		clock:     clock,
		newID:     newID,
		sessions:  make(map[string]*sessionState),
		sweepStop: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	go service.sweepLoop(sweep)
	return service, nil
}

func (s *sessionService) Create(_ context.Context) (Session, error) {
	state := &sessionState{
		view:      Session{ID: s.newID()},
		touchedAt: s.clock(),
	}

	s.mu.Lock()
	s.sessions[state.view.ID] = state
	s.mu.Unlock()

	return copyView(state.view), nil
}

func (s *sessionService) Get(_ context.Context, sessionID string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.lookupLocked(sessionID)
	if err != nil {
		return Session{}, err
	}
	return copyView(state.view), nil
}

func (s *sessionService) SelectCategory(_ context.Context, sessionID, categoryID string) (Session, error) {
	category, err := s.catalog.Category(categoryID)
	if err != nil {
		return Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.lookupLocked(sessionID)
	if err != nil {
		return Session{}, err
	}

	state.view.CategoryID = category.ID
	s.clearRecipeLocked(state)
	return copyView(state.view), nil
}

func (s *sessionService) SelectRecipe(_ context.Context, sessionID, recipeID string) (Session, error) {
	recipe, err := s.catalog.Recipe(recipeID)
	if err != nil {
		return Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.lookupLocked(sessionID)
	if err != nil {
		return Session{}, err
	}

	state.view.RecipeID = recipe.ID
	if recipe.CategoryID != "" {
		state.view.CategoryID = recipe.CategoryID
	}
	state.view.Selections = prompt.SeedSelections(recipe.Placeholders)
	s.clearResultLocked(state)
	return copyView(state.view), nil
}

// ClearRecipe steps back to recipe selection, keeping the category.
func (s *sessionService) ClearRecipe(_ context.Context, sessionID string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.lookupLocked(sessionID)
	if err != nil {
		return Session{}, err
	}

	s.clearRecipeLocked(state)
	return copyView(state.view), nil
}

func (s *sessionService) UpdateSelections(_ context.Context, sessionID string, selections map[string]string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.lookupLocked(sessionID)
	if err != nil {
		return Session{}, err
	}
	if state.view.RecipeID == "" {
		return Session{}, ErrNoRecipeSelected
	}

	recipe, err := s.catalog.Recipe(state.view.RecipeID)
	if err != nil {
		return Session{}, err
	}

	known := make(map[string]struct{}, len(recipe.Placeholders))
	for _, p := range recipe.Placeholders {
		known[p.Key] = struct{}{}
	}
	for key := range selections {
		if _, ok := known[key]; !ok {
			return Session{}, fmt.Errorf("%w: %s", ErrUnknownSelectionKey, key)
		}
	}

	if state.view.Selections == nil {
		state.view.Selections = make(prompt.Selections, len(selections))
	}
	for key, value := range selections {
		state.view.Selections[key] = value
	}
	return copyView(state.view), nil
}

func (s *sessionService) Prompt(_ context.Context, sessionID string) (PromptView, error) {
	s.mu.Lock()
	state, err := s.lookupLocked(sessionID)
	if err != nil {
		s.mu.Unlock()
		return PromptView{}, err
	}
	if state.view.RecipeID == "" {
		s.mu.Unlock()
		return PromptView{}, ErrNoRecipeSelected
	}
	recipeID := state.view.RecipeID
	selections := copySelections(state.view.Selections)
	s.mu.Unlock()

	recipe, err := s.catalog.Recipe(recipeID)
	if err != nil {
		return PromptView{}, err
	}

	return PromptView{
		Prompt:          prompt.Render(recipe.Template, recipe.Placeholders, selections),
		Segments:        prompt.Segments(recipe.Template, recipe.Placeholders),
		AllFieldsFilled: prompt.AllFieldsFilled(recipe.Placeholders, selections),
	}, nil
}

// Generate renders the session's prompt and runs it through the generation
// backend. A result is applied to the session only if the recipe selection
// has not moved on while the request was in flight.
func (s *sessionService) Generate(ctx context.Context, sessionID string) (GenerationOutcome, error) {
	s.mu.Lock()
	state, err := s.lookupLocked(sessionID)
	if err != nil {
		s.mu.Unlock()
		return GenerationOutcome{}, err
	}
	if state.view.RecipeID == "" {
		s.mu.Unlock()
		return GenerationOutcome{}, ErrNoRecipeSelected
	}
	recipeID := state.view.RecipeID
	selections := copySelections(state.view.Selections)
	s.mu.Unlock()

	recipe, err := s.catalog.Recipe(recipeID)
	if err != nil {
		return GenerationOutcome{}, err
	}
	if !prompt.AllFieldsFilled(recipe.Placeholders, selections) {
		return GenerationOutcome{}, ErrSelectionsIncomplete
	}
	finalPrompt := prompt.Render(recipe.Template, recipe.Placeholders, selections)

	kind := domain.GenerationText
	if recipe.Kind == domain.RecipeKindImage {
		kind = domain.GenerationImage
	}

	seq := s.beginGeneration(sessionID, recipeID)

	result, genErr := s.generator.Generate(ctx, finalPrompt, kind)

	var suggestion string
	if genErr == nil && kind == domain.GenerationText {
		suggestion = s.fetchSuggestion(ctx, finalPrompt)
	}

	return s.finishGeneration(sessionID, recipeID, seq, result, string(kind), suggestion, genErr)
}

func (s *sessionService) SubmitRating(ctx context.Context, sessionID string, score int) (Session, error) {
	s.mu.Lock()
	state, err := s.lookupLocked(sessionID)
	if err != nil {
		s.mu.Unlock()
		return Session{}, err
	}
	switch {
	case state.view.RecipeID == "":
		s.mu.Unlock()
		return Session{}, ErrNoRecipeSelected
	case state.view.Result == "":
		s.mu.Unlock()
		return Session{}, ErrNoResult
	case state.view.Rated:
		s.mu.Unlock()
		return Session{}, ErrAlreadyRated
	}
	recipeID := state.view.RecipeID
	s.mu.Unlock()

	if _, err := s.ratings.SubmitRating(ctx, recipeID, score); err != nil {
		return Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	state, err = s.lookupLocked(sessionID)
	if err != nil {
		return Session{}, err
	}
	// Only guard the same recipe/result; a switch during the rating call
	// leaves the fresh state unrated.
	if state.view.RecipeID == recipeID && state.view.Result != "" {
		state.view.Rated = true
	}
	return copyView(state.view), nil
}

// Close stops the expiry sweeper and pending slow timers.
func (s *sessionService) Close() {
	s.closeOnce.Do(func() {
		close(s.sweepStop)
		<-s.sweepDone

		s.mu.Lock()
		for _, state := range s.sessions {
			if state.slowTimer != nil {
				state.slowTimer.Stop()
			}
		}
		s.mu.Unlock()
	})
}

// beginGeneration bumps the session's generation sequence, marks it busy, and
// arms the slow timer. The returned sequence identifies this attempt.
func (s *sessionService) beginGeneration(sessionID, recipeID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[sessionID]
	if !ok {
		return 0
	}

	state.genSeq++
	seq := state.genSeq
	state.view.Generating = true
	state.view.TakingLong = false
	if state.slowTimer != nil {
		state.slowTimer.Stop()
	}
	state.slowTimer = time.AfterFunc(s.slowAfter, func() {
		s.markTakingLong(sessionID, recipeID, seq)
	})
	return seq
}

func (s *sessionService) markTakingLong(sessionID, recipeID string, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[sessionID]
	if !ok || state.genSeq != seq || state.view.RecipeID != recipeID {
		return
	}
	if state.view.Generating {
		state.view.TakingLong = true
	}
}

// finishGeneration applies the outcome unless the session moved on (recipe
// changed or a newer generation started) while the request was in flight.
func (s *sessionService) finishGeneration(sessionID, recipeID string, seq uint64, result, kind, suggestion string, genErr error) (GenerationOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[sessionID]
	if !ok {
		return GenerationOutcome{}, ErrSessionNotFound
	}

	if state.genSeq != seq || state.view.RecipeID != recipeID {
		s.logger.Info("discarding stale generation result",
			zap.String("session_id", sessionID),
			zap.String("recipe_id", recipeID),
		)
		if genErr != nil {
			return GenerationOutcome{}, genErr
		}
		return GenerationOutcome{Result: result, Kind: kind, Suggestion: suggestion, Stale: true}, nil
	}

	if state.slowTimer != nil {
		state.slowTimer.Stop()
		state.slowTimer = nil
	}
	state.view.Generating = false
	state.view.TakingLong = false

	if genErr != nil {
		return GenerationOutcome{}, genErr
	}

	state.view.Result = result
	state.view.ResultKind = kind
	state.view.Suggestion = suggestion
	state.view.Rated = false
	return GenerationOutcome{Result: result, Kind: kind, Suggestion: suggestion}, nil
}

func (s *sessionService) fetchSuggestion(ctx context.Context, finalPrompt string) string {
	suggestion, err := s.generator.Generate(ctx, finalPrompt, domain.GenerationSuggestion)
	if err != nil {
		s.logger.Warn("prompt suggestion unavailable", zap.Error(err))
		return suggestionFallback
	}
	return suggestion
}

func (s *sessionService) lookupLocked(sessionID string) (*sessionState, error) {
	state, ok := s.sessions[strings.TrimSpace(sessionID)]
	if !ok {
		return nil, ErrSessionNotFound
	}
	now := s.clock()
	if now.Sub(state.touchedAt) > s.ttl {
		if state.slowTimer != nil {
			state.slowTimer.Stop()
		}
		delete(s.sessions, state.view.ID)
		return nil, ErrSessionNotFound
	}
	state.touchedAt = now
	return state, nil
}

func (s *sessionService) clearRecipeLocked(state *sessionState) {
	state.view.RecipeID = ""
	state.view.Selections = nil
	s.clearResultLocked(state)
}

func (s *sessionService) clearResultLocked(state *sessionState) {
	// Invalidate any in-flight generation for the previous selection.
	state.genSeq++
	if state.slowTimer != nil {
		state.slowTimer.Stop()
		state.slowTimer = nil
	}
	state.view.Generating = false
	state.view.TakingLong = false
	state.view.Result = ""
	state.view.ResultKind = ""
	state.view.Suggestion = ""
	state.view.Rated = false
}

func (s *sessionService) sweepLoop(interval time.Duration) {
	defer close(s.sweepDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.sweepStop:
			return
		case <-ticker.C:
			s.sweepExpired()
		}
	}
}

func (s *sessionService) sweepExpired() {
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, state := range s.sessions {
		if now.Sub(state.touchedAt) > s.ttl {
			if state.slowTimer != nil {
				state.slowTimer.Stop()
			}
			delete(s.sessions, id)
		}
	}
}

func copyView(view Session) Session {
	view.Selections = copySelections(view.Selections)
	return view
}

func copySelections(selections prompt.Selections) prompt.Selections {
	if selections == nil {
		return nil
	}
	out := make(prompt.Selections, len(selections))
	for key, value := range selections {
		out[key] = value
	}
	return out
}
