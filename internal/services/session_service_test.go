package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prompt-factory/api/internal/domain"
)

type genCall struct {
	prompt string
	kind   domain.GenerationKind
}

type fakeGenerator struct {
	mu      sync.Mutex
	calls   []genCall
	results map[domain.GenerationKind]string
	errs    map[domain.GenerationKind]error
	// block, when non-nil, makes non-suggestion calls wait until released.
	block chan struct{}
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string, kind domain.GenerationKind) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, genCall{prompt: prompt, kind: kind})
	block := g.block
	result := g.results[kind]
	err := g.errs[kind]
	g.mu.Unlock()

	if block != nil && kind != domain.GenerationSuggestion {
		<-block
	}
	return result, err
}

func (g *fakeGenerator) callKinds() []domain.GenerationKind {
	g.mu.Lock()
	defer g.mu.Unlock()
	kinds := make([]domain.GenerationKind, len(g.calls))
	for i, call := range g.calls {
		kinds[i] = call.kind
	}
	return kinds
}

type sessionFixture struct {
	sessions  SessionService
	catalog   CatalogService
	generator *fakeGenerator
	clock     *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newSessionFixture(t *testing.T, generator *fakeGenerator) *sessionFixture {
	t.Helper()
	if generator == nil {
		generator = &fakeGenerator{results: map[domain.GenerationKind]string{
			domain.GenerationText:       "resposta gerada",
			domain.GenerationImage:      "https://image.example.test/prompt/x",
			domain.GenerationSuggestion: "usa mais contexto",
		}}
	}

	catalog := newCatalog(t, nil)
	ratings := newRating(t, catalog, nil, nil)
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}

	sessions, err := NewSessionService(SessionServiceDeps{
		Catalog:       catalog,
		Generator:     generator,
		Ratings:       ratings,
		TTL:           time.Hour,
		SweepInterval: time.Hour,
		SlowAfter:     5 * time.Millisecond,
		Clock:         clock.Now,
	})
	if err != nil {
		t.Fatalf("NewSessionService: %v", err)
	}
	t.Cleanup(sessions.Close)

	return &sessionFixture{sessions: sessions, catalog: catalog, generator: generator, clock: clock}
}

func (f *sessionFixture) createWithRecipe(t *testing.T, recipeID string) Session {
	t.Helper()
	ctx := context.Background()
	session, err := f.sessions.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	session, err = f.sessions.SelectRecipe(ctx, session.ID, recipeID)
	if err != nil {
		t.Fatalf("SelectRecipe: %v", err)
	}
	return session
}

func TestSessionCreateAndGet(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()

	session, err := f.sessions.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasPrefix(session.ID, "ses_") {
		t.Errorf("session id = %q, want ses_ prefix", session.ID)
	}

	fetched, err := f.sessions.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fetched.ID != session.ID {
		t.Errorf("fetched id = %q", fetched.ID)
	}

	if _, err := f.sessions.Get(ctx, "ses_desconhecida"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionExpiry(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()

	session, err := f.sessions.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	f.clock.Advance(2 * time.Hour)
	if _, err := f.sessions.Get(ctx, session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expired session should be gone, got %v", err)
	}
}

func TestSessionSelectCategoryAndRecipe(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()

	session, err := f.sessions.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := f.sessions.SelectCategory(ctx, session.ID, "inexistente"); !errors.Is(err, ErrCategoryNotFound) {
		t.Fatalf("expected ErrCategoryNotFound, got %v", err)
	}

	session, err = f.sessions.SelectCategory(ctx, session.ID, "gerar-ideias")
	if err != nil {
		t.Fatalf("SelectCategory: %v", err)
	}
	if session.CategoryID != "gerar-ideias" {
		t.Errorf("category = %q", session.CategoryID)
	}

	session, err = f.sessions.SelectRecipe(ctx, session.ID, "ideias-projeto")
	if err != nil {
		t.Fatalf("SelectRecipe: %v", err)
	}
	// Selections seed to each placeholder's first option.
	want := map[string]string{"[numero]": "3", "[projeto]": "podcast", "[tom]": "profissional"}
	for key, value := range want {
		if session.Selections[key] != value {
			t.Errorf("selection %s = %q, want %q", key, session.Selections[key], value)
		}
	}
}

func TestSessionClearRecipeKeepsCategory(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()
	session := f.createWithRecipe(t, "ideias-projeto")

	session, err := f.sessions.ClearRecipe(ctx, session.ID)
	if err != nil {
		t.Fatalf("ClearRecipe: %v", err)
	}
	if session.RecipeID != "" || session.Selections != nil {
		t.Errorf("recipe state not cleared: %+v", session)
	}
	if session.CategoryID != "gerar-ideias" {
		t.Errorf("category = %q, want preserved", session.CategoryID)
	}
}

func TestSessionUpdateSelectionsAndPrompt(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()
	session := f.createWithRecipe(t, "ideias-projeto")

	if _, err := f.sessions.UpdateSelections(ctx, session.ID, map[string]string{"[errado]": "x"}); !errors.Is(err, ErrUnknownSelectionKey) {
		t.Fatalf("expected ErrUnknownSelectionKey, got %v", err)
	}

	if _, err := f.sessions.UpdateSelections(ctx, session.ID, map[string]string{"[numero]": "5", "[projeto]": "artigo de blog"}); err != nil {
		t.Fatalf("UpdateSelections: %v", err)
	}

	view, err := f.sessions.Prompt(ctx, session.ID)
	if err != nil {
		t.Fatalf("Prompt: %v", err)
	}
	want := "Cria uma lista de 5 ideias criativas para um novo artigo de blog com um tom profissional."
	if view.Prompt != want {
		t.Errorf("prompt = %q, want %q", view.Prompt, want)
	}
	if !view.AllFieldsFilled {
		t.Error("all fields are filled")
	}
	if len(view.Segments) == 0 {
		t.Error("segments missing")
	}
}

func TestSessionGenerateRequiresCompleteSelections(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()
	session := f.createWithRecipe(t, "ideias-projeto")

	if _, err := f.sessions.UpdateSelections(ctx, session.ID, map[string]string{"[tom]": ""}); err != nil {
		t.Fatalf("UpdateSelections: %v", err)
	}
	if _, err := f.sessions.Generate(ctx, session.ID); !errors.Is(err, ErrSelectionsIncomplete) {
		t.Fatalf("expected ErrSelectionsIncomplete, got %v", err)
	}
}

func TestSessionGenerateText(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()
	session := f.createWithRecipe(t, "ideias-projeto")

	outcome, err := f.sessions.Generate(ctx, session.ID)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if outcome.Result != "resposta gerada" || outcome.Kind != "text" {
		t.Errorf("outcome = %+v", outcome)
	}
	if outcome.Suggestion != "usa mais contexto" {
		t.Errorf("suggestion = %q", outcome.Suggestion)
	}

	fetched, err := f.sessions.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fetched.Result != outcome.Result || fetched.Generating || fetched.TakingLong {
		t.Errorf("session after generate = %+v", fetched)
	}

	kinds := f.generator.callKinds()
	if len(kinds) != 2 || kinds[0] != domain.GenerationText || kinds[1] != domain.GenerationSuggestion {
		t.Errorf("generator calls = %v", kinds)
	}
}

func TestSessionGenerateImageSkipsSuggestion(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()
	session := f.createWithRecipe(t, "imagem-fantasia")

	outcome, err := f.sessions.Generate(ctx, session.ID)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if outcome.Kind != "image" || outcome.Suggestion != "" {
		t.Errorf("outcome = %+v", outcome)
	}

	kinds := f.generator.callKinds()
	if len(kinds) != 1 || kinds[0] != domain.GenerationImage {
		t.Errorf("generator calls = %v", kinds)
	}
}

func TestSessionGenerateSuggestionFailsOpen(t *testing.T) {
	generator := &fakeGenerator{
		results: map[domain.GenerationKind]string{domain.GenerationText: "resposta"},
		errs:    map[domain.GenerationKind]error{domain.GenerationSuggestion: errors.New("indisponível")},
	}
	f := newSessionFixture(t, generator)
	session := f.createWithRecipe(t, "ideias-projeto")

	outcome, err := f.sessions.Generate(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if outcome.Result != "resposta" {
		t.Errorf("result = %q", outcome.Result)
	}
	if outcome.Suggestion != suggestionFallback {
		t.Errorf("suggestion = %q, want fallback copy", outcome.Suggestion)
	}
}

func TestSessionGenerateErrorClearsBusyState(t *testing.T) {
	generator := &fakeGenerator{
		errs: map[domain.GenerationKind]error{domain.GenerationText: errors.New("upstream down")},
	}
	f := newSessionFixture(t, generator)
	ctx := context.Background()
	session := f.createWithRecipe(t, "ideias-projeto")

	if _, err := f.sessions.Generate(ctx, session.ID); err == nil {
		t.Fatal("expected generation error")
	}

	fetched, err := f.sessions.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fetched.Generating || fetched.TakingLong || fetched.Result != "" {
		t.Errorf("session after failed generate = %+v", fetched)
	}
}

func TestSessionStaleResultDiscarded(t *testing.T) {
	generator := &fakeGenerator{
		results: map[domain.GenerationKind]string{
			domain.GenerationText:       "resultado antigo",
			domain.GenerationSuggestion: "dica",
		},
		block: make(chan struct{}),
	}
	f := newSessionFixture(t, generator)
	ctx := context.Background()
	session := f.createWithRecipe(t, "ideias-projeto")

	outcomes := make(chan GenerationOutcome, 1)
	errs := make(chan error, 1)
	go func() {
		outcome, err := f.sessions.Generate(ctx, session.ID)
		outcomes <- outcome
		errs <- err
	}()

	// Wait until the generation is marked in flight, then move the session on.
	deadline := time.After(time.Second)
	for {
		fetched, err := f.sessions.Get(ctx, session.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if fetched.Generating {
			break
		}
		select {
		case <-deadline:
			t.Fatal("generation never started")
		case <-time.After(time.Millisecond):
		}
	}
	if _, err := f.sessions.SelectRecipe(ctx, session.ID, "imagem-fantasia"); err != nil {
		t.Fatalf("SelectRecipe: %v", err)
	}
	close(generator.block)

	outcome := <-outcomes
	if err := <-errs; err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !outcome.Stale {
		t.Error("outcome should be marked stale")
	}

	fetched, err := f.sessions.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fetched.Result != "" {
		t.Errorf("stale result leaked into session: %q", fetched.Result)
	}
}

func TestSessionTakingLongFlag(t *testing.T) {
	generator := &fakeGenerator{
		results: map[domain.GenerationKind]string{
			domain.GenerationText:       "resultado",
			domain.GenerationSuggestion: "dica",
		},
		block: make(chan struct{}),
	}
	f := newSessionFixture(t, generator)
	ctx := context.Background()
	session := f.createWithRecipe(t, "ideias-projeto")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.sessions.Generate(ctx, session.ID)
	}()

	deadline := time.After(time.Second)
	for {
		fetched, err := f.sessions.Get(ctx, session.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if fetched.TakingLong {
			break
		}
		select {
		case <-deadline:
			t.Fatal("taking-long flag never set")
		case <-time.After(time.Millisecond):
		}
	}

	close(generator.block)
	<-done

	fetched, err := f.sessions.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fetched.TakingLong {
		t.Error("taking-long flag must clear on completion")
	}
}

func TestSessionRatingGuard(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()
	session := f.createWithRecipe(t, "ideias-projeto")

	if _, err := f.sessions.SubmitRating(ctx, session.ID, 5); !errors.Is(err, ErrNoResult) {
		t.Fatalf("rating before a result: got %v", err)
	}

	if _, err := f.sessions.Generate(ctx, session.ID); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	rated, err := f.sessions.SubmitRating(ctx, session.ID, 5)
	if err != nil {
		t.Fatalf("SubmitRating: %v", err)
	}
	if !rated.Rated {
		t.Error("session should be marked rated")
	}

	if _, err := f.sessions.SubmitRating(ctx, session.ID, 4); !errors.Is(err, ErrAlreadyRated) {
		t.Fatalf("second rating: got %v", err)
	}

	recipe, err := f.catalog.Recipe("ideias-projeto")
	if err != nil {
		t.Fatalf("Recipe: %v", err)
	}
	if recipe.TotalScore != 33 || recipe.VoteCount != 8 {
		t.Errorf("totals = (%v, %d), want (33, 8)", recipe.TotalScore, recipe.VoteCount)
	}

	// A fresh result resets the guard.
	if _, err := f.sessions.Generate(ctx, session.ID); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := f.sessions.SubmitRating(ctx, session.ID, 3); err != nil {
		t.Fatalf("rating after new result: %v", err)
	}

	// Selecting a new recipe also resets it, and clears the old result.
	session, err = f.sessions.SelectRecipe(ctx, session.ID, "imagem-fantasia")
	if err != nil {
		t.Fatalf("SelectRecipe: %v", err)
	}
	if session.Rated || session.Result != "" {
		t.Errorf("rating state not reset: %+v", session)
	}
}

func TestSessionOperationsNeedRecipe(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()

	session, err := f.sessions.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := f.sessions.Prompt(ctx, session.ID); !errors.Is(err, ErrNoRecipeSelected) {
		t.Errorf("Prompt: got %v", err)
	}
	if _, err := f.sessions.Generate(ctx, session.ID); !errors.Is(err, ErrNoRecipeSelected) {
		t.Errorf("Generate: got %v", err)
	}
	if _, err := f.sessions.UpdateSelections(ctx, session.ID, map[string]string{"[x]": "y"}); !errors.Is(err, ErrNoRecipeSelected) {
		t.Errorf("UpdateSelections: got %v", err)
	}
	if _, err := f.sessions.SubmitRating(ctx, session.ID, 5); !errors.Is(err, ErrNoRecipeSelected) {
		t.Errorf("SubmitRating: got %v", err)
	}
}
