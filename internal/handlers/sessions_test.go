package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prompt-factory/api/internal/services"
)

func createSession(t *testing.T, stack *testStack) services.Session {
	t.Helper()
	rr := stack.do(t, http.MethodPost, "/api/v1/sessions", "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("create session status = %d, body %s", rr.Code, rr.Body.String())
	}
	var session services.Session
	decodeBody(t, rr, &session)
	if !strings.HasPrefix(session.ID, "ses_") {
		t.Fatalf("session id = %q", session.ID)
	}
	return session
}

func sessionPath(id string, parts ...string) string {
	if len(parts) == 0 {
		return "/api/v1/sessions/" + id
	}
	return "/api/v1/sessions/" + id + "/" + strings.Join(parts, "/")
}

func TestSessionFlowOverHTTP(t *testing.T) {
	stack := newTestStack(t, nil)
	session := createSession(t, stack)

	rr := stack.do(t, http.MethodPost, sessionPath(session.ID, "category"), `{"categoryId":"gerar-ideias"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("select category status = %d, body %s", rr.Code, rr.Body.String())
	}
	decodeBody(t, rr, &session)
	if session.CategoryID != "gerar-ideias" {
		t.Errorf("categoryId = %q", session.CategoryID)
	}

	rr = stack.do(t, http.MethodPost, sessionPath(session.ID, "recipe"), `{"recipeId":"ideias-projeto"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("select recipe status = %d, body %s", rr.Code, rr.Body.String())
	}
	decodeBody(t, rr, &session)
	if session.RecipeID != "ideias-projeto" {
		t.Errorf("recipeId = %q", session.RecipeID)
	}
	if session.Selections["[numero]"] != "3" {
		t.Errorf("seeded selections = %v", session.Selections)
	}

	rr = stack.do(t, http.MethodPut, sessionPath(session.ID, "selections"), `{"selections":{"[numero]":"5","[projeto]":"artigo de blog"}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update selections status = %d, body %s", rr.Code, rr.Body.String())
	}

	rr = stack.do(t, http.MethodGet, sessionPath(session.ID, "prompt"), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("prompt status = %d", rr.Code)
	}
	var view services.PromptView
	decodeBody(t, rr, &view)
	want := "Cria uma lista de 5 ideias criativas para um novo artigo de blog com um tom profissional."
	if view.Prompt != want {
		t.Errorf("prompt = %q, want %q", view.Prompt, want)
	}
	if !view.AllFieldsFilled {
		t.Error("all fields should be filled")
	}

	rr = stack.do(t, http.MethodPost, sessionPath(session.ID, "generate"), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("generate status = %d, body %s", rr.Code, rr.Body.String())
	}
	var outcome services.GenerationOutcome
	decodeBody(t, rr, &outcome)
	if outcome.Result != "resposta gerada" {
		t.Errorf("result = %q", outcome.Result)
	}
	if outcome.Kind != "text" {
		t.Errorf("kind = %q", outcome.Kind)
	}
	if outcome.Suggestion != "usa mais contexto" {
		t.Errorf("suggestion = %q", outcome.Suggestion)
	}

	rr = stack.do(t, http.MethodPost, sessionPath(session.ID, "rating"), `{"score":5}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("rating status = %d, body %s", rr.Code, rr.Body.String())
	}
	decodeBody(t, rr, &session)
	if !session.Rated {
		t.Error("session should be marked rated")
	}

	recipe, err := stack.catalog.Recipe("ideias-projeto")
	if err != nil {
		t.Fatalf("Recipe: %v", err)
	}
	if recipe.TotalScore != 33 || recipe.VoteCount != 8 {
		t.Errorf("totals = %v/%d, want 33/8", recipe.TotalScore, recipe.VoteCount)
	}
}

func TestSessionRatingConflictOverHTTP(t *testing.T) {
	stack := newTestStack(t, nil)
	session := createSession(t, stack)

	stack.do(t, http.MethodPost, sessionPath(session.ID, "recipe"), `{"recipeId":"ideias-projeto"}`)

	rr := stack.do(t, http.MethodPost, sessionPath(session.ID, "rating"), `{"score":5}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("rating before result status = %d", rr.Code)
	}
	var body map[string]any
	decodeBody(t, rr, &body)
	if body["error"] != "no_result" {
		t.Errorf("error = %v", body["error"])
	}

	if rr := stack.do(t, http.MethodPost, sessionPath(session.ID, "generate"), ""); rr.Code != http.StatusOK {
		t.Fatalf("generate status = %d", rr.Code)
	}
	if rr := stack.do(t, http.MethodPost, sessionPath(session.ID, "rating"), `{"score":4}`); rr.Code != http.StatusOK {
		t.Fatalf("first rating status = %d", rr.Code)
	}

	rr = stack.do(t, http.MethodPost, sessionPath(session.ID, "rating"), `{"score":4}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("second rating status = %d", rr.Code)
	}
	decodeBody(t, rr, &body)
	if body["error"] != "already_rated" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestSessionValidationErrorsOverHTTP(t *testing.T) {
	stack := newTestStack(t, nil)
	session := createSession(t, stack)

	cases := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "unknown session",
			method:     http.MethodGet,
			path:       sessionPath("ses_inexistente"),
			wantStatus: http.StatusNotFound,
			wantCode:   "session_not_found",
		},
		{
			name:       "unknown category",
			method:     http.MethodPost,
			path:       sessionPath(session.ID, "category"),
			body:       `{"categoryId":"inexistente"}`,
			wantStatus: http.StatusNotFound,
			wantCode:   "category_not_found",
		},
		{
			name:       "missing category id",
			method:     http.MethodPost,
			path:       sessionPath(session.ID, "category"),
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name:       "unknown recipe",
			method:     http.MethodPost,
			path:       sessionPath(session.ID, "recipe"),
			body:       `{"recipeId":"inexistente"}`,
			wantStatus: http.StatusNotFound,
			wantCode:   "recipe_not_found",
		},
		{
			name:       "selections without recipe",
			method:     http.MethodPut,
			path:       sessionPath(session.ID, "selections"),
			body:       `{"selections":{"[numero]":"5"}}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "no_recipe_selected",
		},
		{
			name:       "generate without recipe",
			method:     http.MethodPost,
			path:       sessionPath(session.ID, "generate"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "no_recipe_selected",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := stack.do(t, tc.method, tc.path, tc.body)
			if rr.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d, body %s", rr.Code, tc.wantStatus, rr.Body.String())
			}
			var body map[string]any
			decodeBody(t, rr, &body)
			if body["error"] != tc.wantCode {
				t.Errorf("error = %v, want %s", body["error"], tc.wantCode)
			}
		})
	}
}

func TestSessionSelectionKeyValidationOverHTTP(t *testing.T) {
	stack := newTestStack(t, nil)
	session := createSession(t, stack)
	stack.do(t, http.MethodPost, sessionPath(session.ID, "recipe"), `{"recipeId":"ideias-projeto"}`)

	rr := stack.do(t, http.MethodPut, sessionPath(session.ID, "selections"), `{"selections":{"[errado]":"x"}}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]any
	decodeBody(t, rr, &body)
	if body["error"] != "unknown_selection_key" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestSessionRatingOutOfRangeOverHTTP(t *testing.T) {
	stack := newTestStack(t, nil)
	session := createSession(t, stack)
	stack.do(t, http.MethodPost, sessionPath(session.ID, "recipe"), `{"recipeId":"ideias-projeto"}`)
	if rr := stack.do(t, http.MethodPost, sessionPath(session.ID, "generate"), ""); rr.Code != http.StatusOK {
		t.Fatalf("generate status = %d", rr.Code)
	}

	for _, score := range []int{0, 6, -1} {
		rr := stack.do(t, http.MethodPost, sessionPath(session.ID, "rating"), fmt.Sprintf(`{"score":%d}`, score))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("score %d status = %d", score, rr.Code)
		}
	}
}

func TestSessionBodyTooLarge(t *testing.T) {
	stack := newTestStack(t, nil)
	session := createSession(t, stack)

	payload := fmt.Sprintf(`{"categoryId":"%s"}`, strings.Repeat("a", maxRequestBodySize))
	req := httptest.NewRequest(http.MethodPost, sessionPath(session.ID, "category"), strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	stack.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", rr.Code)
	}
}
