package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/prompt-factory/api/internal/domain"
)

const testImageBase = "https://image.example.test/prompt/"

func newTestClient(upstreamURL string, timeout time.Duration, key string) *Client {
	return NewClient(upstreamURL, "deepseek-chat", testImageBase, timeout, StaticKey(key))
}

func chatHandler(t *testing.T, handle func(w http.ResponseWriter, body map[string]any)) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request body: %v", err)
			return
		}
		handle(w, body)
	}
}

func writeChatResult(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
}

func TestGenerateImageBuildsURL(t *testing.T) {
	client := newTestClient("http://unused.invalid", time.Second, "")

	result, err := client.Generate(context.Background(), "um dragão majestoso", domain.GenerationImage)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasPrefix(result, testImageBase) {
		t.Errorf("result %q does not start with image base", result)
	}
	if strings.Contains(result, " ") {
		t.Errorf("result %q contains unescaped spaces", result)
	}
}

func TestGenerateTextSendsPersonaAndPrompt(t *testing.T) {
	var gotAuth string
	var gotMessages []any
	inner := chatHandler(t, func(w http.ResponseWriter, body map[string]any) {
		gotMessages = body["messages"].([]any)
		writeChatResult(w, "  Aqui estão 5 ideias! 🚀  ")
	})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		inner(w, r)
	}))
	defer server.Close()

	client := newTestClient(server.URL, time.Second, "sk-test")
	result, err := client.Generate(context.Background(), "Cria uma lista de 5 ideias.", domain.GenerationText)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result != "Aqui estão 5 ideias! 🚀" {
		t.Errorf("result = %q", result)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("authorization header = %q", gotAuth)
	}
	if len(gotMessages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(gotMessages))
	}
	system := gotMessages[0].(map[string]any)
	if system["role"] != "system" || !strings.Contains(system["content"].(string), "assistente de IA") {
		t.Errorf("unexpected system message: %v", system)
	}
	user := gotMessages[1].(map[string]any)
	if user["content"] != "Cria uma lista de 5 ideias." {
		t.Errorf("user message = %v", user["content"])
	}
}

func TestGenerateSuggestionWrapsPrompt(t *testing.T) {
	var userContent string
	server := httptest.NewServer(chatHandler(t, func(w http.ResponseWriter, body map[string]any) {
		messages := body["messages"].([]any)
		userContent = messages[1].(map[string]any)["content"].(string)
		writeChatResult(w, "Experimenta ser mais específico.")
	}))
	defer server.Close()

	client := newTestClient(server.URL, time.Second, "sk-test")
	if _, err := client.Generate(context.Background(), "escreve um poema", domain.GenerationSuggestion); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(userContent, `"escreve um poema"`) {
		t.Errorf("suggestion message %q does not embed the original prompt", userContent)
	}
	if !strings.Contains(userContent, "dica") {
		t.Errorf("suggestion message %q does not ask for a tip", userContent)
	}
}

func TestGenerateWithoutKeyReturnsConfigMissing(t *testing.T) {
	client := newTestClient("http://unused.invalid", time.Second, "")

	_, err := client.Generate(context.Background(), "olá", domain.GenerationText)
	if !errors.Is(err, ErrConfigMissing) {
		t.Fatalf("expected ErrConfigMissing, got %v", err)
	}
}

func TestGenerateTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL, 50*time.Millisecond, "sk-test")
	_, err := client.Generate(context.Background(), "olá", domain.GenerationText)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestGenerateUpstreamErrorVariants(t *testing.T) {
	cases := []struct {
		name        string
		status      int
		body        string
		contentType string
		wantMessage string
	}{
		{
			name:        "nested error object",
			status:      http.StatusUnauthorized,
			body:        `{"error":{"message":"invalid api key","type":"auth"}}`,
			contentType: "application/json",
			wantMessage: "invalid api key",
		},
		{
			name:        "string error field",
			status:      http.StatusTooManyRequests,
			body:        `{"error":"rate limited"}`,
			contentType: "application/json",
			wantMessage: "rate limited",
		},
		{
			name:        "plain text body",
			status:      http.StatusBadGateway,
			body:        "upstream exploded",
			contentType: "text/plain",
			wantMessage: "upstream exploded",
		},
		{
			name:        "unparseable json body",
			status:      http.StatusInternalServerError,
			body:        `{"weird":true}`,
			contentType: "application/json",
			wantMessage: "upstream request failed with status 500",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tc.contentType)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := newTestClient(server.URL, time.Second, "sk-test")
			_, err := client.Generate(context.Background(), "olá", domain.GenerationText)

			var upstreamErr *UpstreamError
			if !errors.As(err, &upstreamErr) {
				t.Fatalf("expected UpstreamError, got %v", err)
			}
			if upstreamErr.Status != tc.status {
				t.Errorf("status = %d, want %d", upstreamErr.Status, tc.status)
			}
			if upstreamErr.Message != tc.wantMessage {
				t.Errorf("message = %q, want %q", upstreamErr.Message, tc.wantMessage)
			}
		})
	}
}

func TestGenerateUpstreamErrorTruncatesOnRuneBoundary(t *testing.T) {
	// 511 bytes of filler followed by a two-byte rune straddling the 512-byte
	// truncation point.
	body := strings.Repeat("a", 511) + "é e mais contexto"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	client := newTestClient(server.URL, time.Second, "sk-test")
	_, err := client.Generate(context.Background(), "olá", domain.GenerationText)

	var upstreamErr *UpstreamError
	if !errors.As(err, &upstreamErr) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if !utf8.ValidString(upstreamErr.Message) {
		t.Fatalf("message is not valid UTF-8: %q", upstreamErr.Message)
	}
	if want := strings.Repeat("a", 511); upstreamErr.Message != want {
		t.Errorf("message = %q, want the 511-byte prefix", upstreamErr.Message)
	}
}

func TestGenerateMalformedResponse(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{name: "no choices", body: `{"choices":[]}`},
		{name: "empty content", body: `{"choices":[{"message":{"content":"   "}}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := newTestClient(server.URL, time.Second, "sk-test")
			_, err := client.Generate(context.Background(), "olá", domain.GenerationText)
			if !errors.Is(err, ErrMalformedResponse) {
				t.Fatalf("expected ErrMalformedResponse, got %v", err)
			}
		})
	}
}

func TestGenerateStripsMarkup(t *testing.T) {
	server := httptest.NewServer(chatHandler(t, func(w http.ResponseWriter, body map[string]any) {
		writeChatResult(w, `<b>Olá</b> & bem-vindo<script>alert(1)</script>`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, time.Second, "sk-test")
	result, err := client.Generate(context.Background(), "olá", domain.GenerationText)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if strings.Contains(result, "<") || strings.Contains(result, "script") {
		t.Errorf("result %q still contains markup", result)
	}
	if !strings.Contains(result, "Olá & bem-vindo") {
		t.Errorf("result %q lost legitimate text", result)
	}
}

func TestGenerateEmptyPromptRejected(t *testing.T) {
	client := newTestClient("http://unused.invalid", time.Second, "sk-test")
	if _, err := client.Generate(context.Background(), "   ", domain.GenerationText); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("expected ErrEmptyPrompt, got %v", err)
	}
}

func TestGenerateUnsupportedKind(t *testing.T) {
	client := newTestClient("http://unused.invalid", time.Second, "sk-test")
	if _, err := client.Generate(context.Background(), "olá", domain.GenerationKind("video")); !errors.Is(err, ErrUnsupportedKind) {
		t.Fatalf("expected ErrUnsupportedKind, got %v", err)
	}
}
