// Package generation talks to the upstream providers that turn a finished
// prompt into a result: a chat-completions backend for text and suggestions,
// and a deterministic URL builder for images.
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/prompt-factory/api/internal/domain"
)

const (
	chatCompletionsPath = "/chat/completions"

	// Personas are product copy and stay in Portuguese, matching the audience
	// of the app.
	textPersona = "És um assistente de IA divertido e pedagógico. Responde de forma sucinta, cordial e com um toque de humor. Usa alguns emojis apropriados para tornar a conversa mais leve. No final da tua resposta, faz sempre uma ou duas questões de desenvolvimento ou reflexão sobre o tema, para incentivar o utilizador a pensar mais sobre o assunto e a continuar a experimentar. Exemplo: 'O que mais poderíamos explorar sobre este tópico? 🤔'"

	suggestionPersona = "És um especialista em IA generativa e um excelente professor para iniciantes. A tua tarefa é dar uma dica útil, curta e fácil de entender em Português. Foca-te em como o utilizador pode melhorar o prompt ou em conceitos importantes de engenharia de prompts. Usa um tom encorajador e educativo."

	defaultPersona = "You are a helpful assistant."
)

var (
	// ErrConfigMissing indicates the chat backend cannot be used because no
	// API key is configured. Image generation never needs one.
	ErrConfigMissing = errors.New("generation: api key not configured")

	// ErrTimeout indicates the upstream did not answer within the deadline.
	ErrTimeout = errors.New("generation: upstream timed out")

	// ErrMalformedResponse indicates a 2xx upstream answer without usable content.
	ErrMalformedResponse = errors.New("generation: malformed upstream response")

	// ErrEmptyPrompt indicates the caller passed a blank prompt.
	ErrEmptyPrompt = errors.New("generation: prompt is empty")

	// ErrUnsupportedKind indicates an unknown generation kind.
	ErrUnsupportedKind = errors.New("generation: unsupported kind")
)

// UpstreamError reports a non-2xx answer from the chat backend.
type UpstreamError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("generation: upstream status %d: %s", e.Status, e.Message)
}

// KeySource supplies the API key at request time, so key rotation via config
// reload or secret refresh needs no client rebuild.
type KeySource func(ctx context.Context) (string, error)

// StaticKey adapts a fixed key string to a KeySource.
func StaticKey(key string) KeySource {
	return func(context.Context) (string, error) {
		return key, nil
	}
}

// Client generates results from finished prompts.
type Client struct {
	http         *resty.Client
	baseURL      string
	model        string
	imageBaseURL string
	timeout      time.Duration
	key          KeySource
	sanitizer    *bluemonday.Policy
	logger       *zap.Logger
}

// Option customises Client construction.
type Option func(*Client)

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient injects a pre-built resty client, mainly for tests.
func WithHTTPClient(client *resty.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// NewClient constructs a generation client.
func NewClient(baseURL, model, imageBaseURL string, timeout time.Duration, key KeySource, opts ...Option) *Client {
	client := &Client{
		baseURL:      strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		model:        strings.TrimSpace(model),
		imageBaseURL: strings.TrimSpace(imageBaseURL),
		timeout:      timeout,
		key:          key,
		sanitizer:    bluemonday.StrictPolicy(),
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.http == nil {
		client.http = resty.New()
	}
	return client
}

// Generate produces the result for a finished prompt. Image prompts resolve
// locally into a URL; text and suggestion prompts call the chat backend with
// the matching persona.
func (c *Client) Generate(ctx context.Context, prompt string, kind domain.GenerationKind) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}

	if kind == domain.GenerationImage {
		return c.imageURL(prompt), nil
	}
	return c.chat(ctx, prompt, kind)
}

func (c *Client) imageURL(prompt string) string {
	base := c.imageBaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + url.PathEscape(prompt)
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) chat(ctx context.Context, prompt string, kind domain.GenerationKind) (string, error) {
	apiKey, err := c.key(ctx)
	if err != nil {
		return "", fmt.Errorf("generation: resolve api key: %w", err)
	}
	if strings.TrimSpace(apiKey) == "" {
		return "", ErrConfigMissing
	}

	persona := defaultPersona
	userMessage := prompt
	switch kind {
	case domain.GenerationText:
		persona = textPersona
	case domain.GenerationSuggestion:
		persona = suggestionPersona
		userMessage = fmt.Sprintf("O prompt do utilizador é: %q. Dá-me uma dica para melhorar este prompt ou uma dica geral relacionada com ele.", prompt)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var parsed chatResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+apiKey).
		SetBody(chatRequest{
			Model: c.model,
			Messages: []chatMessage{
				{Role: "system", Content: persona},
				{Role: "user", Content: userMessage},
			},
			Stream: false,
		}).
		SetResult(&parsed).
		Post(c.baseURL + chatCompletionsPath)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", fmt.Errorf("generation: upstream request: %w", err)
	}

	if resp.IsError() {
		message := extractErrorMessage(resp.Body())
		if message == "" {
			message = fmt.Sprintf("upstream request failed with status %d", resp.StatusCode())
		}
		c.logger.Warn("generation upstream returned error",
			zap.Int("status", resp.StatusCode()),
			zap.String("message", message),
		)
		return "", &UpstreamError{Status: resp.StatusCode(), Message: message}
	}

	if len(parsed.Choices) == 0 {
		return "", ErrMalformedResponse
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", ErrMalformedResponse
	}
	return c.sanitize(content), nil
}

// sanitize strips any markup the model may have produced. The result is
// plain text rendered verbatim by clients.
func (c *Client) sanitize(content string) string {
	cleaned := c.sanitizer.Sanitize(content)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}

const maxErrorBodyLen = 512

// extractErrorMessage digs the human-readable message out of an upstream
// error body. Providers answer with {"error":{"message":...}}, some with
// {"error":"..."}, some with plain text.
func extractErrorMessage(body []byte) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Error) > 0 {
		var detailed struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(envelope.Error, &detailed); err == nil && strings.TrimSpace(detailed.Message) != "" {
			return strings.TrimSpace(detailed.Message)
		}
		var plain string
		if err := json.Unmarshal(envelope.Error, &plain); err == nil && strings.TrimSpace(plain) != "" {
			return strings.TrimSpace(plain)
		}
	}

	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || strings.HasPrefix(trimmed, "{") {
		return ""
	}
	if len(trimmed) > maxErrorBodyLen {
		cut := maxErrorBodyLen
		for cut > 0 && !utf8.RuneStart(trimmed[cut]) {
			cut--
		}
		trimmed = trimmed[:cut]
	}
	return trimmed
}
