package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 45 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultGenerationBaseURL   = "https://api.deepseek.com"
	defaultGenerationModel     = "deepseek-chat"
	defaultGenerationTimeout   = 31 * time.Second
	defaultGenerationSlowAfter = 4 * time.Second
	defaultImageBaseURL        = "https://image.pollinations.ai/prompt/"
	defaultSessionTTL          = 2 * time.Hour
	defaultSessionSweep        = 10 * time.Minute
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server     ServerConfig
	Firestore  FirestoreConfig
	Generation GenerationConfig
	Image      ImageConfig
	Sessions   SessionConfig
	Events     EventsConfig
	Secrets    SecretsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores primary data store parameters. An empty ProjectID
// means the primary store is not configured and the catalog runs on the
// embedded fallback dataset.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// Configured reports whether a primary store connection should be attempted.
func (c FirestoreConfig) Configured() bool {
	return strings.TrimSpace(c.ProjectID) != "" || strings.TrimSpace(c.EmulatorHost) != ""
}

// GenerationConfig defines the upstream chat-completions provider. APIKey may
// be a literal value or a secret:// reference resolved at load time; it is
// permitted to be empty — image generation works without it and text
// requests fail with a configuration error.
type GenerationConfig struct {
	BaseURL   string
	Model     string
	APIKey    string
	Timeout   time.Duration
	SlowAfter time.Duration
}

// ImageConfig points at the image generation service used for image recipes.
type ImageConfig struct {
	BaseURL string
}

// SessionConfig controls the in-memory prompt session store.
type SessionConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// EventsConfig enables optional Pub/Sub fan-out of rating events.
type EventsConfig struct {
	ProjectID string
	Topic     string
}

// Enabled reports whether rating events should be published.
func (c EventsConfig) Enabled() bool {
	return strings.TrimSpace(c.Topic) != ""
}

// SecretsConfig configures the Secret Manager fetcher.
type SecretsConfig struct {
	ProjectID    string
	FallbackPath string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap supplies explicit values taking precedence over every other source.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading the process environment, mainly for tests.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver installs the resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		if resolver != nil {
			o.secret = resolver
		}
	}
}

// Load builds the Config from dotenv < OS env < explicit map precedence,
// resolving secret references through the configured resolver.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "PF_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "PF_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "PF_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "PF_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "PF_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "PF_FIRESTORE_EMULATOR_HOST", ""),
		},
		Generation: GenerationConfig{
			BaseURL:   stringWithDefault(lookup, "PF_GENERATION_BASE_URL", defaultGenerationBaseURL),
			Model:     stringWithDefault(lookup, "PF_GENERATION_MODEL", defaultGenerationModel),
			APIKey:    stringWithDefault(lookup, "PF_GENERATION_API_KEY", ""),
			Timeout:   durationWithDefault(lookup, "PF_GENERATION_TIMEOUT", defaultGenerationTimeout),
			SlowAfter: durationWithDefault(lookup, "PF_GENERATION_SLOW_AFTER", defaultGenerationSlowAfter),
		},
		Image: ImageConfig{
			BaseURL: stringWithDefault(lookup, "PF_IMAGE_BASE_URL", defaultImageBaseURL),
		},
		Sessions: SessionConfig{
			TTL:           durationWithDefault(lookup, "PF_SESSION_TTL", defaultSessionTTL),
			SweepInterval: durationWithDefault(lookup, "PF_SESSION_SWEEP_INTERVAL", defaultSessionSweep),
		},
		Events: EventsConfig{
			ProjectID: stringWithDefault(lookup, "PF_EVENTS_PROJECT_ID", ""),
			Topic:     stringWithDefault(lookup, "PF_EVENTS_TOPIC", ""),
		},
		Secrets: SecretsConfig{
			ProjectID:    stringWithDefault(lookup, "PF_SECRETS_PROJECT_ID", ""),
			FallbackPath: stringWithDefault(lookup, "PF_SECRETS_FALLBACK_PATH", ""),
		},
	}

	if cfg.Generation.APIKey != "" {
		resolved, err := resolveSecret(ctx, cfg.Generation.APIKey, options.secret)
		if err != nil {
			return Config{}, err
		}
		cfg.Generation.APIKey = resolved
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

const secretScheme = "secret://"

func isSecretReference(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), secretScheme)
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !isSecretReference(value) {
		return value, nil
	}
	if resolver == nil {
		return "", &SecretError{Ref: value, Err: errSecretResolverNotConfigured}
	}
	resolved, err := resolver.ResolveSecret(ctx, strings.TrimSpace(value))
	if err != nil {
		return "", &SecretError{Ref: value, Err: err}
	}
	return resolved, nil
}

func validateConfig(cfg Config) error {
	var missing []string
	if strings.TrimSpace(cfg.Server.Port) == "" {
		missing = append(missing, "server.port")
	}
	if strings.TrimSpace(cfg.Generation.BaseURL) == "" {
		missing = append(missing, "generation.base_url")
	}
	if strings.TrimSpace(cfg.Generation.Model) == "" {
		missing = append(missing, "generation.model")
	}
	if cfg.Generation.Timeout <= 0 {
		missing = append(missing, "generation.timeout")
	}
	if strings.TrimSpace(cfg.Image.BaseURL) == "" {
		missing = append(missing, "image.base_url")
	}
	if cfg.Sessions.TTL <= 0 {
		missing = append(missing, "sessions.ttl")
	}
	if cfg.Events.Enabled() && strings.TrimSpace(cfg.Events.ProjectID) == "" && strings.TrimSpace(cfg.Firestore.ProjectID) == "" {
		missing = append(missing, "events.project_id")
	}
	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
