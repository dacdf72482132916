package handlers

import (
	"net/http"
	"time"

	"github.com/prompt-factory/api/internal/services"
)

// BuildInfo carries deployment metadata surfaced on health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	build   BuildInfo
	catalog services.CatalogService
	clock   func() time.Time
}

// HealthOption customises health handler construction.
type HealthOption func(*HealthHandlers)

// WithHealthBuildInfo attaches build metadata to health payloads.
func WithHealthBuildInfo(build BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = build
	}
}

// WithHealthCatalog wires the catalog service into the readiness probe.
func WithHealthCatalog(catalog services.CatalogService) HealthOption {
	return func(h *HealthHandlers) {
		h.catalog = catalog
	}
}

// WithHealthClock overrides the time source, mainly for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs health handlers with the provided options.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	handlers := &HealthHandlers{
		clock: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(handlers)
		}
	}
	if handlers.build.StartedAt.IsZero() {
		handlers.build.StartedAt = handlers.clock()
	}
	return handlers
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	now := h.clock()
	payload := map[string]any{
		"status":    "ok",
		"uptime":    now.Sub(h.build.StartedAt).String(),
		"timestamp": now.Format(time.RFC3339),
	}
	if h.build.Version != "" {
		payload["version"] = h.build.Version
	}
	if h.build.CommitSHA != "" {
		payload["commitSha"] = h.build.CommitSHA
	}
	if h.build.Environment != "" {
		payload["environment"] = h.build.Environment
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// Readyz reports whether the service can answer catalog traffic. The catalog
// always resolves to some dataset, so readiness only degrades when the
// resolved dataset is empty.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{
		"status":    "ok",
		"timestamp": h.clock().Format(time.RFC3339),
	}
	status := http.StatusOK

	if h.catalog != nil {
		payload["source"] = string(h.catalog.Source())
		if len(h.catalog.Recipes()) == 0 {
			payload["status"] = "degraded"
			payload["details"] = []string{"catalog: no recipes resolved"}
			status = http.StatusServiceUnavailable
		}
	}

	writeJSONResponse(w, status, payload)
}
