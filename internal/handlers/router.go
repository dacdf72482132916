package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/prompt-factory/api/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	basePath       string
	requestTimeout time.Duration
	middlewares    []func(http.Handler) http.Handler
	health         *HealthHandlers

	catalog  RouteRegistrar
	generate RouteRegistrar
	sessions RouteRegistrar
	meta     RouteRegistrar
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix = "/api/v1"
	// The request budget must cover the worst generation path: a 31s text
	// result followed by a 31s suggestion follow-up.
	defaultRequestTimeout = 65 * time.Second
	errorNotFoundCode     = "route_not_found"
)

// NewRouter constructs the chi router with shared middleware and the expected route groups.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath:       defaultAPIPrefix,
		requestTimeout: defaultRequestTimeout,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.RealIP,
		middleware.Timeout(cfg.requestTimeout),
	}
	middlewares = append(middlewares, cfg.middlewares...)

	r := chi.NewRouter()

	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	for _, mw := range middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(cfg.basePath, func(api chi.Router) {
		if cfg.catalog != nil {
			cfg.catalog(api)
		} else {
			registerNotImplemented(api, "/catalog", "catalog")
			registerNotImplemented(api, "/categories", "catalog")
			registerNotImplemented(api, "/recipes/{recipeID}", "catalog")
		}
		if cfg.generate != nil {
			cfg.generate(api)
		} else {
			registerNotImplemented(api, "/generate", "generate")
		}
		mount(api, "/sessions", cfg.sessions, "sessions")
		mount(api, "/meta", cfg.meta, "meta")
	})

	return r
}

func mount(api chi.Router, path string, registrar RouteRegistrar, name string) {
	api.Route(path, func(group chi.Router) {
		if registrar != nil {
			registrar(group)
			return
		}
		handler := notImplementedHandler(name)
		group.HandleFunc("/*", handler)
		group.HandleFunc("/", handler)
		group.NotFound(handler)
		group.MethodNotAllowed(handler)
	})
}

// WithRequestTimeout overrides the whole-request deadline. The value should
// stay above the combined generation and suggestion call budget.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(cfg *routerConfig) {
		if timeout > 0 {
			cfg.requestTimeout = timeout
		}
	}
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz endpoints.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithCatalogRoutes configures the registrar responsible for catalog endpoints.
func WithCatalogRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.catalog = reg
	}
}

// WithGenerateRoutes configures the registrar responsible for the generation endpoint.
func WithGenerateRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.generate = reg
	}
}

// WithSessionRoutes configures the registrar responsible for session endpoints.
func WithSessionRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.sessions = reg
	}
}

// WithMetaRoutes configures the registrar responsible for meta endpoints.
func WithMetaRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.meta = reg
	}
}

func notImplementedHandler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
}

func registerNotImplemented(r chi.Router, path string, name string) {
	r.HandleFunc(path, notImplementedHandler(name))
}
