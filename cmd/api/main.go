package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/prompt-factory/api/internal/generation"
	"github.com/prompt-factory/api/internal/handlers"
	"github.com/prompt-factory/api/internal/platform/config"
	"github.com/prompt-factory/api/internal/platform/events"
	pfirestore "github.com/prompt-factory/api/internal/platform/firestore"
	"github.com/prompt-factory/api/internal/platform/observability"
	"github.com/prompt-factory/api/internal/platform/secrets"
	"github.com/prompt-factory/api/internal/repositories"
	firestoreRepo "github.com/prompt-factory/api/internal/repositories/firestore"
	"github.com/prompt-factory/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
	)
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	var primaryRepo repositories.CatalogRepository
	var firestoreProvider *pfirestore.Provider
	if cfg.Firestore.Configured() {
		firestoreProvider = pfirestore.NewProvider(cfg.Firestore)
		repo, err := firestoreRepo.NewCatalogRepository(firestoreProvider)
		if err != nil {
			logger.Fatal("failed to initialise catalog repository", zap.Error(err))
		}
		primaryRepo = repo
		defer func() {
			if err := firestoreProvider.Close(); err != nil {
				logger.Warn("firestore close error", zap.Error(err))
			}
		}()
	} else {
		logger.Info("primary store not configured; serving the embedded dataset")
	}

	catalog, err := services.NewCatalogService(ctx, services.CatalogServiceDeps{
		Primary: primaryRepo,
		Logger:  logger.Named("catalog"),
	})
	if err != nil {
		logger.Fatal("failed to initialise catalog service", zap.Error(err))
	}

	var ratingSink services.RatingEventSink
	if cfg.Events.Enabled() {
		projectID := strings.TrimSpace(cfg.Events.ProjectID)
		if projectID == "" {
			projectID = strings.TrimSpace(cfg.Firestore.ProjectID)
		}
		pubsubClient, err := pubsub.NewClient(ctx, projectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()

		topic := pubsubClient.Topic(cfg.Events.Topic)
		defer topic.Stop()

		publisher, err := events.NewRatingPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise rating publisher", zap.Error(err))
		}
		ratingSink = events.NewRatingSink(publisher, logger.Named("events"))
	}

	ratings, err := services.NewRatingService(services.RatingServiceDeps{
		Catalog: catalog,
		Primary: primaryRepo,
		Events:  ratingSink,
		Logger:  logger.Named("ratings"),
	})
	if err != nil {
		logger.Fatal("failed to initialise rating service", zap.Error(err))
	}

	generator := generation.NewClient(
		cfg.Generation.BaseURL,
		cfg.Generation.Model,
		cfg.Image.BaseURL,
		cfg.Generation.Timeout,
		generation.StaticKey(cfg.Generation.APIKey),
		generation.WithLogger(logger.Named("generation")),
	)

	sessions, err := services.NewSessionService(services.SessionServiceDeps{
		Catalog:       catalog,
		Generator:     generator,
		Ratings:       ratings,
		Logger:        logger.Named("sessions"),
		TTL:           cfg.Sessions.TTL,
		SweepInterval: cfg.Sessions.SweepInterval,
		SlowAfter:     cfg.Generation.SlowAfter,
	})
	if err != nil {
		logger.Fatal("failed to initialise session service", zap.Error(err))
	}
	defer sessions.Close()

	projectID := strings.TrimSpace(cfg.Firestore.ProjectID)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfoFromEnv(startedAt)),
		handlers.WithHealthCatalog(catalog),
	)

	// The request deadline must outlive a text generation plus its suggestion
	// follow-up, each bounded by the generation timeout.
	requestTimeout := 2*cfg.Generation.Timeout + 3*time.Second

	router := handlers.NewRouter(
		handlers.WithRequestTimeout(requestTimeout),
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCatalogRoutes(handlers.NewCatalogHandlers(catalog).Routes),
		handlers.WithGenerateRoutes(handlers.NewGenerateHandlers(generator).Routes),
		handlers.WithSessionRoutes(handlers.NewSessionHandlers(sessions).Routes),
		handlers.WithMetaRoutes(handlers.NewMetaHandlers(catalog).Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("prompt factory api listening",
			zap.String("catalog_source", string(catalog.Source())),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(os.Getenv("PF_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv("PF_BUILD_COMMIT_SHA"))
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(os.Getenv("PF_ENVIRONMENT"))
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

// newSecretFetcher reads its own settings straight from the environment
// because the fetcher has to exist before config.Load can resolve
// secret:// references.
func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
	}
	if projectID := strings.TrimSpace(os.Getenv("PF_SECRETS_PROJECT_ID")); projectID != "" {
		opts = append(opts, secrets.WithProject(projectID))
	}
	if fallback := strings.TrimSpace(os.Getenv("PF_SECRETS_FALLBACK_PATH")); fallback != "" {
		opts = append(opts, secrets.WithFallbackPath(fallback))
	}
	return secrets.NewFetcher(ctx, opts...)
}
