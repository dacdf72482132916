package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/prompt-factory/api/internal/domain"
	"github.com/prompt-factory/api/internal/repositories"
)

// RatingServiceDeps bundles collaborators required to construct a rating service.
type RatingServiceDeps struct {
	Catalog CatalogService
	// Primary persists rating increments when the catalog source is primary.
	// Nil disables remote persistence entirely.
	Primary repositories.CatalogRepository
	// Events receives applied ratings for fan-out. Optional.
	Events RatingEventSink
	Logger *zap.Logger
	// RemoteTimeout bounds the fire-and-forget primary store write.
	RemoteTimeout time.Duration
}

type ratingService struct {
	catalog       CatalogService
	primary       repositories.CatalogRepository
	events        RatingEventSink
	logger        *zap.Logger
	remoteTimeout time.Duration
}

const defaultRemoteTimeout = 10 * time.Second

// NewRatingService constructs a service applying ratings optimistically to
// the in-memory catalog with asynchronous primary-store persistence.
func NewRatingService(deps RatingServiceDeps) (RatingService, error) {
	if deps.Catalog == nil {
		return nil, errors.New("rating service: catalog is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := deps.RemoteTimeout
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}
	return &ratingService{
		catalog:       deps.Catalog,
		primary:       deps.Primary,
		events:        deps.Events,
		logger:        logger,
		remoteTimeout: timeout,
	}, nil
}

// SubmitRating applies the score to the in-memory recipe immediately. When
// the working dataset came from the primary store the increment is also sent
// there, fire-and-forget: persistence failures are logged, never surfaced,
// and the optimistic local update stands.
func (s *ratingService) SubmitRating(ctx context.Context, recipeID string, score int) (RatingResult, error) {
	recipe, err := s.catalog.ApplyRating(recipeID, score)
	if err != nil {
		return RatingResult{}, err
	}

	source := s.catalog.Source()
	persisted := false
	if source == domain.SourcePrimary && s.primary != nil {
		persisted = true
		go s.persistRemote(recipe.ID, score)
	}

	if s.events != nil {
		s.events.RatingApplied(ctx, recipe, score, source)
	}

	return RatingResult{Recipe: recipe, Persisted: persisted}, nil
}

func (s *ratingService) persistRemote(recipeID string, score int) {
	ctx, cancel := context.WithTimeout(context.Background(), s.remoteTimeout)
	defer cancel()

	if err := s.primary.IncrementRating(ctx, recipeID, score); err != nil {
		s.logger.Warn("rating persistence failed, keeping optimistic local update",
			zap.String("recipe_id", recipeID),
			zap.Int("score", score),
			zap.Error(err),
		)
	}
}
