package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/prompt-factory/api/internal/domain"
)

const publishTimeout = 10 * time.Second

// RatingSink adapts the publisher to the best-effort sink the rating service
// expects: publishing is asynchronous and failures are only logged.
type RatingSink struct {
	publisher *RatingPublisher
	logger    *zap.Logger
	clock     func() time.Time
}

// NewRatingSink constructs a sink around the publisher.
func NewRatingSink(publisher *RatingPublisher, logger *zap.Logger) *RatingSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RatingSink{
		publisher: publisher,
		logger:    logger,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// RatingApplied publishes the rating event without blocking the caller.
func (s *RatingSink) RatingApplied(_ context.Context, recipe domain.Recipe, score int, source domain.DataSource) {
	if s == nil || s.publisher == nil {
		return
	}

	event := RatingEvent{
		RecipeID:   recipe.ID,
		CategoryID: recipe.CategoryID,
		Score:      score,
		Source:     string(source),
		RatedAt:    s.clock(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if _, err := s.publisher.PublishRating(ctx, event); err != nil {
			s.logger.Warn("rating event publish failed",
				zap.String("recipe_id", event.RecipeID),
				zap.Error(err),
			)
		}
	}()
}
