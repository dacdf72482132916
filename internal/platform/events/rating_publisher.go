// Package events fans out domain events to Pub/Sub for downstream analytics.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
)

// RatingEvent describes a single recipe rating submission.
type RatingEvent struct {
	RecipeID   string    `json:"recipeId"`
	CategoryID string    `json:"categoryId,omitempty"`
	Score      int       `json:"score"`
	Source     string    `json:"source"`
	RatedAt    time.Time `json:"ratedAt"`
}

// RatingPublisher publishes rating events to a Pub/Sub topic.
type RatingPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewRatingPublisher constructs a Pub/Sub backed rating event publisher.
func NewRatingPublisher(topic *pubsub.Topic) (*RatingPublisher, error) {
	if topic == nil {
		return nil, errors.New("rating publisher: topic is required")
	}
	return &RatingPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishRating enqueues a rating event on the configured topic and returns
// the server-assigned message ID.
func (p *RatingPublisher) PublishRating(ctx context.Context, event RatingEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("rating publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal rating event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "recipeId", event.RecipeID)
	setAttr(attrs, "categoryId", event.CategoryID)
	setAttr(attrs, "source", event.Source)
	attrs["score"] = strconv.Itoa(event.Score)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish rating event: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
