package ports

import (
	"context"
	"io"

	"github.com/samirrijal/placefinder/internal/core/domain"
)

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishPlaceRegistered(ctx context.Context, place *domain.Place) error
	PublishDetection(ctx context.Context, event *domain.DetectionEvent) error
}

// EventSubscriber subscribes to domain events from a message broker.
type EventSubscriber interface {
	SubscribePlaceRegistered(ctx context.Context, handler func(ctx context.Context, place *domain.Place) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// ImageStore persists uploaded images.
type ImageStore interface {
	Save(ctx context.Context, filename string, r io.Reader) (domain.ImageRef, error)
	Delete(ctx context.Context, ref domain.ImageRef) error
}

// TokenIssuer issues and verifies access tokens bound to a username.
type TokenIssuer interface {
	Issue(username string) (string, error)
	Parse(token string) (string, error)
}
