package ports

import (
	"context"

	"github.com/tsig-uy/mapgate/internal/core/domain"
)

// EventPublisher publishes map events to a message broker. Publishing is
// best-effort; callers never fail an operation because an event was lost.
type EventPublisher interface {
	PublishDraftEvent(ctx context.Context, sessionID, event string, draft domain.DraftRoute) error
	PublishFeatureSelected(ctx context.Context, sessionID string, feature domain.FeatureCandidate) error
	PublishLineSaved(ctx context.Context, line *domain.Line) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
