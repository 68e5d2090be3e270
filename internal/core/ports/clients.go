package ports

import (
	"context"

	"github.com/tsig-uy/mapgate/internal/core/domain"
)

// FeatureInfoClient executes WMS GetFeatureInfo queries. Implementations
// return the parsed candidates; an empty slice means "nothing under the
// click". Transport and decode failures are returned as errors and are
// normalized to a no-result outcome by the coordinator, never surfaced.
type FeatureInfoClient interface {
	GetFeatureInfo(ctx context.Context, req *domain.FeatureQueryRequest) ([]domain.FeatureCandidate, error)
}

// RouteValidator checks a drafted point sequence against the external
// routing service and returns the computed route geometry. Domain
// rejections (disconnected path, point too far from the road network)
// come back as *domain.RemoteError.
type RouteValidator interface {
	ValidateRoute(ctx context.Context, points []domain.RoutePoint) (*domain.GeoLineString, error)
}

// RouteSaver persists a validated route through the line API. Duplicate
// descriptions and other domain rejections come back as
// *domain.RemoteError.
type RouteSaver interface {
	SaveRoute(ctx context.Context, meta domain.RouteMetadata, points []domain.RoutePoint, geometry *domain.GeoLineString) (*domain.Line, error)
}

// RoadRouter returns a driving path through ordered waypoints. The
// result is a rendering aid only and is never persisted.
type RoadRouter interface {
	Route(ctx context.Context, waypoints []domain.GeoPoint) (*domain.GeoLineString, error)
}

// LineDirectory exposes the anonymous browse/search surface of the
// external line API.
type LineDirectory interface {
	SearchByCompany(ctx context.Context, company string) ([]domain.Line, error)
	SearchBySchedule(ctx context.Context, window domain.ScheduleWindow) ([]domain.Line, error)
	SearchByOriginDestination(ctx context.Context, originID, destinationID int) ([]domain.Line, error)
	DeleteStop(ctx context.Context, name string) error
}
