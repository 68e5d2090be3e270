package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tsig-uy/mapgate/internal/core/domain"
	"github.com/tsig-uy/mapgate/internal/core/ports"
	"github.com/tsig-uy/mapgate/internal/pkg/metrics"
)

const lineCacheTTLSeconds = 300

// LineSearchService proxies the anonymous browse/search surface of the
// line API with read-through caching. Cache failures are never fatal;
// the service falls back to the upstream call.
type LineSearchService struct {
	directory ports.LineDirectory
	cache     ports.CacheService
}

// NewLineSearchService wires the proxy. cache may be nil, which
// disables caching entirely.
func NewLineSearchService(directory ports.LineDirectory, cache ports.CacheService) *LineSearchService {
	return &LineSearchService{directory: directory, cache: cache}
}

// SearchByCompany lists the lines operated by one company.
func (s *LineSearchService) SearchByCompany(ctx context.Context, company string) ([]domain.Line, error) {
	key := "lines:company:" + strings.ToLower(strings.TrimSpace(company))
	return s.cached(ctx, "search_by_company", key, func() ([]domain.Line, error) {
		return s.directory.SearchByCompany(ctx, company)
	})
}

// SearchBySchedule lists the lines running inside a time-of-day window.
func (s *LineSearchService) SearchBySchedule(ctx context.Context, window domain.ScheduleWindow) ([]domain.Line, error) {
	key := fmt.Sprintf("lines:schedule:%s-%s", window.From, window.To)
	return s.cached(ctx, "search_by_schedule", key, func() ([]domain.Line, error) {
		return s.directory.SearchBySchedule(ctx, window)
	})
}

// SearchByOriginDestination lists the lines connecting two stops.
func (s *LineSearchService) SearchByOriginDestination(ctx context.Context, originID, destinationID int) ([]domain.Line, error) {
	key := fmt.Sprintf("lines:od:%d-%d", originID, destinationID)
	return s.cached(ctx, "search_by_od", key, func() ([]domain.Line, error) {
		return s.directory.SearchByOriginDestination(ctx, originID, destinationID)
	})
}

// DeleteStop removes a named stop through the line API. Never cached.
func (s *LineSearchService) DeleteStop(ctx context.Context, name string) error {
	return s.directory.DeleteStop(ctx, name)
}

func (s *LineSearchService) cached(ctx context.Context, operation, key string, fetch func() ([]domain.Line, error)) ([]domain.Line, error) {
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key); err == nil && raw != nil {
			var lines []domain.Line
			if err := json.Unmarshal(raw, &lines); err == nil {
				metrics.CacheHits.WithLabelValues(operation).Inc()
				return lines, nil
			}
			// Poisoned entry, drop it and refetch.
			_ = s.cache.Delete(ctx, key)
		}
		metrics.CacheMisses.WithLabelValues(operation).Inc()
	}

	lines, err := fetch()
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(lines); err == nil {
			if err := s.cache.Set(ctx, key, raw, lineCacheTTLSeconds); err != nil {
				slog.Warn("failed to cache line search result", "key", key, "error", err)
			}
		}
	}
	return lines, nil
}
