package usecases_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/tsig-uy/mapgate/internal/core/domain"
	"github.com/tsig-uy/mapgate/internal/core/usecases"
)

type fakeDirectory struct {
	mu           sync.Mutex
	companyCalls int
	lines        []domain.Line
	err          error
	deleted      []string
}

func (f *fakeDirectory) SearchByCompany(_ context.Context, company string) ([]domain.Line, error) {
	f.mu.Lock()
	f.companyCalls++
	f.mu.Unlock()
	return f.lines, f.err
}

func (f *fakeDirectory) SearchBySchedule(context.Context, domain.ScheduleWindow) ([]domain.Line, error) {
	return f.lines, f.err
}

func (f *fakeDirectory) SearchByOriginDestination(context.Context, int, int) ([]domain.Line, error) {
	return f.lines, f.err
}

func (f *fakeDirectory) DeleteStop(_ context.Context, name string) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, name)
	f.mu.Unlock()
	return f.err
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[key], nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func TestLineSearch_ReadThroughCache(t *testing.T) {
	dir := &fakeDirectory{lines: []domain.Line{{ID: 1, Description: "143 Centro", Company: "CUTCSA"}}}
	cache := newMemCache()
	svc := usecases.NewLineSearchService(dir, cache)

	for i := 0; i < 3; i++ {
		lines, err := svc.SearchByCompany(context.Background(), "CUTCSA")
		if err != nil {
			t.Fatalf("search %d: %v", i, err)
		}
		if len(lines) != 1 || lines[0].Description != "143 Centro" {
			t.Fatalf("search %d: unexpected result %+v", i, lines)
		}
	}
	if dir.companyCalls != 1 {
		t.Fatalf("expected a single upstream call, got %d", dir.companyCalls)
	}
}

func TestLineSearch_CacheKeyNormalizesCompany(t *testing.T) {
	dir := &fakeDirectory{lines: []domain.Line{{ID: 1}}}
	cache := newMemCache()
	svc := usecases.NewLineSearchService(dir, cache)

	if _, err := svc.SearchByCompany(context.Background(), "CUTCSA"); err != nil {
		t.Fatalf("search: %v", err)
	}
	if _, err := svc.SearchByCompany(context.Background(), "  cutcsa "); err != nil {
		t.Fatalf("search: %v", err)
	}
	if dir.companyCalls != 1 {
		t.Fatalf("case and whitespace variants must share a cache entry, got %d upstream calls", dir.companyCalls)
	}
}

func TestLineSearch_PoisonedEntryIsDroppedAndRefetched(t *testing.T) {
	dir := &fakeDirectory{lines: []domain.Line{{ID: 2, Description: "104"}}}
	cache := newMemCache()
	cache.Set(context.Background(), "lines:company:cutcsa", []byte("{not json"), 0)
	svc := usecases.NewLineSearchService(dir, cache)

	lines, err := svc.SearchByCompany(context.Background(), "CUTCSA")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(lines) != 1 || lines[0].ID != 2 {
		t.Fatalf("expected upstream result, got %+v", lines)
	}

	raw, _ := cache.Get(context.Background(), "lines:company:cutcsa")
	var cached []domain.Line
	if err := json.Unmarshal(raw, &cached); err != nil {
		t.Fatalf("cache must hold the refreshed entry, got %q", raw)
	}
}

func TestLineSearch_UpstreamErrorNotCached(t *testing.T) {
	dir := &fakeDirectory{err: errors.New("upstream down")}
	cache := newMemCache()
	svc := usecases.NewLineSearchService(dir, cache)

	if _, err := svc.SearchByCompany(context.Background(), "CUTCSA"); err == nil {
		t.Fatal("expected the upstream error")
	}
	if len(cache.data) != 0 {
		t.Fatalf("failures must not be cached, got %v", cache.data)
	}

	dir.err = nil
	dir.lines = []domain.Line{{ID: 3}}
	lines, err := svc.SearchByCompany(context.Background(), "CUTCSA")
	if err != nil || len(lines) != 1 {
		t.Fatalf("expected a fresh successful fetch, got %v (%v)", lines, err)
	}
}

func TestLineSearch_NilCacheGoesStraightThrough(t *testing.T) {
	dir := &fakeDirectory{lines: []domain.Line{{ID: 4}}}
	svc := usecases.NewLineSearchService(dir, nil)

	for i := 0; i < 2; i++ {
		if _, err := svc.SearchByCompany(context.Background(), "COETC"); err != nil {
			t.Fatalf("search: %v", err)
		}
	}
	if dir.companyCalls != 2 {
		t.Fatalf("expected 2 upstream calls without a cache, got %d", dir.companyCalls)
	}
}

func TestLineSearch_DeleteStopPassesThrough(t *testing.T) {
	dir := &fakeDirectory{}
	svc := usecases.NewLineSearchService(dir, newMemCache())

	if err := svc.DeleteStop(context.Background(), "Plaza Independencia"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(dir.deleted) != 1 || dir.deleted[0] != "Plaza Independencia" {
		t.Fatalf("expected delete forwarded, got %v", dir.deleted)
	}
}
