package usecases

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tsig-uy/mapgate/internal/core/domain"
	"github.com/tsig-uy/mapgate/internal/core/ports"
	"github.com/tsig-uy/mapgate/internal/pkg/metrics"
)

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = errors.New("session not found")

// LayerSpec names one queryable layer and how its features are tagged.
type LayerSpec struct {
	Name  string
	Style string
	Type  domain.FeatureType
}

// SessionDeps are the outbound dependencies shared by every session.
type SessionDeps struct {
	Features  ports.FeatureInfoClient
	Validator ports.RouteValidator
	Saver     ports.RouteSaver
	Events    ports.EventPublisher
}

// SessionOptions tune the per-session machinery.
type SessionOptions struct {
	Layers          []LayerSpec
	Tolerance       int
	MaxFeatures     int
	InfoFormat      string
	ThrottleLimit   int
	ThrottleSpacing time.Duration
	QueryTimeout    time.Duration
	TTL             time.Duration
}

// ClickRequest is one map click as reported by the client: the live
// viewport, the pixel position, and which layers are currently visible.
type ClickRequest struct {
	Viewport  domain.Viewport
	Pixel     domain.PixelPoint
	Layers    []string
	PopupOpen bool
}

// MapSession owns the interactive state of one connected map: a shared
// throttler, one query coordinator per layer, the disambiguation set
// and the route draft. All methods are safe for concurrent use.
type MapSession struct {
	ID           string
	throttle     *Throttler
	coordinators []*LayerCoordinator
	disamb       *Disambiguator
	Draft        *DraftMachine
	events       ports.EventPublisher

	muLock     sync.Mutex
	lastActive time.Time
}

func newMapSession(id string, deps SessionDeps, opts SessionOptions) *MapSession {
	th := NewThrottler(opts.ThrottleLimit, opts.ThrottleSpacing)
	s := &MapSession{
		ID:         id,
		throttle:   th,
		disamb:     NewDisambiguator(),
		Draft:      NewDraftMachine(id, deps.Validator, deps.Saver, deps.Events),
		events:     deps.Events,
		lastActive: time.Now(),
	}
	for _, layer := range opts.Layers {
		qo := QueryOptions{
			Style:       layer.Style,
			Tolerance:   opts.Tolerance,
			MaxFeatures: opts.MaxFeatures,
			Format:      opts.InfoFormat,
		}
		s.coordinators = append(s.coordinators,
			NewLayerCoordinator(layer.Name, qo, deps.Features, th, opts.QueryTimeout))
	}
	return s
}

// Click resolves a map click against every visible layer. Clicks with a
// popup already open are ignored. Per-layer queries run concurrently;
// their features are merged, de-duplicated by identity, and fed to the
// disambiguator. The returned outcome mirrors what the user sees: a
// direct feature, a candidate set, or nothing.
func (s *MapSession) Click(ctx context.Context, req ClickRequest) (domain.QueryOutcome, error) {
	s.touch()

	if req.PopupOpen {
		return domain.QueryOutcome{Kind: domain.OutcomeNone}, nil
	}

	visible := make(map[string]bool, len(req.Layers))
	for _, l := range req.Layers {
		visible[l] = true
	}

	var targets []*LayerCoordinator
	for _, c := range s.coordinators {
		if visible[c.Layer()] {
			targets = append(targets, c)
		}
	}
	if len(targets) == 0 {
		return domain.QueryOutcome{Kind: domain.OutcomeNone}, nil
	}

	type layerResult struct {
		outcome domain.QueryOutcome
		err     error
	}
	results := make([]layerResult, len(targets))

	var wg sync.WaitGroup
	for i, c := range targets {
		wg.Add(1)
		go func(i int, c *LayerCoordinator) {
			defer wg.Done()
			out, err := c.Query(ctx, req.Viewport, req.Pixel)
			results[i] = layerResult{out, err}
		}(i, c)
	}
	wg.Wait()

	var merged []domain.FeatureCandidate
	seen := make(map[string]bool)
	superseded := 0
	for _, r := range results {
		if r.err != nil {
			if errors.Is(r.err, ErrSuperseded) {
				superseded++
				continue
			}
			return domain.QueryOutcome{Kind: domain.OutcomeNone}, r.err
		}
		var features []domain.FeatureCandidate
		switch r.outcome.Kind {
		case domain.OutcomeFeature:
			features = []domain.FeatureCandidate{*r.outcome.Feature}
		case domain.OutcomeCandidates:
			features = r.outcome.Candidates
		}
		for _, f := range features {
			if !seen[f.Key()] {
				seen[f.Key()] = true
				merged = append(merged, f)
			}
		}
	}
	if superseded == len(targets) {
		return domain.QueryOutcome{Kind: domain.OutcomeNone}, ErrSuperseded
	}

	direct, held := s.disamb.Offer(merged)
	switch {
	case held:
		return domain.QueryOutcome{Kind: domain.OutcomeCandidates, Candidates: merged}, nil
	case direct != nil:
		s.publishSelected(*direct)
		return domain.QueryOutcome{Kind: domain.OutcomeFeature, Feature: direct}, nil
	default:
		return domain.QueryOutcome{Kind: domain.OutcomeNone}, nil
	}
}

// Candidates returns the open disambiguation set, if any.
func (s *MapSession) Candidates() []domain.FeatureCandidate {
	s.touch()
	return s.disamb.Active()
}

// SelectCandidate resolves the open candidate set to one feature.
func (s *MapSession) SelectCandidate(featureType domain.FeatureType, id string) (*domain.FeatureCandidate, error) {
	s.touch()
	picked, err := s.disamb.Select(featureType, id)
	if err != nil {
		return nil, err
	}
	s.publishSelected(*picked)
	return picked, nil
}

// DismissCandidates discards the open candidate set.
func (s *MapSession) DismissCandidates() {
	s.touch()
	s.disamb.Dismiss()
}

// Close tears the session down: queued queries are rejected, in-flight
// queries cancelled, the draft abandoned.
func (s *MapSession) Close() {
	s.throttle.Clear()
	for _, c := range s.coordinators {
		c.CancelInflight()
	}
	s.Draft.Cancel()
	s.disamb.Dismiss()
}

func (s *MapSession) touch() {
	s.muLock.Lock()
	s.lastActive = time.Now()
	s.muLock.Unlock()
}

func (s *MapSession) idleSince() time.Time {
	s.muLock.Lock()
	defer s.muLock.Unlock()
	return s.lastActive
}

func (s *MapSession) publishSelected(f domain.FeatureCandidate) {
	if s.events == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := s.events.PublishFeatureSelected(ctx, s.ID, f); err != nil {
			slog.Warn("failed to publish feature selected event",
				"session_id", s.ID,
				"feature", f.Key(),
				"error", err)
		}
	}()
}

// SessionManager creates, fetches and expires map sessions.
type SessionManager struct {
	deps SessionDeps
	opts SessionOptions

	mu       sync.Mutex
	sessions map[string]*MapSession
}

// NewSessionManager wires a manager with shared dependencies. The TTL
// defaults to 30 minutes when unset.
func NewSessionManager(deps SessionDeps, opts SessionOptions) *SessionManager {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Minute
	}
	return &SessionManager{
		deps:     deps,
		opts:     opts,
		sessions: make(map[string]*MapSession),
	}
}

// Create opens a new map session with a generated id.
func (m *SessionManager) Create() *MapSession {
	s := newMapSession(uuid.NewString(), m.deps, m.opts)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	metrics.ActiveSessions.Inc()
	slog.Info("map session created", "session_id", s.ID)
	return s
}

// Get returns a live session and refreshes its idle timer.
func (m *SessionManager) Get(id string) (*MapSession, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touch()
	return s, nil
}

// Close tears down a session and removes it from the manager.
func (m *SessionManager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	s.Close()
	metrics.ActiveSessions.Dec()
	slog.Info("map session closed", "session_id", id)
	return nil
}

// Count returns the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// StartSweeper expires idle sessions in the background until ctx ends.
func (m *SessionManager) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep(time.Now())
			}
		}
	}()
}

func (m *SessionManager) sweep(now time.Time) {
	m.mu.Lock()
	var expired []*MapSession
	for id, s := range m.sessions {
		if now.Sub(s.idleSince()) > m.opts.TTL {
			delete(m.sessions, id)
			expired = append(expired, s)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.Close()
		metrics.ActiveSessions.Dec()
		slog.Info("map session expired", "session_id", s.ID)
	}
}
