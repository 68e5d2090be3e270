package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tsig-uy/mapgate/internal/core/domain"
	"github.com/tsig-uy/mapgate/internal/core/ports"
	"github.com/tsig-uy/mapgate/internal/pkg/metrics"
)

var (
	// ErrDraftConflict is returned when an operation is not legal in the
	// draft's current state.
	ErrDraftConflict = errors.New("operation not allowed in current draft state")

	// ErrTooFewPoints is returned by Verify when the draft has fewer than
	// two points. The check happens before any network call.
	ErrTooFewPoints = errors.New("a route needs at least two points")

	// ErrPointNotFound is returned by MovePoint for an unknown point id.
	ErrPointNotFound = errors.New("draft point not found")
)

var validateMeta = validator.New(validator.WithRequiredStructEnabled())

const publishTimeout = 5 * time.Second

// DraftMachine is the route-authoring state machine of one map session.
// Points can only be mutated while drafting; once the routing service
// has validated them the geometry is pinned to the exact sequence it was
// computed from, and the caller must cancel validation to edit again.
type DraftMachine struct {
	sessionID string
	validator ports.RouteValidator
	saver     ports.RouteSaver
	events    ports.EventPublisher

	mu       sync.Mutex
	state    domain.DraftState
	points   []domain.RoutePoint
	geometry *domain.GeoLineString
}

// NewDraftMachine creates an idle draft machine. events may be nil.
func NewDraftMachine(sessionID string, rv ports.RouteValidator, rs ports.RouteSaver, events ports.EventPublisher) *DraftMachine {
	return &DraftMachine{
		sessionID: sessionID,
		validator: rv,
		saver:     rs,
		events:    events,
		state:     domain.DraftIdle,
	}
}

// Start begins a new draft. Only legal from idle.
func (m *DraftMachine) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != domain.DraftIdle {
		return fmt.Errorf("%w: start from %s", ErrDraftConflict, m.state)
	}
	m.transition(domain.DraftDrafting)
	m.points = nil
	m.geometry = nil
	m.publish("draft.started")
	return nil
}

// Cancel abandons the draft from any state and returns to idle. Points
// and geometry are discarded. Cancelling an idle machine is a no-op.
func (m *DraftMachine) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == domain.DraftIdle {
		return
	}
	m.transition(domain.DraftIdle)
	m.points = nil
	m.geometry = nil
	m.publish("draft.cancelled")
}

// AddPoint appends a waypoint and returns it with its generated id.
func (m *DraftMachine) AddPoint(lat, lon float64) (*domain.RoutePoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != domain.DraftDrafting {
		return nil, fmt.Errorf("%w: add point in %s", ErrDraftConflict, m.state)
	}
	p := domain.RoutePoint{ID: uuid.NewString(), Lat: lat, Lon: lon}
	m.points = append(m.points, p)
	return &p, nil
}

// MovePoint updates the position of an existing waypoint, keeping its
// identity and order.
func (m *DraftMachine) MovePoint(id string, lat, lon float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != domain.DraftDrafting {
		return fmt.Errorf("%w: move point in %s", ErrDraftConflict, m.state)
	}
	for i := range m.points {
		if m.points[i].ID == id {
			m.points[i].Lat = lat
			m.points[i].Lon = lon
			return nil
		}
	}
	return ErrPointNotFound
}

// DeletePoint removes a waypoint. Unknown ids are a no-op.
func (m *DraftMachine) DeletePoint(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != domain.DraftDrafting {
		return fmt.Errorf("%w: delete point in %s", ErrDraftConflict, m.state)
	}
	for i := range m.points {
		if m.points[i].ID == id {
			m.points = append(m.points[:i], m.points[i+1:]...)
			break
		}
	}
	return nil
}

// Verify sends the drafted points to the routing service. On success the
// draft becomes validated and carries the computed geometry; on failure
// it returns to drafting with the points untouched and the service's
// message surfaced verbatim. Drafts with fewer than two points are
// rejected locally.
func (m *DraftMachine) Verify(ctx context.Context) (*domain.GeoLineString, error) {
	m.mu.Lock()
	if m.state != domain.DraftDrafting {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: verify in %s", ErrDraftConflict, m.state)
	}
	if len(m.points) < 2 {
		m.mu.Unlock()
		return nil, ErrTooFewPoints
	}
	m.transition(domain.DraftValidating)
	points := make([]domain.RoutePoint, len(m.points))
	copy(points, m.points)
	m.mu.Unlock()

	geom, err := m.validator.ValidateRoute(ctx, points)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != domain.DraftValidating {
		// Cancel raced the validation; the draft was already reset.
		return nil, fmt.Errorf("%w: draft cancelled during validation", ErrDraftConflict)
	}
	if err != nil {
		m.transition(domain.DraftDrafting)
		slog.Warn("route validation failed",
			"session_id", m.sessionID,
			"points", len(points),
			"error", err)
		return nil, err
	}
	m.transition(domain.DraftValidated)
	m.geometry = geom
	m.publish("draft.validated")
	return geom, nil
}

// CancelValidation returns a validated draft to drafting, dropping the
// geometry but keeping every point.
func (m *DraftMachine) CancelValidation() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != domain.DraftValidated {
		return fmt.Errorf("%w: cancel validation in %s", ErrDraftConflict, m.state)
	}
	m.transition(domain.DraftDrafting)
	m.geometry = nil
	return nil
}

// Save persists the validated draft through the line API. On success the
// machine returns to idle with the draft cleared; on failure it stays
// validated with points and geometry preserved so the user can correct
// the metadata and retry.
func (m *DraftMachine) Save(ctx context.Context, meta domain.RouteMetadata) (*domain.Line, error) {
	if err := validateMeta.Struct(meta); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.state != domain.DraftValidated {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: save in %s", ErrDraftConflict, m.state)
	}
	m.transition(domain.DraftSaving)
	points := make([]domain.RoutePoint, len(m.points))
	copy(points, m.points)
	geom := m.geometry
	m.mu.Unlock()

	line, err := m.saver.SaveRoute(ctx, meta, points, geom)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != domain.DraftSaving {
		return nil, fmt.Errorf("%w: draft cancelled during save", ErrDraftConflict)
	}
	if err != nil {
		m.transition(domain.DraftValidated)
		slog.Warn("route save failed",
			"session_id", m.sessionID,
			"description", meta.Description,
			"error", err)
		return nil, err
	}
	m.transition(domain.DraftIdle)
	m.points = nil
	m.geometry = nil
	metrics.DraftsSaved.Inc()
	m.publish("draft.saved")
	if m.events != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			defer cancel()
			if err := m.events.PublishLineSaved(ctx, line); err != nil {
				slog.Warn("failed to publish line saved event", "line_id", line.ID, "error", err)
			}
		}()
	}
	return line, nil
}

// Snapshot returns a copy of the current draft.
func (m *DraftMachine) Snapshot() domain.DraftRoute {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := domain.DraftRoute{State: m.state, Geometry: m.geometry}
	if len(m.points) > 0 {
		snap.Points = make([]domain.RoutePoint, len(m.points))
		copy(snap.Points, m.points)
	}
	return snap
}

// transition moves the machine to next and records the edge. Callers
// hold m.mu.
func (m *DraftMachine) transition(next domain.DraftState) {
	metrics.DraftTransitions.WithLabelValues(string(m.state), string(next)).Inc()
	m.state = next
}

// publish emits a draft lifecycle event best-effort. Callers hold m.mu;
// the snapshot is taken synchronously, delivery happens off-thread.
func (m *DraftMachine) publish(event string) {
	if m.events == nil {
		return
	}
	snap := domain.DraftRoute{State: m.state, Geometry: m.geometry}
	if len(m.points) > 0 {
		snap.Points = make([]domain.RoutePoint, len(m.points))
		copy(snap.Points, m.points)
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := m.events.PublishDraftEvent(ctx, m.sessionID, event, snap); err != nil {
			slog.Warn("failed to publish draft event",
				"session_id", m.sessionID,
				"event", event,
				"error", err)
		}
	}()
}
