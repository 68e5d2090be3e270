package usecases_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tsig-uy/mapgate/internal/core/domain"
	"github.com/tsig-uy/mapgate/internal/core/usecases"
)

type fakeRouteValidator struct {
	calls int32
	fn    func(ctx context.Context, points []domain.RoutePoint) (*domain.GeoLineString, error)
}

func (f *fakeRouteValidator) ValidateRoute(ctx context.Context, points []domain.RoutePoint) (*domain.GeoLineString, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.fn(ctx, points)
}

type fakeRouteSaver struct {
	calls int32
	fn    func(ctx context.Context, meta domain.RouteMetadata, points []domain.RoutePoint, geom *domain.GeoLineString) (*domain.Line, error)
}

func (f *fakeRouteSaver) SaveRoute(ctx context.Context, meta domain.RouteMetadata, points []domain.RoutePoint, geom *domain.GeoLineString) (*domain.Line, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.fn(ctx, meta, points, geom)
}

type fakePublisher struct {
	draftEvents chan string
	linesSaved  chan int
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{
		draftEvents: make(chan string, 16),
		linesSaved:  make(chan int, 4),
	}
}

func (f *fakePublisher) PublishDraftEvent(_ context.Context, _ string, event string, _ domain.DraftRoute) error {
	f.draftEvents <- event
	return nil
}

func (f *fakePublisher) PublishFeatureSelected(_ context.Context, _ string, _ domain.FeatureCandidate) error {
	return nil
}

func (f *fakePublisher) PublishLineSaved(_ context.Context, line *domain.Line) error {
	f.linesSaved <- line.ID
	return nil
}

func okValidator() *fakeRouteValidator {
	return &fakeRouteValidator{fn: func(_ context.Context, points []domain.RoutePoint) (*domain.GeoLineString, error) {
		coords := make([][2]float64, len(points))
		for i, p := range points {
			coords[i] = [2]float64{p.Lon, p.Lat}
		}
		return &domain.GeoLineString{Coordinates: coords}, nil
	}}
}

func okSaver() *fakeRouteSaver {
	return &fakeRouteSaver{fn: func(_ context.Context, meta domain.RouteMetadata, points []domain.RoutePoint, geom *domain.GeoLineString) (*domain.Line, error) {
		return &domain.Line{ID: 7, Description: meta.Description, Company: meta.Company, Enabled: true, Points: points, Geometry: geom}, nil
	}}
}

func validatedMachine(t *testing.T) (*usecases.DraftMachine, *fakeRouteValidator, *fakeRouteSaver) {
	t.Helper()
	rv, rs := okValidator(), okSaver()
	m := usecases.NewDraftMachine("s1", rv, rs, nil)
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := m.AddPoint(-34.90, -56.16); err != nil {
		t.Fatalf("add point: %v", err)
	}
	if _, err := m.AddPoint(-34.88, -56.10); err != nil {
		t.Fatalf("add point: %v", err)
	}
	if _, err := m.Verify(context.Background()); err != nil {
		t.Fatalf("verify: %v", err)
	}
	return m, rv, rs
}

func TestDraftMachine_StartOnlyFromIdle(t *testing.T) {
	m := usecases.NewDraftMachine("s1", okValidator(), okSaver(), nil)

	if err := m.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Start(); !errors.Is(err, usecases.ErrDraftConflict) {
		t.Fatalf("expected ErrDraftConflict, got %v", err)
	}
	if got := m.Snapshot().State; got != domain.DraftDrafting {
		t.Fatalf("expected drafting, got %s", got)
	}
}

func TestDraftMachine_PointsKeepIdentityAndOrder(t *testing.T) {
	m := usecases.NewDraftMachine("s1", okValidator(), okSaver(), nil)
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	p1, err := m.AddPoint(-34.90, -56.16)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	p2, err := m.AddPoint(-34.88, -56.10)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if p1.ID == "" || p1.ID == p2.ID {
		t.Fatalf("expected distinct generated ids, got %q and %q", p1.ID, p2.ID)
	}

	if err := m.MovePoint(p1.ID, -34.91, -56.17); err != nil {
		t.Fatalf("move: %v", err)
	}
	snap := m.Snapshot()
	if len(snap.Points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(snap.Points))
	}
	if snap.Points[0].ID != p1.ID || snap.Points[0].Lat != -34.91 {
		t.Fatalf("drag must update position in place, got %+v", snap.Points[0])
	}
	if snap.Points[1].ID != p2.ID {
		t.Fatalf("drag must not reorder, got %+v", snap.Points)
	}

	if err := m.MovePoint("nope", 0, 0); err != usecases.ErrPointNotFound {
		t.Fatalf("expected ErrPointNotFound, got %v", err)
	}
}

func TestDraftMachine_DeleteUnknownPointIsNoOp(t *testing.T) {
	m := usecases.NewDraftMachine("s1", okValidator(), okSaver(), nil)
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	p, _ := m.AddPoint(-34.90, -56.16)

	if err := m.DeletePoint("unknown"); err != nil {
		t.Fatalf("unknown id must be a no-op, got %v", err)
	}
	if got := len(m.Snapshot().Points); got != 1 {
		t.Fatalf("expected 1 point, got %d", got)
	}
	if err := m.DeletePoint(p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := len(m.Snapshot().Points); got != 0 {
		t.Fatalf("expected no points, got %d", got)
	}
}

func TestDraftMachine_VerifyRejectsSinglePointWithoutNetwork(t *testing.T) {
	rv := okValidator()
	m := usecases.NewDraftMachine("s1", rv, okSaver(), nil)
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := m.AddPoint(-34.90, -56.16); err != nil {
		t.Fatalf("add: %v", err)
	}

	if _, err := m.Verify(context.Background()); err != usecases.ErrTooFewPoints {
		t.Fatalf("expected ErrTooFewPoints, got %v", err)
	}
	if n := atomic.LoadInt32(&rv.calls); n != 0 {
		t.Fatalf("validator must not be called, got %d calls", n)
	}
	if got := m.Snapshot().State; got != domain.DraftDrafting {
		t.Fatalf("expected drafting, got %s", got)
	}
}

func TestDraftMachine_VerifySuccessPinsGeometry(t *testing.T) {
	m, _, _ := validatedMachine(t)

	snap := m.Snapshot()
	if snap.State != domain.DraftValidated {
		t.Fatalf("expected validated, got %s", snap.State)
	}
	if snap.Geometry == nil || len(snap.Geometry.Coordinates) != 2 {
		t.Fatalf("expected validated geometry, got %+v", snap.Geometry)
	}

	// Points are pinned while validated.
	if _, err := m.AddPoint(0, 0); !errors.Is(err, usecases.ErrDraftConflict) {
		t.Fatalf("expected ErrDraftConflict on add, got %v", err)
	}
	if err := m.MovePoint(snap.Points[0].ID, 0, 0); !errors.Is(err, usecases.ErrDraftConflict) {
		t.Fatalf("expected ErrDraftConflict on move, got %v", err)
	}
	if err := m.DeletePoint(snap.Points[0].ID); !errors.Is(err, usecases.ErrDraftConflict) {
		t.Fatalf("expected ErrDraftConflict on delete, got %v", err)
	}
}

func TestDraftMachine_VerifyFailureKeepsPointsAndSurfacesError(t *testing.T) {
	remote := &domain.RemoteError{Service: "routing", Message: "point 2 is too far from the road network"}
	rv := &fakeRouteValidator{fn: func(context.Context, []domain.RoutePoint) (*domain.GeoLineString, error) {
		return nil, remote
	}}
	m := usecases.NewDraftMachine("s1", rv, okSaver(), nil)
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	m.AddPoint(-34.90, -56.16)
	m.AddPoint(-34.88, -56.10)

	_, err := m.Verify(context.Background())
	var re *domain.RemoteError
	if !errors.As(err, &re) || re.Message != remote.Message {
		t.Fatalf("expected the remote message verbatim, got %v", err)
	}

	snap := m.Snapshot()
	if snap.State != domain.DraftDrafting {
		t.Fatalf("expected drafting after failed validation, got %s", snap.State)
	}
	if len(snap.Points) != 2 {
		t.Fatalf("points must survive a failed validation, got %d", len(snap.Points))
	}
	if snap.Geometry != nil {
		t.Fatal("failed validation must not leave geometry behind")
	}
}

func TestDraftMachine_CancelValidationKeepsPoints(t *testing.T) {
	m, _, _ := validatedMachine(t)

	if err := m.CancelValidation(); err != nil {
		t.Fatalf("cancel validation: %v", err)
	}
	snap := m.Snapshot()
	if snap.State != domain.DraftDrafting {
		t.Fatalf("expected drafting, got %s", snap.State)
	}
	if len(snap.Points) != 2 || snap.Geometry != nil {
		t.Fatalf("expected points kept and geometry dropped, got %+v", snap)
	}

	// Editing and re-validating works again.
	if _, err := m.AddPoint(-34.87, -56.05); err != nil {
		t.Fatalf("add after cancel: %v", err)
	}
	if _, err := m.Verify(context.Background()); err != nil {
		t.Fatalf("re-verify: %v", err)
	}
	if got := m.Snapshot().State; got != domain.DraftValidated {
		t.Fatalf("expected validated, got %s", got)
	}
}

func TestDraftMachine_SaveRejectsBadMetadataLocally(t *testing.T) {
	m, _, rs := validatedMachine(t)

	_, err := m.Save(context.Background(), domain.RouteMetadata{Company: "CUTCSA"})
	if err == nil {
		t.Fatal("expected a validation error for missing description")
	}
	if n := atomic.LoadInt32(&rs.calls); n != 0 {
		t.Fatalf("saver must not be called, got %d calls", n)
	}
	if got := m.Snapshot().State; got != domain.DraftValidated {
		t.Fatalf("expected validated, got %s", got)
	}
}

func TestDraftMachine_SaveFailurePreservesDraft(t *testing.T) {
	remote := &domain.RemoteError{Service: "lines", Message: "a line with that description already exists"}
	rs := &fakeRouteSaver{fn: func(context.Context, domain.RouteMetadata, []domain.RoutePoint, *domain.GeoLineString) (*domain.Line, error) {
		return nil, remote
	}}
	m := usecases.NewDraftMachine("s1", okValidator(), rs, nil)
	m.Start()
	m.AddPoint(-34.90, -56.16)
	m.AddPoint(-34.88, -56.10)
	if _, err := m.Verify(context.Background()); err != nil {
		t.Fatalf("verify: %v", err)
	}

	_, err := m.Save(context.Background(), domain.RouteMetadata{Description: "143 Centro", Company: "CUTCSA"})
	var re *domain.RemoteError
	if !errors.As(err, &re) || re.Message != remote.Message {
		t.Fatalf("expected the remote message verbatim, got %v", err)
	}

	snap := m.Snapshot()
	if snap.State != domain.DraftValidated {
		t.Fatalf("expected validated after failed save, got %s", snap.State)
	}
	if len(snap.Points) != 2 || snap.Geometry == nil {
		t.Fatalf("failed save must preserve points and geometry, got %+v", snap)
	}
}

func TestDraftMachine_SaveSuccessResetsToIdle(t *testing.T) {
	m, _, _ := validatedMachine(t)

	line, err := m.Save(context.Background(), domain.RouteMetadata{Description: "143 Centro", Company: "CUTCSA"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if line == nil || line.ID != 7 {
		t.Fatalf("expected persisted line, got %+v", line)
	}

	snap := m.Snapshot()
	if snap.State != domain.DraftIdle {
		t.Fatalf("expected idle after save, got %s", snap.State)
	}
	if len(snap.Points) != 0 || snap.Geometry != nil {
		t.Fatalf("expected cleared draft, got %+v", snap)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("a new draft must start after save, got %v", err)
	}
}

func TestDraftMachine_CancelFromAnyState(t *testing.T) {
	m, _, _ := validatedMachine(t)

	m.Cancel()
	snap := m.Snapshot()
	if snap.State != domain.DraftIdle || len(snap.Points) != 0 || snap.Geometry != nil {
		t.Fatalf("expected empty idle draft, got %+v", snap)
	}
	m.Cancel() // no-op when idle
}

func TestDraftMachine_PublishesLifecycleEvents(t *testing.T) {
	pub := newFakePublisher()
	m := usecases.NewDraftMachine("s1", okValidator(), okSaver(), pub)
	m.Start()
	m.AddPoint(-34.90, -56.16)
	m.AddPoint(-34.88, -56.10)
	if _, err := m.Verify(context.Background()); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, err := m.Save(context.Background(), domain.RouteMetadata{Description: "143 Centro", Company: "CUTCSA"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	want := map[string]bool{"draft.started": false, "draft.validated": false, "draft.saved": false}
	deadline := time.After(2 * time.Second)
	for remaining := len(want); remaining > 0; remaining-- {
		select {
		case ev := <-pub.draftEvents:
			if _, ok := want[ev]; ok {
				want[ev] = true
			}
		case <-deadline:
			t.Fatalf("timed out waiting for draft events, got %v", want)
		}
	}
	for ev, seen := range want {
		if !seen {
			t.Fatalf("missing event %s", ev)
		}
	}
	select {
	case id := <-pub.linesSaved:
		if id != 7 {
			t.Fatalf("expected line 7 published, got %d", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for line saved event")
	}
}
