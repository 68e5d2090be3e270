package http

import (
	"net/url"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/tsig-uy/mapgate/internal/core/domain"
	"github.com/tsig-uy/mapgate/internal/core/usecases"
	"github.com/tsig-uy/mapgate/internal/pkg/geospatial"
)

// CreateSessionHandler opens a new map session.
func CreateSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s := deps.Sessions.Create()
		return c.Status(201).JSON(fiber.Map{"session_id": s.ID})
	}
}

// DeleteSessionHandler tears a session down.
func DeleteSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Sessions.Close(c.Params("id")); err != nil {
			return mapDomainError(c, err)
		}
		return c.SendStatus(204)
	}
}

type clickBody struct {
	Viewport  domain.Viewport   `json:"viewport"`
	Pixel     domain.PixelPoint `json:"pixel"`
	Layers    []string          `json:"layers"`
	PopupOpen bool              `json:"popup_open"`
}

// ClickHandler resolves a map click into a feature, a candidate set, or
// nothing. A click superseded by a newer one answers 409 so the client
// simply drops it.
func ClickHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := deps.Sessions.Get(c.Params("id"))
		if err != nil {
			return mapDomainError(c, err)
		}

		var body clickBody
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid click payload")
		}

		ctx := c.UserContext()
		outcome, err := s.Click(ctx, usecases.ClickRequest{
			Viewport:  body.Viewport,
			Pixel:     body.Pixel,
			Layers:    body.Layers,
			PopupOpen: body.PopupOpen,
		})
		if err != nil {
			return mapDomainError(c, err)
		}
		LoggerFromCtx(ctx).Debug("map click resolved",
			"session_id", s.ID, "outcome", outcome.Kind)
		return c.JSON(outcome)
	}
}

// CandidatesHandler returns the open disambiguation set.
func CandidatesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := deps.Sessions.Get(c.Params("id"))
		if err != nil {
			return mapDomainError(c, err)
		}
		candidates := s.Candidates()
		if candidates == nil {
			candidates = []domain.FeatureCandidate{}
		}
		return c.JSON(fiber.Map{"candidates": candidates})
	}
}

type selectBody struct {
	FeatureType string `json:"feature_type"`
	ID          string `json:"id"`
}

// SelectCandidateHandler resolves the candidate set to one feature.
func SelectCandidateHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := deps.Sessions.Get(c.Params("id"))
		if err != nil {
			return mapDomainError(c, err)
		}

		var body selectBody
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid selection payload")
		}

		picked, err := s.SelectCandidate(domain.FeatureType(body.FeatureType), body.ID)
		if err != nil {
			return mapDomainError(c, err)
		}
		return c.JSON(picked)
	}
}

// DismissCandidatesHandler discards the candidate set.
func DismissCandidatesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := deps.Sessions.Get(c.Params("id"))
		if err != nil {
			return mapDomainError(c, err)
		}
		s.DismissCandidates()
		return c.SendStatus(204)
	}
}

// StartDraftHandler begins a route draft.
func StartDraftHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := deps.Sessions.Get(c.Params("id"))
		if err != nil {
			return mapDomainError(c, err)
		}
		if err := s.Draft.Start(); err != nil {
			return mapDomainError(c, err)
		}
		return c.Status(201).JSON(s.Draft.Snapshot())
	}
}

// CancelDraftHandler abandons the draft from any state.
func CancelDraftHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := deps.Sessions.Get(c.Params("id"))
		if err != nil {
			return mapDomainError(c, err)
		}
		s.Draft.Cancel()
		return c.SendStatus(204)
	}
}

// DraftSnapshotHandler returns the current draft.
func DraftSnapshotHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := deps.Sessions.Get(c.Params("id"))
		if err != nil {
			return mapDomainError(c, err)
		}
		return c.JSON(s.Draft.Snapshot())
	}
}

type pointBody struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// AddPointHandler appends a waypoint to the draft.
func AddPointHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := deps.Sessions.Get(c.Params("id"))
		if err != nil {
			return mapDomainError(c, err)
		}

		var body pointBody
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid point payload")
		}

		p, err := s.Draft.AddPoint(body.Lat, body.Lon)
		if err != nil {
			return mapDomainError(c, err)
		}
		return c.Status(201).JSON(p)
	}
}

// MovePointHandler updates a waypoint position (drag).
func MovePointHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := deps.Sessions.Get(c.Params("id"))
		if err != nil {
			return mapDomainError(c, err)
		}

		var body pointBody
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid point payload")
		}

		if err := s.Draft.MovePoint(c.Params("pid"), body.Lat, body.Lon); err != nil {
			return mapDomainError(c, err)
		}
		return c.JSON(s.Draft.Snapshot())
	}
}

// DeletePointHandler removes a waypoint. Unknown ids are a no-op.
func DeletePointHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := deps.Sessions.Get(c.Params("id"))
		if err != nil {
			return mapDomainError(c, err)
		}
		if err := s.Draft.DeletePoint(c.Params("pid")); err != nil {
			return mapDomainError(c, err)
		}
		return c.SendStatus(204)
	}
}

// VerifyDraftHandler validates the drafted points against the routing
// service and pins the computed geometry.
func VerifyDraftHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := deps.Sessions.Get(c.Params("id"))
		if err != nil {
			return mapDomainError(c, err)
		}
		geom, err := s.Draft.Verify(c.UserContext())
		if err != nil {
			return mapDomainError(c, err)
		}
		return c.JSON(fiber.Map{
			"geometry": geom,
			"length_m": geospatial.PathLength(geom.Coordinates),
			"draft":    s.Draft.Snapshot(),
		})
	}
}

// CancelValidationHandler returns a validated draft to editing, keeping
// its points.
func CancelValidationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := deps.Sessions.Get(c.Params("id"))
		if err != nil {
			return mapDomainError(c, err)
		}
		if err := s.Draft.CancelValidation(); err != nil {
			return mapDomainError(c, err)
		}
		return c.JSON(s.Draft.Snapshot())
	}
}

// SaveDraftHandler persists the validated draft as a new line.
func SaveDraftHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := deps.Sessions.Get(c.Params("id"))
		if err != nil {
			return mapDomainError(c, err)
		}

		var meta domain.RouteMetadata
		if err := c.BodyParser(&meta); err != nil {
			return errBadRequest(c, "invalid metadata payload")
		}

		line, err := s.Draft.Save(c.UserContext(), meta)
		if err != nil {
			return mapDomainError(c, err)
		}
		return c.Status(201).JSON(line)
	}
}

// DraftPreviewHandler returns a road-following polyline through the
// drafted points, for rendering while the user edits.
func DraftPreviewHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := deps.Sessions.Get(c.Params("id"))
		if err != nil {
			return mapDomainError(c, err)
		}

		snap := s.Draft.Snapshot()
		if len(snap.Points) < 2 {
			return errBadRequest(c, "a preview needs at least two points")
		}

		waypoints := make([]domain.GeoPoint, len(snap.Points))
		for i, p := range snap.Points {
			waypoints[i] = domain.GeoPoint{Lat: p.Lat, Lon: p.Lon}
		}
		geom, err := deps.Preview.Route(c.UserContext(), waypoints)
		if err != nil {
			return mapDomainError(c, err)
		}
		return c.JSON(fiber.Map{
			"geometry": geom,
			"length_m": geospatial.PathLength(geom.Coordinates),
		})
	}
}

// SearchLinesHandler serves the anonymous line search surface. Exactly
// one filter set applies per request: company, from/to schedule window,
// or origin/destination stop ids.
func SearchLinesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		switch {
		case c.Query("company") != "":
			lines, err := deps.Lines.SearchByCompany(ctx, c.Query("company"))
			if err != nil {
				return mapDomainError(c, err)
			}
			return c.JSON(fiber.Map{"lines": lines})

		case c.Query("from") != "" && c.Query("to") != "":
			window := domain.ScheduleWindow{From: c.Query("from"), To: c.Query("to")}
			lines, err := deps.Lines.SearchBySchedule(ctx, window)
			if err != nil {
				return mapDomainError(c, err)
			}
			return c.JSON(fiber.Map{"lines": lines})

		case c.Query("origin") != "" && c.Query("destination") != "":
			origin, err1 := strconv.Atoi(c.Query("origin"))
			destination, err2 := strconv.Atoi(c.Query("destination"))
			if err1 != nil || err2 != nil {
				return errBadRequest(c, "origin and destination must be stop ids")
			}
			lines, err := deps.Lines.SearchByOriginDestination(ctx, origin, destination)
			if err != nil {
				return mapDomainError(c, err)
			}
			return c.JSON(fiber.Map{"lines": lines})

		default:
			return errBadRequest(c, "provide company, from/to, or origin/destination")
		}
	}
}

// DeleteStopHandler removes a stop by name through the line API.
func DeleteStopHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		name, err := url.PathUnescape(c.Params("name"))
		if err != nil || name == "" {
			return errBadRequest(c, "stop name is required")
		}
		if err := deps.Lines.DeleteStop(c.UserContext(), name); err != nil {
			return mapDomainError(c, err)
		}
		return c.SendStatus(204)
	}
}
