package domain

// DraftState is the lifecycle state of a route being authored.
type DraftState string

const (
	DraftIdle       DraftState = "idle"
	DraftDrafting   DraftState = "drafting"
	DraftValidating DraftState = "validating"
	DraftValidated  DraftState = "validated"
	DraftSaving     DraftState = "saving"
)

// RoutePoint is a user-placed waypoint. The ID is generated client-side
// on creation and stays stable across drags and reorders.
type RoutePoint struct {
	ID  string  `json:"id"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// RouteMetadata is the descriptive payload attached to a route on save.
type RouteMetadata struct {
	Description  string `json:"description" validate:"required,min=1,max=200"`
	Company      string `json:"company" validate:"required,min=1,max=100"`
	Observations string `json:"observations,omitempty" validate:"max=500"`
}

// DraftRoute is a snapshot of the drafting state machine. Geometry is
// non-nil only once the routing service has validated the points.
type DraftRoute struct {
	State    DraftState     `json:"state"`
	Points   []RoutePoint   `json:"points"`
	Geometry *GeoLineString `json:"geometry,omitempty"`
}

// Line is a persisted transit line as returned by the line API.
type Line struct {
	ID           int            `json:"id"`
	Description  string         `json:"description"`
	Company      string         `json:"company"`
	Observations string         `json:"observations,omitempty"`
	Origin       string         `json:"origin,omitempty"`
	Destination  string         `json:"destination,omitempty"`
	Enabled      bool           `json:"enabled"`
	Points       []RoutePoint   `json:"points,omitempty"`
	Geometry     *GeoLineString `json:"geometry,omitempty"`
}

// ScheduleWindow is a from/to time-of-day filter for line searches,
// in "HH:MM:SS" form.
type ScheduleWindow struct {
	From string `json:"from"`
	To   string `json:"to"`
}
