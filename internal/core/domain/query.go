package domain

// FeatureType identifies which kind of map feature a candidate is.
type FeatureType string

const (
	FeatureStop FeatureType = "stop"
	FeatureLine FeatureType = "line"
)

// FeatureQueryRequest is a fully-formed WMS GetFeatureInfo query.
// Immutable once built; one instance per issued query.
type FeatureQueryRequest struct {
	Layer       string     `json:"layer"`
	CRS         string     `json:"crs"`
	BBox        [4]float64 `json:"bbox"` // swX, swY, neX, neY in CRS units
	Size        PixelSize  `json:"size"`
	Click       PixelPoint `json:"click"`
	Format      string     `json:"format"`
	Tolerance   int        `json:"tolerance"` // pixel buffer around the click
	MaxFeatures int        `json:"max_features"`
	Style       string     `json:"style,omitempty"`
	CQLFilter   string     `json:"cql_filter,omitempty"`
}

// FeatureCandidate is one feature resolved under a map click. It lives
// for a single click-response cycle.
type FeatureCandidate struct {
	Type        FeatureType    `json:"type"`
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Properties  map[string]any `json:"properties,omitempty"`
}

// Key returns the identity of a candidate across layers. A stop and a
// line may share a raw ID, so the type is part of the key.
func (f FeatureCandidate) Key() string {
	return string(f.Type) + ":" + f.ID
}

// OutcomeKind classifies the result of a click query.
type OutcomeKind string

const (
	OutcomeNone       OutcomeKind = "none"
	OutcomeFeature    OutcomeKind = "feature"
	OutcomeCandidates OutcomeKind = "candidates"
)

// QueryOutcome is the normalized result delivered for a map click.
// Transport failures, timeouts and empty responses all collapse to
// OutcomeNone; they are never surfaced as errors.
type QueryOutcome struct {
	Kind       OutcomeKind        `json:"kind"`
	Feature    *FeatureCandidate  `json:"feature,omitempty"`
	Candidates []FeatureCandidate `json:"candidates,omitempty"`
}
