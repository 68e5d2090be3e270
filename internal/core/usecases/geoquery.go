package usecases

import (
	"errors"
	"fmt"

	"github.com/tsig-uy/mapgate/internal/core/domain"
	"github.com/tsig-uy/mapgate/internal/pkg/geospatial"
)

// ErrNoCRS is returned when the viewport carries no coordinate
// reference system; no query can be formed without one.
var ErrNoCRS = errors.New("viewport has no coordinate reference system")

const (
	defaultInfoFormat  = "application/json"
	defaultTolerance   = 8
	defaultMaxFeatures = 50
)

// QueryOptions tune a feature-info query beyond the layer name.
type QueryOptions struct {
	Style       string
	CQLFilter   string
	Tolerance   int
	MaxFeatures int
	Format      string
}

// BuildFeatureQuery turns the live viewport plus a click position into
// an immutable GetFeatureInfo request for one layer. The geographic
// south-west/north-east corners are reprojected into the viewport CRS;
// corner order is preserved, axis order follows the CRS.
// Pure function of its inputs.
func BuildFeatureQuery(vp domain.Viewport, click domain.PixelPoint, layer string, opts QueryOptions) (*domain.FeatureQueryRequest, error) {
	if vp.CRS == "" {
		return nil, ErrNoCRS
	}
	if layer == "" {
		return nil, errors.New("layer name is required")
	}

	sw, err := project(vp.SouthWest, vp.CRS)
	if err != nil {
		return nil, err
	}
	ne, err := project(vp.NorthEast, vp.CRS)
	if err != nil {
		return nil, err
	}

	tolerance := opts.Tolerance
	if tolerance <= 0 {
		tolerance = defaultTolerance
	}
	maxFeatures := opts.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = defaultMaxFeatures
	}
	format := opts.Format
	if format == "" {
		format = defaultInfoFormat
	}

	return &domain.FeatureQueryRequest{
		Layer:       layer,
		CRS:         vp.CRS,
		BBox:        [4]float64{sw.X, sw.Y, ne.X, ne.Y},
		Size:        vp.Size,
		Click:       click,
		Format:      format,
		Tolerance:   tolerance,
		MaxFeatures: maxFeatures,
		Style:       opts.Style,
		CQLFilter:   opts.CQLFilter,
	}, nil
}

// project converts a geographic corner into working-CRS map units.
// EPSG:4326 keeps geographic coordinates with lon,lat axis order, which
// matches WMS 1.1.1 bounding boxes.
func project(p domain.GeoPoint, crs string) (domain.ProjectedPoint, error) {
	switch crs {
	case "EPSG:3857", "EPSG:900913":
		x, y := geospatial.ProjectMercator(p.Lat, p.Lon)
		return domain.ProjectedPoint{X: x, Y: y}, nil
	case "EPSG:4326", "CRS:84":
		return domain.ProjectedPoint{X: p.Lon, Y: p.Lat}, nil
	default:
		return domain.ProjectedPoint{}, fmt.Errorf("unsupported CRS %q", crs)
	}
}
