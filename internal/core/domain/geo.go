package domain

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// GeoLineString represents an ordered sequence of geographic
// coordinates in GeoJSON axis order, [lon, lat].
type GeoLineString struct {
	Coordinates [][2]float64 `json:"coordinates"`
}

// ProjectedPoint is a coordinate in the map's working CRS (map units,
// e.g. metres for EPSG:3857).
type ProjectedPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PixelPoint is a position in screen pixel space, relative to the
// top-left corner of the map container.
type PixelPoint struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// PixelSize is the size of the map container in pixels.
type PixelSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Viewport captures the live map state at the moment of a click. It is
// rebuilt from the client on every query and never persisted.
type Viewport struct {
	SouthWest GeoPoint  `json:"south_west"`
	NorthEast GeoPoint  `json:"north_east"`
	Size      PixelSize `json:"size"`
	CRS       string    `json:"crs"` // e.g. "EPSG:3857", "EPSG:4326"
}
