package geospatial

import "math"

// Spherical-Mercator constants (EPSG:3857).
const (
	earthRadiusMercator = 6378137.0
	maxMercatorLat      = 85.0511287798
)

// ProjectMercator converts a WGS 84 coordinate into EPSG:3857 map units.
// Latitude is clamped to the Mercator validity range.
func ProjectMercator(lat, lon float64) (x, y float64) {
	if lat > maxMercatorLat {
		lat = maxMercatorLat
	}
	if lat < -maxMercatorLat {
		lat = -maxMercatorLat
	}
	x = earthRadiusMercator * toRad(lon)
	y = earthRadiusMercator * math.Log(math.Tan(math.Pi/4+toRad(lat)/2))
	return x, y
}

// UnprojectMercator converts EPSG:3857 map units back to WGS 84.
func UnprojectMercator(x, y float64) (lat, lon float64) {
	lon = toDeg(x / earthRadiusMercator)
	lat = toDeg(2*math.Atan(math.Exp(y/earthRadiusMercator)) - math.Pi/2)
	return lat, lon
}

func toDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}
