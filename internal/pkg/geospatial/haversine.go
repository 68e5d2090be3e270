package geospatial

import "math"

const earthRadiusKm = 6371.0

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c * 1000 // meters
}

// PathLength sums the haversine distance in meters along an ordered
// sequence of GeoJSON [lon, lat] pairs.
func PathLength(coords [][2]float64) float64 {
	var total float64
	for i := 1; i < len(coords); i++ {
		total += Haversine(coords[i-1][1], coords[i-1][0], coords[i][1], coords[i][0])
	}
	return total
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
