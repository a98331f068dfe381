package optimizer

import "math"

// earthRadiusKm is the mean Earth radius used by the great-circle formula.
const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance in kilometers between two
// WGS84 coordinates. It is the engine's default DistanceFunc.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	return haversineKm(lat1, lon1, lat2, lon2)
}

// haversineKm returns the great-circle distance in kilometers between two
// WGS84 coordinates.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	lat1r := lat1 * math.Pi / 180
	lat2r := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	a := sinLat*sinLat + math.Cos(lat1r)*math.Cos(lat2r)*sinLon*sinLon
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// projected is a point on the local tangent plane, in kilometers relative to
// the projection origin.
type projected struct {
	x, y float64
}

// projectEquirect maps (lat,lon) pairs onto a local tangent plane centered on
// the set's mean coordinate, scaling longitude by the cosine of the center
// latitude so Euclidean distance in the projection approximates kilometers.
// Accurate at city scales (<50 km spans); larger service areas would need a
// proper local projection.
func projectEquirect(tickets []Ticket) []projected {
	if len(tickets) == 0 {
		return nil
	}

	var meanLat, meanLon float64
	for i := range tickets {
		meanLat += tickets[i].Lat
		meanLon += tickets[i].Lon
	}
	meanLat /= float64(len(tickets))
	meanLon /= float64(len(tickets))

	kmPerDegLat := earthRadiusKm * math.Pi / 180
	kmPerDegLon := kmPerDegLat * math.Cos(meanLat*math.Pi/180)

	out := make([]projected, len(tickets))
	for i := range tickets {
		out[i] = projected{
			x: (tickets[i].Lon - meanLon) * kmPerDegLon,
			y: (tickets[i].Lat - meanLat) * kmPerDegLat,
		}
	}
	return out
}

// sqDist returns the squared Euclidean distance between projected points.
func sqDist(a, b projected) float64 {
	dx := a.x - b.x
	dy := a.y - b.y
	return dx*dx + dy*dy
}
