package matching

import (
	"math"

	"github.com/carelink/homecare-scheduler/pkg/types"
)

const earthRadiusMiles = 3958.8

// ApproxDistanceMiles estimates the distance between two addresses.
// Geocoded coordinates are used when both sides carry them; otherwise a
// zip-prefix heuristic stands in, mirroring the coarse distance the rest of
// the scoring pipeline expects.
func ApproxDistanceMiles(a, b types.Address) float64 {
	if a.Latitude != nil && a.Longitude != nil && b.Latitude != nil && b.Longitude != nil {
		return haversineMiles(*a.Latitude, *a.Longitude, *b.Latitude, *b.Longitude)
	}

	switch {
	case a.Zip != "" && a.Zip == b.Zip:
		return 2
	case len(a.Zip) >= 3 && len(b.Zip) >= 3 && a.Zip[:3] == b.Zip[:3]:
		return 10
	case a.City != "" && a.City == b.City && a.State == b.State:
		return 15
	case a.State != "" && a.State == b.State:
		return 40
	default:
		return 100
	}
}

func haversineMiles(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusMiles * math.Asin(math.Sqrt(h))
}
