// Package geo: distance math and the building proximity strategies; every radius is in meters
package geo

import (
	"math"
)

// EarthRadiusM: mean earth radius used by the great-circle approximation
const EarthRadiusM = 6371000.0

// Point: WGS84 coordinate in degrees
type Point struct {
	Lat float64
	Lon float64
}

// Valid: finite and inside [-90,90] x [-180,180]
func (p Point) Valid() bool {
	return !math.IsNaN(p.Lat) && !math.IsNaN(p.Lon) &&
		p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }

// Haversine: great-circle distance in meters
// 2R·asin(sqrt(sin²(Δlat/2) + cos(lat0)·cos(lat1)·sin²(Δlon/2)))
func Haversine(a, b Point) float64 {
	dLat := rad(b.Lat - a.Lat)
	dLon := rad(b.Lon - a.Lon)
	sLat := math.Sin(dLat / 2)
	sLon := math.Sin(dLon / 2)
	h := sLat*sLat + math.Cos(rad(a.Lat))*math.Cos(rad(b.Lat))*sLon*sLon
	// rounding can push h a hair above 1 for antipodal points
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusM * math.Asin(math.Sqrt(h))
}

// ValidRadius: non-negative and not NaN; +Inf is accepted
func ValidRadius(r float64) bool { return !math.IsNaN(r) && r >= 0 }
