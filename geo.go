// Package storegeo places retail stores on the map and ranks them by
// distance from a user. It resolves approximate coordinates for stores that
// lack them, filters and ranks store lists, and caches datasets with a
// fixed time-to-live.
package storegeo

import (
	"math"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// earthRadiusKm is the mean Earth radius used for all distance calculations.
const earthRadiusKm = 6371.0

// Coordinates is a latitude/longitude pair in degrees.
type Coordinates struct {
	Lat float64 `json:"lat" toml:"lat" yaml:"lat"`
	Lng float64 `json:"lng" toml:"lng" yaml:"lng"`
}

// DistanceTo returns the great-circle distance to o in kilometers.
func (c Coordinates) DistanceTo(o Coordinates) float64 {
	return DistanceKm(c.Lat, c.Lng, o.Lat, o.Lng)
}

// IsFinite reports whether both components are finite numbers.
func (c Coordinates) IsFinite() bool {
	return !math.IsNaN(c.Lat) && !math.IsNaN(c.Lng) &&
		!math.IsInf(c.Lat, 0) && !math.IsInf(c.Lng, 0)
}

func (c Coordinates) latLng() s2.LatLng {
	return s2.LatLngFromDegrees(c.Lat, c.Lng)
}

// DistanceKm returns the haversine distance in kilometers between two points
// given in degrees. Inputs are not validated; out-of-range values still
// produce a number.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	// Endpoints are put in a fixed order so the result is bit-for-bit
	// symmetric; the haversine product terms are not commutative in floating
	// point.
	if lat2 < lat1 || (lat2 == lat1 && lon2 < lon1) {
		lat1, lon1, lat2, lon2 = lat2, lon2, lat1, lon1
	}
	a := s2.LatLngFromDegrees(lat1, lon1)
	b := s2.LatLngFromDegrees(lat2, lon2)
	return angleToKm(a.Distance(b))
}

func angleToKm(a s1.Angle) float64 {
	return a.Radians() * earthRadiusKm
}

func kmToAngle(km float64) s1.Angle {
	return s1.Angle(km/earthRadiusKm) * s1.Radian
}

// Bounds is a latitude/longitude box, inclusive on all edges.
type Bounds struct {
	MinLat float64 `json:"min_lat" toml:"min_lat" yaml:"min_lat" validate:"gte=-90,lte=90"`
	MaxLat float64 `json:"max_lat" toml:"max_lat" yaml:"max_lat" validate:"gte=-90,lte=90,gtefield=MinLat"`
	MinLng float64 `json:"min_lng" toml:"min_lng" yaml:"min_lng" validate:"gte=-180,lte=180"`
	MaxLng float64 `json:"max_lng" toml:"max_lng" yaml:"max_lng" validate:"gte=-180,lte=180,gtefield=MinLng"`
}

// Contains reports whether c is finite and lies inside b.
func (b Bounds) Contains(c Coordinates) bool {
	if !c.IsFinite() {
		return false
	}
	return c.Lat >= b.MinLat && c.Lat <= b.MaxLat &&
		c.Lng >= b.MinLng && c.Lng <= b.MaxLng
}
