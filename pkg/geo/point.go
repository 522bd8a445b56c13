package geo

import (
	"fmt"
	"math"
)

// SRID is the spatial reference id of WGS 84 coordinates.
const SRID = 4326

// EarthRadiusMeters is the mean earth radius used for ground distances.
const EarthRadiusMeters = 6371000.0

// Point is a WGS 84 coordinate.
type Point struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Validate checks the coordinate ranges.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude %f out of range [-90, 90]", p.Lat)
	}
	if math.IsNaN(p.Lng) || p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("longitude %f out of range [-180, 180]", p.Lng)
	}
	return nil
}

func (p Point) String() string {
	return fmt.Sprintf("(%f, %f)", p.Lat, p.Lng)
}

// Distance returns the great-circle distance in meters between a and b.
func Distance(a, b Point) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
