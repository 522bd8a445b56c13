package geo

import "github.com/mmcloughlin/geohash"

// DefaultGeohashPrecision gives cells of roughly 1.2km x 0.6km.
const DefaultGeohashPrecision = 6

// Geohash encodes the coordinate as a base32 geohash of the given length.
// Precision is clamped to [1, 12].
func Geohash(lat, lng float64, precision int) string {
	if precision < 1 {
		precision = 1
	}
	if precision > 12 {
		precision = 12
	}
	return geohash.EncodeWithPrecision(lat, lng, uint(precision))
}

// Geohash encodes the point at DefaultGeohashPrecision.
func (p Point) Geohash() string {
	return Geohash(p.Lat, p.Lng, DefaultGeohashPrecision)
}
