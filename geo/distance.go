// Package geo holds the great-circle math shared by duplicate detection and
// map aggregation.
package geo

import (
	"math"

	"reportmap/models"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

const (
	EarthRadiusMeters = 6371000.0 // mean radius
	degToRad          = math.Pi / 180
)

// DistanceMeters returns the haversine distance between a and b. Inputs must
// already be validated.
func DistanceMeters(a, b models.Coordinate) float64 {
	lat1 := a.Lat * degToRad
	lat2 := b.Lat * degToRad
	dLat := (b.Lat - a.Lat) * degToRad
	dLng := (b.Lng - a.Lng) * degToRad

	sLat := math.Sin(dLat / 2)
	sLng := math.Sin(dLng / 2)
	h := sLat*sLat + math.Cos(lat1)*math.Cos(lat2)*sLng*sLng
	// Rounding can push h slightly outside [0,1] for identical or antipodal
	// points, which would turn the inverse into NaN.
	h = math.Max(0, math.Min(1, h))
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// Box is a cheap latitude/longitude pre-filter around a point. Lng holds one
// range, or two when the box crosses the antimeridian.
type Box struct {
	MinLat float64
	MaxLat float64
	Lng    [][2]float64
}

// BoundingBox returns a box guaranteed to contain every point within
// radiusMeters of c.
func BoundingBox(c models.Coordinate, radiusMeters float64) Box {
	center := s2.PointFromLatLng(s2.LatLngFromDegrees(c.Lat, c.Lng))
	rect := s2.CapFromCenterAngle(center, s1.Angle(radiusMeters/EarthRadiusMeters)).RectBound()

	box := Box{
		MinLat: rect.Lo().Lat.Degrees(),
		MaxLat: rect.Hi().Lat.Degrees(),
	}
	lo := s1.Angle(rect.Lng.Lo).Degrees()
	hi := s1.Angle(rect.Lng.Hi).Degrees()
	switch {
	case rect.Lng.IsFull():
		box.Lng = [][2]float64{{-180, 180}}
	case rect.Lng.IsInverted():
		box.Lng = [][2]float64{{lo, 180}, {-180, hi}}
	default:
		box.Lng = [][2]float64{{lo, hi}}
	}
	return box
}

func (b Box) Contains(c models.Coordinate) bool {
	if c.Lat < b.MinLat || c.Lat > b.MaxLat {
		return false
	}
	for _, r := range b.Lng {
		if c.Lng >= r[0] && c.Lng <= r[1] {
			return true
		}
	}
	return false
}

// CellLevelForRadius returns the deepest S2 level whose cells are at least
// radiusMeters wide, so two points closer than the radius always fall in the
// same or in adjacent cells.
func CellLevelForRadius(radiusMeters float64) int {
	return s2.MinWidthMetric.MaxLevel(radiusMeters / EarthRadiusMeters)
}

// CellID returns the geocell containing c at the given level.
func CellID(c models.Coordinate, level int) s2.CellID {
	return s2.CellIDFromLatLng(s2.LatLngFromDegrees(c.Lat, c.Lng)).Parent(level)
}
