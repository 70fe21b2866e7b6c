package geo

import (
	"math"
	"math/rand"
	"testing"

	"reportmap/models"

	"github.com/stretchr/testify/assert"
)

func antipode(c models.Coordinate) models.Coordinate {
	lng := c.Lng + 180
	if lng > 180 {
		lng -= 360
	}
	return models.Coordinate{Lat: -c.Lat, Lng: lng}
}

func randomCoordinate(r *rand.Rand) models.Coordinate {
	return models.Coordinate{Lat: r.Float64()*180 - 90, Lng: r.Float64()*360 - 180}
}

func TestDistanceMetersSymmetryAndIdentity(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		a, b := randomCoordinate(r), randomCoordinate(r)
		assert.Equal(t, DistanceMeters(a, b), DistanceMeters(b, a))
		assert.Equal(t, 0.0, DistanceMeters(a, a))
	}
}

func TestDistanceMetersAntipode(t *testing.T) {
	halfCircumference := math.Pi * EarthRadiusMeters
	r := rand.New(rand.NewSource(11))
	points := []models.Coordinate{{Lat: 0, Lng: 0}, {Lat: 90, Lng: 0}, {Lat: 41.8781, Lng: -87.6298}, {Lat: -33.8688, Lng: 151.2093}}
	for i := 0; i < 500; i++ {
		points = append(points, randomCoordinate(r))
	}
	for _, p := range points {
		d := DistanceMeters(p, antipode(p))
		assert.False(t, math.IsNaN(d), "%v", p)
		assert.InDelta(t, halfCircumference, d, 1, "%v", p)
	}
	assert.InDelta(t, 20015000, halfCircumference, 100)
}

func TestDistanceMetersKnownValues(t *testing.T) {
	chicago := models.Coordinate{Lat: 41.8781, Lng: -87.6298}
	// 0.0001 degrees of longitude at Chicago's latitude.
	assert.InDelta(t, 8.27, DistanceMeters(chicago, models.Coordinate{Lat: 41.8781, Lng: -87.6299}), 0.05)
	// One degree of latitude.
	assert.InDelta(t, 111195, DistanceMeters(models.Coordinate{Lat: 0, Lng: 0}, models.Coordinate{Lat: 1, Lng: 0}), 1)
}

func TestBoundingBoxContainsRadius(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for i := 0; i < 300; i++ {
		c := randomCoordinate(r)
		radius := 5 + r.Float64()*500
		box := BoundingBox(c, radius)
		assert.True(t, box.Contains(c))
		for j := 0; j < 20; j++ {
			p := models.Coordinate{
				Lat: math.Max(-90, math.Min(90, c.Lat+(r.Float64()-0.5)*0.02)),
				Lng: c.Lng + (r.Float64()-0.5)*0.02,
			}
			if p.Lng > 180 {
				p.Lng -= 360
			}
			if p.Lng < -180 {
				p.Lng += 360
			}
			if DistanceMeters(c, p) <= radius {
				assert.True(t, box.Contains(p), "center %v point %v radius %v", c, p, radius)
			}
		}
	}
}

func TestBoundingBoxAntimeridian(t *testing.T) {
	box := BoundingBox(models.Coordinate{Lat: 0, Lng: 179.9999}, 100)
	assert.Len(t, box.Lng, 2)
	assert.True(t, box.Contains(models.Coordinate{Lat: 0, Lng: -179.9999}))
	assert.False(t, box.Contains(models.Coordinate{Lat: 0, Lng: 0}))
}

func TestBoundingBoxPole(t *testing.T) {
	box := BoundingBox(models.Coordinate{Lat: 90, Lng: 0}, 100)
	assert.Equal(t, [][2]float64{{-180, 180}}, box.Lng)
	assert.True(t, box.Contains(models.Coordinate{Lat: 89.9999, Lng: 120}))
}

func TestCellLevelForRadius(t *testing.T) {
	small := CellLevelForRadius(20)
	large := CellLevelForRadius(2000)
	assert.Greater(t, small, large)

	c := models.Coordinate{Lat: 41.8781, Lng: -87.6298}
	assert.Equal(t, small, CellID(c, small).Level())
}
