package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrReportNotFound     = errors.New("report not found")
)

type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate rejects NaN, infinite and out of range values. Coordinates are
// never clamped: a clamped point would silently move a report.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %v", ErrInvalidCoordinates, c.Lat)
	}
	if math.IsNaN(c.Lng) || math.IsInf(c.Lng, 0) || c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("%w: longitude %v", ErrInvalidCoordinates, c.Lng)
	}
	return nil
}

// Report is a single geo-tagged infrastructure report.
type Report struct {
	ID            string    `json:"id"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	Status        Status    `json:"status"`
	Confirmations int       `json:"confirmations"`
	Description   string    `json:"description,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func (r Report) Coordinate() Coordinate {
	return Coordinate{Lat: r.Latitude, Lng: r.Longitude}
}

// Candidate is a report that has not been admitted yet.
type Candidate struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Description string  `json:"description"`
}

func (c Candidate) Coordinate() Coordinate {
	return Coordinate{Lat: c.Latitude, Lng: c.Longitude}
}

// Bounds is a visible rectangle. West may be greater than East when the
// rectangle crosses the antimeridian.
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

func (b Bounds) Validate() error {
	if err := (Coordinate{Lat: b.South, Lng: b.West}).Validate(); err != nil {
		return err
	}
	if err := (Coordinate{Lat: b.North, Lng: b.East}).Validate(); err != nil {
		return err
	}
	if b.South > b.North {
		return fmt.Errorf("%w: south %v is above north %v", ErrInvalidCoordinates, b.South, b.North)
	}
	return nil
}

func (b Bounds) CrossesAntimeridian() bool {
	return b.West > b.East
}

func (b Bounds) Contains(c Coordinate) bool {
	if c.Lat < b.South || c.Lat > b.North {
		return false
	}
	if b.CrossesAntimeridian() {
		return c.Lng >= b.West || c.Lng <= b.East
	}
	return c.Lng >= b.West && c.Lng <= b.East
}

// Padded extends the rectangle by half of its size on every side, so reports
// just outside the view are already loaded when the user pans.
func (b Bounds) Padded() Bounds {
	latSize := b.North - b.South
	lngSize := b.East - b.West
	if b.CrossesAntimeridian() {
		lngSize += 360
	}
	p := Bounds{
		South: math.Max(-90, b.South-latSize/2),
		North: math.Min(90, b.North+latSize/2),
		West:  b.West - lngSize/2,
		East:  b.East + lngSize/2,
	}
	if lngSize*2 >= 360 {
		p.West, p.East = -180, 180
		return p
	}
	if p.West < -180 {
		p.West += 360
	}
	if p.East > 180 {
		p.East -= 360
	}
	return p
}

type ViewportState struct {
	Zoom   float64 `json:"zoom"`
	Bounds *Bounds `json:"bounds,omitempty"`
}
