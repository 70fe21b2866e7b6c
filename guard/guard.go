// Package guard keeps two reports from being admitted at nearly the same
// physical location.
//
// Admit is the read-only check. It is only safe for a single writer: two
// concurrent submissions can both pass it before either is inserted. Stores
// therefore expose InsertIfNoneWithin, which runs the same check and the
// insert as one atomic operation, and multi-writer deployments must use it.
package guard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"reportmap/geo"
	"reportmap/models"
)

const DefaultRadiusMeters = 20.0

// ErrStoreUnavailable means the duplicate check could not run. It is
// retryable and must never be read as "no duplicates".
var ErrStoreUnavailable = errors.New("report store unavailable")

type NearbyReport struct {
	ID             string  `json:"id"`
	DistanceMeters float64 `json:"distance_meters"`
}

// ConflictError rejects a candidate; Nearby is sorted by ascending distance.
type ConflictError struct {
	RadiusMeters float64
	Nearby       []NearbyReport
}

func (e *ConflictError) Error() string {
	ids := make([]string, len(e.Nearby))
	for i, n := range e.Nearby {
		ids[i] = n.ID
	}
	return fmt.Sprintf("%d existing report(s) within %g m: %s", len(e.Nearby), e.RadiusMeters, strings.Join(ids, ", "))
}

// Finder is the store query the guard depends on.
type Finder interface {
	FindWithinRadius(ctx context.Context, lat, lng, radiusMeters float64) ([]models.Report, error)
}

// Unavailable wraps a store failure so callers can detect it with
// errors.Is(err, ErrStoreUnavailable).
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// Admit returns nil when no report lies within radiusMeters of candidate,
// a *ConflictError when some do, and an ErrStoreUnavailable error when the
// finder failed.
func Admit(ctx context.Context, candidate models.Coordinate, radiusMeters float64, finder Finder) error {
	if err := candidate.Validate(); err != nil {
		return err
	}
	found, err := finder.FindWithinRadius(ctx, candidate.Lat, candidate.Lng, radiusMeters)
	if err != nil {
		return Unavailable(err)
	}
	return Check(candidate, found, radiusMeters)
}

// Check is the exact step of the guard, run on pre-filtered candidates.
func Check(candidate models.Coordinate, found []models.Report, radiusMeters float64) error {
	nearby := Nearby(candidate, found, radiusMeters)
	if len(nearby) == 0 {
		return nil
	}
	return &ConflictError{RadiusMeters: radiusMeters, Nearby: nearby}
}

// Nearby computes exact distances, keeps the reports within radiusMeters and
// sorts them by distance, then id.
func Nearby(candidate models.Coordinate, reports []models.Report, radiusMeters float64) []NearbyReport {
	var res []NearbyReport
	for _, r := range reports {
		c := r.Coordinate()
		if c.Validate() != nil {
			continue
		}
		d := geo.DistanceMeters(candidate, c)
		if d <= radiusMeters {
			res = append(res, NearbyReport{ID: r.ID, DistanceMeters: d})
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].DistanceMeters != res[j].DistanceMeters {
			return res[i].DistanceMeters < res[j].DistanceMeters
		}
		return res[i].ID < res[j].ID
	})
	return res
}
