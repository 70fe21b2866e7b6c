package guard

import (
	"sort"

	"reportmap/geo"
	"reportmap/models"

	"github.com/golang/geo/s2"
)

// DuplicatePair is two stored reports closer than the guard radius. It can
// only exist if the store's atomicity was bypassed; it is surfaced for a
// manual merge.
type DuplicatePair struct {
	FirstID        string  `json:"first_id"`
	SecondID       string  `json:"second_id"`
	DistanceMeters float64 `json:"distance_meters"`
}

// FindDuplicates buckets reports into S2 geocells at least radiusMeters wide
// and compares every report with the reports in its own and neighbouring
// cells. Pairs are ordered by FirstID, then SecondID, with FirstID < SecondID.
func FindDuplicates(reports []models.Report, radiusMeters float64) []DuplicatePair {
	level := geo.CellLevelForRadius(radiusMeters)
	cells := make(map[s2.CellID][]models.Report)
	for _, r := range reports {
		if r.Coordinate().Validate() != nil {
			continue
		}
		id := geo.CellID(r.Coordinate(), level)
		cells[id] = append(cells[id], r)
	}

	seen := make(map[[2]string]bool)
	var pairs []DuplicatePair
	for cell, members := range cells {
		neighbours := append(cell.AllNeighbors(level), cell)
		for _, a := range members {
			for _, n := range neighbours {
				for _, b := range cells[n] {
					if a.ID >= b.ID {
						continue
					}
					key := [2]string{a.ID, b.ID}
					if seen[key] {
						continue
					}
					d := geo.DistanceMeters(a.Coordinate(), b.Coordinate())
					if d <= radiusMeters {
						seen[key] = true
						pairs = append(pairs, DuplicatePair{FirstID: a.ID, SecondID: b.ID, DistanceMeters: d})
					}
				}
			}
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].FirstID != pairs[j].FirstID {
			return pairs[i].FirstID < pairs[j].FirstID
		}
		return pairs[i].SecondID < pairs[j].SecondID
	})
	return pairs
}
