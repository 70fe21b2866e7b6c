package map_aggr

import (
	"fmt"
	"math"
	"sort"

	"reportmap/models"
)

const (
	tileSize          = 256
	maxMercatorLatDeg = 85.05112878

	DefaultMaxClusterRadiusPixels  = 50
	DefaultDisableClusteringAtZoom = 15

	smallClusterMax  = 8
	mediumClusterMax = 15
)

// project returns Web-Mercator world pixel coordinates at the given zoom.
// Latitude is limited to the Mercator range for the projection only.
func project(c models.Coordinate, zoom float64) (float64, float64) {
	lat := math.Max(-maxMercatorLatDeg, math.Min(maxMercatorLatDeg, c.Lat))
	scale := tileSize * math.Exp2(zoom)
	sin := math.Sin(lat * math.Pi / 180)
	x := (c.Lng/360 + 0.5) * scale
	y := (0.5 - 0.25*math.Log((1+sin)/(1-sin))/math.Pi) * scale
	return x, y
}

type Clusterer struct {
	MaxClusterRadiusPixels float64
	// At and above this zoom reports are not clustered at all, even when the
	// selector asked for clusters.
	DisableClusteringAtZoom float64
}

func NewClusterer() Clusterer {
	return Clusterer{
		MaxClusterRadiusPixels:  DefaultMaxClusterRadiusPixels,
		DisableClusteringAtZoom: DefaultDisableClusteringAtZoom,
	}
}

type pixel struct {
	x, y float64
}

// Cluster groups reports greedily in pixel space. Reports are visited in
// ascending id order; every unclustered report seeds a cluster that absorbs
// each later unclustered report within the radius of its running centroid.
// The result does not depend on the order of the input slice.
//
// markers is true when clustering is disabled at this zoom; clusters is nil
// in that case.
func (c Clusterer) Cluster(reports []models.Report, zoom float64) (clusters []models.ClusterNode, markers bool, err error) {
	if zoom >= c.DisableClusteringAtZoom {
		return nil, true, nil
	}

	ordered := make([]models.Report, len(reports))
	copy(ordered, reports)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	pts := make([]pixel, len(ordered))
	for i, r := range ordered {
		x, y := project(r.Coordinate(), zoom)
		if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
			return nil, false, fmt.Errorf("projecting report %s at zoom %v: non-finite pixel (%v, %v)", r.ID, zoom, x, y)
		}
		pts[i] = pixel{x, y}
	}

	clustered := make([]bool, len(ordered))
	clusters = make([]models.ClusterNode, 0)
	for i := range ordered {
		if clustered[i] {
			continue
		}
		clustered[i] = true
		members := []int{i}
		centroid := pts[i]
		for j := i + 1; j < len(ordered); j++ {
			if clustered[j] {
				continue
			}
			if math.Hypot(pts[j].x-centroid.x, pts[j].y-centroid.y) > c.MaxClusterRadiusPixels {
				continue
			}
			clustered[j] = true
			members = append(members, j)
			n := float64(len(members))
			centroid.x += (pts[j].x - centroid.x) / n
			centroid.y += (pts[j].y - centroid.y) / n
		}
		clusters = append(clusters, newClusterNode(ordered, members))
	}
	return clusters, false, nil
}

func newClusterNode(ordered []models.Report, members []int) models.ClusterNode {
	node := models.ClusterNode{
		MemberIDs: make([]string, len(members)),
		Count:     len(members),
	}
	var sumLat, sumLng float64
	counts := make(map[models.Status]int)
	for k, idx := range members {
		r := ordered[idx]
		node.MemberIDs[k] = r.ID
		sumLat += r.Latitude
		sumLng += r.Longitude
		counts[r.Status]++
	}
	n := float64(len(members))
	node.Centroid = models.Coordinate{Lat: sumLat / n, Lng: sumLng / n}
	node.DominantStatus = dominantStatus(counts)
	node.Size = sizeTier(node.Count)
	return node
}

// dominantStatus picks the status with the most members. Ties go to the more
// urgent status.
func dominantStatus(counts map[models.Status]int) models.Status {
	best := models.StatusReported
	bestCount := -1
	for _, st := range []models.Status{models.StatusReported, models.StatusInProgress, models.StatusFixed} {
		if counts[st] > bestCount {
			best, bestCount = st, counts[st]
		}
	}
	return best
}

func sizeTier(count int) models.ClusterSize {
	switch {
	case count <= smallClusterMax:
		return models.ClusterSmall
	case count <= mediumClusterMax:
		return models.ClusterMedium
	default:
		return models.ClusterLarge
	}
}
