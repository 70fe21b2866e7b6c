package map_aggr

import "reportmap/models"

// Thresholds split the zoom axis into the three rendering modes. Both bounds
// are inclusive on the lower mode.
type Thresholds struct {
	HeatmapMaxZoom float64
	ClusterMaxZoom float64
}

var DefaultThresholds = Thresholds{HeatmapMaxZoom: 11, ClusterMaxZoom: 14}

// SelectMode maps a zoom level to a mode. It keeps no history: the same zoom
// always gives the same mode. A NaN zoom falls through to markers.
func SelectMode(zoom float64, th Thresholds) models.Mode {
	switch {
	case zoom <= th.HeatmapMaxZoom:
		return models.ModeHeatmap
	case zoom <= th.ClusterMaxZoom:
		return models.ModeCluster
	default:
		return models.ModeMarkers
	}
}
