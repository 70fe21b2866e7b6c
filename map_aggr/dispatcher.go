package map_aggr

import (
	"fmt"

	"reportmap/models"

	"github.com/apex/log"
)

// Dispatcher turns a report set and a viewport into one renderable result.
// It holds configuration only and is safe for concurrent use.
type Dispatcher struct {
	Thresholds Thresholds
	Clusterer  Clusterer
	Heatmap    HeatmapAggregator
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		Thresholds: DefaultThresholds,
		Clusterer:  NewClusterer(),
		Heatmap:    NewHeatmapAggregator(DefaultHeatmapConfig()),
	}
}

// Aggregate drops reports with invalid coordinates, picks the mode for the
// viewport zoom and runs the matching aggregator. If the aggregator fails
// the valid reports are returned as markers with Degraded set.
func (d *Dispatcher) Aggregate(reports []models.Report, viewport models.ViewportState) (res models.AggregationResult) {
	valid := make([]models.Report, 0, len(reports))
	var rejected []string
	for _, r := range reports {
		if err := r.Coordinate().Validate(); err != nil {
			log.WithFields(log.Fields{
				"report_id": r.ID,
				"latitude":  r.Latitude,
				"longitude": r.Longitude,
			}).Warn("dropping report with invalid coordinates")
			rejected = append(rejected, r.ID)
			continue
		}
		valid = append(valid, r)
	}

	mode := SelectMode(viewport.Zoom, d.Thresholds)
	defer func() {
		if p := recover(); p != nil {
			res = d.degrade(valid, viewport, rejected, mode, fmt.Errorf("panic: %v", p))
		}
	}()

	res = models.AggregationResult{Mode: mode, Zoom: viewport.Zoom, Rejected: rejected}
	switch mode {
	case models.ModeHeatmap:
		samples, err := d.Heatmap.Samples(valid)
		if err != nil {
			return d.degrade(valid, viewport, rejected, mode, err)
		}
		res.Samples = samples
		res.Heatmap = d.Heatmap.RenderConfig()
	case models.ModeCluster:
		clusters, markers, err := d.Clusterer.Cluster(valid, viewport.Zoom)
		if err != nil {
			return d.degrade(valid, viewport, rejected, mode, err)
		}
		if markers {
			res.Mode = models.ModeMarkers
			res.Markers = valid
		} else {
			res.Clusters = clusters
		}
	default:
		res.Markers = valid
	}
	return res
}

func (d *Dispatcher) degrade(valid []models.Report, viewport models.ViewportState, rejected []string, mode models.Mode, err error) models.AggregationResult {
	log.WithError(err).WithFields(log.Fields{
		"mode":    mode,
		"zoom":    viewport.Zoom,
		"reports": len(valid),
	}).Error("aggregation failed, falling back to markers")
	return models.AggregationResult{
		Mode:     models.ModeMarkers,
		Zoom:     viewport.Zoom,
		Markers:  valid,
		Rejected: rejected,
		Degraded: true,
	}
}
