package map_aggr

import (
	"fmt"

	"reportmap/models"

	"github.com/shopspring/decimal"
)

const (
	DefaultHeatmapRadius = 25
	DefaultHeatmapBlur   = 15
)

var (
	minHeatmapWeight = decimal.RequireFromString("0.5")
	maxHeatmapWeight = decimal.NewFromInt(1)
	confirmationStep = decimal.RequireFromString("0.3")
)

// DefaultGradient is the blue to red ramp the map front end draws with.
func DefaultGradient() []models.GradientStop {
	return []models.GradientStop{
		{Stop: 0.4, Color: "blue"},
		{Stop: 0.6, Color: "cyan"},
		{Stop: 0.7, Color: "lime"},
		{Stop: 0.8, Color: "yellow"},
		{Stop: 1.0, Color: "red"},
	}
}

func DefaultHeatmapConfig() models.HeatmapConfig {
	return models.HeatmapConfig{
		Radius:   DefaultHeatmapRadius,
		Blur:     DefaultHeatmapBlur,
		Gradient: DefaultGradient(),
	}
}

type HeatmapAggregator struct {
	Config models.HeatmapConfig
}

func NewHeatmapAggregator(cfg models.HeatmapConfig) HeatmapAggregator {
	return HeatmapAggregator{Config: cfg}
}

// Weight is 0.5 for an unconfirmed report and confirmations*0.3 clamped to
// [0.5, 1.0] otherwise.
func Weight(r models.Report) float64 {
	if r.Confirmations < 1 {
		f, _ := minHeatmapWeight.Float64()
		return f
	}
	w := confirmationStep.Mul(decimal.NewFromInt(int64(r.Confirmations)))
	if w.LessThan(minHeatmapWeight) {
		w = minHeatmapWeight
	}
	if w.GreaterThan(maxHeatmapWeight) {
		w = maxHeatmapWeight
	}
	f, _ := w.Float64()
	return f
}

// Samples emits one weighted sample per report, in input order. Nearby
// reports are not merged; density comes from the renderer's kernel.
func (h HeatmapAggregator) Samples(reports []models.Report) ([]models.HeatmapSample, error) {
	samples := make([]models.HeatmapSample, 0, len(reports))
	for _, r := range reports {
		if err := r.Coordinate().Validate(); err != nil {
			return nil, fmt.Errorf("heatmap sample for report %s: %w", r.ID, err)
		}
		samples = append(samples, models.HeatmapSample{
			Lat:    r.Latitude,
			Lng:    r.Longitude,
			Weight: Weight(r),
		})
	}
	return samples, nil
}

// RenderConfig returns a copy of the configuration for a result payload.
func (h HeatmapAggregator) RenderConfig() *models.HeatmapConfig {
	cfg := h.Config
	cfg.Gradient = append([]models.GradientStop(nil), h.Config.Gradient...)
	return &cfg
}
