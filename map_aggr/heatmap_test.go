package map_aggr

import (
	"math"
	"testing"

	"reportmap/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeight(t *testing.T) {
	testCases := []struct {
		confirmations int
		want          float64
	}{
		{-1, 0.5},
		{0, 0.5},
		{1, 0.5},
		{2, 0.6},
		{3, 0.9},
		{4, 1.0},
		{10, 1.0},
	}
	for _, tc := range testCases {
		w := Weight(models.Report{Confirmations: tc.confirmations})
		assert.Equal(t, tc.want, w, "confirmations %d", tc.confirmations)
		assert.True(t, w > 0 && w <= 1)
	}
}

func TestSamplesKeepInputOrder(t *testing.T) {
	h := NewHeatmapAggregator(DefaultHeatmapConfig())
	reports := []models.Report{
		{ID: "z", Latitude: 1, Longitude: 1, Confirmations: 0},
		{ID: "a", Latitude: 1, Longitude: 1, Confirmations: 10},
		{ID: "m", Latitude: 2, Longitude: 2, Confirmations: 2},
	}
	samples, err := h.Samples(reports)
	require.NoError(t, err)
	assert.Equal(t, []models.HeatmapSample{
		{Lat: 1, Lng: 1, Weight: 0.5},
		{Lat: 1, Lng: 1, Weight: 1.0},
		{Lat: 2, Lng: 2, Weight: 0.6},
	}, samples)
}

func TestSamplesRejectInvalid(t *testing.T) {
	h := NewHeatmapAggregator(DefaultHeatmapConfig())
	_, err := h.Samples([]models.Report{{ID: "x", Latitude: math.NaN()}})
	assert.ErrorIs(t, err, models.ErrInvalidCoordinates)
}

func TestRenderConfigIsACopy(t *testing.T) {
	h := NewHeatmapAggregator(DefaultHeatmapConfig())
	cfg := h.RenderConfig()
	cfg.Gradient[0].Color = "black"
	cfg.Radius = 1
	assert.Equal(t, "blue", h.Config.Gradient[0].Color)
	assert.Equal(t, DefaultHeatmapRadius, h.Config.Radius)
	assert.Len(t, h.Config.Gradient, 5)
}
