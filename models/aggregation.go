package models

// Mode is the rendering mode chosen for a viewport.
type Mode string

const (
	ModeHeatmap Mode = "heatmap"
	ModeCluster Mode = "cluster"
	ModeMarkers Mode = "markers"
)

type ClusterSize string

const (
	ClusterSmall  ClusterSize = "small"
	ClusterMedium ClusterSize = "medium"
	ClusterLarge  ClusterSize = "large"
)

type ClusterNode struct {
	Centroid       Coordinate  `json:"centroid"`
	MemberIDs      []string    `json:"member_ids"`
	Count          int         `json:"count"`
	DominantStatus Status      `json:"dominant_status"`
	Size           ClusterSize `json:"size"`
}

type HeatmapSample struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Weight float64 `json:"weight"`
}

type GradientStop struct {
	Stop  float64 `json:"stop"`
	Color string  `json:"color"`
}

// HeatmapConfig is presentation configuration for the render surface. It is
// passed through untouched.
type HeatmapConfig struct {
	Radius   int            `json:"radius"`
	Blur     int            `json:"blur"`
	Gradient []GradientStop `json:"gradient"`
}

// AggregationResult is a tagged union: exactly one of Samples, Clusters and
// Markers is set, selected by Mode.
type AggregationResult struct {
	Mode     Mode            `json:"mode"`
	Zoom     float64         `json:"zoom"`
	Samples  []HeatmapSample `json:"samples,omitempty"`
	Heatmap  *HeatmapConfig  `json:"heatmap,omitempty"`
	Clusters []ClusterNode   `json:"clusters,omitempty"`
	Markers  []Report        `json:"markers,omitempty"`
	Rejected []string        `json:"rejected,omitempty"`
	Degraded bool            `json:"degraded,omitempty"`
}
