package map_aggr

import (
	"reportmap/models"

	geojson "github.com/paulmach/go.geojson"
)

// ToFeatureCollection renders a result as GeoJSON Point features. Every
// feature carries a "kind" property: "sample", "cluster" or "marker".
func ToFeatureCollection(res models.AggregationResult) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, s := range res.Samples {
		f := geojson.NewPointFeature([]float64{s.Lng, s.Lat})
		f.SetProperty("kind", "sample")
		f.SetProperty("weight", s.Weight)
		fc.AddFeature(f)
	}
	for _, c := range res.Clusters {
		f := geojson.NewPointFeature([]float64{c.Centroid.Lng, c.Centroid.Lat})
		f.SetProperty("kind", "cluster")
		f.SetProperty("count", c.Count)
		f.SetProperty("member_ids", c.MemberIDs)
		f.SetProperty("dominant_status", string(c.DominantStatus))
		f.SetProperty("size", string(c.Size))
		fc.AddFeature(f)
	}
	for _, r := range res.Markers {
		f := geojson.NewPointFeature([]float64{r.Longitude, r.Latitude})
		f.ID = r.ID
		f.SetProperty("kind", "marker")
		f.SetProperty("status", string(r.Status))
		f.SetProperty("confirmations", r.Confirmations)
		if r.Description != "" {
			f.SetProperty("description", r.Description)
		}
		fc.AddFeature(f)
	}
	return fc
}
