package handlers

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	EndPointHealth        = "/health"
	EndPointMetrics       = "/metrics"
	EndPointReports       = "/reports"
	EndPointCheckReport   = "/reports/check"
	EndPointDuplicates    = "/reports/duplicates"
	EndPointReportStatus  = "/reports/:id/status"
	EndPointConfirmReport = "/reports/:id/confirm"
	EndPointMap           = "/map"
	EndPointMapGeoJSON    = "/map.geojson"
	EndPointLiveMap       = "/map/live"
	apiV3                 = "/api/v3"
)

func NewRouter(h *Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		AllowOrigins:     []string{"*"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{apiV3 + EndPointLiveMap})))

	router.GET(EndPointHealth, h.HealthCheck)
	router.GET(EndPointMetrics, gin.WrapH(promhttp.Handler()))

	v3 := router.Group(apiV3)
	{
		v3.POST(EndPointReports, h.SubmitReport)
		v3.GET(EndPointReports, h.GetReports)
		v3.POST(EndPointCheckReport, h.CheckDuplicates)
		v3.GET(EndPointDuplicates, h.FindDuplicates)
		v3.POST(EndPointReportStatus, h.UpdateStatus)
		v3.POST(EndPointConfirmReport, h.Confirm)
		v3.GET(EndPointMap, h.GetMap)
		v3.GET(EndPointMapGeoJSON, h.GetMapGeoJSON)
		v3.GET(EndPointLiveMap, h.LiveMap)
	}
	return router
}
