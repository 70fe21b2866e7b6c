package handlers

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"reportmap/guard"
	"reportmap/map_aggr"
	"reportmap/models"
	"reportmap/service"
	ws "reportmap/websocket"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
)

const (
	retryAfterSeconds = "1"
	maxZoom           = 30
)

type Handlers struct {
	service *service.ReportService
	hub     *ws.Hub
}

func NewHandlers(svc *service.ReportService, hub *ws.Hub) *Handlers {
	return &Handlers{service: svc, hub: hub}
}

type SubmitReportRequest struct {
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	Description  string   `json:"description"`
	RadiusMeters float64  `json:"radius_meters"`
}

func (r *SubmitReportRequest) candidate() (models.Candidate, error) {
	if r.Latitude == nil || r.Longitude == nil {
		return models.Candidate{}, fmt.Errorf("%w: latitude and longitude are required", models.ErrInvalidCoordinates)
	}
	if r.RadiusMeters < 0 || math.IsNaN(r.RadiusMeters) {
		return models.Candidate{}, fmt.Errorf("radius_meters must not be negative")
	}
	return models.Candidate{Latitude: *r.Latitude, Longitude: *r.Longitude, Description: r.Description}, nil
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// HealthCheck reports whether the store answers.
func (h *Handlers) HealthCheck(c *gin.Context) {
	clients := 0
	if h.hub != nil {
		clients = h.hub.ClientCount()
	}
	if err := h.service.Ping(c.Request.Context()); err != nil {
		log.WithError(err).Warn("health check: store ping failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"service": "reportmap",
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"service":      "reportmap",
		"live_clients": clients,
	})
}

func (h *Handlers) SubmitReport(c *gin.Context) {
	args := &SubmitReportRequest{}
	if err := c.ShouldBindJSON(args); err != nil {
		log.Warnf("Failed to get the argument in submit report call: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	candidate, err := args.candidate()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	r, err := h.service.SubmitReport(c.Request.Context(), candidate, args.RadiusMeters)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h *Handlers) CheckDuplicates(c *gin.Context) {
	args := &SubmitReportRequest{}
	if err := c.ShouldBindJSON(args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	candidate, err := args.candidate()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	nearby, err := h.service.CheckDuplicates(c.Request.Context(), candidate.Coordinate(), args.RadiusMeters)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"nearby": nearby})
}

func (h *Handlers) GetReports(c *gin.Context) {
	bounds, err := parseBounds(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reports, err := h.service.Snapshot(c.Request.Context(), bounds)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports, "count": len(reports)})
}

func (h *Handlers) UpdateStatus(c *gin.Context) {
	args := &UpdateStatusRequest{}
	if err := c.ShouldBindJSON(args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status, err := models.ParseStatus(args.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handlers) Confirm(c *gin.Context) {
	r, err := h.service.Confirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handlers) FindDuplicates(c *gin.Context) {
	radius := 0.0
	if s, ok := c.GetQuery("radius_meters"); ok {
		var err error
		if radius, err = strconv.ParseFloat(s, 64); err != nil || radius <= 0 || math.IsInf(radius, 0) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid radius_meters %q", s)})
			return
		}
	}
	pairs, err := h.service.FindDuplicates(c.Request.Context(), radius)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pairs": pairs})
}

func (h *Handlers) GetMap(c *gin.Context) {
	res, ok := h.aggregate(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handlers) GetMapGeoJSON(c *gin.Context) {
	res, ok := h.aggregate(c)
	if !ok {
		return
	}
	fc := map_aggr.ToFeatureCollection(res)
	data, err := fc.MarshalJSON()
	if err != nil {
		log.WithError(err).Error("failed to marshal map geojson")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render geojson"})
		return
	}
	c.Header("X-Map-Mode", string(res.Mode))
	c.Data(http.StatusOK, "application/geo+json", data)
}

func (h *Handlers) aggregate(c *gin.Context) (models.AggregationResult, bool) {
	vp, err := parseViewport(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return models.AggregationResult{}, false
	}
	res, err := h.service.Aggregate(c.Request.Context(), vp)
	if err != nil {
		writeError(c, err)
		return models.AggregationResult{}, false
	}
	return res, true
}

var upgrader = gorilla.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// LiveMap upgrades to a websocket that streams aggregates for the viewports
// the client sends.
func (h *Handlers) LiveMap(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warnf("Failed to upgrade connection to WebSocket: %v", err)
		return
	}
	h.hub.Serve(conn)
}

func writeError(c *gin.Context, err error) {
	var conflict *guard.ConflictError
	switch {
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":         conflict.Error(),
			"radius_meters": conflict.RadiusMeters,
			"nearby":        conflict.Nearby,
		})
	case errors.Is(err, models.ErrInvalidCoordinates):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrReportNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, guard.ErrStoreUnavailable):
		c.Header("Retry-After", retryAfterSeconds)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		log.WithError(err).Error("unhandled request error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// parseBounds reads sw_lat, sw_lon, ne_lat and ne_lon. All four or none must
// be present.
func parseBounds(c *gin.Context) (*models.Bounds, error) {
	keys := []string{"sw_lat", "sw_lon", "ne_lat", "ne_lon"}
	vals := make([]float64, len(keys))
	present := 0
	for i, k := range keys {
		s, ok := c.GetQuery(k)
		if !ok {
			continue
		}
		present++
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", k, err)
		}
		vals[i] = v
	}
	switch present {
	case 0:
		return nil, nil
	case len(keys):
	default:
		return nil, errors.New("sw_lat, sw_lon, ne_lat and ne_lon must be given together")
	}
	b := &models.Bounds{South: vals[0], West: vals[1], North: vals[2], East: vals[3]}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

func parseViewport(c *gin.Context) (models.ViewportState, error) {
	s, ok := c.GetQuery("zoom")
	if !ok {
		return models.ViewportState{}, errors.New("zoom is required")
	}
	zoom, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(zoom) || math.IsInf(zoom, 0) || zoom < 0 || zoom > maxZoom {
		return models.ViewportState{}, fmt.Errorf("invalid zoom %q", s)
	}
	bounds, err := parseBounds(c)
	if err != nil {
		return models.ViewportState{}, err
	}
	return models.ViewportState{Zoom: zoom, Bounds: bounds}, nil
}
