package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"hazard-service/internal/domain/hazard"
	"hazard-service/internal/geofence"
	"hazard-service/internal/service"
	"hazard-service/internal/transport/mqtt"
)

type Handler struct {
	hazardService *service.HazardService
	hub           *service.SubscriberHub
	zones         *geofence.Registry
	broker        *mqtt.Stats
	log           zerolog.Logger
}

// NewHandler wires the API. broker is nil when no MQTT broker is configured.
func NewHandler(
	hazardService *service.HazardService,
	hub *service.SubscriberHub,
	zones *geofence.Registry,
	broker *mqtt.Stats,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		hazardService: hazardService,
		hub:           hub,
		zones:         zones,
		broker:        broker,
		log:           log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	r.GET("/api/health", h.health)

	public := r.Group("/api/v1")
	{
		public.POST("/hazards/events", h.createHazardEvent)
		public.GET("/hazards/nearby", h.findNearby)
		public.GET("/hazards", h.listHazards)
		public.GET("/hazards/:id", h.getHazard)
		public.PUT("/subscribers/:id/position", h.updatePosition)
		public.GET("/subscribers/:id", h.getSubscriber)
		public.DELETE("/subscribers/:id", h.disconnectSubscriber)
		public.GET("/status", h.status)
		public.GET("/database/status", h.databaseStatus)
		public.GET("/mqtt/status", h.mqttStatus)

		public.GET("/analytics/trends", h.trends)
		public.GET("/analytics/distribution", h.distribution)
		public.GET("/analytics/stats", h.analyticsStats)
		public.GET("/analytics/heatmap", h.heatmap)

		public.GET("/geofence/zones", h.listZones)
		public.GET("/geofence/zones/:id", h.getZone)
		public.GET("/geofence/lookup", h.lookupZones)
		public.GET("/geofence/zones/:id/devices", h.listZoneDevices)
		public.PUT("/geofence/zones/:id/devices/:device", h.subscribeDevice)
		public.DELETE("/geofence/zones/:id/devices/:device", h.unsubscribeDevice)
	}

	protected := r.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.PATCH("/hazards/:id/status", h.updateStatus)
		protected.DELETE("/hazards/:id", h.deleteHazard)
		protected.DELETE("/hazards/cleanup", h.cleanup)
		protected.POST("/admin/cache/flush", h.flushCache)
		protected.POST("/geofence/zones", h.createZone)
		protected.PATCH("/geofence/zones/:id", h.setZoneActive)
		protected.DELETE("/geofence/zones/:id", h.deleteZone)
	}
}

func (h *Handler) createHazardEvent(c *gin.Context) {
	var payload hazard.EventPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	result, err := h.hazardService.ProcessIncomingEvent(c.Request.Context(), payload)
	if err != nil {
		h.handleError(c, err)
		return
	}

	status := http.StatusCreated
	switch result.Outcome {
	case hazard.OutcomeDuplicate:
		status = http.StatusOK
	case hazard.OutcomeDropped:
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{
		"status":                result.Outcome,
		"event_id":              result.EventID,
		"fingerprint":           result.Fingerprint,
		"coordinates_corrected": result.Corrected,
		"subscribers_notified":  result.Notified,
		"zones_notified":        result.Zones,
	})
}

func (h *Handler) findNearby(c *gin.Context) {
	lat, err := parseFloat(c.Query("lat"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("lat parameter is required"))
		return
	}
	lng, err := parseFloat(c.Query("lng"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("lng parameter is required"))
		return
	}

	radius := service.DefaultNearbyRadiusMeters
	if r := c.Query("radius"); r != "" {
		parsed, err := parseFloat(r)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, errorResponse("radius must be a positive number"))
			return
		}
		radius = parsed
	}

	days := service.DefaultNearbySinceDays
	if d := c.Query("days"); d != "" {
		if parsed, err := parseInt(d); err == nil && parsed > 0 {
			days = parsed
		}
	}

	events, err := h.hazardService.FindNearby(c.Request.Context(), lat, lng, radius, days)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(events))
}

func (h *Handler) listHazards(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := parseInt(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	offset := 0
	if o := c.Query("offset"); o != "" {
		if parsed, err := parseInt(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	events, err := h.hazardService.ListEvents(c.Request.Context(), limit, offset)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(events))
}

func (h *Handler) getHazard(c *gin.Context) {
	event, err := h.hazardService.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(event))
}

type statusRequest struct {
	Status hazard.Status `json:"status" binding:"required"`
}

func (h *Handler) updateStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	if err := h.hazardService.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) deleteHazard(c *gin.Context) {
	if err := h.hazardService.DeleteEvent(c.Request.Context(), c.Param("id")); err != nil {
		h.handleError(c, err)
		return
	}
	h.log.Info().Str("subject", c.GetString(subjectKey)).Str("event_id", c.Param("id")).Msg("hazard deleted via admin endpoint")
	c.Status(http.StatusNoContent)
}

func (h *Handler) updatePosition(c *gin.Context) {
	var pos service.Position
	if err := c.ShouldBindJSON(&pos); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	if err := h.hub.UpdatePosition(c.Param("id"), pos); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "ok"})
}

func (h *Handler) getSubscriber(c *gin.Context) {
	info, ok := h.hub.Subscriber(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse("subscriber not connected"))
		return
	}
	c.JSON(http.StatusOK, successResponse(info))
}

func (h *Handler) disconnectSubscriber(c *gin.Context) {
	if !h.hub.Disconnect(c.Param("id")) {
		c.JSON(http.StatusNotFound, errorResponse("subscriber not connected"))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) status(c *gin.Context) {
	c.JSON(http.StatusOK, successResponse(h.hazardService.Status(c.Request.Context())))
}

func (h *Handler) health(c *gin.Context) {
	st := h.hazardService.Status(c.Request.Context())
	code := http.StatusOK
	state := "ok"
	if !st.Healthy {
		code = http.StatusServiceUnavailable
		state = "degraded"
	}
	c.JSON(code, gin.H{
		"status": state,
		"cache":  st.CacheConnected,
		"store":  st.StoreConnected,
	})
}

func (h *Handler) cleanup(c *gin.Context) {
	days := 7
	if d := c.Query("days"); d != "" {
		parsed, err := parseInt(d)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, errorResponse("days must be a positive integer"))
			return
		}
		days = parsed
	}
	deleted, err := h.hazardService.Cleanup(c.Request.Context(), days)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted, "days": days})
}

func (h *Handler) flushCache(c *gin.Context) {
	if err := h.hazardService.FlushCache(c.Request.Context()); err != nil {
		h.handleError(c, err)
		return
	}
	h.log.Warn().Str("subject", c.GetString(subjectKey)).Msg("cache flushed via admin endpoint")
	c.JSON(http.StatusOK, gin.H{"status": "flushed"})
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, hazard.ErrInvalidInput), errors.Is(err, hazard.ErrInvalidCoordinate):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, hazard.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, hazard.ErrStorageUnavailable), errors.Is(err, hazard.ErrCacheUnavailable):
		h.log.Error().Err(err).Msg("backend unavailable")
		c.JSON(http.StatusServiceUnavailable, errorResponse("backend unavailable"))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(s)
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
