package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hazard-service/internal/domain/hazard"
)

// queryInt returns def when key is absent and false when it is present but malformed.
func queryInt(c *gin.Context, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	v, err := parseInt(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (h *Handler) trends(c *gin.Context) {
	days, ok := queryInt(c, "days", hazard.DefaultAnalyticsDays)
	if !ok {
		c.JSON(http.StatusBadRequest, errorResponse("days must be an integer"))
		return
	}
	interval := hazard.ParseTrendInterval(c.DefaultQuery("interval", string(hazard.IntervalDay)))
	points, err := h.hazardService.Trends(c.Request.Context(), days, interval)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":     points,
		"interval": interval,
		"days":     days,
	})
}

func (h *Handler) distribution(c *gin.Context) {
	days, ok := queryInt(c, "days", hazard.DefaultAnalyticsDays)
	if !ok {
		c.JSON(http.StatusBadRequest, errorResponse("days must be an integer"))
		return
	}
	dist, err := h.hazardService.Distribution(c.Request.Context(), days)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": dist, "days": days})
}

func (h *Handler) analyticsStats(c *gin.Context) {
	st, err := h.hazardService.AnalyticsStats(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(st))
}

func (h *Handler) heatmap(c *gin.Context) {
	days, ok := queryInt(c, "days", hazard.DefaultAnalyticsDays)
	if !ok {
		c.JSON(http.StatusBadRequest, errorResponse("days must be an integer"))
		return
	}
	limit, ok := queryInt(c, "limit", hazard.DefaultHeatmapLimit)
	if !ok {
		c.JSON(http.StatusBadRequest, errorResponse("limit must be an integer"))
		return
	}
	cells, err := h.hazardService.Heatmap(c.Request.Context(), days, limit)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": cells, "days": days})
}

func (h *Handler) databaseStatus(c *gin.Context) {
	c.JSON(http.StatusOK, successResponse(h.hazardService.DatabaseStatus(c.Request.Context())))
}

func (h *Handler) mqttStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"data":       h.broker.Snapshot(),
		"checked_at": time.Now().UTC(),
	})
}
