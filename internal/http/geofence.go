package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hazard-service/internal/domain/hazard"
	"hazard-service/internal/geofence"
)

func (h *Handler) listZones(c *gin.Context) {
	activeOnly := c.DefaultQuery("active_only", "true") != "false"
	c.JSON(http.StatusOK, successResponse(h.zones.Zones(activeOnly)))
}

func (h *Handler) getZone(c *gin.Context) {
	z, err := h.zones.Zone(c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(z))
}

func (h *Handler) lookupZones(c *gin.Context) {
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
	loc, _, err := hazard.RepairCoordinates(lat, lng, nil)
	if err != nil {
		h.handleError(c, err)
		return
	}
	matches := h.zones.Containing(loc)
	if matches == nil {
		matches = []geofence.Match{}
	}
	c.JSON(http.StatusOK, successResponse(matches))
}

func (h *Handler) createZone(c *gin.Context) {
	var z geofence.Zone
	if err := c.ShouldBindJSON(&z); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	created, err := h.zones.CreateZone(z)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.log.Info().
		Str("subject", c.GetString(subjectKey)).
		Str("zone_id", created.ID).
		Str("zone_name", created.Name).
		Msg("geofence zone created")
	c.JSON(http.StatusCreated, successResponse(created))
}

type zoneActiveRequest struct {
	Active *bool `json:"is_active" binding:"required"`
}

func (h *Handler) setZoneActive(c *gin.Context) {
	var req zoneActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	if err := h.zones.SetActive(c.Param("id"), *req.Active); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) deleteZone(c *gin.Context) {
	if err := h.zones.DeleteZone(c.Param("id")); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listZoneDevices(c *gin.Context) {
	if _, err := h.zones.Zone(c.Param("id")); err != nil {
		h.handleError(c, err)
		return
	}
	typ := hazard.NormalizeType(c.Query("type"))
	c.JSON(http.StatusOK, successResponse(h.zones.Subscribers(c.Param("id"), typ)))
}

type subscribeRequest struct {
	Kind        geofence.SubscriptionKind `json:"subscription_type"`
	HazardTypes []hazard.Type             `json:"hazard_types"`
}

func (h *Handler) subscribeDevice(c *gin.Context) {
	var req subscribeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
			return
		}
	}
	sub, err := h.zones.Subscribe(geofence.Subscription{
		DeviceID:    c.Param("device"),
		ZoneID:      c.Param("id"),
		Kind:        req.Kind,
		HazardTypes: req.HazardTypes,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(sub))
}

func (h *Handler) unsubscribeDevice(c *gin.Context) {
	if err := h.zones.Unsubscribe(c.Param("id"), c.Param("device")); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
