package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"smartplug-telemetry-backend/internal/ecoflow"
)

// VendorAPI is the vendor client surface exposed by the read API.
type VendorAPI interface {
	DeviceList(ctx context.Context) ([]ecoflow.Device, error)
	DevicesWithQuota(ctx context.Context) ([]ecoflow.DeviceWithQuota, error)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	client VendorAPI
}

// NewHandler creates a new API handler.
func NewHandler(client VendorAPI) *Handler {
	return &Handler{client: client}
}

// GetDeviceList handles GET /api/device_list: the mapped vendor device
// list, fetched live.
func (h *Handler) GetDeviceList(c *gin.Context) {
	devices, err := h.client.DeviceList(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, devices)
}

// GetDevicesData handles GET /api/devices_data: devices with their live
// quota snapshots; per-device quota failures are reported in-band.
func (h *Handler) GetDevicesData(c *gin.Context) {
	devices, err := h.client.DevicesWithQuota(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, devices)
}
