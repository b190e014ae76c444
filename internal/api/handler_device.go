package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"campuspush/internal/repository"
)

// DeviceStore is the writable side of the device directory.
type DeviceStore interface {
	Register(ctx context.Context, userID, token string) error
	Unregister(ctx context.Context, userID, token string) error
}

type DeviceHandler struct {
	devices DeviceStore
	logger  *zap.Logger
}

func NewDeviceHandler(devices DeviceStore, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{devices: devices, logger: logger}
}

// Register handles POST /devices
func (h *DeviceHandler) Register(c *gin.Context) {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "token is required"})
		return
	}

	userID := c.GetString("user_id")
	if err := h.devices.Register(c.Request.Context(), userID, req.Token); err != nil {
		h.logger.Error("Failed to register device", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to register device"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Unregister handles DELETE /devices/:token
func (h *DeviceHandler) Unregister(c *gin.Context) {
	userID := c.GetString("user_id")
	token := c.Param("token")

	if err := h.devices.Unregister(c.Request.Context(), userID, token); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "device not found"})
			return
		}
		h.logger.Error("Failed to unregister device", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to unregister device"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
