package httpHandler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kiosk-gateway/entities"
	"kiosk-gateway/usecases"
)

type DeviceHandler struct {
	useCase *usecases.DeviceUseCase
}

func NewDeviceHandler(useCase *usecases.DeviceUseCase) *DeviceHandler {
	return &DeviceHandler{
		useCase: useCase,
	}
}

type statusResponse struct {
	entities.DeviceStatus
	entities.HeartbeatData
}

// GetStatus handles GET /status
func (h *DeviceHandler) GetStatus(c *gin.Context) {
	status := h.useCase.GetStatus(c.Request.Context())
	c.JSON(http.StatusOK, statusResponse{
		DeviceStatus:  status,
		HeartbeatData: status.Heartbeat(),
	})
}

// Reset handles POST /reset
func (h *DeviceHandler) Reset(c *gin.Context) {
	if err := h.useCase.Reset(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Device reset completed",
		"state":   h.useCase.State.Current(),
	})
}
