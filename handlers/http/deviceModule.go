package httpHandler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"kiosk-gateway/usecases"
)

// MaintenanceHandler serves the /maintenance and /queue routes.
type MaintenanceHandler struct {
	useCase *usecases.DeviceUseCase
}

func NewMaintenanceHandler(useCase *usecases.DeviceUseCase) *MaintenanceHandler {
	return &MaintenanceHandler{useCase: useCase}
}

type maintenanceRequest struct {
	Reason string `json:"reason"`
}

// Start handles POST /maintenance/start
func (h *MaintenanceHandler) Start(c *gin.Context) {
	var req maintenanceRequest
	// An empty body is allowed.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}
	}
	if err := h.useCase.StartMaintenance(req.Reason); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Maintenance mode started", "state": h.useCase.State.Current()})
}

// Stop handles POST /maintenance/stop
func (h *MaintenanceHandler) Stop(c *gin.Context) {
	if err := h.useCase.StopMaintenance(); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, usecases.ErrNotInMaintenance) {
			code = http.StatusConflict
		}
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Maintenance mode stopped", "state": h.useCase.State.Current()})
}

// ReloadConfig handles POST /maintenance/reload-config
func (h *MaintenanceHandler) ReloadConfig(c *gin.Context) {
	cfg, err := h.useCase.ReloadConfig()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":             "Configuration reloaded",
		"logLevel":            cfg.LogLevel,
		"pollingInterval":     cfg.PollingInterval.String(),
		"healthCheckInterval": cfg.HealthCheckInterval.String(),
	})
}

// Cleanup handles POST /maintenance/cleanup
func (h *MaintenanceHandler) Cleanup(c *gin.Context) {
	removed, err := h.useCase.CleanupLogs(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "removed": removed})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cleanup completed", "removed": removed})
}

// SystemInfo handles GET /maintenance/system-info
func (h *MaintenanceHandler) SystemInfo(c *gin.Context) {
	info, err := h.useCase.SystemInfo(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "data": info})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": info})
}

// ClearQueue handles POST /maintenance/clear-queue and DELETE /queue/clear
func (h *MaintenanceHandler) ClearQueue(c *gin.Context) {
	removed := h.useCase.ClearQueue()
	c.JSON(http.StatusOK, gin.H{"message": "Queue cleared", "removed": removed})
}

// QueueCount handles GET /queue/count
func (h *MaintenanceHandler) QueueCount(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"count": h.useCase.QueueCount()})
}
