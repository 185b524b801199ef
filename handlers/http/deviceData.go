package httpHandler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"kiosk-gateway/usecases"
)

// DiagnosticsHandler serves the /diagnostics routes.
type DiagnosticsHandler struct {
	useCase *usecases.DeviceUseCase
}

func NewDiagnosticsHandler(useCase *usecases.DeviceUseCase) *DiagnosticsHandler {
	return &DiagnosticsHandler{useCase: useCase}
}

// GetHealth handles GET /diagnostics/health
func (h *DiagnosticsHandler) GetHealth(c *gin.Context) {
	snap := h.useCase.RunHealthCheck(c.Request.Context())
	code := http.StatusOK
	if !snap.IsHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, snap)
}

// TestComponent handles POST /diagnostics/test-component?component=printer|display|call
func (h *DiagnosticsHandler) TestComponent(c *gin.Context) {
	component := c.Query("component")
	if component == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "component is required"})
		return
	}
	ok, detail := h.useCase.TestComponent(c.Request.Context(), component)
	c.JSON(http.StatusOK, gin.H{
		"component": component,
		"success":   ok,
		"detail":    detail,
	})
}

// TestPrint handles POST /diagnostics/test-print
func (h *DiagnosticsHandler) TestPrint(c *gin.Context) {
	if err := h.useCase.TestPrint(c.Request.Context()); err != nil {
		c.JSON(statusFor(err), gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Test ticket printed"})
}

// GetRecentEvents handles GET /diagnostics/recent-events?count=
func (h *DiagnosticsHandler) GetRecentEvents(c *gin.Context) {
	count := 100
	if raw := c.Query("count"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "count must be a positive integer"})
			return
		}
		count = v
	}
	events := h.useCase.RecentEvents(count)
	c.JSON(http.StatusOK, gin.H{"count": len(events), "data": events})
}

// ExportLogs handles GET /diagnostics/export-logs
func (h *DiagnosticsHandler) ExportLogs(c *gin.Context) {
	name := fmt.Sprintf("events-%s.csv", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)
	if _, err := h.useCase.ExportEvents(c.Writer); err != nil {
		_ = c.Error(err)
	}
}
