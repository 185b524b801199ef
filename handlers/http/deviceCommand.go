package httpHandler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"kiosk-gateway/entities"
	"kiosk-gateway/usecases"
)

const resultMessageType = "RESULT"

type CommandHandler struct {
	cmdUC    *usecases.CommandsUseCase
	deviceID string
}

func NewCommandHandler(uc *usecases.CommandsUseCase, deviceID string) *CommandHandler {
	return &CommandHandler{cmdUC: uc, deviceID: deviceID}
}

// Print handles POST /print
func (h *CommandHandler) Print(c *gin.Context) {
	h.handle(c, entities.CommandPrint)
}

// Call handles POST /call
func (h *CommandHandler) Call(c *gin.Context) {
	h.handle(c, entities.CommandCall)
}

func (h *CommandHandler) handle(c *gin.Context, expected entities.CommandType) {
	var req entities.CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	if req.Type == "" {
		req.Type = string(expected)
	}
	if t, _ := entities.ParseCommandType(req.Type); t != expected {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "command type " + req.Type + " cannot be sent to this endpoint",
		})
		return
	}
	if req.DeviceID == "" {
		req.DeviceID = h.deviceID
	}

	outcome, err := h.cmdUC.Handle(c.Request.Context(), req, usecases.SourceHTTP)
	c.JSON(statusFor(err), entities.CommandResponse{
		CommandID: req.CommandID,
		DeviceID:  h.deviceID,
		Timestamp: time.Now().UTC(),
		Version:   entities.ProtocolVersion,
		Type:      resultMessageType,
		Message:   outcome.Message,
		Status:    err == nil,
		Data:      &entities.TicketData{TicketNumber: outcome.TicketNumber},
	})
}

// statusFor maps a pipeline error to the HTTP status the backend expects.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, usecases.ErrDuplicateCommand):
		return http.StatusConflict
	case errors.Is(err, entities.ErrPeripheralNotReady):
		return http.StatusServiceUnavailable
	}
	switch entities.KindOf(err) {
	case entities.ErrDeviceNotReady:
		return http.StatusTooManyRequests
	case entities.ErrUnknownCommand:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
