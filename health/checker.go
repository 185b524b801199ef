// Package health builds aggregate health snapshots of the kiosk.
package health

import (
	"context"
	"time"

	"go.uber.org/zap"

	"kiosk-gateway/entities"
	"kiosk-gateway/logging"
)

const (
	ComponentPrinter    = "Printer"
	ComponentCallSystem = "CallSystem"
	ComponentDisplay    = "Display"
	ComponentBackend    = "Backend"
)

type StatusSource interface {
	DeviceStatus(ctx context.Context) entities.DeviceStatus
}

type HeartbeatSender interface {
	SendHeartbeat(ctx context.Context, status entities.DeviceStatus) (*entities.Ack, error)
}

// StateReader exposes what the heartbeat needs from the state machine.
type StateReader interface {
	Current() entities.DeviceState
	IsBusy(t entities.CommandType) bool
}

type Checker struct {
	source  StatusSource
	backend HeartbeatSender
	state   StateReader
	now     func() time.Time
	log     *zap.SugaredLogger
}

func NewChecker(source StatusSource, backend HeartbeatSender, state StateReader) *Checker {
	return &Checker{
		source:  source,
		backend: backend,
		state:   state,
		now:     func() time.Time { return time.Now().UTC() },
		log:     logging.For("health"),
	}
}

// Status returns the device snapshot with the state machine's view folded in.
func (c *Checker) Status(ctx context.Context) entities.DeviceStatus {
	status := c.source.DeviceStatus(ctx)
	if c.state != nil {
		status.Status = string(c.state.Current())
		status.Printing = c.state.IsBusy(entities.CommandPrint)
		status.Calling = c.state.IsBusy(entities.CommandCall)
	}
	return status
}

// Check probes every component and sends a heartbeat as the backend probe.
// The snapshot is built from scratch each time.
func (c *Checker) Check(ctx context.Context) entities.HealthSnapshot {
	status := c.Status(ctx)

	components := map[string]entities.ComponentHealth{
		ComponentPrinter: {
			Name:      "Printer",
			IsHealthy: status.PrinterReady,
			Status:    status.PrinterStatus,
		},
		ComponentCallSystem: callSystemHealth(status.CallSystemStatus),
		ComponentDisplay: {
			Name:      "Display",
			IsHealthy: true,
			Status:    "OK",
		},
	}

	backend := entities.ComponentHealth{Name: "Backend"}
	ack, err := c.backend.SendHeartbeat(ctx, status)
	switch {
	case err != nil:
		backend.Status = "Error"
		backend.LastError = err.Error()
	case ack != nil && !ack.Status:
		backend.Status = "Disconnected"
	default:
		backend.IsHealthy = true
		backend.Status = "Connected"
	}
	components[ComponentBackend] = backend

	healthy := true
	for _, comp := range components {
		healthy = healthy && comp.IsHealthy
	}
	snapshot := entities.HealthSnapshot{IsHealthy: healthy, Components: components, CheckedAt: c.now()}
	if !healthy {
		c.log.Warnw("Health check failed", "failed", snapshot.FailedComponents())
	}
	return snapshot
}

func callSystemHealth(s entities.CallSystemStatus) entities.ComponentHealth {
	h := entities.ComponentHealth{Name: "Call System", IsHealthy: s == entities.CallSystemOn, Status: "Running"}
	if !h.IsHealthy {
		h.Status = "Error"
	}
	return h
}
