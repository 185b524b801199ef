package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"kiosk-gateway/entities"
	"kiosk-gateway/logging"
	"kiosk-gateway/usecases"
)

type HealthProbe interface {
	Check(ctx context.Context) entities.HealthSnapshot
}

// HealthApplier is the conditional transition on the state machine.
type HealthApplier interface {
	ApplyHealth(healthy bool, reason string) bool
	Current() entities.DeviceState
}

// HealthMonitor runs a health check every interval, feeds the result into
// the state machine and records failures as events.
type HealthMonitor struct {
	probe    HealthProbe
	state    HealthApplier
	events   usecases.EventLogger
	interval *interval
	log      *zap.SugaredLogger
}

func NewHealthMonitor(probe HealthProbe, state HealthApplier, events usecases.EventLogger, every time.Duration) *HealthMonitor {
	return &HealthMonitor{
		probe:    probe,
		state:    state,
		events:   events,
		interval: newInterval(every),
		log:      logging.For("health"),
	}
}

func (m *HealthMonitor) SetInterval(d time.Duration) { m.interval.set(d) }

func (m *HealthMonitor) Run(ctx context.Context) error {
	m.log.Infow("Health monitor started", "interval", m.interval.get())
	m.interval.tick(ctx, true, func(ctx context.Context) { m.CheckOnce(ctx) })
	m.log.Info("Health monitor stopped")
	return nil
}

// CheckOnce runs a single cycle and returns its snapshot.
func (m *HealthMonitor) CheckOnce(ctx context.Context) entities.HealthSnapshot {
	snap := m.probe.Check(ctx)
	if ctx.Err() != nil {
		return snap
	}

	if snap.IsHealthy {
		before := m.state.Current()
		if m.state.ApplyHealth(true, "health check passed") && before == entities.StateError {
			m.events.LogEvent(entities.DeviceEvent{
				Type:        entities.EventDeviceOnline,
				Description: "Device recovered, all components healthy",
			})
		}
		return snap
	}

	failed := snap.FailedComponents()
	reason := fmt.Sprintf("Failed components: %s", strings.Join(failed, ", "))
	changed := m.state.ApplyHealth(false, reason)

	details := make(map[string]any, len(failed)+1)
	for _, key := range failed {
		c := snap.Components[key]
		details[key] = c.Status
	}
	details["stateChanged"] = changed
	m.events.LogEvent(entities.DeviceEvent{
		Type:        entities.EventDeviceError,
		Description: reason,
		Metadata:    details,
	})
	return snap
}
