package usecases

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"kiosk-gateway/confs"
	"kiosk-gateway/entities"
	"kiosk-gateway/logging"
	"kiosk-gateway/state"
)

var ErrNotInMaintenance = errors.New("device is not in maintenance")

type HealthChecker interface {
	Status(ctx context.Context) entities.DeviceStatus
	Check(ctx context.Context) entities.HealthSnapshot
}

type Bench interface {
	Process(ctx context.Context, cmd entities.CommandEnvelope) error
	TestComponent(ctx context.Context, component string) (bool, string)
	InitDisplays(ctx context.Context, counters []string) int
}

type EventStore interface {
	EventLogger
	GetRecentEvents(n int) []entities.DeviceEvent
	ExportEvents(w io.Writer) (int, error)
}

type CommandQueue interface {
	Count() int
	Clear() []entities.CommandEnvelope
}

// Abandoner reports staged commands that are dropped without running.
type Abandoner interface {
	Abandon(cmds []entities.CommandEnvelope, reason string)
}

// Retention removes persisted events older than the cutoff.
type Retention interface {
	Cleanup(ctx context.Context) (int, error)
}

type SystemInfo struct {
	Hostname      string  `json:"hostname"`
	OS            string  `json:"os"`
	Platform      string  `json:"platform"`
	UptimeSeconds uint64  `json:"uptimeSeconds"`
	CPUCount      int     `json:"cpuCount"`
	CPUPercent    float64 `json:"cpuPercent"`
	MemoryTotal   uint64  `json:"memoryTotal"`
	MemoryUsed    uint64  `json:"memoryUsed"`
	MemoryPercent float64 `json:"memoryPercent"`
	DiskTotal     uint64  `json:"diskTotal"`
	DiskFree      uint64  `json:"diskFree"`
	Goroutines    int     `json:"goroutines"`
	GoVersion     string  `json:"goVersion"`
}

// DeviceUseCase holds the operator actions: status, reset, maintenance and diagnostics.
type DeviceUseCase struct {
	State  *state.Machine
	Health HealthChecker
	Bench  Bench
	Events EventStore
	Queue  CommandQueue

	retention  Retention
	abandoner  Abandoner
	reload     func() (*confs.Config, error)
	onReload   []func(*confs.Config)
	resetDelay time.Duration
	counters   []string
	sleep      func(ctx context.Context, d time.Duration) error
	log        *zap.SugaredLogger
}

func NewDeviceUseCase(sm *state.Machine, health HealthChecker, bench Bench, events EventStore, queue CommandQueue, resetDelay time.Duration) *DeviceUseCase {
	return &DeviceUseCase{
		State:      sm,
		Health:     health,
		Bench:      bench,
		Events:     events,
		Queue:      queue,
		reload:     confs.Reload,
		resetDelay: resetDelay,
		sleep:      sleepContext,
		log:        logging.For("device"),
	}
}

func (uc *DeviceUseCase) SetRetention(r Retention) { uc.retention = r }

func (uc *DeviceUseCase) SetAbandoner(a Abandoner) { uc.abandoner = a }

func (uc *DeviceUseCase) SetCounters(counters []string) { uc.counters = counters }

// OnReload registers a hook that receives the configuration after a reload.
func (uc *DeviceUseCase) OnReload(fn func(*confs.Config)) {
	uc.onReload = append(uc.onReload, fn)
}

// GetStatus returns the heartbeat snapshot with the current state.
func (uc *DeviceUseCase) GetStatus(ctx context.Context) entities.DeviceStatus {
	return uc.Health.Status(ctx)
}

// Reset forces Initializing, waits the reset delay and returns to Ready,
// regardless of the current state.
func (uc *DeviceUseCase) Reset(ctx context.Context) error {
	uc.log.Infow("Device reset requested", "from", uc.State.Current())
	if err := uc.State.ChangeState(entities.StateInitializing, "reset requested"); err != nil {
		return err
	}
	if err := uc.sleep(ctx, uc.resetDelay); err != nil {
		// The device must not stay Initializing because the caller went away.
		uc.log.Warnw("Reset delay interrupted", "error", err)
	}
	if err := uc.State.ChangeState(entities.StateReady, "reset completed"); err != nil {
		return err
	}
	if len(uc.counters) > 0 {
		uc.Bench.InitDisplays(context.WithoutCancel(ctx), uc.counters)
	}
	uc.Events.LogEvent(entities.DeviceEvent{
		Type:        entities.EventDeviceOnline,
		Description: "Device reset completed",
	})
	return nil
}

func (uc *DeviceUseCase) StartMaintenance(reason string) error {
	if reason == "" {
		reason = "Manual maintenance"
	}
	if err := uc.State.ChangeState(entities.StateMaintenance, reason); err != nil {
		return err
	}
	uc.Events.LogEvent(entities.DeviceEvent{
		Type:        entities.EventDeviceError,
		Description: fmt.Sprintf("Maintenance started: %s", reason),
		Metadata:    map[string]any{"maintenance": true},
	})
	return nil
}

func (uc *DeviceUseCase) StopMaintenance() error {
	if uc.State.Current() != entities.StateMaintenance {
		return ErrNotInMaintenance
	}
	if err := uc.State.ChangeState(entities.StateReady, "maintenance completed"); err != nil {
		return err
	}
	uc.Events.LogEvent(entities.DeviceEvent{
		Type:        entities.EventDeviceOnline,
		Description: "Maintenance completed",
	})
	return nil
}

// ReloadConfig re-reads .env and applies the runtime-tunable values.
func (uc *DeviceUseCase) ReloadConfig() (*confs.Config, error) {
	cfg, err := uc.reload()
	if err != nil {
		return nil, fmt.Errorf("reload config: %w", err)
	}
	logging.SetLevel(cfg.LogLevel)
	for _, fn := range uc.onReload {
		fn(cfg)
	}
	uc.log.Infow("Configuration reloaded", "level", cfg.LogLevel, "pollingInterval", cfg.PollingInterval, "healthInterval", cfg.HealthCheckInterval)
	return cfg, nil
}

// ClearQueue drops staged commands and returns how many were removed. Each
// dropped command is reported to the backend.
func (uc *DeviceUseCase) ClearQueue() int {
	if uc.Queue == nil {
		return 0
	}
	dropped := uc.Queue.Clear()
	if uc.abandoner != nil {
		uc.abandoner.Abandon(dropped, "command queue cleared")
	}
	uc.log.Infow("Command queue cleared", "removed", len(dropped))
	return len(dropped)
}

func (uc *DeviceUseCase) QueueCount() int {
	if uc.Queue == nil {
		return 0
	}
	return uc.Queue.Count()
}

func (uc *DeviceUseCase) CleanupLogs(ctx context.Context) (int, error) {
	if uc.retention == nil {
		return 0, nil
	}
	return uc.retention.Cleanup(ctx)
}

func (uc *DeviceUseCase) SystemInfo(ctx context.Context) (SystemInfo, error) {
	info := SystemInfo{
		CPUCount:   runtime.NumCPU(),
		Goroutines: runtime.NumGoroutine(),
		GoVersion:  runtime.Version(),
	}
	if h, err := host.InfoWithContext(ctx); err == nil {
		info.Hostname = h.Hostname
		info.OS = h.OS
		info.Platform = h.Platform
		info.UptimeSeconds = h.Uptime
	} else {
		return info, fmt.Errorf("host info: %w", err)
	}
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		info.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryTotal = vm.Total
		info.MemoryUsed = vm.Used
		info.MemoryPercent = vm.UsedPercent
	}
	if du, err := disk.UsageWithContext(ctx, "/"); err == nil {
		info.DiskTotal = du.Total
		info.DiskFree = du.Free
	}
	return info, nil
}

// ============= Diagnostics =============

func (uc *DeviceUseCase) RunHealthCheck(ctx context.Context) entities.HealthSnapshot {
	return uc.Health.Check(ctx)
}

func (uc *DeviceUseCase) TestComponent(ctx context.Context, component string) (bool, string) {
	ok, detail := uc.Bench.TestComponent(ctx, component)
	uc.log.Infow("Component test", "component", component, "ok", ok, "detail", detail)
	return ok, detail
}

// TestPrint prints a diagnostic ticket. It is admitted like any PRINT but is
// never reported to the backend.
func (uc *DeviceUseCase) TestPrint(ctx context.Context) error {
	cmd := entities.CommandEnvelope{
		CommandID:      "TEST-" + uuid.NewString(),
		Type:           entities.CommandPrint,
		TicketNumber:   "TEST",
		DepartmentName: "Diagnostics",
		CreatedAt:      time.Now().UTC(),
	}
	if err := uc.State.Admit(cmd.Type, "test print"); err != nil {
		return err
	}
	err := uc.Bench.Process(context.WithoutCancel(ctx), cmd)
	uc.State.Release(cmd.Type, false, "test print finished")
	return err
}

func (uc *DeviceUseCase) RecentEvents(count int) []entities.DeviceEvent {
	if count <= 0 {
		count = 100
	}
	return uc.Events.GetRecentEvents(count)
}

func (uc *DeviceUseCase) ExportEvents(w io.Writer) (int, error) {
	return uc.Events.ExportEvents(w)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
