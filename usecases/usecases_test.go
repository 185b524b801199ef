package usecases

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiosk-gateway/confs"
	"kiosk-gateway/entities"
	"kiosk-gateway/eventlog"
	"kiosk-gateway/health"
	"kiosk-gateway/orchestrator"
	"kiosk-gateway/peripherals/peripheraltest"
	"kiosk-gateway/queue"
	"kiosk-gateway/state"
)

type stubRetention struct{ removed int }

func (s stubRetention) Cleanup(context.Context) (int, error) { return s.removed, nil }

type deviceFixture struct {
	state   *state.Machine
	printer *peripheraltest.Printer
	display *peripheraltest.Display
	events  *eventlog.Logger
	queue   *queue.Queue
	uc      *DeviceUseCase
	slept   []time.Duration
}

func newDeviceFixture(t *testing.T) *deviceFixture {
	t.Helper()
	f := &deviceFixture{
		state:   state.NewMachine(),
		printer: peripheraltest.NewPrinter(),
		display: &peripheraltest.Display{},
		events:  eventlog.New(),
		queue:   queue.New(),
	}
	orch := orchestrator.New("KIOSK-001", f.printer, f.display, peripheraltest.NewCallSystem())
	checker := health.NewChecker(orch, &recordingGateway{}, f.state)
	f.uc = NewDeviceUseCase(f.state, checker, orch, f.events, f.queue, 2*time.Second)
	f.uc.sleep = func(_ context.Context, d time.Duration) error {
		f.slept = append(f.slept, d)
		return nil
	}
	t.Cleanup(func() {
		f.queue.Close()
		_ = f.events.Close()
	})
	return f
}

func TestResetGoesThroughInitializing(t *testing.T) {
	f := newDeviceFixture(t)
	require.NoError(t, f.state.ChangeState(entities.StateError, "test"))
	changes, unsubscribe := f.state.Subscribe(8)
	defer unsubscribe()
	f.uc.SetCounters([]string{"1", "2"})

	require.NoError(t, f.uc.Reset(context.Background()))

	assert.Equal(t, []entities.DeviceState{entities.StateError, entities.StateInitializing, entities.StateReady}, collect(changes))
	assert.Equal(t, []time.Duration{2 * time.Second}, f.slept)
	assert.Equal(t, []string{"1", "2"}, f.display.Counters)

	recent := f.events.GetRecentEvents(1)
	require.Len(t, recent, 1)
	assert.Equal(t, entities.EventDeviceOnline, recent[0].Type)
	assert.Equal(t, "Device reset completed", recent[0].Description)
}

func TestResetFromMaintenance(t *testing.T) {
	f := newDeviceFixture(t)
	require.NoError(t, f.uc.StartMaintenance("cleaning"))
	require.NoError(t, f.uc.Reset(context.Background()))
	assert.Equal(t, entities.StateReady, f.state.Current())
}

func TestMaintenanceCycle(t *testing.T) {
	f := newDeviceFixture(t)

	assert.ErrorIs(t, f.uc.StopMaintenance(), ErrNotInMaintenance)
	require.NoError(t, f.uc.StartMaintenance("paper refill"))
	assert.Equal(t, entities.StateMaintenance, f.state.Current())
	assert.False(t, f.state.CanAdmit(entities.CommandPrint))

	require.NoError(t, f.uc.StopMaintenance())
	assert.Equal(t, entities.StateReady, f.state.Current())

	events := f.events.GetRecentEvents(0)
	require.Len(t, events, 2)
	assert.Equal(t, "Maintenance started: paper refill", events[0].Description)
	assert.Equal(t, entities.EventDeviceOnline, events[1].Type)
}

func TestStatusMirrorsState(t *testing.T) {
	f := newDeviceFixture(t)
	require.NoError(t, f.state.ChangeState(entities.StateReady, "test"))

	status := f.uc.GetStatus(context.Background())
	assert.Equal(t, "Ready", status.Status)
	assert.True(t, status.PrinterReady)
}

func TestTestPrintIsNotReported(t *testing.T) {
	f := newDeviceFixture(t)
	require.NoError(t, f.uc.TestPrint(context.Background()))

	jobs := f.printer.Printed()
	require.Len(t, jobs, 1)
	assert.Equal(t, "TEST", jobs[0].TicketNumber)
	assert.False(t, f.state.IsBusy(entities.CommandPrint))
}

func TestTestPrintRespectsMaintenance(t *testing.T) {
	f := newDeviceFixture(t)
	require.NoError(t, f.uc.StartMaintenance(""))
	err := f.uc.TestPrint(context.Background())
	assert.Equal(t, entities.ErrDeviceNotReady, entities.KindOf(err))
}

func TestQueueOperations(t *testing.T) {
	f := newDeviceFixture(t)
	f.queue.Enqueue(entities.CommandEnvelope{CommandID: "a"})
	f.queue.Enqueue(entities.CommandEnvelope{CommandID: "b"})

	assert.Equal(t, 2, f.uc.QueueCount())
	assert.Equal(t, 2, f.uc.ClearQueue())
	assert.Equal(t, 0, f.uc.QueueCount())
}

func TestReloadConfigAppliesHooks(t *testing.T) {
	f := newDeviceFixture(t)
	f.uc.reload = func() (*confs.Config, error) {
		return &confs.Config{LogLevel: "DEBUG", PollingInterval: 5 * time.Second}, nil
	}
	var seen time.Duration
	f.uc.OnReload(func(cfg *confs.Config) { seen = cfg.PollingInterval })

	cfg, err := f.uc.ReloadConfig()
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, seen)
}

func TestReloadConfigError(t *testing.T) {
	f := newDeviceFixture(t)
	f.uc.reload = func() (*confs.Config, error) { return nil, errors.New("bad interval") }
	_, err := f.uc.ReloadConfig()
	assert.ErrorContains(t, err, "bad interval")
}

func TestCleanupAndExport(t *testing.T) {
	f := newDeviceFixture(t)
	n, err := f.uc.CleanupLogs(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	f.uc.SetRetention(stubRetention{removed: 3})
	n, err = f.uc.CleanupLogs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	f.events.LogEvent(entities.DeviceEvent{Type: entities.EventDeviceOnline, Description: "up, running"})
	var buf bytes.Buffer
	rows, err := f.uc.ExportEvents(&buf)
	require.NoError(t, err)
	assert.Equal(t, 1, rows)
	assert.True(t, strings.HasPrefix(buf.String(), "EventId,Type,TicketNumber,Description,Timestamp"))
	assert.Len(t, f.uc.RecentEvents(0), 1)
}
