package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiosk-gateway/entities"
	"kiosk-gateway/peripherals/peripheraltest"
)

type fixture struct {
	printer *peripheraltest.Printer
	display *peripheraltest.Display
	call    *peripheraltest.CallSystem
	orch    *Orchestrator
}

func newFixture() fixture {
	f := fixture{
		printer: peripheraltest.NewPrinter(),
		display: &peripheraltest.Display{},
		call:    peripheraltest.NewCallSystem(),
	}
	f.orch = New("KIOSK-001", f.printer, f.display, f.call)
	return f
}

var printCmd = entities.CommandEnvelope{
	CommandID:      "cmd-1",
	Type:           entities.CommandPrint,
	TicketNumber:   "A001",
	DepartmentName: "General",
	CounterNumber:  "1",
	FilePath:       "/tmp/a001.png",
}

func TestProcessPrintShowsThenPrints(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.orch.ProcessPrint(context.Background(), printCmd))

	assert.Equal(t, []string{"A001"}, f.display.Tickets)
	jobs := f.printer.Printed()
	require.Len(t, jobs, 1)
	assert.Equal(t, "/tmp/a001.png", jobs[0].FilePath)
}

func TestProcessPrintDisplayFailureIsNotFatal(t *testing.T) {
	f := newFixture()
	f.display.Err = errors.New("board offline")

	require.NoError(t, f.orch.ProcessPrint(context.Background(), printCmd))
	assert.Len(t, f.printer.Printed(), 1)
}

func TestProcessPrintFailureIsTyped(t *testing.T) {
	f := newFixture()
	f.printer.PrintErr = errors.New("paper jam")

	err := f.orch.ProcessPrint(context.Background(), printCmd)
	require.Error(t, err)
	assert.Equal(t, entities.ErrPrinter, entities.KindOf(err))
	assert.Contains(t, err.Error(), "paper jam")
}

func TestProcessCallAnnouncesThenDisplays(t *testing.T) {
	f := newFixture()
	cmd := entities.CommandEnvelope{CommandID: "c", Type: entities.CommandCall, TicketNumber: "B007", CounterNumber: "4"}

	require.NoError(t, f.orch.ProcessCall(context.Background(), cmd))
	calls := f.call.Called()
	require.Len(t, calls, 1)
	assert.Equal(t, "B007", calls[0].TicketNumber)
	assert.Equal(t, []string{"Now serving B007 at counter 4"}, f.display.Messages)
}

func TestProcessCallFailureIsTyped(t *testing.T) {
	f := newFixture()
	f.call.CallErr = errors.New("amplifier off")

	err := f.orch.Process(context.Background(), entities.CommandEnvelope{Type: entities.CommandCall, TicketNumber: "B1"})
	assert.Equal(t, entities.ErrCallSystem, entities.KindOf(err))
	assert.Empty(t, f.display.Messages)
}

func TestProcessUnknownType(t *testing.T) {
	f := newFixture()
	err := f.orch.Process(context.Background(), entities.CommandEnvelope{Type: "FAX"})
	assert.Equal(t, entities.ErrUnknownCommand, entities.KindOf(err))
}

func TestDeviceStatusAggregatesProbes(t *testing.T) {
	f := newFixture()
	s := f.orch.DeviceStatus(context.Background())
	assert.Equal(t, "KIOSK-001", s.DeviceID)
	assert.Equal(t, "ONLINE", s.Status)
	assert.True(t, s.PrinterReady)
	assert.Equal(t, "OK", s.DisplayStatus)
	assert.Equal(t, entities.CallSystemOn, s.CallSystemStatus)

	f.printer.SetReady(false)
	f.call.SetStatus(entities.CallSystemError)
	s = f.orch.DeviceStatus(context.Background())
	assert.Equal(t, "ERROR", s.Status)
	assert.Equal(t, "Disconnected", s.PrinterStatus)
	assert.False(t, f.orch.CallSystemReady(context.Background()))
}

func TestInitDisplaysCountsSuccesses(t *testing.T) {
	f := newFixture()
	assert.Equal(t, 3, f.orch.InitDisplays(context.Background(), []string{"1", "2", "3"}))
	assert.Equal(t, []string{"1", "2", "3"}, f.display.Counters)
}

func TestTestComponent(t *testing.T) {
	f := newFixture()
	ok, _ := f.orch.TestComponent(context.Background(), "printer")
	assert.True(t, ok)
	ok, _ = f.orch.TestComponent(context.Background(), "display")
	assert.True(t, ok)
	ok, msg := f.orch.TestComponent(context.Background(), "coffee")
	assert.False(t, ok)
	assert.Contains(t, msg, "coffee")
}
