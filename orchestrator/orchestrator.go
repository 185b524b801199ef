// Package orchestrator sequences the peripheral calls for one admitted command.
// It owns no state.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"kiosk-gateway/entities"
	"kiosk-gateway/logging"
	"kiosk-gateway/peripherals"
)

type Orchestrator struct {
	deviceID string
	printer  peripherals.Printer
	display  peripherals.Display
	call     peripherals.CallSystem
	now      func() time.Time
	log      *zap.SugaredLogger
}

func New(deviceID string, printer peripherals.Printer, display peripherals.Display, call peripherals.CallSystem) *Orchestrator {
	return &Orchestrator{
		deviceID: deviceID,
		printer:  printer,
		display:  display,
		call:     call,
		now:      func() time.Time { return time.Now().UTC() },
		log:      logging.For("orchestrator"),
	}
}

// ProcessPrint shows the ticket on the display (best effort) and prints it.
// A print failure is returned as PRINTER_ERROR.
func (o *Orchestrator) ProcessPrint(ctx context.Context, cmd entities.CommandEnvelope) error {
	o.log.Infow("Processing print command", "ticket", cmd.TicketNumber, "commandId", cmd.CommandID)

	if err := o.display.ShowTicket(ctx, cmd.TicketNumber, cmd.DepartmentName, cmd.QueuePosition); err != nil {
		o.log.Warnw("Display update failed, continuing", "ticket", cmd.TicketNumber, "error", err)
	}

	job := peripherals.PrintJob{
		TicketNumber:   cmd.TicketNumber,
		DepartmentName: cmd.DepartmentName,
		QueuePosition:  cmd.QueuePosition,
		FilePath:       cmd.FilePath,
	}
	if err := o.printer.Print(ctx, job); err != nil {
		return entities.NewCommandError(entities.ErrPrinter, fmt.Sprintf("print failed for ticket %s", cmd.TicketNumber), err)
	}
	o.log.Infow("Print completed", "ticket", cmd.TicketNumber)
	return nil
}

// ProcessCall announces the ticket and then updates the counter display (best
// effort). A call failure is returned as CALL_SYSTEM_ERROR.
func (o *Orchestrator) ProcessCall(ctx context.Context, cmd entities.CommandEnvelope) error {
	o.log.Infow("Processing call command", "ticket", cmd.TicketNumber, "counter", cmd.CounterNumber, "commandId", cmd.CommandID)

	req := peripherals.CallRequest{
		TicketNumber:   cmd.TicketNumber,
		CounterNumber:  cmd.CounterNumber,
		DepartmentName: cmd.DepartmentName,
		AudioPath:      cmd.AudioPath,
	}
	if err := o.call.Call(ctx, req); err != nil {
		return entities.NewCommandError(entities.ErrCallSystem, fmt.Sprintf("call failed for ticket %s", cmd.TicketNumber), err)
	}

	msg := fmt.Sprintf("Now serving %s at counter %s", cmd.TicketNumber, cmd.CounterNumber)
	if err := o.display.ShowMessage(ctx, cmd.CounterNumber, msg); err != nil {
		o.log.Warnw("Display update failed, continuing", "counter", cmd.CounterNumber, "error", err)
	}
	o.log.Infow("Call completed", "ticket", cmd.TicketNumber, "counter", cmd.CounterNumber)
	return nil
}

// Process dispatches by command type.
func (o *Orchestrator) Process(ctx context.Context, cmd entities.CommandEnvelope) error {
	switch cmd.Type {
	case entities.CommandPrint:
		return o.ProcessPrint(ctx, cmd)
	case entities.CommandCall:
		return o.ProcessCall(ctx, cmd)
	}
	return entities.NewCommandError(entities.ErrUnknownCommand, fmt.Sprintf("unknown command type %q", cmd.Type), nil)
}

// PrinterReady and CallSystemReady are the pre-admission readiness probes.
func (o *Orchestrator) PrinterReady(ctx context.Context) bool {
	return o.printer.IsReady(ctx)
}

func (o *Orchestrator) CallSystemReady(ctx context.Context) bool {
	return o.call.Status(ctx) == entities.CallSystemOn
}

// DeviceStatus aggregates the printer and call-system probes into one snapshot.
func (o *Orchestrator) DeviceStatus(ctx context.Context) entities.DeviceStatus {
	ready := o.printer.IsReady(ctx)
	status := "ONLINE"
	if !ready {
		status = "ERROR"
	}
	return entities.DeviceStatus{
		DeviceID:         o.deviceID,
		Status:           status,
		PrinterReady:     ready,
		PrinterStatus:    o.printer.Status(ctx),
		DisplayStatus:    "OK",
		CallSystemStatus: o.call.Status(ctx),
		LastHeartbeat:    o.now(),
	}
}

// InitDisplays labels each counter board. Failures are logged, never fatal.
func (o *Orchestrator) InitDisplays(ctx context.Context, counters []string) int {
	ok := 0
	for _, counter := range counters {
		if err := o.display.InitCounter(ctx, counter); err != nil {
			o.log.Warnw("Display init failed", "counter", counter, "error", err)
			continue
		}
		ok++
	}
	o.log.Infow("Display initialisation finished", "counters", len(counters), "ready", ok)
	return ok
}

// TestComponent exercises one peripheral for diagnostics.
func (o *Orchestrator) TestComponent(ctx context.Context, component string) (bool, string) {
	switch component {
	case "printer":
		s := o.printer.Status(ctx)
		return o.printer.IsReady(ctx), s
	case "display":
		if err := o.display.ShowMessage(ctx, "0", "TEST"); err != nil {
			return false, err.Error()
		}
		return true, "OK"
	case "call", "callsystem":
		s := o.call.Status(ctx)
		return s == entities.CallSystemOn, fmt.Sprintf("status %d", s)
	}
	return false, fmt.Sprintf("unknown component %q", component)
}
