package usecases

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"kiosk-gateway/cache"
	"kiosk-gateway/entities"
	"kiosk-gateway/gateway"
	"kiosk-gateway/logging"
	"kiosk-gateway/metrics"
	"kiosk-gateway/retry"
	"kiosk-gateway/state"
)

var ErrDuplicateCommand = errors.New("command already claimed")

// probeTimeout bounds the peripheral readiness check before admission.
const probeTimeout = 5 * time.Second

// Source names the intake adapter a command arrived through.
type Source string

const (
	SourceHTTP  Source = "http"
	SourcePoll  Source = "poll"
	SourceMQTT  Source = "mqtt"
	SourceQueue Source = "queue"
)

type Orchestrator interface {
	Process(ctx context.Context, cmd entities.CommandEnvelope) error
	PrinterReady(ctx context.Context) bool
	CallSystemReady(ctx context.Context) bool
}

type EventLogger interface {
	LogEvent(evt entities.DeviceEvent) entities.DeviceEvent
}

// Stager receives accepted commands when execution is decoupled from intake.
type Stager interface {
	Enqueue(cmd entities.CommandEnvelope)
	Count() int
}

// CommandsUseCase is the single admission, orchestration and reporting
// pipeline shared by every intake adapter.
type CommandsUseCase struct {
	state   *state.Machine
	orch    Orchestrator
	gateway gateway.Gateway
	retry   *retry.Executor
	events  EventLogger
	dedup   *cache.CommandCache
	stager  Stager

	reports       sync.WaitGroup
	reportCtx     context.Context
	cancelReports context.CancelFunc

	log *zap.SugaredLogger
}

func NewCommandsUseCase(sm *state.Machine, orch Orchestrator, gw gateway.Gateway, exec *retry.Executor, events EventLogger, dedup *cache.CommandCache) *CommandsUseCase {
	ctx, cancel := context.WithCancel(context.Background())
	return &CommandsUseCase{
		state:         sm,
		orch:          orch,
		gateway:       gw,
		retry:         exec,
		events:        events,
		dedup:         dedup,
		reportCtx:     ctx,
		cancelReports: cancel,
		log:           logging.For("commands"),
	}
}

// UseStager makes Submit enqueue accepted commands instead of running them inline.
func (uc *CommandsUseCase) UseStager(s Stager) {
	uc.stager = s
}

// Handle runs a command inline and returns its outcome. The error is nil on
// success and otherwise carries the failure kind.
func (uc *CommandsUseCase) Handle(ctx context.Context, req entities.CommandRequest, source Source) (entities.CommandOutcome, error) {
	cmd, outcome, err := uc.Accept(req, source)
	if outcome != nil {
		return *outcome, err
	}
	return uc.Execute(ctx, cmd, source)
}

// Submit is used by background intake adapters. With a stager configured the
// accepted command is queued and executed later by the queue worker.
func (uc *CommandsUseCase) Submit(ctx context.Context, req entities.CommandRequest, source Source) (entities.CommandOutcome, error) {
	if uc.stager == nil {
		return uc.Handle(ctx, req, source)
	}
	cmd, outcome, err := uc.Accept(req, source)
	if outcome != nil {
		return *outcome, err
	}
	uc.stager.Enqueue(cmd)
	metrics.SetQueueDepth(uc.stager.Count())
	uc.log.Infow("Command staged", "commandId", cmd.CommandID, "type", cmd.Type, "source", source)
	return entities.CommandOutcome{
		CommandID:    cmd.CommandID,
		Type:         string(cmd.Type),
		Success:      true,
		Message:      "Command queued",
		TicketNumber: cmd.TicketNumber,
	}, nil
}

// Accept converts the request, claims its commandId and rejects unknown
// types. A non-nil outcome means the command is finished here.
func (uc *CommandsUseCase) Accept(req entities.CommandRequest, source Source) (entities.CommandEnvelope, *entities.CommandOutcome, error) {
	if !uc.dedup.Claim(req.CommandID, string(source)) {
		metrics.CommandDuplicate()
		claim, _ := uc.dedup.Lookup(req.CommandID)
		uc.log.Infow("Duplicate command dropped", "commandId", req.CommandID, "source", source, "claimedBy", claim.Source)
		return entities.CommandEnvelope{}, &entities.CommandOutcome{
			CommandID: req.CommandID,
			Type:      req.Type,
			Message:   fmt.Sprintf("command %s already received via %s", req.CommandID, claim.Source),
		}, ErrDuplicateCommand
	}

	cmd, err := req.Envelope()
	if err != nil {
		ticket := ""
		if req.Data != nil {
			ticket = req.Data.TicketNumber
		}
		outcome, rerr := uc.refuse(req.CommandID, req.Type, ticket, entities.NewCommandError(entities.ErrProcessing, "invalid command envelope", err))
		return cmd, outcome, rerr
	}
	if _, ok := entities.ParseCommandType(req.Type); !ok {
		outcome, rerr := uc.refuse(cmd.CommandID, req.Type, cmd.TicketNumber,
			entities.NewCommandError(entities.ErrUnknownCommand, fmt.Sprintf("unknown command type %q", req.Type), nil))
		return cmd, outcome, rerr
	}

	uc.events.LogEvent(entities.DeviceEvent{
		Type:         entities.EventCommandReceived,
		TicketNumber: cmd.TicketNumber,
		Description:  fmt.Sprintf("%s command %s received via %s", cmd.Type, cmd.CommandID, source),
		Metadata:     map[string]any{"commandId": cmd.CommandID, "source": string(source)},
	})
	return cmd, nil, nil
}

// refuse finishes a command that never reached admission and reports it once.
func (uc *CommandsUseCase) refuse(commandID, rawType, ticket string, cerr *entities.CommandError) (*entities.CommandOutcome, error) {
	uc.log.Warnw("Command refused", "commandId", commandID, "type", rawType, "kind", cerr.Kind, "error", cerr)
	metrics.CommandRejected(entities.CommandType(rawType), cerr.Kind)
	uc.dedup.Complete(commandID, false)

	outcome := entities.CommandOutcome{
		CommandID:    commandID,
		Type:         rawType,
		Message:      cerr.Error(),
		TicketNumber: ticket,
		Kind:         cerr.Kind,
	}
	uc.report(outcome)
	return &outcome, cerr
}

// Execute admits, orchestrates and reports one accepted command. The
// orchestration is not cancelled when ctx is; its outcome is always reported.
func (uc *CommandsUseCase) Execute(ctx context.Context, cmd entities.CommandEnvelope, source Source) (entities.CommandOutcome, error) {
	log := uc.log.With("commandId", cmd.CommandID, "type", cmd.Type, "ticket", cmd.TicketNumber, "source", source)

	if err := uc.checkAdmission(ctx, cmd); err != nil {
		return uc.reject(cmd, err), err
	}
	if err := uc.state.Admit(cmd.Type, fmt.Sprintf("%s %s", cmd.Type, cmd.TicketNumber)); err != nil {
		return uc.reject(cmd, err), err
	}

	started, completed, failed := entities.LifecycleEvents(cmd.Type)
	uc.events.LogEvent(entities.DeviceEvent{
		Type:         started,
		TicketNumber: cmd.TicketNumber,
		Description:  fmt.Sprintf("%s started for ticket %s", cmd.Type, cmd.TicketNumber),
		Metadata:     map[string]any{"commandId": cmd.CommandID, "counter": cmd.CounterNumber, "source": string(source)},
	})

	begin := time.Now()
	err := uc.orchestrate(context.WithoutCancel(ctx), cmd)
	elapsed := time.Since(begin)

	outcome := entities.CommandOutcome{
		CommandID:    cmd.CommandID,
		Type:         string(cmd.Type),
		Success:      err == nil,
		Message:      successMessage(cmd),
		TicketNumber: cmd.TicketNumber,
	}
	if err != nil {
		outcome.Message = err.Error()
		outcome.Kind = entities.KindOf(err)
		uc.events.LogEvent(entities.DeviceEvent{
			Type:         failed,
			TicketNumber: cmd.TicketNumber,
			Description:  outcome.Message,
			Metadata:     map[string]any{"commandId": cmd.CommandID, "kind": string(outcome.Kind)},
		})
		log.Errorw("Command failed", "kind", outcome.Kind, "error", err, "duration", elapsed)
	} else {
		uc.events.LogEvent(entities.DeviceEvent{
			Type:         completed,
			TicketNumber: cmd.TicketNumber,
			Description:  outcome.Message,
			Metadata:     map[string]any{"commandId": cmd.CommandID, "durationMs": elapsed.Milliseconds()},
		})
		log.Infow("Command completed", "duration", elapsed)
	}

	// An error without a kind escaped from somewhere unexpected; park the
	// device in Error until a reset or a healthy check.
	fault := err != nil && !entities.IsTyped(err)
	if fault {
		err = entities.NewCommandError(entities.ErrProcessing, "unexpected failure during orchestration", err)
		outcome.Kind = entities.ErrProcessing
	}
	uc.state.Release(cmd.Type, fault, fmt.Sprintf("%s %s finished", cmd.Type, cmd.TicketNumber))

	metrics.ObserveCommand(cmd.Type, outcome.Success, elapsed)
	uc.dedup.Complete(cmd.CommandID, outcome.Success)
	uc.report(outcome)
	return outcome, err
}

// checkAdmission refuses early without touching state, then verifies the
// peripheral the command needs. The probe runs detached from the caller's
// cancellation, bounded by probeTimeout.
func (uc *CommandsUseCase) checkAdmission(parent context.Context, cmd entities.CommandEnvelope) error {
	if !uc.state.CanAdmit(cmd.Type) {
		return entities.NewCommandError(entities.ErrDeviceNotReady,
			fmt.Sprintf("%s rejected while %s", cmd.Type, uc.state.Current()), state.ErrNotAdmitted)
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), probeTimeout)
	defer cancel()
	switch cmd.Type {
	case entities.CommandPrint:
		if !uc.orch.PrinterReady(ctx) {
			return entities.NewCommandError(entities.ErrPrinter, "printer is not ready", entities.ErrPeripheralNotReady)
		}
	case entities.CommandCall:
		if !uc.orch.CallSystemReady(ctx) {
			return entities.NewCommandError(entities.ErrCallSystem, "call system is not ready", entities.ErrPeripheralNotReady)
		}
	}
	return nil
}

func (uc *CommandsUseCase) reject(cmd entities.CommandEnvelope, err error) entities.CommandOutcome {
	kind := entities.KindOf(err)
	metrics.CommandRejected(cmd.Type, kind)
	// Let a later redelivery of the same id try again.
	uc.dedup.Release(cmd.CommandID)

	if errors.Is(err, entities.ErrPeripheralNotReady) {
		_, _, failed := entities.LifecycleEvents(cmd.Type)
		uc.events.LogEvent(entities.DeviceEvent{
			Type:         failed,
			TicketNumber: cmd.TicketNumber,
			Description:  err.Error(),
			Metadata:     map[string]any{"commandId": cmd.CommandID, "kind": string(kind)},
		})
	}
	uc.log.Warnw("Command not admitted", "commandId", cmd.CommandID, "type", cmd.Type, "kind", kind, "error", err)

	outcome := entities.CommandOutcome{
		CommandID:    cmd.CommandID,
		Type:         string(cmd.Type),
		Message:      err.Error(),
		TicketNumber: cmd.TicketNumber,
		Kind:         kind,
	}
	uc.report(outcome)
	return outcome
}

// Abandon finishes accepted commands that will never be executed. Each is
// reported once as DEVICE_NOT_READY and its claim is released so the backend
// can deliver it again.
func (uc *CommandsUseCase) Abandon(cmds []entities.CommandEnvelope, reason string) {
	for _, cmd := range cmds {
		metrics.CommandRejected(cmd.Type, entities.ErrDeviceNotReady)
		uc.dedup.Release(cmd.CommandID)

		_, _, failed := entities.LifecycleEvents(cmd.Type)
		uc.events.LogEvent(entities.DeviceEvent{
			Type:         failed,
			TicketNumber: cmd.TicketNumber,
			Description:  fmt.Sprintf("%s command %s dropped: %s", cmd.Type, cmd.CommandID, reason),
			Metadata:     map[string]any{"commandId": cmd.CommandID, "kind": string(entities.ErrDeviceNotReady)},
		})
		uc.log.Warnw("Staged command abandoned", "commandId", cmd.CommandID, "type", cmd.Type, "reason", reason)

		uc.report(entities.CommandOutcome{
			CommandID:    cmd.CommandID,
			Type:         string(cmd.Type),
			Message:      reason,
			TicketNumber: cmd.TicketNumber,
			Kind:         entities.ErrDeviceNotReady,
		})
	}
	if uc.stager != nil {
		metrics.SetQueueDepth(uc.stager.Count())
	}
}

func (uc *CommandsUseCase) orchestrate(ctx context.Context, cmd entities.CommandEnvelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			uc.log.Errorw("Recovered panic during orchestration", "commandId", cmd.CommandID, "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return uc.orch.Process(ctx, cmd)
}

// report sends the single terminal report for outcome in the background,
// retrying through the executor.
func (uc *CommandsUseCase) report(outcome entities.CommandOutcome) {
	uc.reports.Add(1)
	go func() {
		defer uc.reports.Done()
		var (
			op  string
			err error
		)
		if outcome.Success {
			op = "report-result"
			err = uc.retry.Do(uc.reportCtx, op, func(ctx context.Context) error {
				_, err := uc.gateway.ReportCommandResult(ctx, outcome)
				return err
			})
		} else {
			op = "report-error"
			err = uc.retry.Do(uc.reportCtx, op, func(ctx context.Context) error {
				_, err := uc.gateway.ReportError(ctx, outcome.CommandID, outcome.Kind, outcome.Message)
				return err
			})
		}
		if err != nil {
			metrics.BackendFailure(op)
			uc.log.Errorw("Terminal report could not be delivered", "commandId", outcome.CommandID, "operation", op, "error", err)
		}
	}()
}

// Drain waits for pending reports. When ctx ends first the remaining reports
// are cancelled.
func (uc *CommandsUseCase) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		uc.reports.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		uc.cancelReports()
		<-done
		return ctx.Err()
	}
}

func successMessage(cmd entities.CommandEnvelope) string {
	if cmd.Type == entities.CommandCall {
		return fmt.Sprintf("Called ticket %s to counter %s", cmd.TicketNumber, cmd.CounterNumber)
	}
	return fmt.Sprintf("Printed ticket %s", cmd.TicketNumber)
}
