// Package peripherals holds the physical device drivers the orchestrator
// sequences: receipt printer, counter display boards, call system and speaker.
package peripherals

import (
	"context"

	"kiosk-gateway/entities"
)

type PrintJob struct {
	TicketNumber   string
	DepartmentName string
	QueuePosition  int
	FilePath       string
}

type Printer interface {
	IsReady(ctx context.Context) bool
	Status(ctx context.Context) string
	Print(ctx context.Context, job PrintJob) error
}

type Display interface {
	ShowTicket(ctx context.Context, ticket, department string, position int) error
	ShowMessage(ctx context.Context, counter, message string) error
	InitCounter(ctx context.Context, counter string) error
}

type CallRequest struct {
	TicketNumber   string
	CounterNumber  string
	DepartmentName string
	AudioPath      string
}

type CallSystem interface {
	Call(ctx context.Context, req CallRequest) error
	Reset(ctx context.Context) error
	Status(ctx context.Context) entities.CallSystemStatus
}

type Player interface {
	Play(ctx context.Context, file string) error
}
