// Package peripheraltest provides in-memory peripherals for tests.
package peripheraltest

import (
	"context"
	"sync"

	"kiosk-gateway/entities"
	"kiosk-gateway/peripherals"
)

type Printer struct {
	mu       sync.Mutex
	Ready    bool
	State    string
	PrintErr error
	Panic    bool
	Jobs     []peripherals.PrintJob
	// Block, when set, holds Print until it is closed.
	Block chan struct{}
}

func NewPrinter() *Printer {
	return &Printer{Ready: true, State: peripherals.PrinterReady}
}

func (p *Printer) IsReady(context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Ready
}

func (p *Printer) Status(context.Context) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.State
}

func (p *Printer) Print(_ context.Context, job peripherals.PrintJob) error {
	p.mu.Lock()
	block, fail, boom := p.Block, p.PrintErr, p.Panic
	p.mu.Unlock()
	if block != nil {
		<-block
	}
	if boom {
		panic("printer driver crashed")
	}
	if fail != nil {
		return fail
	}
	p.mu.Lock()
	p.Jobs = append(p.Jobs, job)
	p.mu.Unlock()
	return nil
}

func (p *Printer) SetReady(ready bool) {
	p.mu.Lock()
	p.Ready = ready
	if !ready {
		p.State = peripherals.PrinterDisconnected
	} else {
		p.State = peripherals.PrinterReady
	}
	p.mu.Unlock()
}

func (p *Printer) Printed() []peripherals.PrintJob {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]peripherals.PrintJob(nil), p.Jobs...)
}

type Display struct {
	mu       sync.Mutex
	Err      error
	Tickets  []string
	Messages []string
	Counters []string
}

func (d *Display) ShowTicket(_ context.Context, ticket, _ string, _ int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.Tickets = append(d.Tickets, ticket)
	return nil
}

func (d *Display) ShowMessage(_ context.Context, _ string, message string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.Messages = append(d.Messages, message)
	return nil
}

func (d *Display) InitCounter(_ context.Context, counter string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.Counters = append(d.Counters, counter)
	return nil
}

type CallSystem struct {
	mu      sync.Mutex
	State   entities.CallSystemStatus
	CallErr error
	Calls   []peripherals.CallRequest
	Resets  int
	Block   chan struct{}
}

func NewCallSystem() *CallSystem {
	return &CallSystem{State: entities.CallSystemOn}
}

func (c *CallSystem) Call(_ context.Context, req peripherals.CallRequest) error {
	c.mu.Lock()
	block, fail := c.Block, c.CallErr
	c.mu.Unlock()
	if block != nil {
		<-block
	}
	if fail != nil {
		return fail
	}
	c.mu.Lock()
	c.Calls = append(c.Calls, req)
	c.mu.Unlock()
	return nil
}

func (c *CallSystem) Reset(context.Context) error {
	c.mu.Lock()
	c.Resets++
	c.mu.Unlock()
	return nil
}

func (c *CallSystem) Status(context.Context) entities.CallSystemStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.State
}

func (c *CallSystem) SetStatus(s entities.CallSystemStatus) {
	c.mu.Lock()
	c.State = s
	c.mu.Unlock()
}

func (c *CallSystem) Called() []peripherals.CallRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]peripherals.CallRequest(nil), c.Calls...)
}
