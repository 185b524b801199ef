package peripherals

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"kiosk-gateway/logging"
)

const (
	PrinterReady        = "Ready"
	PrinterPaused       = "Paused"
	PrinterPrinting     = "Printing"
	PrinterDisconnected = "Disconnected"
)

type commandRunner func(ctx context.Context, stdin string, name string, args ...string) (string, error)

func runCommand(ctx context.Context, stdin string, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// CUPSPrinter talks to a receipt printer through the CUPS command line tools.
type CUPSPrinter struct {
	name string
	run  commandRunner
	log  *zap.SugaredLogger
}

func NewCUPSPrinter(name string) *CUPSPrinter {
	return &CUPSPrinter{name: name, run: runCommand, log: logging.For("printer")}
}

func (p *CUPSPrinter) Status(ctx context.Context) string {
	out, err := p.run(ctx, "", "lpstat", "-p", p.name)
	if err != nil {
		return PrinterDisconnected
	}
	return parseLpstat(out)
}

func parseLpstat(out string) string {
	switch s := strings.ToLower(out); {
	case strings.Contains(s, "disabled"):
		return PrinterPaused
	case strings.Contains(s, "now printing"):
		return PrinterPrinting
	case strings.Contains(s, "idle"):
		return PrinterReady
	case strings.TrimSpace(s) == "":
		return PrinterDisconnected
	default:
		return "Unknown"
	}
}

func (p *CUPSPrinter) IsReady(ctx context.Context) bool {
	switch p.Status(ctx) {
	case PrinterReady, PrinterPrinting:
		return true
	}
	return false
}

// Print sends the rendered ticket file, or a plain text receipt when the job has no file.
func (p *CUPSPrinter) Print(ctx context.Context, job PrintJob) error {
	var (
		out string
		err error
	)
	if job.FilePath != "" {
		out, err = p.run(ctx, "", "lp", "-d", p.name, job.FilePath)
	} else {
		receipt := fmt.Sprintf("TICKET %s\n%s\nPOSITION %d\n\n\n", job.TicketNumber, job.DepartmentName, job.QueuePosition)
		out, err = p.run(ctx, receipt, "lp", "-d", p.name, "-")
	}
	if err != nil {
		return fmt.Errorf("lp %s: %w: %s", p.name, err, strings.TrimSpace(out))
	}
	p.log.Infow("Ticket printed", "ticket", job.TicketNumber, "job", strings.TrimSpace(out))
	return nil
}
