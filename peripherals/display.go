package peripherals

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"kiosk-gateway/logging"
)

const initStepDelay = 200 * time.Millisecond

// SerialDisplay drives LED matrix counter boards sharing one serial line.
type SerialDisplay struct {
	line      *serialLine
	stepDelay time.Duration
	log       *zap.SugaredLogger
}

func NewSerialDisplay(port string, baud int) *SerialDisplay {
	return &SerialDisplay{
		line:      newSerialLine(port, baud),
		stepDelay: initStepDelay,
		log:       logging.For("display"),
	}
}

func (d *SerialDisplay) ShowTicket(_ context.Context, ticket, department string, position int) error {
	return d.line.WriteLine(fmt.Sprintf("TICKET: %s | DEPT: %s | POS: %d", ticket, department, position))
}

func (d *SerialDisplay) ShowMessage(_ context.Context, counter, message string) error {
	return d.line.WriteLine(fmt.Sprintf("*[%s][H2]%s[!]", counter, message))
}

// InitCounter configures one board's font and alignment and shows its label.
func (d *SerialDisplay) InitCounter(ctx context.Context, counter string) error {
	frames := []string{
		"*[Matrix][SetFont]Font2[!]",
		"*[Matrix][SetAlign][H1]Center[!]",
		"*[Matrix][SetAlign][H2]Center[!]",
		fmt.Sprintf("*[H1]COUNTER %s[!]", counter),
		"*[H2][!]",
	}
	for i, f := range frames {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.stepDelay):
			}
		}
		if err := d.line.WriteLine(fmt.Sprintf("%s@%s", f, counter)); err != nil {
			return err
		}
	}
	d.log.Infow("Counter display ready", "counter", counter)
	return nil
}
