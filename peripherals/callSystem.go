package peripherals

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"kiosk-gateway/entities"
	"kiosk-gateway/logging"
)

// SerialCallSystem signals the call board over serial and then announces the
// ticket through the speaker.
type SerialCallSystem struct {
	line   *serialLine
	player Player
	log    *zap.SugaredLogger
}

func NewSerialCallSystem(port string, baud int, player Player) *SerialCallSystem {
	return &SerialCallSystem{line: newSerialLine(port, baud), player: player, log: logging.For("callsystem")}
}

func (c *SerialCallSystem) Call(ctx context.Context, req CallRequest) error {
	frame := fmt.Sprintf("CALL|%s|%s|%s", req.TicketNumber, req.CounterNumber, req.DepartmentName)
	if err := c.line.WriteLine(frame); err != nil {
		return err
	}
	if c.player == nil {
		return nil
	}
	audio := req.AudioPath
	if audio == "" {
		audio = "ticket_" + req.TicketNumber
	}
	if err := c.player.Play(ctx, audio); err != nil {
		return fmt.Errorf("announce %s: %w", req.TicketNumber, err)
	}
	return nil
}

func (c *SerialCallSystem) Reset(context.Context) error {
	return c.line.WriteLine("RESET")
}

func (c *SerialCallSystem) Status(context.Context) entities.CallSystemStatus {
	if err := c.line.WriteLine("STATUS"); err != nil {
		c.log.Debugw("Call system status probe failed", "error", err)
		return entities.CallSystemError
	}
	return entities.CallSystemOn
}
