package peripherals

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goburrow/serial"
)

const (
	DefaultBaudRate = 9600
	serialTimeout   = 2 * time.Second
)

type portOpener func(*serial.Config) (io.WriteCloser, error)

func openSerial(c *serial.Config) (io.WriteCloser, error) {
	return serial.Open(c)
}

// serialLine opens the port for each write and closes it afterwards, so a
// replugged USB adapter is picked up without restarting.
type serialLine struct {
	mu     sync.Mutex
	config serial.Config
	open   portOpener
}

func newSerialLine(address string, baud int) *serialLine {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	return &serialLine{
		config: serial.Config{
			Address:  address,
			BaudRate: baud,
			DataBits: 8,
			StopBits: 1,
			Parity:   "N",
			Timeout:  serialTimeout,
		},
		open: openSerial,
	}
}

func (l *serialLine) WriteLine(line string) error {
	if l.config.Address == "" {
		return fmt.Errorf("serial port not configured")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	port, err := l.open(&l.config)
	if err != nil {
		return fmt.Errorf("open %s: %w", l.config.Address, err)
	}
	defer port.Close()

	if _, err := io.WriteString(port, line+"\r\n"); err != nil {
		return fmt.Errorf("write %s: %w", l.config.Address, err)
	}
	return nil
}
