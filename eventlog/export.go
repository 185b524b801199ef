package eventlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"
)

var csvHeader = []string{"EventId", "Type", "TicketNumber", "Description", "Timestamp"}

// ExportEvents writes the whole in-memory buffer as CSV in arrival order.
// Fields containing the delimiter or quotes are quoted.
func (l *Logger) ExportEvents(w io.Writer) (int, error) {
	events := l.snapshot()

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}
	for _, evt := range events {
		row := []string{
			evt.EventID,
			string(evt.Type),
			evt.TicketNumber,
			evt.Description,
			evt.Timestamp.UTC().Format(time.RFC3339Nano),
		}
		if err := cw.Write(row); err != nil {
			return 0, fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("flush csv: %w", err)
	}
	return len(events), nil
}

func (l *Logger) ExportToFile(path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create export file: %w", err)
	}
	n, err := l.ExportEvents(f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err == nil {
		l.log.Infow("Events exported", "path", path, "count", n)
	}
	return n, err
}
