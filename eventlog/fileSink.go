package eventlog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"kiosk-gateway/entities"
)

const (
	filePrefix = "events-"
	fileSuffix = ".log"
	dayLayout  = "2006-01-02"
)

// FileSink appends events as JSON lines to one file per UTC calendar day.
type FileSink struct {
	mu   sync.Mutex
	dir  string
	day  string
	file *os.File
}

func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create event log dir: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

// FileName returns the daily log file name for t.
func FileName(t time.Time) string {
	return filePrefix + t.UTC().Format(dayLayout) + fileSuffix
}

func (s *FileSink) Write(_ context.Context, evt entities.DeviceEvent) error {
	line, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	day := evt.Timestamp.UTC().Format(dayLayout)
	if s.file == nil || s.day != day {
		if s.file != nil {
			s.file.Close()
		}
		f, err := os.OpenFile(filepath.Join(s.dir, FileName(evt.Timestamp)), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			s.file = nil
			return fmt.Errorf("open event log: %w", err)
		}
		s.file, s.day = f, day
	}
	if _, err := s.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// Cleanup removes daily files whose day is older than retention. The file
// currently being written is never removed.
func (s *FileSink) Cleanup(retention time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read event log dir: %w", err)
	}
	cutoff := now.UTC().Add(-retention).Truncate(24 * time.Hour)

	s.mu.Lock()
	current := s.day
	s.mu.Unlock()

	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		day := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
		t, err := time.Parse(dayLayout, day)
		if err != nil || day == current || !t.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			return removed, fmt.Errorf("remove %s: %w", name, err)
		}
		removed++
	}
	return removed, nil
}
