package eventlog

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiosk-gateway/entities"
)

type memorySink struct {
	mu     sync.Mutex
	events []entities.DeviceEvent
	err    error
	closed bool
}

func (m *memorySink) Write(_ context.Context, evt entities.DeviceEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return m.err
}

func (m *memorySink) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []entities.DeviceEvent
}

func (c *capturePublisher) PublishEvent(evt entities.DeviceEvent) {
	c.mu.Lock()
	c.events = append(c.events, evt)
	c.mu.Unlock()
}

func TestRecentEventsKeepsArrivalOrder(t *testing.T) {
	l := New()
	defer l.Close()

	for i := 0; i < 150; i++ {
		l.LogEvent(entities.DeviceEvent{Type: entities.EventPrintCompleted, TicketNumber: fmt.Sprintf("A%03d", i)})
	}

	recent := l.GetRecentEvents(50)
	require.Len(t, recent, 50)
	for i, evt := range recent {
		assert.Equal(t, fmt.Sprintf("A%03d", 100+i), evt.TicketNumber)
	}
}

func TestRingIsBounded(t *testing.T) {
	l := New(WithCapacity(10))
	defer l.Close()

	for i := 0; i < 25; i++ {
		l.LogEvent(entities.DeviceEvent{Type: entities.EventCallStarted, TicketNumber: fmt.Sprint(i)})
	}
	assert.Equal(t, 10, l.Count())
	all := l.GetRecentEvents(100)
	require.Len(t, all, 10)
	assert.Equal(t, "15", all[0].TicketNumber)
	assert.Equal(t, "24", all[9].TicketNumber)
}

func TestLogEventAssignsIDAndTimestamp(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	l := New(WithClock(func() time.Time { return fixed }))
	defer l.Close()

	a := l.LogEvent(entities.DeviceEvent{EventID: "caller-set", Type: entities.EventDeviceOnline})
	b := l.LogEvent(entities.DeviceEvent{Type: entities.EventDeviceOnline})

	assert.NotEqual(t, "caller-set", a.EventID)
	assert.NotEmpty(t, a.EventID)
	assert.NotEqual(t, a.EventID, b.EventID)
	assert.Equal(t, fixed, a.Timestamp)
}

func TestSinksReceiveEventsAndCloseFlushes(t *testing.T) {
	sink := &memorySink{}
	l := New(WithSink(sink))

	for i := 0; i < 20; i++ {
		l.LogEvent(entities.DeviceEvent{Type: entities.EventPrintStarted})
	}
	require.NoError(t, l.Close())

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Len(t, sink.events, 20)
	assert.True(t, sink.closed)
}

func TestSinkFailureDoesNotAffectCaller(t *testing.T) {
	sink := &memorySink{err: errors.New("disk full")}
	l := New(WithSink(sink))

	evt := l.LogEvent(entities.DeviceEvent{Type: entities.EventDeviceError, Description: "boom"})
	require.NoError(t, l.Close())
	assert.Equal(t, evt.EventID, l.GetRecentEvents(1)[0].EventID)
}

type gatedSink struct {
	release chan struct{}
	active  atomic.Int32
	peak    atomic.Int32
	written atomic.Int32
}

func (g *gatedSink) Write(context.Context, entities.DeviceEvent) error {
	n := g.active.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	<-g.release
	g.written.Add(1)
	g.active.Add(-1)
	return nil
}

func (g *gatedSink) Close() error { return nil }

func TestFullBufferDropsWritesInsteadOfWritingInline(t *testing.T) {
	sink := &gatedSink{release: make(chan struct{})}
	l := New(WithSink(sink))

	total := pendingBuffer + 10
	for i := 0; i < total; i++ {
		l.LogEvent(entities.DeviceEvent{Type: entities.EventPrintStarted, Description: fmt.Sprint(i)})
	}
	assert.GreaterOrEqual(t, l.Dropped(), int64(9))
	assert.Equal(t, total, l.Count())

	close(sink.release)
	require.NoError(t, l.Close())
	assert.Equal(t, int32(1), sink.peak.Load())
	assert.Equal(t, int64(total), int64(sink.written.Load())+l.Dropped())
}

func TestPublisherSeesEvents(t *testing.T) {
	pub := &capturePublisher{}
	l := New()
	defer l.Close()
	l.SetPublisher(pub)

	l.LogEvent(entities.DeviceEvent{Type: entities.EventCallCompleted, TicketNumber: "B007"})
	require.Len(t, pub.events, 1)
	assert.Equal(t, "B007", pub.events[0].TicketNumber)
}

func TestExportRoundTripsCommas(t *testing.T) {
	l := New()
	defer l.Close()

	l.LogEvent(entities.DeviceEvent{Type: entities.EventPrintFailed, TicketNumber: "A001", Description: "Print failed: paper jam, tray 2"})
	l.LogEvent(entities.DeviceEvent{Type: entities.EventDeviceError, Description: `said "hello", then left`})

	var buf bytes.Buffer
	n, err := l.ExportEvents(&buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"EventId", "Type", "TicketNumber", "Description", "Timestamp"}, rows[0])

	events := l.GetRecentEvents(0)
	for i, evt := range events {
		row := rows[i+1]
		assert.Equal(t, evt.EventID, row[0])
		assert.Equal(t, string(evt.Type), row[1])
		assert.Equal(t, evt.TicketNumber, row[2])
		assert.Equal(t, evt.Description, row[3])
		ts, err := time.Parse(time.RFC3339Nano, row[4])
		require.NoError(t, err)
		assert.True(t, evt.Timestamp.Equal(ts))
	}
}

func TestExportToFile(t *testing.T) {
	l := New()
	defer l.Close()
	l.LogEvent(entities.DeviceEvent{Type: entities.EventHeartbeatSent})

	path := filepath.Join(t.TempDir(), "export.csv")
	n, err := l.ExportToFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "EventId,Type,TicketNumber,Description,Timestamp\n")
}

func TestFileSinkWritesDailyJSONLines(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir)
	require.NoError(t, err)

	day1 := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	day2 := day1.Add(2 * time.Minute)
	ctx := context.Background()
	require.NoError(t, sink.Write(ctx, entities.DeviceEvent{EventID: "1", Type: entities.EventPrintStarted, Timestamp: day1}))
	require.NoError(t, sink.Write(ctx, entities.DeviceEvent{EventID: "2", Type: entities.EventPrintCompleted, Timestamp: day1}))
	require.NoError(t, sink.Write(ctx, entities.DeviceEvent{EventID: "3", Type: entities.EventCallStarted, Timestamp: day2}))
	require.NoError(t, sink.Close())

	f, err := os.Open(filepath.Join(dir, "events-2026-03-01.log"))
	require.NoError(t, err)
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var evt entities.DeviceEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &evt))
		ids = append(ids, evt.EventID)
	}
	assert.Equal(t, []string{"1", "2"}, ids)
	assert.FileExists(t, filepath.Join(dir, "events-2026-03-02.log"))
}

func TestFileSinkCleanup(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir)
	require.NoError(t, err)

	for _, name := range []string{"events-2026-01-01.log", "events-2026-02-20.log", "events-2026-03-01.log", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x\n"), 0o644))
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	removed, err := sink.Cleanup(30*24*time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.NoFileExists(t, filepath.Join(dir, "events-2026-01-01.log"))
	assert.FileExists(t, filepath.Join(dir, "events-2026-02-20.log"))
	assert.FileExists(t, filepath.Join(dir, "events-2026-03-01.log"))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}
