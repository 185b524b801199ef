// Package eventlog records device lifecycle events in a bounded in-memory
// ring and hands them to durable sinks off the caller's path.
package eventlog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"kiosk-gateway/entities"
	"kiosk-gateway/logging"
	"kiosk-gateway/metrics"
)

const (
	DefaultCapacity = 1000
	pendingBuffer   = 256
	sinkTimeout     = 5 * time.Second
)

// Sink persists events. Write is called from a single goroutine.
type Sink interface {
	Write(ctx context.Context, evt entities.DeviceEvent) error
	Close() error
}

// Publisher receives every logged event, e.g. the dashboard hub.
type Publisher interface {
	PublishEvent(evt entities.DeviceEvent)
}

type Logger struct {
	mu        sync.Mutex
	ring      *queue.Queue
	capacity  int
	closed    bool
	pending   chan entities.DeviceEvent
	sinks     []Sink
	publisher Publisher
	now       func() time.Time
	dropped   atomic.Int64
	wg        sync.WaitGroup
	log       *zap.SugaredLogger
}

type Option func(*Logger)

func WithCapacity(n int) Option {
	return func(l *Logger) {
		if n > 0 {
			l.capacity = n
		}
	}
}

func WithSink(s Sink) Option {
	return func(l *Logger) {
		if s != nil {
			l.sinks = append(l.sinks, s)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

func New(opts ...Option) *Logger {
	l := &Logger{
		ring:     queue.New(),
		capacity: DefaultCapacity,
		pending:  make(chan entities.DeviceEvent, pendingBuffer),
		now:      func() time.Time { return time.Now().UTC() },
		log:      logging.For("eventlog"),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.wg.Add(1)
	go l.drain()
	return l
}

// SetPublisher attaches a live listener. It may be set after construction.
func (l *Logger) SetPublisher(p Publisher) {
	l.mu.Lock()
	l.publisher = p
	l.mu.Unlock()
}

// LogEvent stamps evt with a fresh id and timestamp and records it. The durable
// write happens on a background goroutine; when its buffer is full the event
// stays in the ring and live feed but is not persisted.
func (l *Logger) LogEvent(evt entities.DeviceEvent) entities.DeviceEvent {
	evt.EventID = uuid.NewString()
	evt.Timestamp = l.now()

	l.mu.Lock()
	l.ring.Add(evt)
	for l.ring.Length() > l.capacity {
		l.ring.Remove()
	}
	closed := l.closed
	publisher := l.publisher
	queued := false
	if !closed {
		select {
		case l.pending <- evt:
			queued = true
		default:
		}
	}
	l.mu.Unlock()

	l.log.Infow("Device event", "type", evt.Type, "ticket", evt.TicketNumber, "description", evt.Description)

	if !closed && !queued && len(l.sinks) > 0 {
		l.dropped.Add(1)
		metrics.EventDropped()
		l.log.Warnw("Event buffer full, durable write skipped", "eventId", evt.EventID, "type", evt.Type)
	}
	if publisher != nil {
		publisher.PublishEvent(evt)
	}
	return evt
}

// GetRecentEvents returns up to n of the newest events in arrival order.
func (l *Logger) GetRecentEvents(n int) []entities.DeviceEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := l.ring.Length()
	if n <= 0 || n > total {
		n = total
	}
	out := make([]entities.DeviceEvent, 0, n)
	for i := total - n; i < total; i++ {
		out = append(out, l.ring.Get(i).(entities.DeviceEvent))
	}
	return out
}

func (l *Logger) snapshot() []entities.DeviceEvent {
	return l.GetRecentEvents(0)
}

// Dropped reports how many events were not handed to the sinks.
func (l *Logger) Dropped() int64 { return l.dropped.Load() }

func (l *Logger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ring.Length()
}

// Close flushes pending durable writes and closes the sinks.
func (l *Logger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.pending)
	l.mu.Unlock()

	l.wg.Wait()

	var firstErr error
	for _, s := range l.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (l *Logger) drain() {
	defer l.wg.Done()
	for evt := range l.pending {
		l.writeSinks(evt)
	}
}

func (l *Logger) writeSinks(evt entities.DeviceEvent) {
	for _, s := range l.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := s.Write(ctx, evt); err != nil {
			l.log.Errorw("Failed to persist event", "eventId", evt.EventID, "error", err)
		}
		cancel()
	}
}
