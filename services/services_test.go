package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiosk-gateway/entities"
	"kiosk-gateway/eventlog"
	"kiosk-gateway/gateway"
	"kiosk-gateway/health"
	"kiosk-gateway/orchestrator"
	"kiosk-gateway/peripherals/peripheraltest"
	"kiosk-gateway/queue"
	"kiosk-gateway/state"
	"kiosk-gateway/usecases"
)

type submitted struct {
	req    entities.CommandRequest
	source usecases.Source
}

type recordingSink struct {
	mu   sync.Mutex
	reqs []submitted
}

func (s *recordingSink) Submit(_ context.Context, req entities.CommandRequest, source usecases.Source) (entities.CommandOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, submitted{req: req, source: source})
	return entities.CommandOutcome{CommandID: req.CommandID, Success: true}, nil
}

func (s *recordingSink) All() []submitted {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]submitted(nil), s.reqs...)
}

type scriptedFetcher struct {
	replies []*entities.CommandRequest
	err     error
}

func (f *scriptedFetcher) FetchPendingCommand(context.Context) (*entities.CommandRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.replies) == 0 {
		return nil, nil
	}
	next := f.replies[0]
	f.replies = f.replies[1:]
	return next, nil
}

func TestPollOnceSubmitsCommand(t *testing.T) {
	sink := &recordingSink{}
	fetcher := &scriptedFetcher{replies: []*entities.CommandRequest{{CommandID: "c1", Type: "PRINT"}}}
	p := NewPoller(fetcher, sink, time.Second)

	assert.True(t, p.PollOnce(context.Background()))
	assert.True(t, p.PollOnce(context.Background()))

	all := sink.All()
	require.Len(t, all, 1)
	assert.Equal(t, "c1", all[0].req.CommandID)
	assert.Equal(t, usecases.SourcePoll, all[0].source)
}

func TestPollOnceSurvivesErrors(t *testing.T) {
	p := NewPoller(&scriptedFetcher{err: errors.New("connection refused")}, &recordingSink{}, time.Second)
	assert.True(t, p.PollOnce(context.Background()))
}

func TestPollerStopsOnPushTransport(t *testing.T) {
	p := NewPoller(&scriptedFetcher{err: gateway.ErrNotSupported}, &recordingSink{}, 5*time.Millisecond)
	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("poller kept running on a push transport")
	}
}

func TestPollerRunsUntilCancelled(t *testing.T) {
	sink := &recordingSink{}
	fetcher := &scriptedFetcher{replies: []*entities.CommandRequest{{CommandID: "c1"}, {CommandID: "c2"}}}
	p := NewPoller(fetcher, sink, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Run(ctx)
	}()

	require.Eventually(t, func() bool { return len(sink.All()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

type healthFixture struct {
	state   *state.Machine
	printer *peripheraltest.Printer
	call    *peripheraltest.CallSystem
	events  *eventlog.Logger
	monitor *HealthMonitor
}

type ackingBackend struct{}

func (ackingBackend) SendHeartbeat(context.Context, entities.DeviceStatus) (*entities.Ack, error) {
	return &entities.Ack{Status: true}, nil
}

func newHealthFixture(t *testing.T) *healthFixture {
	t.Helper()
	f := &healthFixture{
		state:   state.NewMachine(),
		printer: peripheraltest.NewPrinter(),
		call:    peripheraltest.NewCallSystem(),
		events:  eventlog.New(),
	}
	orch := orchestrator.New("KIOSK-001", f.printer, &peripheraltest.Display{}, f.call)
	checker := health.NewChecker(orch, ackingBackend{}, f.state)
	f.monitor = NewHealthMonitor(checker, f.state, f.events, time.Minute)
	t.Cleanup(func() { _ = f.events.Close() })
	return f
}

func TestHealthyCycleMakesDeviceReady(t *testing.T) {
	f := newHealthFixture(t)

	snap := f.monitor.CheckOnce(context.Background())
	assert.True(t, snap.IsHealthy)
	assert.Equal(t, entities.StateReady, f.state.Current())
	assert.Zero(t, f.events.Count())
}

func TestUnhealthyCycleMovesToErrorAndLogsComponent(t *testing.T) {
	f := newHealthFixture(t)
	f.printer.SetReady(false)

	f.monitor.CheckOnce(context.Background())
	assert.Equal(t, entities.StateError, f.state.Current())

	events := f.events.GetRecentEvents(0)
	require.Len(t, events, 1)
	assert.Equal(t, entities.EventDeviceError, events[0].Type)
	assert.Equal(t, "Failed components: Printer", events[0].Description)
	assert.Contains(t, events[0].Metadata, health.ComponentPrinter)
}

func TestRecoveryLogsDeviceOnline(t *testing.T) {
	f := newHealthFixture(t)
	f.call.SetStatus(entities.CallSystemError)
	f.monitor.CheckOnce(context.Background())
	require.Equal(t, entities.StateError, f.state.Current())

	f.call.SetStatus(entities.CallSystemOn)
	f.monitor.CheckOnce(context.Background())
	assert.Equal(t, entities.StateReady, f.state.Current())
	recent := f.events.GetRecentEvents(1)
	require.Len(t, recent, 1)
	assert.Equal(t, entities.EventDeviceOnline, recent[0].Type)
}

func TestUnhealthyCycleNeverOverridesBusyState(t *testing.T) {
	f := newHealthFixture(t)
	require.NoError(t, f.state.ChangeState(entities.StateReady, "test"))
	require.NoError(t, f.state.Admit(entities.CommandPrint, "print"))
	f.call.SetStatus(entities.CallSystemError)

	f.monitor.CheckOnce(context.Background())
	assert.Equal(t, entities.StatePrinting, f.state.Current())

	events := f.events.GetRecentEvents(0)
	require.Len(t, events, 1)
	assert.Equal(t, false, events[0].Metadata["stateChanged"])
}

func TestUnhealthyCycleKeepsMaintenance(t *testing.T) {
	f := newHealthFixture(t)
	require.NoError(t, f.state.ChangeState(entities.StateMaintenance, "test"))
	f.printer.SetReady(false)

	f.monitor.CheckOnce(context.Background())
	assert.Equal(t, entities.StateMaintenance, f.state.Current())
}

func TestListenerDecodesPayload(t *testing.T) {
	sink := &recordingSink{}
	l := NewMQTTListener(nil, sink)

	l.Handle(context.Background(), []byte(`{"commandId":"m1","type":"CALL","data":{"ticketNumber":"B002","counterNumber":"3"}}`))
	l.Handle(context.Background(), []byte(`{not json`))

	all := sink.All()
	require.Len(t, all, 1)
	assert.Equal(t, "m1", all[0].req.CommandID)
	assert.Equal(t, "B002", all[0].req.Data.TicketNumber)
	assert.Equal(t, usecases.SourceMQTT, all[0].source)
}

type pushSubscriber struct {
	handle       func([]byte)
	ready        chan struct{}
	unsubscribed bool
}

func (s *pushSubscriber) SubscribeCommands(_ context.Context, handle func([]byte)) error {
	s.handle = handle
	close(s.ready)
	return nil
}

func (s *pushSubscriber) UnsubscribeCommands(context.Context) error {
	s.unsubscribed = true
	return nil
}

func TestListenerRunDeliversPushedCommands(t *testing.T) {
	sink := &recordingSink{}
	sub := &pushSubscriber{ready: make(chan struct{})}
	l := NewMQTTListener(sub, sink)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	<-sub.ready
	sub.handle([]byte(`{"commandId":"m2","type":"PRINT","data":{"ticketNumber":"A010"}}`))
	require.Eventually(t, func() bool { return len(sink.All()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestListenerIgnoresMessagesAfterStop(t *testing.T) {
	sink := &recordingSink{}
	sub := &pushSubscriber{ready: make(chan struct{})}
	l := NewMQTTListener(sub, sink)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	<-sub.ready
	cancel()
	require.NoError(t, <-done)
	assert.True(t, sub.unsubscribed)

	sub.handle([]byte(`{"commandId":"m3","type":"PRINT","data":{"ticketNumber":"A011"}}`))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, sink.All())
}

type recordingExecutor struct {
	mu        sync.Mutex
	cmds      []string
	abandoned []string
	reason    string
}

func (e *recordingExecutor) Abandon(cmds []entities.CommandEnvelope, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, cmd := range cmds {
		e.abandoned = append(e.abandoned, cmd.CommandID)
	}
	e.reason = reason
}

func (e *recordingExecutor) Execute(_ context.Context, cmd entities.CommandEnvelope, _ usecases.Source) (entities.CommandOutcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cmds = append(e.cmds, cmd.CommandID)
	return entities.CommandOutcome{Success: true}, nil
}

func (e *recordingExecutor) IDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.cmds...)
}

func TestQueueWorkerExecutesInOrder(t *testing.T) {
	q := queue.New()
	exec := &recordingExecutor{}
	w := NewQueueWorker(q, exec)
	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	q.Enqueue(entities.CommandEnvelope{CommandID: "a"})
	q.Enqueue(entities.CommandEnvelope{CommandID: "b"})
	require.Eventually(t, func() bool { return len(exec.IDs()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, exec.IDs())

	q.Close()
	assert.NoError(t, <-done)
}

func TestQueueWorkerReportsLeftoversOnShutdown(t *testing.T) {
	q := queue.New()
	exec := &recordingExecutor{}
	w := NewQueueWorker(q, exec)

	q.Enqueue(entities.CommandEnvelope{CommandID: "a"})
	q.Enqueue(entities.CommandEnvelope{CommandID: "b"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, w.Run(ctx))
	assert.Empty(t, exec.IDs())
	assert.Equal(t, []string{"a", "b"}, exec.abandoned)
	assert.Equal(t, shutdownReason, exec.reason)
	assert.Zero(t, q.Count())

	q.Enqueue(entities.CommandEnvelope{CommandID: "late"})
	assert.Equal(t, 1, w.Flush())
	assert.Equal(t, []string{"a", "b", "late"}, exec.abandoned)
}

type recordingPruner struct{ cutoff time.Time }

func (p *recordingPruner) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	p.cutoff = cutoff
	return 4, nil
}

func TestRetentionCleansFilesAndRecords(t *testing.T) {
	dir := t.TempDir()
	sink, err := eventlog.NewFileSink(dir)
	require.NoError(t, err)
	defer sink.Close()

	now := time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)
	old := filepath.Join(dir, eventlog.FileName(now.AddDate(0, 0, -40)))
	require.NoError(t, os.WriteFile(old, []byte("{}\n"), 0o644))

	pruner := &recordingPruner{}
	r := NewEventRetention(sink, pruner, 30*24*time.Hour)
	r.now = func() time.Time { return now }

	removed, err := r.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, removed)
	assert.NoFileExists(t, old)
	assert.Equal(t, now.Add(-30*24*time.Hour), pruner.cutoff)
}

func TestWatchStateForwardsChanges(t *testing.T) {
	sm := state.NewMachine()
	ctx, cancel := context.WithCancel(context.Background())
	seen := make(chan entities.StateChange, 4)
	done := make(chan struct{})
	subscribed := make(chan struct{})

	go func() {
		defer close(done)
		close(subscribed)
		_ = WatchState(ctx, sm, func(c entities.StateChange) { seen <- c })
	}()
	<-subscribed
	require.Eventually(t, func() bool {
		_ = sm.ChangeState(entities.StateMaintenance, "test")
		_ = sm.ChangeState(entities.StateReady, "test")
		return len(seen) > 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
	change := <-seen
	assert.NotEmpty(t, change.To)
}

func TestIntervalSetIgnoresInvalid(t *testing.T) {
	iv := newInterval(time.Second)
	iv.set(0)
	assert.Equal(t, time.Second, iv.get())
	iv.set(3 * time.Second)
	assert.Equal(t, 3*time.Second, iv.get())
}
