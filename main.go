package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"kiosk-gateway/cache"
	"kiosk-gateway/confs"
	"kiosk-gateway/db"
	"kiosk-gateway/entities"
	"kiosk-gateway/eventlog"
	"kiosk-gateway/gateway"
	"kiosk-gateway/health"
	"kiosk-gateway/logging"
	"kiosk-gateway/metrics"
	"kiosk-gateway/orchestrator"
	"kiosk-gateway/peripherals"
	"kiosk-gateway/queue"
	"kiosk-gateway/repositories"
	"kiosk-gateway/retry"
	"kiosk-gateway/server"
	"kiosk-gateway/services"
	"kiosk-gateway/state"
	"kiosk-gateway/usecases"
	"kiosk-gateway/ws"
)

const drainTimeout = 15 * time.Second

func main() {
	logging.Initialize()
	defer func() { _ = logging.Sync() }()
	log := logging.For("main")

	// load config
	cfg, err := confs.LoadConfig()
	if err != nil {
		log.Fatalw("Error loading config", "error", err)
	}
	logging.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatalw("Kiosk gateway stopped with error", "error", err)
	}
	log.Info("Kiosk gateway stopped")
}

func run(ctx context.Context, cfg *confs.Config, log *zap.SugaredLogger) error {
	gw, err := gateway.New(cfg.Backend)
	if err != nil {
		return err
	}
	defer gw.Close()

	p := cfg.Peripherals
	printer := peripherals.NewCUPSPrinter(p.PrinterName)
	display := peripherals.NewSerialDisplay(p.DisplayPort, p.BaudRate)
	call := peripherals.NewSerialCallSystem(p.CallSystemPort, p.BaudRate, peripherals.NewAplayPlayer(p.AudioDir))
	orch := orchestrator.New(cfg.DeviceID, printer, display, call)

	sm := state.NewMachine()
	hub := ws.NewManager()
	defer hub.Close()

	// Event sinks: daily files always, Postgres when configured
	fileSink, err := eventlog.NewFileSink(cfg.EventLogDir)
	if err != nil {
		return err
	}
	opts := []eventlog.Option{eventlog.WithCapacity(cfg.EventBufferSize), eventlog.WithSink(fileSink)}
	var (
		database db.Database
		pruner   services.RecordPruner
	)
	if cfg.EventDBURL != "" {
		database, err = db.Connect(cfg.EventDBURL)
		if err != nil {
			log.Warnw("Event database unavailable, continuing with file events only", "error", err)
		} else {
			repo := repositories.NewEventPgRepository(database)
			opts = append(opts, eventlog.WithSink(repositories.NewEventSink(repo, database.Close)))
			pruner = repo
		}
	}
	events := eventlog.New(opts...)
	events.SetPublisher(hub)
	defer events.Close()

	exec := retry.New(
		retry.WithMaxAttempts(cfg.RetryMaxAttempts),
		retry.WithInitialDelay(cfg.RetryInitialDelay),
		retry.WithRetryHook(func(op string, _ int, _ error) { metrics.BackendRetry(op) }),
	)
	dedup := cache.NewCommandCache(cfg.DedupTTL)
	commands := usecases.NewCommandsUseCase(sm, orch, gw, exec, events, dedup)

	staged := queue.New()
	defer staged.Close()
	if cfg.CommandStaging == confs.StagingQueue {
		commands.UseStager(staged)
	}

	checker := health.NewChecker(orch, gw, sm)
	retention := services.NewEventRetention(fileSink, pruner, cfg.EventRetention)
	device := usecases.NewDeviceUseCase(sm, checker, orch, events, staged, cfg.ResetDelay)
	device.SetCounters(p.Counters)
	device.SetRetention(retention)
	device.SetAbandoner(commands)

	monitor := services.NewHealthMonitor(checker, sm, events, cfg.HealthCheckInterval)
	device.OnReload(func(c *confs.Config) { monitor.SetInterval(c.HealthCheckInterval) })

	srv := server.NewServer(cfg.HTTPAddr, server.Deps{
		DeviceID: cfg.DeviceID,
		Commands: commands,
		Device:   device,
		Dedup:    dedup,
		Hub:      hub,
		Events:   events,
		Database: database,
	})

	metrics.SetState(sm.Current())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return monitor.Run(gctx) })
	g.Go(func() error { return retention.Run(gctx) })
	g.Go(func() error {
		return services.WatchState(gctx, sm,
			func(c entities.StateChange) { metrics.SetState(c.To) },
			hub.PublishState,
		)
	})
	if cfg.PollingEnabled {
		poller := services.NewPoller(gw, commands, cfg.PollingInterval)
		device.OnReload(func(c *confs.Config) { poller.SetInterval(c.PollingInterval) })
		g.Go(func() error { return poller.Run(gctx) })
	}
	if sub, ok := gw.(gateway.CommandSubscriber); ok {
		listener := services.NewMQTTListener(sub, commands)
		g.Go(func() error { return listener.Run(gctx) })
	}
	var worker *services.QueueWorker
	if cfg.CommandStaging == confs.StagingQueue {
		worker = services.NewQueueWorker(staged, commands)
		g.Go(func() error { return worker.Run(gctx) })
	}
	g.Go(func() error {
		// Counter boards are labelled once at start; failures only warn.
		orch.InitDisplays(gctx, p.Counters)
		return nil
	})

	events.LogEvent(entities.DeviceEvent{
		Type:        entities.EventDeviceOnline,
		Description: "Kiosk gateway started",
		Metadata: map[string]any{
			"deviceId":  cfg.DeviceID,
			"transport": cfg.Backend.Transport,
			"staging":   cfg.CommandStaging,
		},
	})
	log.Infow("Kiosk gateway running", "device", cfg.DeviceID, "addr", cfg.HTTPAddr, "transport", cfg.Backend.Transport)

	runErr := g.Wait()

	// Intake has stopped; anything staged after the worker exited is
	// reported before the final drain.
	if worker != nil {
		worker.Flush()
	}

	events.LogEvent(entities.DeviceEvent{Type: entities.EventDeviceOffline, Description: "Kiosk gateway stopping"})
	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := commands.Drain(drainCtx); err != nil {
		log.Warnw("Pending backend reports abandoned", "error", err)
	}
	return runErr
}
