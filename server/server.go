package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"kiosk-gateway/cache"
	"kiosk-gateway/db"
	"kiosk-gateway/entities"
	"kiosk-gateway/handlers"
	httpHandler "kiosk-gateway/handlers/http"
	"kiosk-gateway/logging"
	"kiosk-gateway/metrics"
	"kiosk-gateway/usecases"
	"kiosk-gateway/ws"
)

const shutdownTimeout = 10 * time.Second

// Deps are the collaborators the HTTP surface routes to. Database is optional.
type Deps struct {
	DeviceID string
	Commands *usecases.CommandsUseCase
	Device   *usecases.DeviceUseCase
	Dedup    *cache.CommandCache
	Hub      *ws.Manager
	Events   usecases.EventLogger
	Database db.Database
}

type Server struct {
	app  *gin.Engine
	addr string
	deps Deps
	log  *zap.SugaredLogger
}

func NewServer(addr string, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		app:  gin.New(),
		addr: addr,
		deps: deps,
		log:  logging.For("http"),
	}
	s.routes()
	return s
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler { return s.app }

func (s *Server) routes() {
	s.app.Use(ginzap.Ginzap(zap.L(), time.RFC3339, true))
	s.app.Use(ginzap.RecoveryWithZap(zap.L(), true))
	s.app.Use(s.recordPanics())
	s.app.Use(metrics.Middleware())

	// Setup CORS middleware
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true // the kiosk UI is served from another local origin
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	s.app.Use(cors.New(config))

	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(10000))
	health.AddReadinessCheck("device-state", s.deviceStateCheck())
	if s.deps.Database != nil {
		if sqlDB, err := s.deps.Database.GetDB().DB(); err == nil {
			health.AddReadinessCheck("event-database", healthcheck.DatabasePingCheck(sqlDB, time.Second))
		}
	}
	s.app.GET("/live", gin.WrapF(health.LiveEndpoint))
	s.app.GET("/ready", gin.WrapF(health.ReadyEndpoint))
	s.app.GET("/metrics", gin.WrapH(metrics.Handler()))

	cmdHandler := httpHandler.NewCommandHandler(s.deps.Commands, s.deps.DeviceID)
	deviceHandler := httpHandler.NewDeviceHandler(s.deps.Device)
	diagnosticsHandler := httpHandler.NewDiagnosticsHandler(s.deps.Device)
	maintenanceHandler := httpHandler.NewMaintenanceHandler(s.deps.Device)
	cacheHandler := handlers.NewCacheHandler(s.deps.Dedup)
	wsHandler := handlers.NewWSHandler(s.deps.Hub, s.deps.Device.State)

	// Command intake
	s.app.POST("/print", cmdHandler.Print)
	s.app.POST("/call", cmdHandler.Call)

	// Device routes
	s.app.GET("/status", deviceHandler.GetStatus)
	s.app.POST("/reset", deviceHandler.Reset)

	maintenance := s.app.Group("/maintenance")
	{
		maintenance.POST("/start", maintenanceHandler.Start)
		maintenance.POST("/stop", maintenanceHandler.Stop)
		maintenance.POST("/reload-config", maintenanceHandler.ReloadConfig)
		maintenance.POST("/clear-queue", maintenanceHandler.ClearQueue)
		maintenance.POST("/cleanup", maintenanceHandler.Cleanup)
		maintenance.GET("/system-info", maintenanceHandler.SystemInfo)
	}

	diagnostics := s.app.Group("/diagnostics")
	{
		diagnostics.GET("/health", diagnosticsHandler.GetHealth)
		diagnostics.POST("/test-component", diagnosticsHandler.TestComponent)
		diagnostics.POST("/test-print", diagnosticsHandler.TestPrint)
		diagnostics.GET("/recent-events", diagnosticsHandler.GetRecentEvents)
		diagnostics.GET("/export-logs", diagnosticsHandler.ExportLogs)
	}

	queue := s.app.Group("/queue")
	{
		queue.GET("/count", maintenanceHandler.QueueCount)
		queue.DELETE("/clear", maintenanceHandler.ClearQueue)
	}

	// Idempotency cache endpoints
	dedup := s.app.Group("/cache")
	{
		dedup.GET("/stats", cacheHandler.GetCacheStats)
		dedup.GET("/commands/:id", cacheHandler.GetCommand)
		dedup.DELETE("", cacheHandler.ClearCache)
	}

	s.app.GET("/ws", wsHandler.HandleDashboardWS)
	s.app.GET("/ws/clients", wsHandler.GetConnectedDashboards)
}

// recordPanics logs a DeviceError event for a handler panic and hands the
// panic on to the recovery middleware.
func (s *Server) recordPanics() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				if s.deps.Events != nil {
					s.deps.Events.LogEvent(entities.DeviceEvent{
						Type:        entities.EventDeviceError,
						Description: fmt.Sprintf("Unhandled error on %s %s: %v", c.Request.Method, c.FullPath(), r),
					})
				}
				panic(r)
			}
		}()
		c.Next()
	}
}

func (s *Server) deviceStateCheck() healthcheck.Check {
	return func() error {
		switch current := s.deps.Device.State.Current(); current {
		case entities.StateError, entities.StateMaintenance:
			return fmt.Errorf("device is %s", current)
		}
		return nil
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.app,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("HTTP server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	s.log.Info("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
