// Package metrics exposes Prometheus instrumentation for the gateway.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kiosk-gateway/entities"
	"kiosk-gateway/logging"
)

// SlowThreshold is the duration above which requests and commands are logged as slow.
const SlowThreshold = 5 * time.Second

var (
	namespace = "kiosk"

	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commands",
			Name:      "processed_total",
			Help:      "Commands that reached a terminal outcome, by type and result",
		},
		[]string{"type", "result"},
	)

	commandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "commands",
			Name:      "duration_seconds",
			Help:      "Time spent orchestrating a command",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"type"},
	)

	commandsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commands",
			Name:      "rejected_total",
			Help:      "Commands rejected before orchestration, by type and error kind",
		},
		[]string{"type", "kind"},
	)

	commandsDuplicate = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commands",
			Name:      "duplicate_total",
			Help:      "Commands dropped because their commandId was already claimed",
		},
	)

	reportRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "retries_total",
			Help:      "Retried backend calls by operation",
		},
		[]string{"operation"},
	)

	reportFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "failures_total",
			Help:      "Backend calls that failed after all attempts",
		},
		[]string{"operation"},
	)

	deviceState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_state",
			Help:      "1 for the current device state, 0 otherwise",
		},
		[]string{"state"},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Commands waiting in the staging queue",
		},
	)

	eventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Events not persisted because the sink buffer was full",
		},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Local API request latency",
		},
		[]string{"method", "route", "status"},
	)
)

var allStates = []entities.DeviceState{
	entities.StateInitializing,
	entities.StateReady,
	entities.StatePrinting,
	entities.StateCalling,
	entities.StateError,
	entities.StateMaintenance,
}

func ObserveCommand(t entities.CommandType, success bool, d time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	commandsTotal.WithLabelValues(string(t), result).Inc()
	commandDuration.WithLabelValues(string(t)).Observe(d.Seconds())
	if d > SlowThreshold {
		logging.For("metrics").Warnw("Slow command", "type", t, "duration", d)
	}
}

func CommandRejected(t entities.CommandType, kind entities.ErrorKind) {
	commandsRejected.WithLabelValues(string(t), string(kind)).Inc()
}

func CommandDuplicate() { commandsDuplicate.Inc() }

func BackendRetry(operation string) { reportRetries.WithLabelValues(operation).Inc() }

func BackendFailure(operation string) { reportFailures.WithLabelValues(operation).Inc() }

func SetState(current entities.DeviceState) {
	for _, s := range allStates {
		v := 0.0
		if s == current {
			v = 1
		}
		deviceState.WithLabelValues(string(s)).Set(v)
	}
}

func SetQueueDepth(n int) { queueDepth.Set(float64(n)) }

func EventDropped() { eventsDropped.Inc() }

// Middleware records request latency per route and logs slow requests.
func Middleware() gin.HandlerFunc {
	log := logging.For("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpDuration.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Observe(elapsed.Seconds())
		if elapsed > SlowThreshold {
			log.Warnw("Slow request", "method", c.Request.Method, "path", c.Request.URL.Path, "duration", elapsed)
		}
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
