// Package metrics exposes portgate's Prometheus instruments.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all portgate metrics.
type Registry struct {
	reg *prometheus.Registry

	// Facade operations
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Activation pipeline
	ActivationsTotal *prometheus.CounterVec
	LastActivation   prometheus.Gauge

	// Current state
	TunnelsConfigured prometheus.Gauge
	ListenersRendered prometheus.Gauge
	HealthCheckPort   prometheus.Gauge

	// Bot
	BotCommandsTotal *prometheus.CounterVec
	BotPollErrors    prometheus.Counter
}

// Get returns the process-wide registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = NewRegistry()
	})
	return registry
}

// NewRegistry creates an isolated registry.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	r := &Registry{reg: reg}

	r.OperationsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portgate",
		Name:      "operations_total",
		Help:      "Facade operations by name and outcome stage",
	}, []string{"op", "result"})

	r.OperationDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "portgate",
		Name:      "operation_duration_seconds",
		Help:      "Facade operation latency including activation",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"op"})

	r.ActivationsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portgate",
		Name:      "activations_total",
		Help:      "HAProxy activations by result (ok, staging, check, deploy, restart)",
	}, []string{"result"})

	r.LastActivation = f.NewGauge(prometheus.GaugeOpts{
		Namespace: "portgate",
		Name:      "last_activation_timestamp_seconds",
		Help:      "Unix time of the last successful activation",
	})

	r.TunnelsConfigured = f.NewGauge(prometheus.GaugeOpts{
		Namespace: "portgate",
		Name:      "tunnels",
		Help:      "Number of persisted tunnels",
	})

	r.ListenersRendered = f.NewGauge(prometheus.GaugeOpts{
		Namespace: "portgate",
		Name:      "listeners",
		Help:      "Number of listen sections in the last rendered configuration",
	})

	r.HealthCheckPort = f.NewGauge(prometheus.GaugeOpts{
		Namespace: "portgate",
		Name:      "health_check_port",
		Help:      "Configured health-check port, 0 when disabled",
	})

	r.BotCommandsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portgate",
		Name:      "bot_commands_total",
		Help:      "Bot commands handled, by command and whether they were authorized",
	}, []string{"command", "authorized"})

	r.BotPollErrors = f.NewCounter(prometheus.CounterOpts{
		Namespace: "portgate",
		Name:      "bot_poll_errors_total",
		Help:      "Failed getUpdates calls",
	})

	return r
}

// ObserveOperation records one facade operation. result is "ok" or the
// failed stage.
func (r *Registry) ObserveOperation(op, result string, d time.Duration) {
	r.OperationsTotal.WithLabelValues(op, result).Inc()
	r.OperationDuration.WithLabelValues(op).Observe(d.Seconds())
}

// RecordActivation records an activation outcome.
func (r *Registry) RecordActivation(result string, at time.Time) {
	r.ActivationsTotal.WithLabelValues(result).Inc()
	if result == "ok" {
		r.LastActivation.Set(float64(at.Unix()))
	}
}

// SetState publishes the current tunnel and listener counts.
func (r *Registry) SetState(tunnels, listeners, healthCheckPort int) {
	r.TunnelsConfigured.Set(float64(tunnels))
	r.ListenersRendered.Set(float64(listeners))
	r.HealthCheckPort.Set(float64(healthCheckPort))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}
