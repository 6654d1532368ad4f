package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the worker's counters on a private registry so tests
// can run isolated instances.
type Metrics struct {
	CountOperations  prometheus.Counter
	CaptureFailures  prometheus.Counter
	ZoneLoadFailures prometheus.Counter
	DetectorFailures prometheus.Counter
	PersistFailures  prometheus.Counter

	ConnectAttempts prometheus.Counter
	ConnectFailures prometheus.Counter
	AnswersEmitted  prometheus.Counter
	ConnectionState prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a Metrics instance with all collectors registered.
func New() *Metrics {
	m := &Metrics{
		CountOperations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "occupancy_count_operations_total",
			Help: "Total counting operations executed",
		}),
		CaptureFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "occupancy_capture_failures_total",
			Help: "Counting operations that fell back to zero counts because capture failed",
		}),
		ZoneLoadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "occupancy_zone_load_failures_total",
			Help: "Operations that ran with an empty zone set",
		}),
		DetectorFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "occupancy_detector_failures_total",
			Help: "Operations where inference failed and partial counts were returned",
		}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "occupancy_persist_failures_total",
			Help: "Best-effort image or history writes that failed",
		}),
		ConnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "occupancy_controller_connect_attempts_total",
			Help: "Connection attempts to the remote controller",
		}),
		ConnectFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "occupancy_controller_connect_failures_total",
			Help: "Failed connection attempts to the remote controller",
		}),
		AnswersEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "occupancy_answers_emitted_total",
			Help: "Count answer events emitted to the remote controller",
		}),
		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "occupancy_controller_connection_state",
			Help: "Controller connection state (0 disconnected, 1 connecting, 2 connected, 3 waiting)",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.CountOperations,
		m.CaptureFailures,
		m.ZoneLoadFailures,
		m.DetectorFailures,
		m.PersistFailures,
		m.ConnectAttempts,
		m.ConnectFailures,
		m.AnswersEmitted,
		m.ConnectionState,
	)

	return m
}

// Handler returns an HTTP handler serving the registry in Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
