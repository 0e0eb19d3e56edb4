package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the router.
//
// All methods may be called on a nil *Metrics, in which case they do nothing.
type Metrics struct {
	resolutions       *prometheus.CounterVec
	reconfigurations  *prometheus.CounterVec
	keyUpdates        *prometheus.CounterVec
	connections       *prometheus.CounterVec
	connectionsActive *prometheus.GaugeVec
	bytesTransferred  *prometheus.CounterVec

	registry *prometheus.Registry
}

// New returns a Metrics instance with its own Prometheus registry.
func New() *Metrics {
	m := &Metrics{
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sniroute_resolutions_total",
				Help: "Total number of hostname resolutions by path and result",
			},
			[]string{"path", "result"},
		),

		reconfigurations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sniroute_reconfigurations_total",
				Help: "Total number of completed bulk reconfigurations by status",
			},
			[]string{"status"},
		),

		keyUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sniroute_key_updates_total",
				Help: "Total number of single-key registry operations by operation and result",
			},
			[]string{"operation", "result"},
		),

		connections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sniroute_connections_total",
				Help: "Total number of accepted connections by listener and result",
			},
			[]string{"listener", "result"},
		),

		connectionsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sniroute_connections_active",
				Help: "Number of connections currently being piped",
			},
			[]string{"listener"},
		),

		bytesTransferred: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sniroute_bytes_total",
				Help: "Total number of bytes piped by listener and direction",
			},
			[]string{"listener", "direction"},
		),

		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.resolutions,
		m.reconfigurations,
		m.keyUpdates,
		m.connections,
		m.connectionsActive,
		m.bytesTransferred,
	)

	return m
}

// Register adds additional collectors to the metrics registry.
func (m *Metrics) Register(cs ...prometheus.Collector) {
	if m == nil {
		return
	}
	m.registry.MustRegister(cs...)
}

// Handler returns an http.Handler that serves the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer returns the underlying Prometheus gatherer.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Resolution records the outcome of a hostname resolution.
func (m *Metrics) Resolution(path, result string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(path, result).Inc()
}

// Reconfiguration records a completed bulk reconfiguration.
func (m *Metrics) Reconfiguration(status string) {
	if m == nil {
		return
	}
	m.reconfigurations.WithLabelValues(status).Inc()
}

// KeyUpdate records a single-key registry operation.
func (m *Metrics) KeyUpdate(operation string, err error) {
	if m == nil {
		return
	}
	m.keyUpdates.WithLabelValues(operation, result(err)).Inc()
}

// Connection records the outcome of an accepted connection.
func (m *Metrics) Connection(listener, result string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(listener, result).Inc()
}

// ConnectionOpened increments the number of active connections.
func (m *Metrics) ConnectionOpened(listener string) {
	if m == nil {
		return
	}
	m.connectionsActive.WithLabelValues(listener).Inc()
}

// ConnectionClosed decrements the number of active connections and records
// the bytes transferred in each direction.
func (m *Metrics) ConnectionClosed(listener string, in, out int64) {
	if m == nil {
		return
	}
	m.connectionsActive.WithLabelValues(listener).Dec()
	m.bytesTransferred.WithLabelValues(listener, "in").Add(float64(in))
	m.bytesTransferred.WithLabelValues(listener, "out").Add(float64(out))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
