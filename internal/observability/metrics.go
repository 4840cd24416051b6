package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OutcomeOK labels a successful operation.
const OutcomeOK = "ok"

// Metrics collects auth operation metrics.
type Metrics interface {
	ObserveOperation(operation, outcome string, d time.Duration)
}

// NopMetrics discards everything.
type NopMetrics struct{}

// ObserveOperation implements Metrics
func (NopMetrics) ObserveOperation(string, string, time.Duration) {}

// PrometheusMetrics implements Metrics on a dedicated registry.
type PrometheusMetrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewPrometheusMetrics registers the auth collectors plus the Go and process
// collectors on a fresh registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	m := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessionauth",
			Subsystem: "auth",
			Name:      "operations_total",
			Help:      "Auth operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sessionauth",
			Subsystem: "auth",
			Name:      "operation_duration_seconds",
			Help:      "Auth operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"operation"}),
	}

	m.registry.MustRegister(
		m.operations,
		m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveOperation implements Metrics
func (m *PrometheusMetrics) ObserveOperation(operation, outcome string, d time.Duration) {
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
