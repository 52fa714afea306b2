// Package metrics holds the Prometheus collectors for storywall.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storywall"

// Metrics groups the collectors used by the feed, media and HTTP layers.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	operations     *prometheus.CounterVec
	writeAttempts  *prometheus.HistogramVec
	conflicts      *prometheus.CounterVec
	mediaBytes     prometheus.Counter
	releaseFailure prometheus.Counter
	httpRequests   *prometheus.CounterVec
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Feed operations by name and result",
		}, []string{"operation", "result"}),
		writeAttempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "document_write_attempts",
			Help:      "Conditional write attempts needed per mutation",
			Buckets:   []float64{1, 2, 3, 4, 5, 8, 13},
		}, []string{"operation"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "document_conflicts_total",
			Help:      "Conditional writes rejected because the document changed",
		}, []string{"operation"}),
		mediaBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_bytes_total",
			Help:      "Bytes of media uploaded",
		}),
		releaseFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_release_failures_total",
			Help:      "Media objects that could not be deleted with their story",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		m.operations,
		m.writeAttempts,
		m.conflicts,
		m.mediaBytes,
		m.releaseFailure,
		m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Operation(operation, result string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) WriteAttempts(operation string, attempts int) {
	if m == nil || attempts == 0 {
		return
	}
	m.writeAttempts.WithLabelValues(operation).Observe(float64(attempts))
}

func (m *Metrics) Conflict(operation string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(operation).Inc()
}

func (m *Metrics) MediaUploaded(size int) {
	if m == nil {
		return
	}
	m.mediaBytes.Add(float64(size))
}

func (m *Metrics) MediaReleaseFailed() {
	if m == nil {
		return
	}
	m.releaseFailure.Inc()
}

func (m *Metrics) HTTPRequest(method, route string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
