// Package telemetry owns the prometheus collectors for the service.
// Everything registers on a private registry so tests can build as many
// instances as they like without collisions.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the service records into.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	NavigationsTotal *prometheus.CounterVec
	RemoteCallsTotal *prometheus.CounterVec
	DBQuerySeconds   prometheus.Histogram
}

// New builds and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nldi",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests served",
			},
			[]string{"route", "method", "code"},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "nldi",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),

		NavigationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nldi",
				Subsystem: "navigation",
				Name:      "walks_total",
				Help:      "Total number of network navigations by mode",
			},
			[]string{"mode"},
		),

		RemoteCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nldi",
				Subsystem: "pygeoapi",
				Name:      "calls_total",
				Help:      "Total number of remote geoprocessing calls by process and outcome",
			},
			[]string{"process", "outcome"},
		),

		DBQuerySeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "nldi",
				Subsystem: "db",
				Name:      "query_duration_seconds",
				Help:      "Database query round trip in seconds, pool acquisition included",
				Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
			},
		),
	}

	m.registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.NavigationsTotal,
		m.RemoteCallsTotal,
		m.DBQuerySeconds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest counts one served request and observes its duration.
func (m *Metrics) RecordRequest(route, method string, code int, elapsed time.Duration) {
	m.RequestsTotal.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.RequestDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// RecordNavigation counts one navigation walk.
func (m *Metrics) RecordNavigation(mode string) {
	m.NavigationsTotal.WithLabelValues(mode).Inc()
}

// RecordRemoteCall counts one pygeoapi call.
func (m *Metrics) RecordRemoteCall(process, outcome string) {
	m.RemoteCallsTotal.WithLabelValues(process, outcome).Inc()
}

// ObserveQuery records one database round trip.
func (m *Metrics) ObserveQuery(elapsed time.Duration) {
	m.DBQuerySeconds.Observe(elapsed.Seconds())
}
