// Package metrics holds the Prometheus collectors for the site.
//
// Collectors are registered on a private registry rather than the global
// default so tests can build as many Metrics values as they like.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Submission outcomes, used as the "outcome" label.
const (
	OutcomeForwarded   = "forwarded"
	OutcomeStored      = "stored"
	OutcomeSimulated   = "simulated"
	OutcomeHoneypot    = "honeypot"
	OutcomeInvalid     = "invalid"
	OutcomeRateLimited = "rate_limited"
	OutcomeUpstream    = "upstream_error"
	OutcomeError       = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	EndpointLatency *prometheus.HistogramVec
	Requests        *prometheus.CounterVec
	Submissions     *prometheus.CounterVec
	UpstreamCalls   *prometheus.CounterVec
	UpstreamLatency *prometheus.HistogramVec
	CatalogBooks    prometheus.Gauge
}

// New creates and registers all collectors, including the Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		EndpointLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bookdigest_endpoint_latency_seconds",
			Help:    "Latency of endpoints in seconds, labeled by route pattern",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bookdigest_http_requests_total",
			Help: "Total HTTP requests, labeled by route pattern and status class",
		}, []string{"route", "method", "class"}),
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bookdigest_submissions_total",
			Help: "Registration submissions, labeled by location and outcome",
		}, []string{"location", "outcome"}),
		UpstreamCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bookdigest_upstream_calls_total",
			Help: "Calls to external processors, labeled by target and result",
		}, []string{"target", "result"}),
		UpstreamLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bookdigest_upstream_latency_seconds",
			Help:    "Latency of calls to external processors in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"target"}),
		CatalogBooks: f.NewGauge(prometheus.GaugeOpts{
			Name: "bookdigest_catalog_books",
			Help: "Number of books loaded into the catalog index",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveEndpoint(route, method string, status int, d time.Duration) {
	m.EndpointLatency.WithLabelValues(route, method).Observe(d.Seconds())
	m.Requests.WithLabelValues(route, method, statusClass(status)).Inc()
}

func (m *Metrics) RecordSubmission(location, outcome string) {
	if location == "" {
		location = "unknown"
	}
	m.Submissions.WithLabelValues(location, outcome).Inc()
}

// ObserveUpstream records one call; err == nil counts as "ok".
func (m *Metrics) ObserveUpstream(target string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.UpstreamCalls.WithLabelValues(target, result).Inc()
	m.UpstreamLatency.WithLabelValues(target).Observe(d.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
