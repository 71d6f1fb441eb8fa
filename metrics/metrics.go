package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Publication outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Metrics holds the registry's collectors on a private registry so that
// several instances can live in one process (tests).
type Metrics struct {
	registry *prometheus.Registry

	Publications      *prometheus.CounterVec
	Downloads         prometheus.Counter
	IndexPushFailures prometheus.Counter
	SearchIndexErrors prometheus.Counter
	RequestDuration   *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Publications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_publications_total",
			Help: "Crate publications by outcome.",
		}, []string{"outcome"}),
		Downloads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "registry_downloads_total",
			Help: "Crate downloads served.",
		}),
		IndexPushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "registry_index_push_failures_total",
			Help: "Index pushes rejected by the remote.",
		}),
		SearchIndexErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "registry_search_index_errors_total",
			Help: "Failed search index updates.",
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "registry_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "code"}),
	}
	m.registry.MustRegister(
		m.Publications,
		m.Downloads,
		m.IndexPushFailures,
		m.SearchIndexErrors,
		m.RequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gatherer exposes the underlying registry, mainly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
