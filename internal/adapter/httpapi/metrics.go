package httpapi

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"egyptoai/internal/usecase"
)

// Metrics is the Prometheus side of the service. It implements
// usecase.Metrics and times every routed request.
type Metrics struct {
	registry    *prometheus.Registry
	streams     *prometheus.CounterVec
	deltas      *prometheus.CounterVec
	titles      *prometheus.CounterVec
	rateLimited *prometheus.CounterVec
	requests    *prometheus.HistogramVec
}

var _ usecase.Metrics = (*Metrics)(nil)

// NewMetrics creates the collectors on a private registry, together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		streams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "egyptoai",
			Name:      "chat_streams_total",
			Help:      "Chat turns finished, by provider and outcome.",
		}, []string{"provider", "outcome"}),
		deltas: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "egyptoai",
			Name:      "stream_deltas_total",
			Help:      "Text deltas forwarded to clients.",
		}, []string{"provider"}),
		titles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "egyptoai",
			Name:      "title_summaries_total",
			Help:      "Background title generations, by outcome.",
		}, []string{"outcome"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "egyptoai",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by a rate limiter.",
		}, []string{"scope"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "egyptoai",
			Name:      "http_request_duration_seconds",
			Help:      "Time spent serving HTTP requests, streams included.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"route"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.streams, m.deltas, m.titles, m.rateLimited, m.requests,
	)
	return m
}

func (m *Metrics) StreamFinished(provider string, outcome usecase.Outcome) {
	m.streams.WithLabelValues(provider, string(outcome)).Inc()
}

func (m *Metrics) DeltaForwarded(provider string) {
	m.deltas.WithLabelValues(provider).Inc()
}

func (m *Metrics) TitleSummarized(outcome usecase.Outcome) {
	m.titles.WithLabelValues(string(outcome)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) onLimited(scope string) func(string) {
	c := m.rateLimited.WithLabelValues(scope)
	return func(string) { c.Inc() }
}

// instrument records the duration of h under route. The ResponseWriter is
// passed through untouched so streaming handlers keep flush access.
func (m *Metrics) instrument(route string, h http.Handler) http.Handler {
	obs := m.requests.WithLabelValues(route)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h.ServeHTTP(w, r)
		obs.Observe(time.Since(start).Seconds())
	})
}
