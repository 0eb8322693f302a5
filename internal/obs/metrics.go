package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Source fetch outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeEmpty   = "empty"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

var (
	// Registry holds the service's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	sourceRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "priceradar",
			Subsystem: "source",
			Name:      "requests_total",
			Help:      "Source adapter invocations by outcome.",
		},
		[]string{"source", "outcome"},
	)

	sourceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "priceradar",
			Subsystem: "source",
			Name:      "duration_seconds",
			Help:      "Duration of completed source adapter calls.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"source"},
	)

	aggregationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "priceradar",
			Subsystem: "engine",
			Name:      "aggregation_duration_seconds",
			Help:      "Wall time of fan-out aggregations.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"mode"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "priceradar",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Result cache lookups by result.",
		},
		[]string{"result"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "priceradar",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	poolWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "priceradar",
			Subsystem: "pool",
			Name:      "workers",
			Help:      "Current number of fetch workers.",
		},
	)
)

func init() {
	Registry.MustRegister(
		sourceRequests,
		sourceDuration,
		aggregationDuration,
		cacheLookups,
		httpRequests,
		poolWorkers,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// MetricsHandler exposes the registry in the Prometheus text format.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveSource records one adapter call.
func ObserveSource(source, outcome string, seconds float64) {
	sourceRequests.WithLabelValues(source, outcome).Inc()
	if outcome != OutcomeTimeout {
		sourceDuration.WithLabelValues(source).Observe(seconds)
	}
}

// ObserveAggregation records the duration of one fan-out.
func ObserveAggregation(mode string, seconds float64) {
	aggregationDuration.WithLabelValues(mode).Observe(seconds)
}

// CacheLookup counts a cache hit or miss.
func CacheLookup(hit bool) {
	if hit {
		cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	cacheLookups.WithLabelValues("miss").Inc()
}

// HTTPRequest counts a served request.
func HTTPRequest(method, route, status string) {
	httpRequests.WithLabelValues(method, route, status).Inc()
}

// SetWorkers sets the worker gauge.
func SetWorkers(n int) { poolWorkers.Set(float64(n)) }
