// Package metrics exposes Prometheus collectors for the crawler service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	frostRequestsTotal          *prometheus.CounterVec
	frostRequestDurationSeconds *prometheus.HistogramVec
	frostRetriesTotal           prometheus.Counter
	frostRateLimitDelaySeconds  prometheus.Histogram
	ingestObservationsTotal     *prometheus.CounterVec
	ingestDatastreamsTotal      *prometheus.CounterVec
	discoveryEntitiesTotal      *prometheus.CounterVec
	crawlCycleDurationSeconds   prometheus.Histogram
	crawlLastCycleTimestamp     prometheus.Gauge
	crawlActiveWorkers          prometheus.Gauge
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		frostRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frost_requests_total",
				Help: "Total upstream SensorThings requests, labeled by entity set and outcome.",
			},
			[]string{"endpoint", "outcome"},
		)

		frostRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "frost_request_duration_seconds",
				Help:    "Histogram of upstream request latencies, labeled by entity set.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"endpoint"},
		)

		frostRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "frost_request_retries_total",
				Help: "Total retried upstream requests.",
			},
		)

		frostRateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "frost_rate_limit_delay_seconds",
				Help:    "Histogram of time spent waiting for the upstream rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
		)

		ingestObservationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_observations_total",
				Help: "Observations seen by the ingest controller, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		ingestDatastreamsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_datastreams_total",
				Help: "Datastream ingests finished, labeled by terminal state.",
			},
			[]string{"state"},
		)

		discoveryEntitiesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discovery_entities_total",
				Help: "Datastreams processed by discovery, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlCycleDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawl_cycle_duration_seconds",
				Help:    "Histogram of full crawl cycle durations.",
				Buckets: []float64{10, 30, 60, 300, 600, 1200, 1800, 3600},
			},
		)

		crawlLastCycleTimestamp = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawl_last_cycle_timestamp_seconds",
				Help: "Unix time the last crawl cycle finished.",
			},
		)

		crawlActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawl_active_workers",
				Help: "Number of workers currently ingesting a datastream.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

var entitySets = map[string]struct{}{
	"Datastreams":         {},
	"Datastream":          {},
	"MultiDatastreams":    {},
	"Observations":        {},
	"Things":              {},
	"Thing":               {},
	"Locations":           {},
	"HistoricalLocations": {},
	"Sensors":             {},
	"ObservedProperties":  {},
	"FeaturesOfInterest":  {},
}

// SanitizeEndpoint reduces an upstream URL to the SensorThings entity set it
// targets ("Datastreams", "Observations", ...) so label cardinality stays
// bounded. It returns "unknown" when no entity set is named.
func SanitizeEndpoint(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "unknown"
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		name, _, _ := strings.Cut(segments[i], "(")
		if _, ok := entitySets[name]; ok {
			return name
		}
	}
	return "unknown"
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFrostRequest records one upstream attempt.
func ObserveFrostRequest(rawURL, outcome string, duration time.Duration) {
	endpoint := SanitizeEndpoint(rawURL)
	frostRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	frostRequestDurationSeconds.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// ObserveFrostRetry counts a retried upstream request.
func ObserveFrostRetry() {
	frostRetriesTotal.Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(duration time.Duration) {
	frostRateLimitDelaySeconds.Observe(duration.Seconds())
}

// ObserveObservations adds n observations with the given outcome.
func ObserveObservations(outcome string, n int) {
	if n <= 0 {
		return
	}
	ingestObservationsTotal.WithLabelValues(outcome).Add(float64(n))
}

// ObserveIngest counts a finished datastream ingest.
func ObserveIngest(state string) {
	ingestDatastreamsTotal.WithLabelValues(state).Inc()
}

// ObserveDiscovery counts a datastream processed by discovery.
func ObserveDiscovery(outcome string) {
	discoveryEntitiesTotal.WithLabelValues(outcome).Inc()
}

// ObserveDiscoveryN counts n datastreams with the same outcome.
func ObserveDiscoveryN(outcome string, n int) {
	if n <= 0 {
		return
	}
	discoveryEntitiesTotal.WithLabelValues(outcome).Add(float64(n))
}

// ObserveCycle records a finished crawl cycle.
func ObserveCycle(duration time.Duration, finished time.Time) {
	crawlCycleDurationSeconds.Observe(duration.Seconds())
	crawlLastCycleTimestamp.Set(float64(finished.Unix()))
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	crawlActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	crawlActiveWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
