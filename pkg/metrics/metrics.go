// Package metrics exposes Prometheus collectors for the ratings pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchRequestsTotal   *prometheus.CounterVec
	fetchRetriesTotal    prometheus.Counter
	fetchDurationSeconds prometheus.Histogram
	fetchInFlight        prometheus.Gauge
	robotsLookupsTotal   *prometheus.CounterVec
	extractionsTotal     *prometheus.CounterVec
	stageItemsTotal      *prometheus.CounterVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratings_fetch_requests_total",
				Help: "Outbound fetches, labeled by outcome (2xx, 3xx, 4xx, 5xx, error).",
			},
			[]string{"outcome"},
		)

		fetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ratings_fetch_retries_total",
				Help: "Retries issued after transport failures.",
			},
		)

		fetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ratings_fetch_duration_seconds",
				Help:    "Latency of a fetch including retries.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 15, 30},
			},
		)

		fetchInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ratings_fetch_in_flight",
				Help: "Fetches currently holding a slot of the global pool.",
			},
		)

		robotsLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratings_robots_lookups_total",
				Help: "Robots policy lookups, labeled by result (cached, fetched, stale, unavailable).",
			},
			[]string{"result"},
		)

		extractionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratings_extractions_total",
				Help: "Rating extraction attempts, labeled by source (structured-data, widget-heuristic, none).",
			},
			[]string{"source"},
		)

		stageItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratings_stage_items_total",
				Help: "Batch stage items, labeled by stage and outcome (ok, skipped, error).",
			},
			[]string{"stage", "outcome"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StatusOutcome buckets an HTTP status code into an outcome label
func StatusOutcome(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	}
	return "error"
}

// ObserveFetch records a completed fetch. status 0 means the fetch failed without a response.
func ObserveFetch(status int, elapsed time.Duration) {
	Init()
	fetchRequestsTotal.WithLabelValues(StatusOutcome(status)).Inc()
	fetchDurationSeconds.Observe(elapsed.Seconds())
}

// ObserveRetry counts one retry attempt
func ObserveRetry() {
	Init()
	fetchRetriesTotal.Inc()
}

// TrackInFlight adjusts the in-flight gauge by delta
func TrackInFlight(delta float64) {
	Init()
	fetchInFlight.Add(delta)
}

// ObserveRobots records a robots policy lookup result
func ObserveRobots(result string) {
	Init()
	robotsLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveExtraction records which extraction tier produced a result ("none" on a miss)
func ObserveExtraction(source string) {
	Init()
	extractionsTotal.WithLabelValues(source).Inc()
}

// ObserveStageItem records the outcome of one batch item
func ObserveStageItem(stage, outcome string) {
	Init()
	stageItemsTotal.WithLabelValues(stage, outcome).Inc()
}
