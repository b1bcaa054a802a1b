// Package metrics exposes Prometheus collectors for the recommendation
// pipeline. All collectors are registered on the default registry at init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecommendationRequests counts recommendation requests by outcome mode.
	RecommendationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cinemind",
		Subsystem: "recommend",
		Name:      "requests_total",
		Help:      "Recommendation requests by result mode (hybrid, cf-only, content-only, error).",
	}, []string{"mode"})

	// RecommendationLatency observes end-to-end request latency in seconds.
	RecommendationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cinemind",
		Subsystem: "recommend",
		Name:      "latency_seconds",
		Help:      "End-to-end recommendation latency.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	// RecommendationResults observes how many items a request returned.
	RecommendationResults = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cinemind",
		Subsystem: "recommend",
		Name:      "results_count",
		Help:      "Items returned per recommendation request.",
		Buckets:   []float64{0, 1, 3, 6, 9, 12},
	})

	// VectorizerFallbacks counts requests that fell back to CF-only scoring
	// because the candidate batch could not be vectorized.
	VectorizerFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cinemind",
		Subsystem: "recommend",
		Name:      "vectorizer_fallbacks_total",
		Help:      "Requests served CF-only after TF-IDF vectorization was unavailable.",
	})

	// CandidateFetchErrors counts metadata fetch failures for candidates.
	// Missing candidates are skipped, not failed, so this tracks provider health.
	CandidateFetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cinemind",
		Subsystem: "tmdb",
		Name:      "fetch_errors_total",
		Help:      "Candidate metadata fetch errors by kind (not_found, breaker_open, other).",
	}, []string{"kind"})

	// TMDBRequestLatency observes upstream metadata API latency.
	TMDBRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cinemind",
		Subsystem: "tmdb",
		Name:      "request_latency_seconds",
		Help:      "Upstream metadata API latency by endpoint.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint"})

	// CFModelInfo carries the loaded CF model version and item count as
	// labels on a gauge pinned to 1.
	CFModelInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cinemind",
		Subsystem: "cf",
		Name:      "model_info",
		Help:      "Loaded CF model metadata. Value is always 1.",
	}, []string{"version"})

	// CFModelItems reports the number of items in the loaded CF model.
	CFModelItems = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cinemind",
		Subsystem: "cf",
		Name:      "model_items",
		Help:      "Items in the loaded CF model.",
	})

	// CFModelLoadErrors counts model load or reload failures.
	CFModelLoadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cinemind",
		Subsystem: "cf",
		Name:      "model_load_errors_total",
		Help:      "CF model load or reload failures.",
	})

	// ProfileUpdates counts preference profile mutations by kind.
	ProfileUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cinemind",
		Subsystem: "profiles",
		Name:      "updates_total",
		Help:      "User profile mutations by kind (rating, watchlist_add, watchlist_remove, view, search).",
	}, []string{"kind"})
)
