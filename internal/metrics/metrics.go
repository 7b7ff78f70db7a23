// Package metrics exposes Prometheus instrumentation for the scoring engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BatchesScored counts completed batch scoring passes by outcome.
	BatchesScored = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kestrel",
		Name:      "batches_scored_total",
		Help:      "Completed batch scoring passes by outcome.",
	}, []string{"outcome"})

	// RecordsScored counts individual tenders scored by risk category.
	RecordsScored = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kestrel",
		Name:      "records_scored_total",
		Help:      "Tenders scored by final risk category.",
	}, []string{"category"})

	// HiddenRisks counts anomaly-only detections.
	HiddenRisks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kestrel",
		Name:      "hidden_risks_total",
		Help:      "Tenders flagged by the anomaly model alone.",
	})

	// ScoringDuration observes end-to-end batch scoring latency.
	ScoringDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "kestrel",
		Name:      "batch_scoring_duration_seconds",
		Help:      "End-to-end batch scoring latency.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	// HTTPRequests counts API requests by route and status class.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kestrel",
		Name:      "http_requests_total",
		Help:      "API requests by route and status class.",
	}, []string{"route", "status"})
)

// Handler returns the /metrics scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
