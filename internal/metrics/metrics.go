// Package metrics exposes the Prometheus instrumentation for the
// admission webhook.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AdmissionReviewsTotal counts admission reviews by policy and decision
	// (allowed, denied, mutated, errored).
	AdmissionReviewsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardgate_admission_reviews_total",
			Help: "Total admission reviews processed by policy and decision.",
		},
		[]string{"policy", "decision"},
	)

	// AdmissionReviewDuration observes end-to-end review latency per policy.
	AdmissionReviewDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "guardgate_admission_review_duration_seconds",
			Help:    "Duration of admission review evaluation.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"policy"},
	)

	// ClusterListQueriesTotal counts namespace-scoped list queries issued by
	// the exposure detector, by resource and result.
	ClusterListQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardgate_cluster_list_queries_total",
			Help: "Total namespace-scoped list queries by resource and result.",
		},
		[]string{"resource", "result"},
	)
)
