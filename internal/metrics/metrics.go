// Package metrics exposes Prometheus collectors for the registry pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	checkTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_check_total",
		Help: "Schema checks by project type and conclusion",
	}, []string{"project_type", "conclusion"})

	publishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_publish_total",
		Help: "Schema publishes by project type and conclusion",
	}, []string{"project_type", "conclusion"})

	compositionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "registry_composition_duration_seconds",
		Help:    "Composition latency by project type",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"project_type"})

	diffDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "registry_diff_duration_seconds",
		Help:    "Structural diff latency including usage and deployment passes",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	versionRecomposeTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registry_version_recompose_total",
		Help: "On-demand recompositions of historical versions",
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_http_requests_total",
		Help: "HTTP requests by route and status",
	}, []string{"route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "registry_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// RecordCheck counts one completed check call.
func RecordCheck(projectType, conclusion string) {
	checkTotal.WithLabelValues(projectType, conclusion).Inc()
}

// RecordPublish counts one completed publish call.
func RecordPublish(projectType, conclusion string) {
	publishTotal.WithLabelValues(projectType, conclusion).Inc()
}

// ObserveComposition records composition latency.
func ObserveComposition(projectType string, d time.Duration) {
	compositionDuration.WithLabelValues(projectType).Observe(d.Seconds())
}

// ObserveDiff records diff latency.
func ObserveDiff(d time.Duration) {
	diffDuration.Observe(d.Seconds())
}

// RecordVersionRecompose counts a historical-version recomposition.
func RecordVersionRecompose() {
	versionRecomposeTotal.Inc()
}

// RecordHTTPRequest counts one served HTTP request.
func RecordHTTPRequest(route, status string, d time.Duration) {
	httpRequests.WithLabelValues(route, status).Inc()
	httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// Handler serves the Prometheus exposition endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
