// Package metrics holds the Prometheus collectors for digest runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds every collector below. It is separate from the default
	// registry so textfile output contains only digest metrics.
	Registry = prometheus.NewRegistry()

	DigestRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ytdigest_runs_total",
		Help: "Digest runs by outcome",
	}, []string{"digest", "outcome"})

	DeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ytdigest_deliveries_total",
		Help: "Per-recipient deliveries by status",
	}, []string{"digest", "status"})

	VideosTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ytdigest_videos_total",
		Help: "Videos seen by the pipeline by stage",
	}, []string{"digest", "stage"})

	DigestBuildSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ytdigest_build_seconds",
		Help:    "Time from fetch to rendered digest",
		Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300, 600},
	}, []string{"digest"})

	ExternalCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ytdigest_external_call_duration_seconds",
		Help:    "Duration of calls to YouTube and LLM providers",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "status"})

	ExternalCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ytdigest_external_calls_total",
		Help: "Calls to YouTube and LLM providers",
	}, []string{"component", "operation", "status"})

	LastSuccessTimestamp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ytdigest_last_success_timestamp_seconds",
		Help: "Unix time of the last delivered digest",
	}, []string{"digest"})
)

func init() {
	MustRegister(Registry)
}

// MustRegister registers the collectors with registerer.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		DigestRunsTotal,
		DeliveriesTotal,
		VideosTotal,
		DigestBuildSeconds,
		ExternalCallDuration,
		ExternalCallsTotal,
		LastSuccessTimestamp,
	)
}

// Handler serves Registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes Registry for the node exporter textfile collector.
// An empty path is a no-op.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, Registry)
}

// ObserveExternalCall records duration and status of one external call.
func ObserveExternalCall(component, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ExternalCallDuration.WithLabelValues(component, operation, status).Observe(time.Since(start).Seconds())
	ExternalCallsTotal.WithLabelValues(component, operation, status).Inc()
}

// ObserveRun records the outcome of a digest run.
func ObserveRun(digest, outcome string) {
	DigestRunsTotal.WithLabelValues(digest, outcome).Inc()
}

// ObserveDelivery records one per-recipient delivery attempt.
func ObserveDelivery(digest string, err error) {
	status := "sent"
	if err != nil {
		status = "failed"
	}
	DeliveriesTotal.WithLabelValues(digest, status).Inc()
}

// ObserveVideos adds n to the counter for a pipeline stage.
func ObserveVideos(digest, stage string, n int) {
	if n > 0 {
		VideosTotal.WithLabelValues(digest, stage).Add(float64(n))
	}
}

// ObserveBuild records how long a digest took to build.
func ObserveBuild(digest string, d time.Duration) {
	DigestBuildSeconds.WithLabelValues(digest).Observe(d.Seconds())
}

// MarkSuccess sets the last-success gauge for a digest.
func MarkSuccess(digest string, at time.Time) {
	LastSuccessTimestamp.WithLabelValues(digest).Set(float64(at.Unix()))
}
