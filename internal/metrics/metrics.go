// Package metrics holds the agent's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeLoaded     = "loaded"
	OutcomeFailed     = "failed"
	OutcomeSuperseded = "superseded"
	OutcomeCleared    = "cleared"
)

var (
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facekit_uploads_total",
		Help: "Keyframe video uploads, by outcome",
	}, []string{"outcome"})

	ExtractionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "facekit_extraction_duration_seconds",
		Help:    "Duration of frame extraction per upload",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	})

	FramesExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facekit_frames_extracted_total",
		Help: "Total number of frames indexed from uploaded videos",
	})

	SessionFrames = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "facekit_session_frames",
		Help: "Number of frames in the current keyframe session",
	})

	EditJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facekit_edit_jobs_total",
		Help: "Edit jobs finished, by status",
	}, []string{"status"})

	EngineRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "facekit_engine_request_duration_seconds",
		Help:    "Inference engine request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
