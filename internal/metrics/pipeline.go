// Package metrics exposes Prometheus counters and gauges for the
// capture/detect/violation pipeline. All metrics are low-cardinality
// (camera_id only, never track_id or user_id).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesCapturedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ppe_frames_captured_total",
			Help: "Total frames pulled off a camera's RTSP/ffmpeg source",
		},
		[]string{"camera_id"},
	)

	FramesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ppe_frames_dropped_total",
			Help: "Total frames dropped because a downstream queue was full",
		},
		[]string{"camera_id", "stage"},
	)

	ReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ppe_capture_reconnects_total",
			Help: "Total capture worker reconnect attempts",
		},
		[]string{"camera_id"},
	)

	StreamFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ppe_capture_permanent_failures_total",
			Help: "Total times a camera's capture worker gave up after exhausting retries",
		},
		[]string{"camera_id"},
	)

	InferenceLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ppe_inference_latency_ms",
			Help:    "ONNX detection latency in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 200, 500, 1000},
		},
		[]string{"camera_id"},
	)

	ViolationsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ppe_violations_emitted_total",
			Help: "Total violation events submitted to the processor",
		},
		[]string{"camera_id", "class"},
	)

	ViolationsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ppe_violations_queue_dropped_total",
			Help: "Total violation events dropped because the processing queue was saturated",
		},
	)

	EvidenceUploadFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ppe_evidence_upload_failures_total",
			Help: "Total evidence uploads that failed",
		},
		[]string{"camera_id"},
	)

	RecapRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ppe_recap_runs_total",
			Help: "Total recap jobs executed, by period and result",
		},
		[]string{"period", "result"},
	)

	CamerasActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ppe_cameras_active",
			Help: "Current number of enabled cameras with a running capture worker",
		},
	)
)
