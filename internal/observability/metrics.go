package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classcam",
		Name:      "frames_processed_total",
		Help:      "Total number of frames run through recognition",
	}, []string{"source"})

	FacesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "classcam",
		Name:      "faces_detected_total",
		Help:      "Total number of faces detected in recognition frames",
	})

	Recognitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classcam",
		Name:      "recognitions_total",
		Help:      "Recognition outcomes per face, fresh matcher calls vs. track cache hits",
	}, []string{"source", "result"})

	MatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "classcam",
		Name:      "match_duration_seconds",
		Help:      "Duration of identity matching against enrolled centroids",
		Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 12),
	})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "classcam",
		Name:      "inference_duration_seconds",
		Help:      "Duration of ML inference stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "classcam",
		Name:      "active_sessions",
		Help:      "Number of recognition sessions with tracking state",
	})

	ActiveTracks = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "classcam",
		Name:      "active_tracks",
		Help:      "Number of live tracks across all sessions",
	})

	HandRaises = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "classcam",
		Name:      "hand_raises_total",
		Help:      "Total number of raised-hand modals opened",
	})

	EnrollmentOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classcam",
		Name:      "enrollments_total",
		Help:      "Enrollment lifecycle events",
	}, []string{"outcome"})

	SnapshotSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classcam",
		Name:      "snapshot_saves_total",
		Help:      "Face database snapshot writes",
	}, []string{"result"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "classcam",
		Name:      "queue_depth",
		Help:      "Number of pending frame tasks in queue",
	})

	CaptureActiveCameras = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "classcam",
		Name:      "capture_active_cameras",
		Help:      "Number of cameras currently being captured",
	})

	CaptureFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classcam",
		Name:      "capture_frames_total",
		Help:      "Frames captured and published per camera",
	}, []string{"camera"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "classcam",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "classcam",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
