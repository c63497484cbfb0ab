package pipeline

import "github.com/prometheus/client_golang/prometheus"

var (
	framesSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inferno_pipeline_frames_submitted_total",
			Help: "Total number of frames submitted to the pipeline.",
		},
	)

	framesCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inferno_pipeline_frames_completed_total",
			Help: "Total number of frames retrieved by the consumer.",
		},
	)

	framesFaulted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inferno_pipeline_frames_faulted_total",
			Help: "Total number of frames whose completion handler faulted.",
		},
	)

	inflightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "inferno_pipeline_inflight_requests",
			Help: "Number of inference requests currently in flight.",
		},
	)

	frameLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inferno_pipeline_frame_latency_seconds",
			Help:    "Submission-to-retrieval latency per frame, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(framesSubmitted)
	prometheus.MustRegister(framesCompleted)
	prometheus.MustRegister(framesFaulted)
	prometheus.MustRegister(inflightRequests)
	prometheus.MustRegister(frameLatency)
}
