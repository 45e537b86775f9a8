// Package metrics exposes Prometheus instrumentation for the feed pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	// Viewer metrics
	ActiveViewers  prometheus.Gauge
	ViewerSessions prometheus.Counter
	ViewerDuration prometheus.Histogram

	// Frame metrics
	FramesStreamed prometheus.Counter
	BytesStreamed  prometheus.Counter
	FrameSize      prometheus.Histogram

	// Decoder metrics
	DecoderLaunches     prometheus.Counter
	DecoderLaunchErrors prometheus.Counter

	// Feed teardown, by reason: disconnect | eof | read_error | write_error
	FeedEnds *prometheus.CounterVec
}

// New creates all collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ActiveViewers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "camfeed_active_viewers",
			Help: "Number of currently connected MJPEG viewers",
		}),
		ViewerSessions: factory.NewCounter(prometheus.CounterOpts{
			Name: "camfeed_viewer_sessions_total",
			Help: "Total number of viewer sessions since server start",
		}),
		ViewerDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "camfeed_viewer_duration_seconds",
			Help:    "Duration of viewer sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~2.3h
		}),
		FramesStreamed: factory.NewCounter(prometheus.CounterOpts{
			Name: "camfeed_frames_streamed_total",
			Help: "Total number of JPEG frames delivered to viewers",
		}),
		BytesStreamed: factory.NewCounter(prometheus.CounterOpts{
			Name: "camfeed_bytes_streamed_total",
			Help: "Total frame payload bytes delivered to viewers",
		}),
		FrameSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "camfeed_frame_size_bytes",
			Help:    "Size of delivered JPEG frames in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~2MB
		}),
		DecoderLaunches: factory.NewCounter(prometheus.CounterOpts{
			Name: "camfeed_decoder_launches_total",
			Help: "Total number of decode processes spawned",
		}),
		DecoderLaunchErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "camfeed_decoder_launch_errors_total",
			Help: "Total number of decode processes that failed to start",
		}),
		FeedEnds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "camfeed_feed_ends_total",
				Help: "Total number of feed teardowns, by reason",
			},
			[]string{"reason"},
		),
	}
}

// RecordViewerStart records a viewer session beginning.
func (m *Metrics) RecordViewerStart() {
	m.ActiveViewers.Inc()
	m.ViewerSessions.Inc()
}

// RecordViewerStop records a viewer session ending.
func (m *Metrics) RecordViewerStop(durationSeconds float64) {
	m.ActiveViewers.Dec()
	m.ViewerDuration.Observe(durationSeconds)
}

// RecordFrame records one frame delivered to a viewer.
func (m *Metrics) RecordFrame(size int) {
	m.FramesStreamed.Inc()
	m.BytesStreamed.Add(float64(size))
	m.FrameSize.Observe(float64(size))
}

// RecordFeedEnd records why a feed tore down.
func (m *Metrics) RecordFeedEnd(reason string) {
	m.FeedEnds.WithLabelValues(reason).Inc()
}
