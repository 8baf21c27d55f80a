// Package metrics provides Prometheus instruments for hls2vod.
// Labels are limited to the stream name and coarse result values.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SegmentsDownloadedTotal counts segments fetched and handed to the sink.
	SegmentsDownloadedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hls2vod_segments_downloaded_total",
		Help: "Total number of media segments downloaded, by stream.",
	}, []string{"stream"})

	// SegmentBytesTotal counts downloaded segment payload bytes.
	SegmentBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hls2vod_segment_bytes_total",
		Help: "Total bytes of media segments downloaded, by stream.",
	}, []string{"stream"})

	// SegmentFailuresTotal counts segment downloads that failed or were dropped.
	SegmentFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hls2vod_segment_failures_total",
		Help: "Total number of segment downloads that failed or were dropped, by stream and reason.",
	}, []string{"stream", "reason"})

	// PlaylistRefreshFailuresTotal counts playlist refreshes that could not be fetched or parsed.
	PlaylistRefreshFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hls2vod_playlist_refresh_failures_total",
		Help: "Total number of failed media playlist refreshes, by stream.",
	}, []string{"stream"})

	// DownloaderStallsTotal counts downloaders stopped by the stall timer.
	DownloaderStallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hls2vod_downloader_stalls_total",
		Help: "Total number of downloaders stopped because no new segment appeared in time, by stream.",
	}, []string{"stream"})

	// SessionsOpen tracks currently open recording sessions.
	SessionsOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hls2vod_sessions_open",
		Help: "Current number of open recording sessions, by stream.",
	}, []string{"stream"})

	// RemuxTotal counts finished remux attempts by result.
	RemuxTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hls2vod_remux_total",
		Help: "Total number of finished recording sessions, by result (completed, failed, empty).",
	}, []string{"result"})

	// RemuxDuration observes how long the external remux tool ran.
	RemuxDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hls2vod_remux_duration_seconds",
		Help:    "Wall-clock duration of remux tool invocations.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	})
)

// RecordSegment records one successfully downloaded segment.
func RecordSegment(stream string, size int) {
	SegmentsDownloadedTotal.WithLabelValues(stream).Inc()
	SegmentBytesTotal.WithLabelValues(stream).Add(float64(size))
}

// RecordSegmentFailure records a failed or dropped segment.
func RecordSegmentFailure(stream, reason string) {
	SegmentFailuresTotal.WithLabelValues(stream, reason).Inc()
}

// RecordRefreshFailure records a failed playlist refresh.
func RecordRefreshFailure(stream string) {
	PlaylistRefreshFailuresTotal.WithLabelValues(stream).Inc()
}

// RecordStall records a downloader stopped by the stall timer.
func RecordStall(stream string) {
	DownloaderStallsTotal.WithLabelValues(stream).Inc()
}

// SetSessionsOpen publishes the number of open sessions for a stream.
func SetSessionsOpen(stream string, n int) {
	SessionsOpen.WithLabelValues(stream).Set(float64(n))
}

// ForgetStream removes the per-stream series of a deleted stream.
func ForgetStream(stream string) {
	SegmentsDownloadedTotal.DeleteLabelValues(stream)
	SegmentBytesTotal.DeleteLabelValues(stream)
	PlaylistRefreshFailuresTotal.DeleteLabelValues(stream)
	DownloaderStallsTotal.DeleteLabelValues(stream)
	SessionsOpen.DeleteLabelValues(stream)
	SegmentFailuresTotal.DeletePartialMatch(prometheus.Labels{"stream": stream})
}

// RecordRemux records a finished session and, when the tool ran, its duration.
func RecordRemux(result string, took time.Duration) {
	RemuxTotal.WithLabelValues(result).Inc()
	if took > 0 {
		RemuxDuration.Observe(took.Seconds())
	}
}

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
