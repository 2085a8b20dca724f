// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ExportJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lyricvid_export_jobs_total",
			Help: "Export jobs by final status",
		},
		[]string{"status"},
	)
	ExportDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lyricvid_export_duration_seconds",
			Help:    "Wall time from capture start to stored artifact",
			Buckets: []float64{10, 30, 60, 120, 240, 480, 900},
		},
	)
	ExportFrames = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "lyricvid_export_frames_total", Help: "Video frames written to the recorder"},
	)
	TimelineBuilds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lyricvid_timeline_builds_total",
			Help: "Lyric timeline builds by mode and outcome",
		},
		[]string{"mode", "status"},
	)
	TimelineBuildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lyricvid_timeline_build_duration_seconds",
			Help:    "Time spent in lyric collaborators",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)
	MonitorListeners = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "lyricvid_monitor_listeners", Help: "Connected live-monitor listeners"},
	)
)

var once sync.Once

// Register adds all collectors to the default registry. Safe to call more than once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(ExportJobs, ExportDuration, ExportFrames,
			TimelineBuilds, TimelineBuildDuration, MonitorListeners)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
