package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_streamer_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_streamer_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_streamer_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Streaming session metrics
var (
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_streamer_sessions_active",
			Help: "Number of live transcoding sessions",
		},
	)

	SessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_streamer_sessions_started_total",
			Help: "Total number of transcoding sessions started",
		},
	)

	SessionsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_streamer_sessions_evicted_total",
			Help: "Total number of sessions evicted (capacity or idle timeout)",
		},
	)

	StreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_streamer_stream_requests_total",
			Help: "Total playlist requests by serving path",
		},
		[]string{"path"}, // "pretranscoded" or "realtime"
	)

	ReadinessWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_streamer_readiness_wait_seconds",
			Help:    "Time spent waiting for the first playable segment",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 15, 30},
		},
	)

	ReadinessTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_streamer_readiness_timeouts_total",
			Help: "Total readiness waits that expired before a segment appeared",
		},
	)
)

// Background queue metrics
var (
	QueueWorkerRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_streamer_queue_worker_running",
			Help: "Whether the queue worker loop is active (1 = running, 0 = stopped)",
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_streamer_queue_depth",
			Help: "Number of pending transcode jobs",
		},
	)

	QueueJobsEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_streamer_queue_jobs_enqueued_total",
			Help: "Total transcode jobs added to the queue",
		},
	)

	QueueJobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_streamer_queue_jobs_processed_total",
			Help: "Total transcode jobs finished by result",
		},
		[]string{"result"}, // "completed", "failed", "abandoned"
	)

	QueueJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_streamer_queue_job_duration_seconds",
			Help:    "Completed transcode job duration in seconds",
			Buckets: []float64{30, 60, 120, 300, 600, 1200, 3600, 7200},
		},
	)

	QueueJobsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_streamer_queue_jobs",
			Help: "Current job counts by status",
		},
		[]string{"status"},
	)
)

// Watcher metrics
var (
	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_streamer_watcher_events_total",
			Help: "Total filesystem watcher events",
		},
		[]string{"event_type"},
	)

	WatcherDirsWatched = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_streamer_watcher_watched_directories",
			Help: "Number of directories currently being watched",
		},
	)
)

// Store metrics
var (
	StoreUnitsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_streamer_store_units_total",
			Help: "Number of complete pre-transcoded output units",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_streamer_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_streamer_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_streamer_fs_operation_duration_seconds",
			Help:    "Filesystem operation duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_streamer_fs_operation_errors_total",
			Help: "Total filesystem operation errors",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_streamer_fs_retry_attempts_total",
			Help: "Total filesystem retry attempts",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_streamer_fs_retry_success_total",
			Help: "Total filesystem operations that succeeded after retry",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_streamer_fs_retry_failures_total",
			Help: "Total filesystem operations that failed all retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_streamer_fs_retry_duration_seconds",
			Help:    "Total duration of filesystem operations including retries",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_streamer_fs_stale_errors_total",
			Help: "Total NFS stale file handle errors observed",
		},
		[]string{"operation", "volume"},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_streamer_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
