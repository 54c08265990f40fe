package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"media-streamer/internal/metrics"
)

// metricsResponseWriter wraps http.ResponseWriter to capture the status
// code and, for streaming endpoints, the time the first byte went out.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode      int
	startTime       time.Time
	firstByteTime   time.Time
	isStreamingPath bool
	headerWritten   bool
}

func newMetricsResponseWriter(w http.ResponseWriter, startTime time.Time, streaming bool) *metricsResponseWriter {
	return &metricsResponseWriter{
		ResponseWriter:  w,
		statusCode:      http.StatusOK,
		startTime:       startTime,
		isStreamingPath: streaming,
	}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	if !rw.headerWritten {
		rw.statusCode = code
		rw.headerWritten = true
		rw.markFirstByte()
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *metricsResponseWriter) Write(b []byte) (int, error) {
	if !rw.headerWritten {
		rw.headerWritten = true
		rw.markFirstByte()
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *metricsResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *metricsResponseWriter) markFirstByte() {
	if rw.isStreamingPath && rw.firstByteTime.IsZero() {
		rw.firstByteTime = time.Now()
	}
}

// GetDuration returns the request latency to record. Streaming endpoints
// are measured to first byte: the total transfer time of a segment says
// more about the client's bandwidth than about the server.
func (rw *metricsResponseWriter) GetDuration() time.Duration {
	if rw.isStreamingPath && !rw.firstByteTime.IsZero() {
		return rw.firstByteTime.Sub(rw.startTime)
	}
	return time.Since(rw.startTime)
}

// isStreamingPath reports whether the endpoint delivers media bytes
// (playlists and segments) rather than JSON.
func isStreamingPath(path string) bool {
	return path == "/api/stream"
}

// MetricsConfig holds configuration for the metrics middleware
type MetricsConfig struct {
	// SkipPaths are paths that should not be recorded
	SkipPaths []string
}

// DefaultMetricsConfig returns the default metrics configuration
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		SkipPaths: []string{"/metrics", "/health", "/healthz", "/livez", "/readyz"},
	}
}

// Metrics returns a middleware that records Prometheus metrics
func Metrics(config MetricsConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip metrics for certain paths
			for _, path := range config.SkipPaths {
				if strings.HasPrefix(r.URL.Path, path) {
					next.ServeHTTP(w, r)
					return
				}
			}

			// Track in-flight requests
			metrics.HTTPRequestsInFlight.Inc()
			defer metrics.HTTPRequestsInFlight.Dec()

			start := time.Now()
			wrapped := newMetricsResponseWriter(w, start, isStreamingPath(r.URL.Path))

			next.ServeHTTP(wrapped, r)

			duration := wrapped.GetDuration().Seconds()
			path := normalizePath(r.URL.Path)
			status := strconv.Itoa(wrapped.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
		})
	}
}

// normalizePath bounds metric label cardinality. The API addresses
// media by query parameter so routes are already static; deep paths are
// still truncated to a placeholder.
func normalizePath(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		// Skip empty parts
		if part == "" {
			continue
		}

		// Keep the first few path segments for context
		if i > 4 {
			parts[i] = "{path}"
			return strings.Join(parts[:i+1], "/")
		}
	}

	return path
}
