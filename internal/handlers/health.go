package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"media-streamer/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Ready   bool   `json:"ready"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`

	ActiveSessions int  `json:"activeSessions"`
	QueueRunning   bool `json:"queueRunning"`
	QueuePaused    bool `json:"queuePaused"`
	WatcherRunning bool `json:"watcherRunning"`

	PendingJobs   int `json:"pendingJobs"`
	CompletedJobs int `json:"completedJobs"`
	FailedJobs    int `json:"failedJobs"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:         statusHealthy,
		Ready:          true,
		Version:        startup.Version,
		Uptime:         time.Since(h.started).Round(time.Second).String(),
		ActiveSessions: h.streams.Sessions().ActiveCount(),
		QueueRunning:   h.queue.Running(),
		QueuePaused:    h.queue.Paused(),
		GoVersion:      runtime.Version(),
		NumCPU:         runtime.NumCPU(),
		NumGoroutine:   runtime.NumGoroutine(),
	}

	if h.watcher != nil {
		response.WatcherRunning = h.watcher.Running()
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	stats, err := h.queue.GetStats(ctx)
	if err != nil {
		// The job database not answering is degraded, not down: streaming
		// still works without it.
		response.Status = statusDegraded
	} else {
		response.PendingJobs = stats.Counts["pending"]
		response.CompletedJobs = stats.Counts["completed"]
		response.FailedJobs = stats.Counts["failed"]
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	writeJSON(w, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 only when the service is ready to accept traffic
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	// Readiness is a database round-trip: handlers exist as soon as main
	// wires them, but traffic needs the job store answering.
	if _, err := h.queue.GetStats(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, map[string]string{
			"status": "not_ready",
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	writeJSON(w, map[string]string{
		"status": "ready",
	})
}
