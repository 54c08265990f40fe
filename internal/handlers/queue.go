package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"media-streamer/internal/database"
	"media-streamer/internal/logging"
	"media-streamer/internal/queue"
	"media-streamer/internal/startup"
)

// queueActionRequest is the body of POST /api/queue.
type queueActionRequest struct {
	Action   string `json:"action"`
	Path     string `json:"path,omitempty"`
	Priority bool   `json:"priority,omitempty"`
	JobID    string `json:"jobId,omitempty"`
	Position int    `json:"position,omitempty"`
}

// QueueAction drives the background queue: worker lifecycle, enqueueing,
// scanning, reordering and cleanup.
func (h *Handlers) QueueAction(w http.ResponseWriter, r *http.Request) {
	var req queueActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	switch req.Action {
	case "start":
		h.queue.Start()
		startup.LogQueueStarted()
		writeJSONStatus(w, "started")

	case "pause":
		h.queue.Pause()
		writeJSONStatus(w, "paused")

	case "resume":
		h.queue.Resume()
		writeJSONStatus(w, "resumed")

	case "stop":
		h.queue.Stop()
		writeJSONStatus(w, "stopped")

	case "scan":
		added, err := h.queue.Scan(r.Context())
		if err != nil {
			logging.Error("Media scan failed: %v", err)
			writeJSONError(w, "scan failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, map[string]any{"status": "scanned", "added": added})

	case "add":
		if req.Path == "" {
			writeJSONError(w, "add requires a path", http.StatusBadRequest)
			return
		}
		job, err := h.queue.Add(r.Context(), req.Path, req.Priority)
		if err != nil {
			if errors.Is(err, queue.ErrAlreadyQueued) {
				writeJSONError(w, "file already queued", http.StatusConflict)
				return
			}
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, job)

	case "reorder":
		if req.JobID == "" {
			writeJSONError(w, "reorder requires a jobId", http.StatusBadRequest)
			return
		}
		if err := h.queue.MoveToPosition(r.Context(), req.JobID, req.Position); err != nil {
			if errors.Is(err, database.ErrJobNotFound) {
				writeJSONError(w, "job not found", http.StatusNotFound)
				return
			}
			writeJSONError(w, "reorder failed", http.StatusInternalServerError)
			return
		}
		writeJSONStatus(w, "reordered")

	case "cleanup-incomplete":
		removed, err := h.queue.CleanupIncomplete()
		if err != nil {
			logging.Error("Incomplete cleanup failed: %v", err)
			writeJSONError(w, "cleanup failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, map[string]any{"status": "cleaned", "removed": removed})

	default:
		writeJSONError(w, "unknown action", http.StatusBadRequest)
	}
}

// queueOverview is the GET /api/queue response.
type queueOverview struct {
	Stats      queue.Stats              `json:"stats"`
	Queue      []*database.TranscodeJob `json:"queue"`
	Completed  []*database.TranscodeJob `json:"completed"`
	Failed     []*database.TranscodeJob `json:"failed"`
	Transcoded int                      `json:"transcoded"`
	Watcher    any                      `json:"watcher,omitempty"`
}

// GetQueue returns queue stats plus pending/completed/failed job lists.
func (h *Handlers) GetQueue(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.GetStats(r.Context())
	if err != nil {
		writeJSONError(w, "failed to read queue state", http.StatusInternalServerError)
		return
	}

	pending, err := h.queue.Pending(r.Context())
	if err != nil {
		writeJSONError(w, "failed to list queue", http.StatusInternalServerError)
		return
	}

	completed, err := h.queue.Completed(r.Context())
	if err != nil {
		writeJSONError(w, "failed to list completed jobs", http.StatusInternalServerError)
		return
	}

	failed, err := h.queue.Failed(r.Context())
	if err != nil {
		writeJSONError(w, "failed to list failed jobs", http.StatusInternalServerError)
		return
	}

	overview := queueOverview{
		Stats:      stats,
		Queue:      pending,
		Completed:  completed,
		Failed:     failed,
		Transcoded: h.store.CountUnits(),
	}
	if h.watcher != nil {
		overview.Watcher = h.watcher.GetStats()
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, overview)
}

// DeleteQueueItem cancels one job, addressed by id or source path.
func (h *Handlers) DeleteQueueItem(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("jobId")
	path := r.URL.Query().Get("filepath")

	var err error
	switch {
	case jobID != "":
		err = h.queue.Cancel(r.Context(), jobID)
	case path != "":
		err = h.queue.CancelByPath(r.Context(), path)
	default:
		writeJSONError(w, "jobId or filepath required", http.StatusBadRequest)
		return
	}

	if err != nil {
		if errors.Is(err, database.ErrJobNotFound) {
			writeJSONError(w, "job not found", http.StatusNotFound)
			return
		}
		writeJSONError(w, "failed to cancel job", http.StatusInternalServerError)
		return
	}

	writeJSONStatus(w, "cancelled")
}
