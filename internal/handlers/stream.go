package handlers

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"media-streamer/internal/filesystem"
	"media-streamer/internal/hls"
	"media-streamer/internal/logging"
	"media-streamer/internal/streaming"
)

// GetStream serves playlists and segments. With no segment parameter it
// resolves (or starts) a stream and returns its playlist; with one it
// returns raw segment bytes.
func (h *Handlers) GetStream(w http.ResponseWriter, r *http.Request) {
	sourcePath, ok := h.resolveSourcePath(w, r)
	if !ok {
		return
	}

	audioTrack := queryInt(r, "audio", -1)
	seekOffset := queryFloat(r, "seek", 0)

	if segment := r.URL.Query().Get("segment"); segment != "" {
		h.serveSegment(w, r, sourcePath, audioTrack, seekOffset, segment)
		return
	}

	result, err := h.streams.Playlist(r.Context(), sourcePath, audioTrack, seekOffset)
	switch {
	case errors.Is(err, hls.ErrSourceNotFound):
		writeJSONError(w, "source file not found", http.StatusNotFound)
		return
	case errors.Is(err, hls.ErrReadinessTimeout):
		// Deliberate backpressure: the engine is still warming up, tell
		// the client when to come back instead of holding the connection.
		w.Header().Set("Retry-After", strconv.Itoa(int(h.streams.RetryAfter().Seconds())))
		writeJSONError(w, "stream not ready, retry shortly", http.StatusServiceUnavailable)
		return
	case err != nil:
		logging.Error("Playlist request for %s failed: %v", sourcePath, err)
		writeJSONError(w, "failed to start stream", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Header().Set("Cache-Control", "no-cache")
	h.serveFile(w, r, result.Path)
}

// serveSegment streams one segment's bytes through the timeout writer.
func (h *Handlers) serveSegment(w http.ResponseWriter, r *http.Request, sourcePath string, audioTrack int, seekOffset float64, segment string) {
	segPath, err := h.streams.Segment(sourcePath, audioTrack, seekOffset, segment)
	if err != nil {
		writeJSONError(w, "segment not available", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "video/mp2t")
	w.Header().Set("Cache-Control", "max-age=3600")
	h.serveFile(w, r, segPath)
}

// serveFile streams a file with timeout protection so a stalled client
// can't pin the handler goroutine.
func (h *Handlers) serveFile(w http.ResponseWriter, r *http.Request, path string) {
	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		logging.Error("Failed to open %s: %v", path, err)
		writeJSONError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Debug("Failed to close %s: %v", path, err)
		}
	}()

	if info, err := f.Stat(); err == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	}

	if err := streaming.StreamWithTimeout(r.Context(), w, f, streaming.SegmentWriterConfig()); err != nil {
		if errors.Is(err, streaming.ErrClientGone) {
			logging.Debug("Client disconnected while streaming %s", path)
			return
		}
		logging.Warn("Streaming %s failed: %v", path, err)
	}
}

// StreamStatus reports readiness for a stream without creating one.
func (h *Handlers) StreamStatus(w http.ResponseWriter, r *http.Request) {
	sourcePath, ok := h.resolveSourcePath(w, r)
	if !ok {
		return
	}

	audioTrack := queryInt(r, "audio", -1)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, h.streams.StreamStatus(sourcePath, audioTrack))
}

// StopStream tears down the live session for a source.
func (h *Handlers) StopStream(w http.ResponseWriter, r *http.Request) {
	sourcePath, ok := h.resolveSourcePath(w, r)
	if !ok {
		return
	}

	h.streams.Stop(sourcePath, queryInt(r, "audio", -1))
	writeJSONStatus(w, "stopped")
}

// resolveSourcePath validates the path query parameter and anchors it
// inside the media tree. Anything that escapes the tree is a 400, before
// any filesystem access happens.
func (h *Handlers) resolveSourcePath(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := r.URL.Query().Get("path")
	if raw == "" {
		writeJSONError(w, "missing path parameter", http.StatusBadRequest)
		return "", false
	}

	var abs string
	if filepath.IsAbs(raw) {
		abs = filepath.Clean(raw)
	} else {
		abs = filepath.Join(h.config.MediaDir, raw)
	}

	if !strings.HasPrefix(abs, h.config.MediaDir+string(filepath.Separator)) && abs != h.config.MediaDir {
		writeJSONError(w, "path outside media directory", http.StatusBadRequest)
		return "", false
	}

	return abs, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func queryFloat(r *http.Request, key string, fallback float64) float64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return fallback
	}
	return f
}
