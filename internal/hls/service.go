package hls

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"media-streamer/internal/capabilities"
	"media-streamer/internal/logging"
	"media-streamer/internal/metrics"
	"media-streamer/internal/session"
	"media-streamer/internal/store"
	"media-streamer/internal/transcoder"
)

// Sentinel errors translated to HTTP status codes at the handler
// boundary.
var (
	// ErrSourceNotFound indicates the requested source file does not
	// exist.
	ErrSourceNotFound = errors.New("source file not found")

	// ErrReadinessTimeout indicates the engine produced no segments
	// within the wait window. Retryable: callers should come back after
	// RetryAfter.
	ErrReadinessTimeout = errors.New("stream not ready within wait window")

	// ErrSegmentNotFound indicates one specific segment is not on disk
	// yet. It applies to that segment only, never the whole stream.
	ErrSegmentNotFound = errors.New("segment not available")
)

// Config tunes the streaming service.
type Config struct {
	// FFmpegPath is the transcoding engine binary.
	FFmpegPath string
	// PollInterval is how often the playlist is re-read during the
	// readiness wait.
	PollInterval time.Duration
	// ReadyTimeout bounds the readiness wait.
	ReadyTimeout time.Duration
	// RetryAfter is the retry hint reported with a readiness timeout.
	RetryAfter time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		FFmpegPath:   "ffmpeg",
		PollInterval: 500 * time.Millisecond,
		ReadyTimeout: 30 * time.Second,
		RetryAfter:   5 * time.Second,
	}
}

// Service is the protocol layer between HTTP handlers and the
// transcoding machinery.
type Service struct {
	config   Config
	sessions *session.Manager
	store    *store.Store
	detector *capabilities.Detector
}

// NewService wires the streaming service. The session manager is
// constructed here so its launcher closes over the service's engine
// configuration.
func NewService(config Config, sessionConfig session.Config, st *store.Store, detector *capabilities.Detector) *Service {
	s := &Service{
		config:   config,
		store:    st,
		detector: detector,
	}
	s.sessions = session.NewManager(sessionConfig, s.launch)
	return s
}

// Sessions exposes the session manager for shutdown wiring.
func (s *Service) Sessions() *session.Manager {
	return s.sessions
}

// launch starts the subprocess for a session. The segment numbering for
// a seek session starts at the segment index covering the offset, so it
// stays disjoint from any still-draining prior session for the same
// file.
func (s *Service) launch(sess *session.Session) (*transcoder.Process, error) {
	info, err := transcoder.Probe(context.Background(), sess.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("source probe failed: %w", err)
	}

	// Track -1 means "default": the first audio stream, or none at all.
	audioTrack := sess.AudioTrack
	if audioTrack < 0 {
		if audio := info.AudioStreams(); len(audio) > 0 {
			audioTrack = audio[0]
		}
	}

	startNumber := 0
	if sess.SeekOffset > 0 {
		startNumber = int(sess.SeekOffset) / transcoder.SegmentDuration
	}

	args := transcoder.BuildArgs(
		sess.SourcePath, info, audioTrack, sess.Playlist,
		s.detector.Detect(), sess.SeekOffset, startNumber,
	)

	return transcoder.Spawn(s.config.FFmpegPath, args, nil)
}

// PlaylistResult describes where a ready playlist lives.
type PlaylistResult struct {
	Path          string
	PreTranscoded bool
	SessionID     string
}

// Playlist resolves a ready-to-serve playlist for the source, preferring
// the pre-transcoded store and falling back to a live session. Blocks up
// to the readiness window when a fresh session has produced no segments
// yet.
func (s *Service) Playlist(ctx context.Context, sourcePath string, audioTrack int, seekOffset float64) (PlaylistResult, error) {
	if _, err := os.Stat(sourcePath); err != nil {
		return PlaylistResult{}, ErrSourceNotFound
	}

	// Fast path: a completed background transcode serves every request
	// for this source, including seeks, with no subprocess at all.
	if r := s.store.Resolve(sourcePath); r.Found {
		metrics.StreamRequestsTotal.WithLabelValues("pretranscoded").Inc()
		return PlaylistResult{
			Path:          filepath.Join(r.Dir, store.PlaylistName),
			PreTranscoded: true,
		}, nil
	}

	sess, err := s.resolveSession(sourcePath, audioTrack, seekOffset)
	if err != nil {
		return PlaylistResult{}, err
	}

	if err := s.awaitReady(ctx, sess); err != nil {
		return PlaylistResult{}, err
	}

	metrics.StreamRequestsTotal.WithLabelValues("realtime").Inc()
	return PlaylistResult{Path: sess.Playlist, SessionID: sess.ID}, nil
}

// resolveSession maps a request onto a live session. Whatever offset
// the current session for this source/track pair was started at, a seek
// already covered by its segments reuses it; anything else stops it
// before a fresh session starts at the new offset, so one pair never
// holds two subprocesses.
func (s *Service) resolveSession(sourcePath string, audioTrack int, seekOffset float64) (*session.Session, error) {
	id := session.GenerateID(sourcePath, audioTrack, seekOffset)

	if current := s.sessions.FindBySource(sourcePath, audioTrack); current != nil && current.ID != id {
		if seekOffset > 0 && current.Alive() && s.covers(current, seekOffset) {
			current.Touch()
			return current, nil
		}
		logging.Info("Seek to %.1fs beyond buffered range, restarting transcode", seekOffset)
		s.sessions.Stop(current.ID)
	}

	return s.sessions.Acquire(id, sourcePath, audioTrack, seekOffset)
}

// covers reports whether the session's output already includes the
// segment containing the given offset.
func (s *Service) covers(sess *session.Session, offset float64) bool {
	want := int(offset) / transcoder.SegmentDuration
	startNumber := int(sess.SeekOffset) / transcoder.SegmentDuration
	segPath := filepath.Join(sess.Dir, fmt.Sprintf("segment%d.ts", want))
	if want < startNumber {
		return false
	}
	_, err := os.Stat(segPath)
	return err == nil
}

// awaitReady polls the session playlist until it lists at least one
// segment, the wait window expires, or the subprocess dies.
func (s *Service) awaitReady(ctx context.Context, sess *session.Session) error {
	start := time.Now()
	deadline := start.Add(s.config.ReadyTimeout)

	defer func() {
		metrics.ReadinessWaitDuration.Observe(time.Since(start).Seconds())
	}()

	for {
		if segmentCount(sess.Playlist) > 0 {
			return nil
		}

		if p := sess.Process(); p != nil && !p.Running() {
			if err := p.ExitError(); err != nil {
				return fmt.Errorf("transcoder exited before producing segments: %w", err)
			}
			// Clean exit with no segments means an empty/corrupt source.
			if segmentCount(sess.Playlist) == 0 {
				return fmt.Errorf("transcoder produced no output for %s", sess.SourcePath)
			}
			return nil
		}

		if time.Now().After(deadline) {
			metrics.ReadinessTimeouts.Inc()
			return ErrReadinessTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.config.PollInterval):
		}
	}
}

// Segment resolves one segment file for the source. Pre-transcoded
// outputs are preferred; otherwise the active session's directory is
// consulted. A segment not on disk yet is ErrSegmentNotFound for that
// segment only.
func (s *Service) Segment(sourcePath string, audioTrack int, seekOffset float64, segmentName string) (string, error) {
	if !validSegmentName(segmentName) {
		return "", ErrSegmentNotFound
	}

	if r := s.store.Resolve(sourcePath); r.Found {
		p := filepath.Join(r.Dir, segmentName)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
		return "", ErrSegmentNotFound
	}

	sess := s.sessions.Get(session.GenerateID(sourcePath, audioTrack, seekOffset))
	if sess == nil {
		// The seek may have been absorbed by an earlier session whose
		// segments already covered the offset.
		sess = s.sessions.FindBySource(sourcePath, audioTrack)
	}
	if sess == nil {
		return "", ErrSegmentNotFound
	}
	sess.Touch()

	p := filepath.Join(sess.Dir, segmentName)
	if _, err := os.Stat(p); err != nil {
		return "", ErrSegmentNotFound
	}
	return p, nil
}

// validSegmentName accepts only flat segmentN.ts names, rejecting any
// path traversal attempt.
func validSegmentName(name string) bool {
	if name == "" || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return false
	}
	return strings.HasPrefix(name, "segment") && strings.HasSuffix(name, ".ts")
}

// Status reports stream readiness for a source without creating a
// session.
type Status struct {
	Exists        bool    `json:"exists"`
	SegmentsReady int     `json:"segmentsReady"`
	TotalSegments int     `json:"totalSegments"`
	IsComplete    bool    `json:"isComplete"`
	HasPlaylist   bool    `json:"hasPlaylist"`
	Progress      float64 `json:"progress"`
	PreTranscoded bool    `json:"preTranscoded"`
}

// StreamStatus returns the current readiness of a stream.
func (s *Service) StreamStatus(sourcePath string, audioTrack int) Status {
	var st Status

	if _, err := os.Stat(sourcePath); err != nil {
		return st
	}
	st.Exists = true

	playlist := ""
	if r := s.store.Resolve(sourcePath); r.Found {
		st.PreTranscoded = true
		playlist = filepath.Join(r.Dir, store.PlaylistName)
	} else if sess := s.sessions.Get(session.GenerateID(sourcePath, audioTrack, 0)); sess != nil {
		playlist = sess.Playlist
		if p := sess.Process(); p != nil {
			prog := p.Progress()
			if prog.TotalSeconds > 0 {
				st.Progress = 100 * prog.CurrentSeconds / prog.TotalSeconds
			}
		}
	}

	if playlist == "" {
		return st
	}

	info := readPlaylist(playlist)
	st.HasPlaylist = len(info.segments) > 0 || info.complete
	st.SegmentsReady = len(info.segments)
	st.IsComplete = info.complete
	if info.complete {
		st.TotalSegments = len(info.segments)
		st.Progress = 100
	}

	return st
}

// Stop tears down the live session (and scratch directory) for a
// source/track pair.
func (s *Service) Stop(sourcePath string, audioTrack int) {
	s.sessions.Stop(session.GenerateID(sourcePath, audioTrack, 0))
}

// RetryAfter returns the retry hint for readiness timeouts.
func (s *Service) RetryAfter() time.Duration {
	return s.config.RetryAfter
}
