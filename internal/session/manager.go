package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"media-streamer/internal/logging"
	"media-streamer/internal/metrics"
	"media-streamer/internal/transcoder"
)

// Launcher starts the transcoding subprocess for a session. The manager
// calls it exactly once per session, under that session's start lock.
// Injected so tests can substitute fakes for the real engine.
type Launcher func(s *Session) (*transcoder.Process, error)

// Config tunes the session manager.
type Config struct {
	// ScratchDir is the root under which per-session working directories
	// are created.
	ScratchDir string
	// MaxSessions caps concurrently running subprocesses. When reached,
	// the least-recently-touched session is evicted before a new one
	// starts.
	MaxSessions int
	// IdleTimeout tears down sessions untouched for this long.
	IdleTimeout time.Duration
	// JanitorInterval is how often idle sessions are checked for.
	JanitorInterval time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig(scratchDir string) Config {
	return Config{
		ScratchDir:      scratchDir,
		MaxSessions:     3,
		IdleTimeout:     5 * time.Minute,
		JanitorInterval: 30 * time.Second,
	}
}

// Manager owns all live sessions and the global concurrency cap.
type Manager struct {
	config   Config
	launcher Launcher

	mu       sync.Mutex
	sessions map[string]*Session

	// startLocks serializes create/stop transitions per session id so
	// concurrent requests for the same id cannot double-spawn.
	startMu    sync.Mutex
	startLocks map[string]*sync.Mutex

	janitorStop chan struct{}
	janitorOnce sync.Once
}

// NewManager creates a session manager. The launcher is invoked to start
// each session's subprocess.
func NewManager(config Config, launcher Launcher) *Manager {
	m := &Manager{
		config:      config,
		launcher:    launcher,
		sessions:    make(map[string]*Session),
		startLocks:  make(map[string]*sync.Mutex),
		janitorStop: make(chan struct{}),
	}
	go m.janitor()
	return m
}

// lockFor returns the per-id start lock, creating it on first use.
func (m *Manager) lockFor(id string) *sync.Mutex {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	l, ok := m.startLocks[id]
	if !ok {
		l = &sync.Mutex{}
		m.startLocks[id] = l
	}
	return l
}

// Acquire returns the active session for id, creating one if absent. A
// newly created session claims a concurrency slot first, evicting the
// least-recently-touched session if the cap is reached, then launches its
// subprocess. A dead subprocess found under an existing id is cleaned up
// and replaced.
func (m *Manager) Acquire(id, sourcePath string, audioTrack int, seekOffset float64) (*Session, error) {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	existing, ok := m.sessions[id]
	m.mu.Unlock()

	if ok {
		if existing.Alive() {
			existing.Touch()
			return existing, nil
		}
		// Ghost: subprocess died without cleanup.
		logging.Warn("Replacing ghost session %s", shortID(id))
		m.removeSession(existing)
	}

	dir := filepath.Join(m.config.ScratchDir, id)
	s := &Session{
		ID:          id,
		SourcePath:  sourcePath,
		AudioTrack:  audioTrack,
		SeekOffset:  seekOffset,
		Dir:         dir,
		Playlist:    filepath.Join(dir, "playlist.m3u8"),
		CreatedAt:   time.Now(),
		lastTouched: time.Now(),
	}

	if err := m.claimSlot(s); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		m.removeSession(s)
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	proc, err := m.launcher(s)
	if err != nil {
		m.removeSession(s)
		return nil, fmt.Errorf("failed to start transcoder for %s: %w", sourcePath, err)
	}
	s.setProcess(proc)

	metrics.SessionsStarted.Inc()
	logging.Info("Session %s started for %s (audio track %d, offset %.1fs, pid %d)",
		shortID(id), sourcePath, audioTrack, seekOffset, proc.Pid())

	return s, nil
}

// claimSlot reserves a concurrency slot by inserting the session in the
// same critical section as the cap check, so concurrent Acquires for
// distinct ids can never launch past the cap. When full, the least-
// recently-touched launched session is evicted first; sessions still
// launching are never eviction victims. Must not be called with m.mu
// held.
func (m *Manager) claimSlot(s *Session) error {
	for {
		m.mu.Lock()
		if len(m.sessions) < m.config.MaxSessions {
			m.sessions[s.ID] = s
			active := len(m.sessions)
			m.mu.Unlock()
			metrics.SessionsActive.Set(float64(active))
			return nil
		}

		var victim *Session
		for id, candidate := range m.sessions {
			if id == s.ID || candidate.Process() == nil {
				continue
			}
			if victim == nil || candidate.LastTouched().Before(victim.LastTouched()) {
				victim = candidate
			}
		}
		m.mu.Unlock()

		if victim == nil {
			return fmt.Errorf("session limit reached with no evictable session")
		}

		logging.Info("Session limit reached, evicting least-recently-used session %s", shortID(victim.ID))
		metrics.SessionsEvicted.Inc()
		m.stop(victim.ID)
	}
}

// Touch refreshes the eviction clock for an active session.
func (m *Manager) Touch(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if ok {
		s.Touch()
	}
}

// Get returns the session for id, or nil.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// FindBySource returns the session for a (source, audio track) pair
// regardless of the offset it was started at, preferring one whose
// subprocess is still running. Returns nil when none exists.
func (m *Manager) FindBySource(sourcePath string, audioTrack int) *Session {
	if abs, err := filepath.Abs(sourcePath); err == nil {
		sourcePath = filepath.Clean(abs)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var found *Session
	for _, s := range m.sessions {
		if s.SourcePath != sourcePath || s.AudioTrack != audioTrack {
			continue
		}
		if s.Alive() {
			return s
		}
		if found == nil {
			found = s
		}
	}
	return found
}

// HasActive reports whether id maps to a session with a live subprocess.
func (m *Manager) HasActive(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	return ok && s.Alive()
}

// Stop tears down a session: subprocess terminated (SIGTERM, then
// SIGKILL after the grace period) and working directory removed.
func (m *Manager) Stop(id string) {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	m.stop(id)
}

func (m *Manager) stop(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return
	}

	if p := s.Process(); p != nil {
		p.Stop()
	}
	m.removeSession(s)
	logging.Info("Session %s stopped", shortID(id))
}

// CleanupGhost removes bookkeeping for a session whose subprocess died
// without cleanup. No signal is sent; the directory is removed.
func (m *Manager) CleanupGhost(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok || s.Alive() {
		return
	}
	logging.Info("Cleaning up ghost session %s", shortID(id))
	m.removeSession(s)
}

func (m *Manager) removeSession(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.ID)
	active := len(m.sessions)
	m.mu.Unlock()

	metrics.SessionsActive.Set(float64(active))

	if err := os.RemoveAll(s.Dir); err != nil {
		logging.Warn("Failed to remove session directory %s: %v", s.Dir, err)
	}
}

// ActiveCount returns the number of tracked sessions.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// StopAll tears down every session. Called on server shutdown.
func (m *Manager) StopAll() {
	m.janitorOnce.Do(func() { close(m.janitorStop) })

	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Stop(id)
	}
}

// janitor evicts sessions untouched beyond the idle threshold.
func (m *Manager) janitor() {
	ticker := time.NewTicker(m.config.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.evictIdle()
		case <-m.janitorStop:
			return
		}
	}
}

func (m *Manager) evictIdle() {
	cutoff := time.Now().Add(-m.config.IdleTimeout)

	m.mu.Lock()
	var idle []string
	for id, s := range m.sessions {
		if s.LastTouched().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	m.mu.Unlock()

	for _, id := range idle {
		logging.Info("Evicting idle session %s", shortID(id))
		metrics.SessionsEvicted.Inc()
		m.Stop(id)
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
