package session

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"media-streamer/internal/transcoder"
)

// Session is one live transcoding instance. It is exclusively owned by
// the Manager; other components reference it by id only.
type Session struct {
	ID         string
	SourcePath string
	AudioTrack int
	SeekOffset float64
	Dir        string
	Playlist   string
	CreatedAt  time.Time

	mu          sync.Mutex
	lastTouched time.Time
	process     *transcoder.Process
}

// GenerateID derives the stable session id for a (file, audio track)
// pair. The path is normalized to absolute form first, so equivalent
// spellings of the same file collapse to one session. Seek sessions mix
// the offset into the hash and therefore get a distinct id.
func GenerateID(path string, audioTrack int, seekOffset float64) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	abs = filepath.Clean(abs)

	key := fmt.Sprintf("%s|%d", abs, audioTrack)
	if seekOffset > 0 {
		key = fmt.Sprintf("%s|%.3f", key, seekOffset)
	}

	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Touch updates the last-access time, refreshing the session's position
// in the eviction order.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastTouched = time.Now()
	s.mu.Unlock()
}

// LastTouched returns the last-access time.
func (s *Session) LastTouched() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTouched
}

// Process returns the owning subprocess handle, which may be nil for a
// ghost session.
func (s *Session) Process() *transcoder.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.process
}

func (s *Session) setProcess(p *transcoder.Process) {
	s.mu.Lock()
	s.process = p
	s.mu.Unlock()
}

// Alive reports whether the backing subprocess is still running.
func (s *Session) Alive() bool {
	p := s.Process()
	return p != nil && p.Running()
}
