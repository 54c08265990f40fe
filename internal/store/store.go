package store

import (
	"os"
	"path/filepath"
	"strings"

	"media-streamer/internal/filesystem"
	"media-streamer/internal/logging"
)

const (
	// PlaylistName is the playlist filename inside every output unit.
	PlaylistName = "playlist.m3u8"
	// CompleteMarker flags a fully transcoded output directory.
	CompleteMarker = ".complete"
	// SeriesSubdir holds output units for episodic content.
	SeriesSubdir = "series"

	endListTag = "#EXT-X-ENDLIST"
)

// Location describes where an output unit was found.
type Location string

const (
	LocationRoot   Location = "root"
	LocationSeries Location = "series"
)

// Result is the outcome of a store lookup.
type Result struct {
	Dir      string
	Found    bool
	Location Location
}

// Store resolves source files to pre-transcoded output directories.
type Store struct {
	root string
}

// New creates a store rooted at dir.
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the store root directory.
func (s *Store) Root() string {
	return s.root
}

// SanitizeName collapses every character outside [A-Za-z0-9._-] in the
// source's base name (extension stripped) to an underscore. Output unit
// directories are keyed by this form.
func SanitizeName(sourcePath string) string {
	base := filepath.Base(sourcePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	var b strings.Builder
	b.Grow(len(base))
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// OutputDir returns the directory an output unit for sourcePath would
// occupy at the store root.
func (s *Store) OutputDir(sourcePath string) string {
	return filepath.Join(s.root, SanitizeName(sourcePath))
}

// Resolve locates a complete pre-transcoded output for sourcePath. It
// checks the store root first, then the series subtree. Absent paths
// resolve to not-found rather than erroring.
func (s *Store) Resolve(sourcePath string) Result {
	name := SanitizeName(sourcePath)

	candidates := []struct {
		dir      string
		location Location
	}{
		{filepath.Join(s.root, name), LocationRoot},
		{filepath.Join(s.root, SeriesSubdir, name), LocationSeries},
	}

	for _, c := range candidates {
		if s.isComplete(c.dir) {
			return Result{Dir: c.dir, Found: true, Location: c.location}
		}
	}

	return Result{Found: false}
}

// isComplete reports whether dir holds a finished output unit: playlist
// plus completion marker, or a playlist carrying the end-of-list tag (in
// which case the marker is created lazily for future fast lookups).
func (s *Store) isComplete(dir string) bool {
	playlist := filepath.Join(dir, PlaylistName)
	if _, err := filesystem.StatWithRetry(playlist, filesystem.DefaultRetryConfig()); err != nil {
		return false
	}

	marker := filepath.Join(dir, CompleteMarker)
	if _, err := os.Stat(marker); err == nil {
		return true
	}

	data, err := os.ReadFile(playlist)
	if err != nil {
		return false
	}

	if !strings.Contains(string(data), endListTag) {
		return false
	}

	// Self-healing: the playlist proves completeness, so materialize the
	// marker for cheap future lookups. Failure to write it is harmless.
	if err := os.WriteFile(marker, []byte{}, 0o644); err != nil {
		logging.Debug("Could not create completion marker in %s: %v", dir, err)
	}

	return true
}

// CountUnits counts complete output units across the store root and
// the series subtree. Used by the metrics collector.
func (s *Store) CountUnits() int {
	count := 0
	for _, root := range []string{s.root, filepath.Join(s.root, SeriesSubdir)} {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() || e.Name() == SeriesSubdir {
				continue
			}
			dir := filepath.Join(root, e.Name())
			if _, err := os.Stat(filepath.Join(dir, CompleteMarker)); err == nil {
				count++
				continue
			}
			if s.isComplete(dir) {
				count++
			}
		}
	}
	return count
}

// MarkComplete writes the completion marker into dir. Called by the
// background queue when a job finishes.
func MarkComplete(dir string) error {
	return os.WriteFile(filepath.Join(dir, CompleteMarker), []byte{}, 0o644)
}

// IsIncomplete reports whether dir looks like a partial output: it
// exists but has no completion marker and no end-of-list tag. Used by
// queue cleanup to discard abandoned work.
func IsIncomplete(dir string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}

	if _, err := os.Stat(filepath.Join(dir, CompleteMarker)); err == nil {
		return false
	}

	data, err := os.ReadFile(filepath.Join(dir, PlaylistName))
	if err == nil && strings.Contains(string(data), endListTag) {
		return false
	}

	return true
}
