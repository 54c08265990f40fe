package hls

import (
	"os"
	"strings"
)

const endListTag = "#EXT-X-ENDLIST"

// playlistInfo is a parsed snapshot of an HLS playlist file.
type playlistInfo struct {
	segments []string
	complete bool
}

// readPlaylist parses the playlist at path. A missing or unreadable file
// yields an empty snapshot, not an error: segment existence on disk is
// the readiness signal and absence just means "not yet".
func readPlaylist(path string) playlistInfo {
	data, err := os.ReadFile(path)
	if err != nil {
		return playlistInfo{}
	}

	var info playlistInfo
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == endListTag {
			info.complete = true
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		info.segments = append(info.segments, line)
	}

	return info
}

// segmentCount returns the number of segment entries in the playlist at
// path.
func segmentCount(path string) int {
	return len(readPlaylist(path).segments)
}
