// Package session owns the map of live transcoding sessions.
//
// A session is one ffmpeg subprocess producing segments for a specific
// (source file, audio track, seek offset) tuple, keyed by a stable hash so
// repeated playback requests collapse onto the same subprocess. The
// manager enforces a global concurrency cap with least-recently-touched
// eviction, tears down idle sessions opportunistically, and serializes
// state transitions per session id so concurrent requests never
// double-spawn.
package session
