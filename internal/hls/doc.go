/*
Package hls implements the request-facing streaming protocol.

Each playback request walks a small state machine: resolve a
pre-transcoded output first; otherwise obtain or create a live session,
wait (bounded) for the engine to produce segments, then serve. Seeks past
the buffered range restart the subprocess at the requested offset under a
fresh session id with disjoint segment numbering.

The readiness wait is deliberate backpressure: the engine is slow to
start and has no completion callback, so the service polls the playlist
up to a fixed deadline and reports a retryable timeout beyond it. Callers
are expected to retry on 503/404 per the HLS delivery contract; a missing
segment is never an error for the stream as a whole.
*/
package hls
