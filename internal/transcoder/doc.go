// Package transcoder wraps FFmpeg subprocess invocations for HLS output.
//
// It builds the argument list for one transcoding run (stream mapping,
// codec selection, segmenting, start offset), launches and monitors the
// subprocess, and parses its diagnostic stream into typed progress events.
// The engine itself is a black box: everything this package knows about
// it is the argument contract and the Duration:/time=/speed= log tokens.
//
// FFmpeg must be installed and available in the system PATH.
package transcoder
