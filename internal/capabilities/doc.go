// Package capabilities probes the host for hardware-accelerated video
// encoders at startup and selects the encoder configuration used by every
// transcoding invocation.
//
// Detection runs once per process and is memoized. It never fails: any
// probe error falls back to software encoding with a fast preset. The
// detector is constructed explicitly and passed to the components that
// need it so tests can substitute fake probe output.
package capabilities
