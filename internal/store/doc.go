// Package store locates fully pre-transcoded outputs for a source file.
//
// The background queue writes each finished transcode into a directory
// keyed by a sanitized form of the source filename, either at the store
// root or under a series/ subtree for episodic content. Lookup is
// read-only to the playback path and never errors on absent paths; an
// unfinished directory simply resolves as not found.
package store
