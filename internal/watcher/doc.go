/*
Package watcher feeds the transcoding queue from filesystem events.

It watches the media tree recursively and enqueues new video files once
they settle: copies and downloads emit a stream of write events, so each
file is debounced and only queued after a quiet period. Directories
created under the tree are added to the watch set as they appear.

The watcher only enqueues; it never transcodes, deletes, or reorders.
*/
package watcher
