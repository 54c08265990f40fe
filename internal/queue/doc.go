/*
Package queue pre-transcodes the catalog ahead of playback.

Jobs persist in SQLite and are executed by a dedicated worker goroutine
that owns its own cancellation signal; control operations (pause, resume,
stop, reorder, cancel) act on explicit worker state rather than shared
flags. Scheduling is FIFO by enqueue time with one override: a pending
job whose source is staged on fast local storage is always selected
first, because local reads beat the default storage backend by an order
of magnitude.

Pause lets the running job finish and stops picking new work. Stop
abandons the running job: its status reverts to pending and the partial
output directory is discarded on next pickup.
*/
package queue
