// Package database persists background transcode jobs and small
// key-value state in SQLite.
//
// It is deliberately narrow: the queue reads and writes job records
// through it, and nothing else owns schema. The connection uses WAL mode
// with a busy timeout so the single-writer queue loop and HTTP readers
// coexist without "database is locked" errors.
package database
