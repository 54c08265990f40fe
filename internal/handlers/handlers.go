package handlers

import (
	"time"

	"media-streamer/internal/database"
	"media-streamer/internal/hls"
	"media-streamer/internal/queue"
	"media-streamer/internal/startup"
	"media-streamer/internal/store"
	"media-streamer/internal/watcher"
)

type Handlers struct {
	streams *hls.Service
	queue   *queue.Queue
	watcher *watcher.Watcher
	db      *database.Database
	store   *store.Store
	config  *startup.Config
	started time.Time
}

func New(streams *hls.Service, q *queue.Queue, w *watcher.Watcher, db *database.Database, st *store.Store, config *startup.Config) *Handlers {
	return &Handlers{
		streams: streams,
		queue:   q,
		watcher: w,
		db:      db,
		store:   st,
		config:  config,
		started: time.Now(),
	}
}
