package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"media-streamer/internal/logging"
	"media-streamer/internal/metrics"
	"media-streamer/internal/queue"
)

// Config tunes the media tree watcher.
type Config struct {
	// MediaDir is the root of the watched tree.
	MediaDir string
	// SettleDelay is how long a file must stay quiet after its last
	// write before it is considered fully copied and enqueued.
	SettleDelay time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig(mediaDir string) Config {
	return Config{
		MediaDir:    mediaDir,
		SettleDelay: 5 * time.Second,
	}
}

// Stats is a point-in-time watcher summary.
type Stats struct {
	Running     bool `json:"running"`
	WatchedDirs int  `json:"watchedDirs"`
	EventsSeen  int  `json:"eventsSeen"`
	Enqueued    int  `json:"enqueued"`
}

// Watcher monitors the media tree and enqueues new files.
type Watcher struct {
	config Config
	queue  *queue.Queue

	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	pending  map[string]*time.Timer
	running  bool
	dirs     int
	events   int
	enqueued int

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a watcher that feeds q.
func New(config Config, q *queue.Queue) *Watcher {
	return &Watcher{
		config:  config,
		queue:   q,
		pending: make(map[string]*time.Timer),
	}
}

// Start begins watching. Idempotent while running.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw

	dirs, err := w.watchTree(w.config.MediaDir)
	if err != nil {
		if closeErr := fsw.Close(); closeErr != nil {
			logging.Debug("Failed to close watcher after setup failure: %v", closeErr)
		}
		w.fsw = nil
		return err
	}
	w.dirs = dirs

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true

	go w.loop(ctx)

	metrics.WatcherDirsWatched.Set(float64(dirs))
	logging.Info("Media watcher started on %s (%d directories)", w.config.MediaDir, dirs)
	return nil
}

// Stop halts watching and drops any un-settled pending files.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel := w.cancel
	done := w.done
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	cancel()
	<-done

	w.mu.Lock()
	if w.fsw != nil {
		if err := w.fsw.Close(); err != nil {
			logging.Debug("Failed to close filesystem watcher: %v", err)
		}
		w.fsw = nil
	}
	w.running = false
	w.dirs = 0
	w.mu.Unlock()

	metrics.WatcherDirsWatched.Set(0)
	logging.Info("Media watcher stopped")
}

// Running reports whether the watcher is active.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// GetStats summarizes the watcher state.
func (w *Watcher) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		Running:     w.running,
		WatchedDirs: w.dirs,
		EventsSeen:  w.events,
		Enqueued:    w.enqueued,
	}
}

// watchTree registers root and every non-hidden subdirectory, returning
// the number of directories watched.
func (w *Watcher) watchTree(root string) (int, error) {
	count := 0
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			logging.Debug("Watcher skipping %s: %v", path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Warn("Media watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}

	w.mu.Lock()
	w.events++
	w.mu.Unlock()
	metrics.WatcherEventsTotal.WithLabelValues(opLabel(ev)).Inc()

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.addDir(ev.Name)
			return
		}
	}

	if !queue.IsVideoFile(ev.Name) {
		return
	}

	w.debounce(ev.Name)
}

// addDir extends the watch set with a newly created directory. Files
// already inside it (moved-in trees) get picked up by debouncing their
// own create events; a periodic Scan covers anything missed.
func (w *Watcher) addDir(dir string) {
	if strings.HasPrefix(filepath.Base(dir), ".") {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil {
		return
	}
	if err := w.fsw.Add(dir); err != nil {
		logging.Warn("Failed to watch new directory %s: %v", dir, err)
		return
	}
	w.dirs++
	metrics.WatcherDirsWatched.Set(float64(w.dirs))
	logging.Info("Watching new directory %s", dir)
}

// debounce (re)arms the settle timer for a file. Each write resets the
// timer; the file is enqueued only after SettleDelay of quiet.
func (w *Watcher) debounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Reset(w.config.SettleDelay)
		return
	}

	w.pending[path] = time.AfterFunc(w.config.SettleDelay, func() {
		w.settled(path)
	})
}

// settled fires once a file has been quiet for SettleDelay.
func (w *Watcher) settled(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	running := w.running
	w.mu.Unlock()

	if !running {
		return
	}

	if _, err := os.Stat(path); err != nil {
		logging.Debug("Settled file %s vanished before enqueue: %v", path, err)
		return
	}

	if _, err := w.queue.Add(context.Background(), path, false); err != nil {
		if !errors.Is(err, queue.ErrAlreadyQueued) {
			logging.Warn("Watcher failed to queue %s: %v", path, err)
		}
		return
	}

	w.mu.Lock()
	w.enqueued++
	w.mu.Unlock()
	logging.Info("Watcher queued new file %s", path)
}

func opLabel(ev fsnotify.Event) string {
	if ev.Has(fsnotify.Create) {
		return "create"
	}
	return "write"
}
