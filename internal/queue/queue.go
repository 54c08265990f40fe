package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"media-streamer/internal/capabilities"
	"media-streamer/internal/database"
	"media-streamer/internal/logging"
	"media-streamer/internal/metrics"
	"media-streamer/internal/store"
)

// ErrAlreadyQueued indicates a pending job already exists for the source.
var ErrAlreadyQueued = errors.New("file already queued")

// State table keys. The paused flag survives restarts so an operator
// pause is not silently undone by a redeploy.
const (
	stateKeyPaused   = "queue_paused"
	stateKeyLastScan = "queue_last_scan"
)

// Video extensions considered transcodable during scans and watcher
// events.
var videoExtensions = map[string]bool{
	".mkv":  true,
	".mp4":  true,
	".avi":  true,
	".mov":  true,
	".wmv":  true,
	".flv":  true,
	".webm": true,
	".m4v":  true,
	".mpg":  true,
	".mpeg": true,
	".ts":   true,
}

// IsVideoFile reports whether path has a transcodable video extension.
func IsVideoFile(path string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(path))]
}

// Config tunes the background queue.
type Config struct {
	// MediaDir is the source tree scanned for transcodable files.
	MediaDir string
	// LocalStageDir is the fast local scratch area. Pending jobs whose
	// source lives here (or has a staged copy here) are scheduled ahead
	// of everything else.
	LocalStageDir string
	// FFmpegPath is the transcoding engine binary.
	FFmpegPath string
	// ProgressInterval throttles persisted progress updates.
	ProgressInterval time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig(mediaDir, stageDir string) Config {
	return Config{
		MediaDir:         mediaDir,
		LocalStageDir:    stageDir,
		FFmpegPath:       "ffmpeg",
		ProgressInterval: time.Second,
	}
}

// workerState is the explicit run state of the queue worker, owned by
// the Queue and mutated only through its control methods.
type workerState struct {
	running bool
	paused  bool
	cancel  context.CancelFunc // cancels the worker loop
	jobStop context.CancelFunc // cancels only the in-flight job
	current string             // id of the in-flight job, "" when idle
}

// Queue is the background transcoding queue.
type Queue struct {
	config   Config
	db       *database.Database
	store    *store.Store
	detector *capabilities.Detector

	mu     sync.Mutex
	state  workerState
	wakeCh chan struct{}
	doneWg sync.WaitGroup
}

// New creates a queue. Any jobs left in processing state by a previous
// run are reverted to pending; their partial output is discarded when
// next picked up.
func New(config Config, db *database.Database, st *store.Store, detector *capabilities.Detector) (*Queue, error) {
	q := &Queue{
		config:   config,
		db:       db,
		store:    st,
		detector: detector,
		wakeCh:   make(chan struct{}, 1),
	}

	n, err := db.ResetProcessingJobs(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to reset in-flight jobs: %w", err)
	}
	if n > 0 {
		logging.Info("Reverted %d interrupted transcode jobs to pending", n)
	}

	return q, nil
}

// Start launches the worker loop. Idempotent while running.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.state.running {
		return
	}

	paused := q.state.paused || q.db.GetState(context.Background(), stateKeyPaused, "false") == "true"
	if paused {
		logging.Info("Transcode queue starting paused (operator pause persisted)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	q.state = workerState{running: true, paused: paused, cancel: cancel}

	q.doneWg.Add(1)
	go q.run(ctx)

	metrics.QueueWorkerRunning.Set(1)
	logging.Info("Transcode queue worker started")
}

// Pause stops picking new work; the in-flight job, if any, runs to
// completion. A pause issued while the worker is not running is not
// lost: the flag is set and persisted either way, and honored when the
// worker starts.
func (q *Queue) Pause() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state.paused {
		return
	}
	q.state.paused = true
	if err := q.db.SetState(context.Background(), stateKeyPaused, "true"); err != nil {
		logging.Warn("Failed to persist queue pause: %v", err)
	}
	logging.Info("Transcode queue paused")
}

// Resume reverses Pause.
func (q *Queue) Resume() {
	q.mu.Lock()
	q.state.paused = false
	q.mu.Unlock()
	if err := q.db.SetState(context.Background(), stateKeyPaused, "false"); err != nil {
		logging.Warn("Failed to persist queue resume: %v", err)
	}
	q.wake()
	logging.Info("Transcode queue resumed")
}

// Stop halts the worker loop and abandons the in-flight job, reverting
// it to pending. The running subprocess receives a graceful terminate;
// its partial output is discarded on next pickup.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.state.running {
		q.mu.Unlock()
		return
	}
	cancel := q.state.cancel
	jobStop := q.state.jobStop
	q.mu.Unlock()

	if jobStop != nil {
		jobStop()
	}
	cancel()
	q.doneWg.Wait()

	q.mu.Lock()
	// The paused flag outlives the worker; only the loop state resets.
	q.state = workerState{paused: q.state.paused}
	q.mu.Unlock()

	if _, err := q.db.ResetProcessingJobs(context.Background()); err != nil {
		logging.Warn("Failed to revert in-flight job after stop: %v", err)
	}

	metrics.QueueWorkerRunning.Set(0)
	logging.Info("Transcode queue worker stopped")
}

// Running reports whether the worker loop is active.
func (q *Queue) Running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state.running
}

// Paused reports whether the worker is paused.
func (q *Queue) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state.paused
}

// wake nudges the worker loop without blocking.
func (q *Queue) wake() {
	select {
	case q.wakeCh <- struct{}{}:
	default:
	}
}

// Add enqueues a source file. Insertion deduplicates: a second pending
// job for the same resolved path is rejected. highPriority jobs go to
// the head of the queue.
func (q *Queue) Add(ctx context.Context, path string, highPriority bool) (*database.TranscodeJob, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path: %w", err)
	}
	abs = filepath.Clean(abs)

	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("source file not found: %w", err)
	}

	queued, err := q.db.HasJobForSource(ctx, abs, database.JobPending, database.JobProcessing)
	if err != nil {
		return nil, err
	}
	if queued {
		return nil, ErrAlreadyQueued
	}

	job := &database.TranscodeJob{
		ID:           uuid.NewString(),
		SourcePath:   abs,
		Status:       database.JobPending,
		HighPriority: highPriority,
		EnqueuedAt:   time.Now(),
	}

	if err := q.db.InsertJob(ctx, job); err != nil {
		return nil, err
	}

	if highPriority {
		if err := q.MoveToTop(ctx, job.ID); err != nil {
			logging.Warn("Failed to promote high-priority job %s: %v", job.ID, err)
		}
	}

	metrics.QueueJobsEnqueued.Inc()
	logging.Info("Queued transcode job for %s (priority=%v)", abs, highPriority)
	q.wake()

	return job, nil
}

// Scan walks the media tree and enqueues every transcodable file that
// has neither a queued/completed job nor a finished output in the store.
// Returns the number of jobs added.
func (q *Queue) Scan(ctx context.Context) (int, error) {
	added := 0

	err := filepath.WalkDir(q.config.MediaDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			logging.Debug("Scan skipping %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != q.config.MediaDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsVideoFile(path) {
			return nil
		}

		if q.store.Resolve(path).Found {
			return nil
		}

		done, dbErr := q.db.HasJobForSource(ctx, path,
			database.JobPending, database.JobProcessing, database.JobCompleted)
		if dbErr != nil {
			return dbErr
		}
		if done {
			return nil
		}

		if _, addErr := q.Add(ctx, path, false); addErr == nil {
			added++
		} else if !errors.Is(addErr, ErrAlreadyQueued) {
			logging.Warn("Scan failed to queue %s: %v", path, addErr)
		}
		return nil
	})

	if setErr := q.db.SetState(ctx, stateKeyLastScan, time.Now().UTC().Format(time.RFC3339)); setErr != nil {
		logging.Warn("Failed to record scan time: %v", setErr)
	}
	if added > 0 {
		logging.Info("Scan queued %d new files", added)
	}
	return added, err
}

// Cancel removes a job. A processing job's subprocess is signalled to
// stop, but termination is eventual, not synchronous.
func (q *Queue) Cancel(ctx context.Context, id string) error {
	q.mu.Lock()
	inFlight := q.state.current == id
	jobStop := q.state.jobStop
	q.mu.Unlock()

	if inFlight && jobStop != nil {
		jobStop()
	}

	return q.db.DeleteJob(ctx, id)
}

// CancelByPath removes the pending job for a source path.
func (q *Queue) CancelByPath(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	jobs, err := q.db.ListJobsByStatus(ctx, database.JobPending)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if j.SourcePath == filepath.Clean(abs) {
			return q.db.DeleteJob(ctx, j.ID)
		}
	}
	return database.ErrJobNotFound
}

// MoveToTop moves a pending job to position 0.
func (q *Queue) MoveToTop(ctx context.Context, id string) error {
	return q.reorder(ctx, id, func(idx, n int) int { return 0 })
}

// MoveToPosition moves a pending job to an absolute position, clamped to
// the queue bounds.
func (q *Queue) MoveToPosition(ctx context.Context, id string, pos int) error {
	return q.reorder(ctx, id, func(idx, n int) int { return pos })
}

// MoveBy shifts a pending job by delta positions (negative = toward the
// head).
func (q *Queue) MoveBy(ctx context.Context, id string, delta int) error {
	return q.reorder(ctx, id, func(idx, n int) int { return idx + delta })
}

// reorder applies a position function to one pending job and persists
// the new ordering. The job multiset is preserved: reordering only
// permutes ids, never drops or duplicates them.
func (q *Queue) reorder(ctx context.Context, id string, newIndex func(idx, n int) int) error {
	jobs, err := q.db.ListJobsByStatus(ctx, database.JobPending)
	if err != nil {
		return err
	}

	idx := -1
	for i, j := range jobs {
		if j.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return database.ErrJobNotFound
	}

	target := newIndex(idx, len(jobs))
	if target < 0 {
		target = 0
	}
	if target >= len(jobs) {
		target = len(jobs) - 1
	}

	moved := jobs[idx]
	jobs = append(jobs[:idx], jobs[idx+1:]...)
	jobs = append(jobs[:target], append([]*database.TranscodeJob{moved}, jobs[target:]...)...)

	order := make([]string, len(jobs))
	for i, j := range jobs {
		order[i] = j.ID
	}
	return q.db.UpdateJobPositions(ctx, order)
}

// CleanupIncomplete removes partial output directories that lack a
// completion marker, reclaiming space from abandoned work. Returns the
// number of directories removed.
func (q *Queue) CleanupIncomplete() (int, error) {
	removed := 0

	roots := []string{q.store.Root(), filepath.Join(q.store.Root(), store.SeriesSubdir)}
	for _, root := range roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, err
		}

		for _, e := range entries {
			if !e.IsDir() || e.Name() == store.SeriesSubdir {
				continue
			}
			dir := filepath.Join(root, e.Name())

			// Never delete under the feet of the running job.
			q.mu.Lock()
			busy := q.state.current != ""
			q.mu.Unlock()
			if busy && q.currentOutputDir() == dir {
				continue
			}

			if store.IsIncomplete(dir) {
				if err := os.RemoveAll(dir); err != nil {
					logging.Warn("Failed to remove incomplete output %s: %v", dir, err)
					continue
				}
				logging.Info("Removed incomplete transcode output %s", dir)
				removed++
			}
		}
	}

	return removed, nil
}

// Stats is a point-in-time queue summary.
type Stats struct {
	Running      bool           `json:"running"`
	Paused       bool           `json:"paused"`
	CurrentJobID string         `json:"currentJobId,omitempty"`
	LastScan     string         `json:"lastScan,omitempty"`
	Counts       map[string]int `json:"counts"`
}

// GetStats summarizes the queue state.
func (q *Queue) GetStats(ctx context.Context) (Stats, error) {
	counts, err := q.db.CountJobsByStatus(ctx)
	if err != nil {
		return Stats{}, err
	}

	lastScan := q.db.GetState(ctx, stateKeyLastScan, "")

	q.mu.Lock()
	st := Stats{
		Running:      q.state.running,
		Paused:       q.state.paused,
		CurrentJobID: q.state.current,
		LastScan:     lastScan,
		Counts:       counts,
	}
	q.mu.Unlock()

	metrics.QueueDepth.Set(float64(counts[database.JobPending]))
	return st, nil
}

// Pending returns the pending jobs in scheduling order (position order;
// locality promotion happens at pick time).
func (q *Queue) Pending(ctx context.Context) ([]*database.TranscodeJob, error) {
	return q.db.ListJobsByStatus(ctx, database.JobPending)
}

// Completed returns finished jobs.
func (q *Queue) Completed(ctx context.Context) ([]*database.TranscodeJob, error) {
	return q.db.ListJobsByStatus(ctx, database.JobCompleted)
}

// Failed returns failed jobs, retained for manual retry.
func (q *Queue) Failed(ctx context.Context) ([]*database.TranscodeJob, error) {
	return q.db.ListJobsByStatus(ctx, database.JobFailed)
}
