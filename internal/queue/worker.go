package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"media-streamer/internal/database"
	"media-streamer/internal/logging"
	"media-streamer/internal/metrics"
	"media-streamer/internal/store"
	"media-streamer/internal/transcoder"
)

// idlePollInterval is how often the worker re-checks for work when the
// queue is empty or paused; Add also wakes it directly.
const idlePollInterval = 10 * time.Second

// run is the worker loop. It owns its cancellation context: pause is a
// state check at pick time, stop cancels ctx outright.
func (q *Queue) run(ctx context.Context) {
	defer q.doneWg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		q.mu.Lock()
		paused := q.state.paused
		q.mu.Unlock()

		var job *database.TranscodeJob
		if !paused {
			var err error
			job, err = q.pickNext(ctx)
			if err != nil && ctx.Err() == nil {
				logging.Warn("Failed to pick next transcode job: %v", err)
			}
		}

		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-q.wakeCh:
			case <-time.After(idlePollInterval):
			}
			continue
		}

		q.process(ctx, job)
	}
}

// pickNext selects the next pending job: FIFO by queue position, except
// that any job staged on fast local storage jumps the line.
func (q *Queue) pickNext(ctx context.Context) (*database.TranscodeJob, error) {
	jobs, err := q.db.ListJobsByStatus(ctx, database.JobPending)
	if err != nil || len(jobs) == 0 {
		return nil, err
	}

	for _, j := range jobs {
		if q.isLocallyStaged(j.SourcePath) {
			if j != jobs[0] {
				logging.Info("Promoting locally staged job %s ahead of queue", j.SourcePath)
			}
			return j, nil
		}
	}
	return jobs[0], nil
}

// isLocallyStaged reports whether the source lives in (or has a copy
// staged under) the fast local scratch area.
func (q *Queue) isLocallyStaged(sourcePath string) bool {
	stage := q.config.LocalStageDir
	if stage == "" {
		return false
	}

	if strings.HasPrefix(sourcePath, stage+string(filepath.Separator)) {
		return true
	}

	staged := filepath.Join(stage, filepath.Base(sourcePath))
	if _, err := os.Stat(staged); err == nil {
		return true
	}
	return false
}

// stagedSource returns the path the engine should read for a job,
// preferring a local staged copy over the original.
func (q *Queue) stagedSource(sourcePath string) string {
	if q.config.LocalStageDir == "" {
		return sourcePath
	}
	staged := filepath.Join(q.config.LocalStageDir, filepath.Base(sourcePath))
	if _, err := os.Stat(staged); err == nil {
		return staged
	}
	return sourcePath
}

// outputDir picks the output unit directory for a source: the series
// subtree when the file sits below a subdirectory of the media root,
// the store root otherwise.
func (q *Queue) outputDir(sourcePath string) string {
	name := store.SanitizeName(sourcePath)
	rel, err := filepath.Rel(q.config.MediaDir, sourcePath)
	if err == nil && strings.Contains(rel, string(filepath.Separator)) {
		return filepath.Join(q.store.Root(), store.SeriesSubdir, name)
	}
	return filepath.Join(q.store.Root(), name)
}

// currentOutputDir returns the in-flight job's output directory, or "".
func (q *Queue) currentOutputDir() string {
	q.mu.Lock()
	id := q.state.current
	q.mu.Unlock()
	if id == "" {
		return ""
	}
	job, err := q.db.GetJob(context.Background(), id)
	if err != nil {
		return ""
	}
	return q.outputDir(job.SourcePath)
}

// process runs one job to completion (or failure/abandonment).
func (q *Queue) process(ctx context.Context, job *database.TranscodeJob) {
	jobCtx, jobStop := context.WithCancel(ctx)
	defer jobStop()

	q.mu.Lock()
	q.state.current = job.ID
	q.state.jobStop = jobStop
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.state.current = ""
		q.state.jobStop = nil
		q.mu.Unlock()
	}()

	if err := q.db.UpdateJobStatus(ctx, job.ID, database.JobProcessing, ""); err != nil {
		logging.Warn("Failed to mark job %s processing: %v", job.ID, err)
		return
	}

	start := time.Now()
	err := q.transcode(jobCtx, job)
	duration := time.Since(start)

	switch {
	case jobCtx.Err() != nil:
		// Stopped or cancelled: the record may already be deleted
		// (cancel) or will be reverted to pending (stop). Partial output
		// is discarded on next pickup.
		logging.Info("Transcode job for %s abandoned after %v", job.SourcePath, duration.Round(time.Second))
		metrics.QueueJobsProcessed.WithLabelValues("abandoned").Inc()
	case err != nil:
		logging.Error("Transcode job for %s failed: %v", job.SourcePath, err)
		if dbErr := q.db.UpdateJobStatus(context.Background(), job.ID, database.JobFailed, err.Error()); dbErr != nil {
			logging.Warn("Failed to record job failure: %v", dbErr)
		}
		metrics.QueueJobsProcessed.WithLabelValues("failed").Inc()
	default:
		logging.Info("Transcode job for %s completed in %v", job.SourcePath, duration.Round(time.Second))
		if dbErr := q.db.UpdateJobStatus(context.Background(), job.ID, database.JobCompleted, ""); dbErr != nil {
			logging.Warn("Failed to record job completion: %v", dbErr)
		}
		metrics.QueueJobsProcessed.WithLabelValues("completed").Inc()
		metrics.QueueJobDuration.Observe(duration.Seconds())
	}
}

// transcode produces a complete output unit for the job's source file.
func (q *Queue) transcode(ctx context.Context, job *database.TranscodeJob) error {
	source := q.stagedSource(job.SourcePath)

	info, err := transcoder.Probe(ctx, source)
	if err != nil {
		return fmt.Errorf("source probe failed: %w", err)
	}

	audioStreams := info.AudioStreams()
	if len(audioStreams) == 0 && len(info.VideoStreams()) == 0 {
		return fmt.Errorf("source has no usable streams")
	}
	audioTrack := -1
	if len(audioStreams) > 0 {
		audioTrack = audioStreams[0]
	}

	outDir := q.outputDir(job.SourcePath)

	// A previous abandoned attempt leaves a partial unit here; start
	// fresh rather than resuming mid-segment.
	if store.IsIncomplete(outDir) {
		logging.Info("Discarding partial output at %s", outDir)
		if err := os.RemoveAll(outDir); err != nil {
			return fmt.Errorf("failed to discard partial output: %w", err)
		}
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := q.db.UpdateJobOutput(ctx, job.ID, outDir); err != nil {
		logging.Debug("Failed to record output path for %s: %v", job.ID, err)
	}

	playlist := filepath.Join(outDir, store.PlaylistName)
	args := transcoder.BuildArgs(source, info, audioTrack, playlist, q.detector.Detect(), 0, 0)

	lastTick := time.Time{}
	onProgress := func(ev transcoder.ProgressEvent) {
		if time.Since(lastTick) < q.config.ProgressInterval {
			return
		}
		lastTick = time.Now()

		progress := 0.0
		eta := 0.0
		total := ev.TotalSeconds
		if total == 0 {
			total = info.Duration
		}
		if total > 0 {
			progress = 100 * ev.CurrentSeconds / total
			if ev.Speed > 0 {
				eta = (total - ev.CurrentSeconds) / ev.Speed
			}
		}
		if err := q.db.UpdateJobProgress(context.Background(), job.ID, progress, ev.Speed, eta); err != nil {
			logging.Debug("Failed to persist progress for %s: %v", job.ID, err)
		}
	}

	proc, err := transcoder.Spawn(q.config.FFmpegPath, args, onProgress)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		proc.Stop()
		return ctx.Err()
	case <-proc.Done():
	}

	if err := proc.ExitError(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("engine exited with code %d", exitErr.ExitCode())
		}
		return err
	}

	q.writeSidecar(outDir, info)

	if err := store.MarkComplete(outDir); err != nil {
		return fmt.Errorf("failed to write completion marker: %w", err)
	}
	return nil
}

// writeSidecar records the probed track layout next to the output so
// players can offer track selection without re-probing the source.
func (q *Queue) writeSidecar(outDir string, info *transcoder.SourceInfo) {
	data, err := json.MarshalIndent(info.Streams, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(filepath.Join(outDir, "tracks.json"), data, 0o644); err != nil {
		logging.Debug("Failed to write track sidecar in %s: %v", outDir, err)
	}
}
