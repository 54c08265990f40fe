package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrJobNotFound indicates the requested job id is unknown.
var ErrJobNotFound = errors.New("job not found")

const jobColumns = `id, source_path, status, high_priority, position, progress,
	speed, eta_seconds, output_path, error, enqueued_at, started_at, completed_at`

func scanJob(row interface{ Scan(...any) error }) (*TranscodeJob, error) {
	var j TranscodeJob
	var highPriority int
	var enqueued, started, completed int64

	err := row.Scan(
		&j.ID, &j.SourcePath, &j.Status, &highPriority, &j.Position,
		&j.Progress, &j.Speed, &j.ETASeconds, &j.OutputPath, &j.Error,
		&enqueued, &started, &completed,
	)
	if err != nil {
		return nil, err
	}

	j.HighPriority = highPriority != 0
	j.EnqueuedAt = time.Unix(enqueued, 0)
	if started > 0 {
		j.StartedAt = time.Unix(started, 0)
	}
	if completed > 0 {
		j.CompletedAt = time.Unix(completed, 0)
	}
	return &j, nil
}

// InsertJob persists a new job record. New jobs enter at the tail of
// the scheduling order: one past the highest pending position, so a
// reordered queue keeps its order ahead of fresh arrivals.
func (d *Database) InsertJob(ctx context.Context, j *TranscodeJob) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("insert_job", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	priority := 0
	if j.HighPriority {
		priority = 1
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO jobs (id, source_path, status, high_priority, position,
			progress, speed, eta_seconds, output_path, error, enqueued_at, started_at, completed_at)
		VALUES (?, ?, ?, ?,
			(SELECT COALESCE(MAX(position), -1) + 1 FROM jobs WHERE status = ?),
			?, ?, ?, ?, ?, ?, 0, 0)`,
		j.ID, j.SourcePath, j.Status, priority, JobPending,
		j.Progress, j.Speed, j.ETASeconds, j.OutputPath, j.Error, j.EnqueuedAt.Unix(),
	)
	return err
}

// UpdateJobStatus transitions a job's status, recording start/finish
// times and any failure message as appropriate.
func (d *Database) UpdateJobStatus(ctx context.Context, id, status, errMsg string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("update_job_status", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := time.Now().Unix()
	switch status {
	case JobProcessing:
		_, err = d.db.ExecContext(ctx,
			"UPDATE jobs SET status = ?, error = '', started_at = ? WHERE id = ?",
			status, now, id)
	case JobCompleted, JobFailed:
		_, err = d.db.ExecContext(ctx,
			"UPDATE jobs SET status = ?, error = ?, completed_at = ? WHERE id = ?",
			status, errMsg, now, id)
	default:
		// Reverting to pending clears progress from abandoned work.
		_, err = d.db.ExecContext(ctx,
			"UPDATE jobs SET status = ?, error = ?, progress = 0, speed = 0, eta_seconds = 0, started_at = 0 WHERE id = ?",
			status, errMsg, id)
	}
	return err
}

// UpdateJobProgress records a progress tick for a processing job.
func (d *Database) UpdateJobProgress(ctx context.Context, id string, progress, speed, etaSeconds float64) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := d.db.ExecContext(ctx,
		"UPDATE jobs SET progress = ?, speed = ?, eta_seconds = ? WHERE id = ?",
		progress, speed, etaSeconds, id)
	return err
}

// UpdateJobOutput records the output directory for a job.
func (d *Database) UpdateJobOutput(ctx context.Context, id, outputPath string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := d.db.ExecContext(ctx,
		"UPDATE jobs SET output_path = ? WHERE id = ?", outputPath, id)
	return err
}

// UpdateJobPositions rewrites the queue ordering in one transaction.
func (d *Database) UpdateJobPositions(ctx context.Context, order []string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("update_job_positions", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	for pos, id := range order {
		if _, err = tx.ExecContext(ctx, "UPDATE jobs SET position = ? WHERE id = ?", pos, id); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
			}
			return err
		}
	}
	err = tx.Commit()
	return err
}

// DeleteJob removes a job record.
func (d *Database) DeleteJob(ctx context.Context, id string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_job", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, "DELETE FROM jobs WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = ErrJobNotFound
		return err
	}
	return nil
}

// GetJob fetches one job by id.
func (d *Database) GetJob(ctx context.Context, id string) (*TranscodeJob, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	j, err := scanJob(d.db.QueryRowContext(ctx,
		"SELECT "+jobColumns+" FROM jobs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	return j, err
}

// ListJobsByStatus returns jobs with the given status ordered by queue
// position, then enqueue time.
func (d *Database) ListJobsByStatus(ctx context.Context, status string) ([]*TranscodeJob, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_jobs", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx,
		"SELECT "+jobColumns+" FROM jobs WHERE status = ? ORDER BY position, enqueued_at", status)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = closeErr
		}
	}()

	var jobs []*TranscodeJob
	for rows.Next() {
		j, scanErr := scanJob(rows)
		if scanErr != nil {
			err = scanErr
			return nil, scanErr
		}
		jobs = append(jobs, j)
	}
	err = rows.Err()
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// HasJobForSource reports whether any job in the given statuses exists
// for the resolved source path. Used to deduplicate queue insertion.
func (d *Database) HasJobForSource(ctx context.Context, sourcePath string, statuses ...string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := "SELECT COUNT(*) FROM jobs WHERE source_path = ? AND status IN (?"
	args := []any{sourcePath}
	for i, s := range statuses {
		if i > 0 {
			query += ",?"
		}
		args = append(args, s)
	}
	query += ")"

	var count int
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// CountJobsByStatus returns job counts keyed by status.
func (d *Database) CountJobsByStatus(ctx context.Context) (map[string]int, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM jobs GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// ResetProcessingJobs reverts any processing jobs to pending. Called on
// startup and on a global stop: in-flight work is abandoned, not resumed
// mid-segment.
func (d *Database) ResetProcessingJobs(ctx context.Context) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("reset_processing_jobs", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx,
		"UPDATE jobs SET status = ?, progress = 0, speed = 0, eta_seconds = 0, started_at = 0 WHERE status = ?",
		JobPending, JobProcessing)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
