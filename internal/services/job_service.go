package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/refbatch/refbatch/internal/models"
)

const jobColumns = `
	id, name, region, job_type, source_ref, work_dir, remote_url, command, env,
	queue, status, exit_code, error_message, attempts, worker_id, log_key,
	timeout_sec, created_at, started_at, finished_at`

// JobService owns the jobs table. Workers never touch it directly; their
// status reports arrive through the event persister.
type JobService struct {
	db *sqlx.DB
}

func NewJobService(db *sqlx.DB) *JobService {
	return &JobService{db: db}
}

// CreateJob inserts a freshly accepted submission.
func (s *JobService) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (
			id, name, region, job_type, source_ref, work_dir, remote_url, command, env,
			queue, status, error_message, attempts, worker_id, log_key,
			timeout_sec, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9,
			$10, $11, '', 0, '', '',
			$12, $13
		)`,
		job.ID, job.Name, job.Region, job.JobType, job.SourceRef, job.WorkDir, job.RemoteURL, job.Command, job.Env,
		job.Queue, job.Status, job.TimeoutSec, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

// GetJob returns a single job by ID.
func (s *JobService) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	err := s.db.GetContext(ctx, &job, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to query job: %w", err)
	}
	return &job, nil
}

// ListJobs returns a page of jobs, newest first, with an optional status
// filter, plus the total count for the filter.
func (s *JobService) ListJobs(ctx context.Context, limit, offset int, status string) ([]*models.Job, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var (
		total int
		err   error
	)
	if status != "" {
		err = s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM jobs WHERE status = $1`, status)
	} else {
		err = s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM jobs`)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get total count: %w", err)
	}

	jobs := make([]*models.Job, 0, limit)
	if status != "" {
		err = s.db.SelectContext(ctx, &jobs, `
			SELECT `+jobColumns+` FROM jobs
			WHERE status = $1
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3`, status, limit, offset)
	} else {
		err = s.db.SelectContext(ctx, &jobs, `
			SELECT `+jobColumns+` FROM jobs
			ORDER BY created_at DESC
			LIMIT $1 OFFSET $2`, limit, offset)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query jobs: %w", err)
	}

	return jobs, total, nil
}

// MarkRunning records that a worker picked the job up. Only queued jobs can
// transition; a cancelled job stays cancelled and the zero-row result is not
// an error.
func (s *JobService) MarkRunning(ctx context.Context, id, workerID string, attempt int, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, worker_id = $2, attempts = $3, started_at = $4
		WHERE id = $5 AND status = $6`,
		models.JobRunning, workerID, attempt, at, id, models.JobQueued,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}
	return nil
}

// MarkRequeued puts a running job back in the queue after an infrastructure
// failure, keeping the attempt counter.
func (s *JobService) MarkRequeued(ctx context.Context, id string, attempt int, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, error_message = $2, attempts = $3, started_at = NULL, worker_id = ''
		WHERE id = $4 AND status = $5`,
		models.JobQueued, reason, attempt, id, models.JobRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to requeue job: %w", err)
	}
	return nil
}

// MarkTerminal records the final state a worker reported. A different
// terminal state already on the row wins (a cancel that raced the worker),
// but a repeat of the same state is applied: the worker's own cancelled
// report arrives after the API's and carries the exit code and log key.
func (s *JobService) MarkTerminal(ctx context.Context, id string, status models.JobStatus, exitCode *int, errMsg, logKey string, at time.Time) error {
	if !status.Terminal() {
		return fmt.Errorf("status %q is not terminal", status)
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, exit_code = $2, error_message = $3, log_key = $4, finished_at = $5
		WHERE id = $6 AND status IN ($7, $8, $1)`,
		status, exitCode, errMsg, logKey, at, id, models.JobQueued, models.JobRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	return nil
}

// CancelJob cancels a queued or running job and returns the updated record.
// Terminal jobs return models.ErrJobFinished.
func (s *JobService) CancelJob(ctx context.Context, id string, at time.Time) (*models.Job, error) {
	var job models.Job
	err := s.db.GetContext(ctx, &job, `
		UPDATE jobs
		SET status = $1, finished_at = $2
		WHERE id = $3 AND status IN ($4, $5)
		RETURNING `+jobColumns,
		models.JobCancelled, at, id, models.JobQueued, models.JobRunning,
	)
	if err == nil {
		return &job, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to cancel job: %w", err)
	}

	// No row matched: either the job does not exist or it already finished.
	existing, getErr := s.GetJob(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return existing, models.ErrJobFinished
}
