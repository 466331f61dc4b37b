package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/tvanh/jobpipe/internal/worker/domain"
)

// Storage handles all database operations for the worker
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// GetJobByID retrieves a job from the database by its ID
func (s *Storage) GetJobByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
		SELECT job_id, job_type, payload, status, attempt_count, max_attempts
		FROM jobs
		WHERE job_id = $1
	`

	var job domain.Job
	err := s.db.QueryRowContext(ctx, query, jobID).Scan(
		&job.JobID,
		&job.JobType,
		&job.Payload,
		&job.Status,
		&job.AttemptCount,
		&job.MaxAttempts,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// ClaimJob transitions a job to in_progress and increments its attempt count.
// The optimistic status predicate is the only cross-worker coordination: a
// pending job is a fresh delivery, an in_progress one is a crash redelivery
// being re-executed from scratch. Zero rows means another worker owns the job
// or it already reached a terminal state.
func (s *Storage) ClaimJob(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    attempt_count = attempt_count + 1,
		    updated_at = NOW()
		WHERE job_id = $2
		  AND status IN ($3, $4)
		RETURNING job_id, job_type, payload, attempt_count, max_attempts
	`

	var job domain.Job
	err := s.db.QueryRowContext(ctx, query,
		domain.JobStatusInProgress,
		jobID,
		domain.JobStatusPending,
		domain.JobStatusInProgress,
	).Scan(
		&job.JobID,
		&job.JobType,
		&job.Payload,
		&job.AttemptCount,
		&job.MaxAttempts,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Failed to claim job - terminal or owned elsewhere",
				slog.String("job_id", jobID),
			)
			return nil, domain.ErrJobConflict
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	job.Status = domain.JobStatusInProgress

	s.logger.Info("Job claimed",
		slog.String("job_id", jobID),
		slog.String("job_type", job.JobType),
		slog.Int("attempt", job.AttemptCount),
	)

	return &job, nil
}

// CompleteJob records the result payload and marks the job succeeded
func (s *Storage) CompleteJob(ctx context.Context, jobID string, result []byte) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    result = $2,
		    error_message = NULL,
		    updated_at = NOW()
		WHERE job_id = $3
		  AND status = $4
	`

	res, err := s.db.ExecContext(ctx, query, domain.JobStatusSucceeded, result, jobID, domain.JobStatusInProgress)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	return s.checkOneRow(res, jobID, domain.JobStatusSucceeded)
}

// FailJob marks the job terminally failed with an error reason
func (s *Storage) FailJob(ctx context.Context, jobID, reason string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    error_message = $2,
		    updated_at = NOW()
		WHERE job_id = $3
		  AND status = $4
	`

	res, err := s.db.ExecContext(ctx, query, domain.JobStatusFailed, reason, jobID, domain.JobStatusInProgress)
	if err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}

	return s.checkOneRow(res, jobID, domain.JobStatusFailed)
}

// ReleaseJob returns a job to pending after a failed attempt so the broker
// redelivery can execute it again. The failure reason is kept for visibility.
func (s *Storage) ReleaseJob(ctx context.Context, jobID, reason string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    error_message = $2,
		    updated_at = NOW()
		WHERE job_id = $3
		  AND status = $4
	`

	res, err := s.db.ExecContext(ctx, query, domain.JobStatusPending, reason, jobID, domain.JobStatusInProgress)
	if err != nil {
		return fmt.Errorf("failed to release job: %w", err)
	}

	return s.checkOneRow(res, jobID, domain.JobStatusPending)
}

// ListStalePending returns jobs that have sat pending longer than the given
// age. A healthy pipeline drains pending jobs quickly, so anything old here
// is a consistency finding (a job with no message behind it).
func (s *Storage) ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Job, error) {
	query := `
		SELECT job_id, job_type, payload, status, attempt_count, max_attempts
		FROM jobs
		WHERE status = $1
		  AND updated_at < NOW() - ($2 * INTERVAL '1 second')
		ORDER BY updated_at ASC
		LIMIT $3
	`

	rows, err := s.db.QueryContext(ctx, query, domain.JobStatusPending, olderThan.Seconds(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale pending jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		var job domain.Job
		if err := rows.Scan(
			&job.JobID,
			&job.JobType,
			&job.Payload,
			&job.Status,
			&job.AttemptCount,
			&job.MaxAttempts,
		); err != nil {
			return nil, fmt.Errorf("failed to scan stale job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stale jobs: %w", err)
	}

	return jobs, nil
}

func (s *Storage) checkOneRow(res sql.Result, jobID, status string) error {
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Job status update - no rows affected",
			slog.String("job_id", jobID),
			slog.String("target_status", status),
		)
		return nil
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", jobID),
		slog.String("status", status),
	)

	return nil
}
