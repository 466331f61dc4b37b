package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tvanh/jobpipe/internal/worker/domain"
)

// processJob handles one delivered work message. A nil return means the
// delivery is settled and must be ACKed: either the job reached a terminal
// state, or the message turned out to be a duplicate/no-op. A returned error
// means the delivery must be NACKed; whether it is requeued is decided by
// shouldRequeueJob.
func (w *Worker) processJob(ctx context.Context, msg *domain.JobMessage) error {
	w.logger.Info("Processing job",
		slog.String("job_id", msg.JobID),
		slog.String("worker_id", w.workerID),
	)

	// Step 1: load the job. The store is authoritative - a missing job means
	// it was purged, so the message is discarded rather than retried.
	job, err := w.storage.GetJobByID(ctx, msg.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			w.logger.Warn("Job not found in store, discarding message",
				slog.String("job_id", msg.JobID),
			)
			return nil
		}
		return domain.NewRetryableError(fmt.Errorf("failed to load job: %w", err))
	}

	// Step 2: duplicate-delivery guard. An at-least-once broker may redeliver
	// a message for a job that already finished.
	if domain.IsTerminalStatus(job.Status) {
		w.logger.Info("Job already terminal, discarding duplicate delivery",
			slog.String("job_id", job.JobID),
			slog.String("status", job.Status),
		)
		return nil
	}

	// Step 3: claim the job. The optimistic status check resolves concurrent
	// redelivery to two workers: the loser aborts this delivery as a no-op.
	claimed, err := w.storage.ClaimJob(ctx, msg.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobConflict) {
			w.logger.Warn("Job owned elsewhere or already terminal, discarding delivery",
				slog.String("job_id", msg.JobID),
			)
			return nil
		}
		return domain.NewRetryableError(fmt.Errorf("failed to claim job: %w", err))
	}

	executor, ok := w.executors.Get(claimed.JobType)
	if !ok {
		w.logger.Error("No executor registered for job type",
			slog.String("job_id", claimed.JobID),
			slog.String("job_type", claimed.JobType),
		)
		// Retrying can never help an unknown type
		reason := fmt.Sprintf("%s: %s", domain.ErrUnknownJobType, claimed.JobType)
		if failErr := w.storage.FailJob(ctx, claimed.JobID, reason); failErr != nil {
			return domain.NewRetryableError(failErr)
		}
		return nil
	}

	// Step 4: execute the job body under the configured timeout
	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	result, execErr := executor.Execute(jobCtx, claimed)

	if execErr != nil {
		return w.handleExecutionFailure(ctx, claimed, execErr)
	}

	if err := w.storage.CompleteJob(ctx, claimed.JobID, result); err != nil {
		// The body succeeded but the result is not durable yet; requeue and
		// rely on idempotent re-execution
		return domain.NewRetryableError(fmt.Errorf("failed to persist result: %w", err))
	}

	w.logger.Info("Job completed successfully",
		slog.String("job_id", claimed.JobID),
		slog.String("job_type", claimed.JobType),
		slog.Int("attempt", claimed.AttemptCount),
	)

	return nil
}

// handleExecutionFailure applies the retry budget: under budget the job goes
// back to pending and the message is requeued; at budget the job is marked
// terminally failed and the delivery is settled.
func (w *Worker) handleExecutionFailure(ctx context.Context, job *domain.Job, execErr error) error {
	w.logger.Error("Job execution failed",
		slog.String("job_id", job.JobID),
		slog.String("job_type", job.JobType),
		slog.Int("attempt", job.AttemptCount),
		slog.Int("max_attempts", job.MaxAttempts),
		slog.String("error", execErr.Error()),
	)

	if job.AttemptCount < job.MaxAttempts {
		if err := w.storage.ReleaseJob(ctx, job.JobID, execErr.Error()); err != nil {
			return domain.NewRetryableError(fmt.Errorf("failed to release job: %w", err))
		}

		w.logger.Info("Job released for retry",
			slog.String("job_id", job.JobID),
			slog.Int("attempt", job.AttemptCount),
			slog.Int("max_attempts", job.MaxAttempts),
		)

		return domain.NewRetryableError(fmt.Errorf("job execution failed: %w", execErr))
	}

	w.logger.Warn("Job retry budget exhausted, marking failed",
		slog.String("job_id", job.JobID),
		slog.Int("attempts", job.AttemptCount),
	)

	reason := fmt.Sprintf("%s after %d attempts: %s", domain.ErrRetryBudgetExhausted, job.AttemptCount, execErr)
	if err := w.storage.FailJob(ctx, job.JobID, reason); err != nil {
		return domain.NewRetryableError(fmt.Errorf("failed to fail job: %w", err))
	}

	// Terminal state recorded; the delivery is settled with an ACK
	return nil
}
