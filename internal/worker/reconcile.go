package worker

import (
	"context"
	"log/slog"
	"time"
)

const staleScanLimit = 100

// reconcileLoop periodically scans for jobs stuck in pending. A pending job
// older than the staleness threshold has most likely lost its work message
// (e.g. a crash between the store insert and the broker publish). The sweep
// only reports; correction is an operator concern.
func (w *Worker) reconcileLoop(ctx context.Context) {
	ticker := time.NewTicker(w.reconcileInterval)
	defer ticker.Stop()

	w.logger.Info("Reconciler started",
		slog.Duration("interval", w.reconcileInterval),
		slog.Duration("stale_after", w.staleAfter),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Reconciler stopped - context canceled")
			return

		case <-w.stopChan:
			w.logger.Info("Reconciler stopped - worker stopping")
			return

		case <-ticker.C:
			stale, err := w.storage.ListStalePending(ctx, w.staleAfter, staleScanLimit)
			if err != nil {
				w.logger.Error("Reconciler scan failed",
					slog.String("error", err.Error()),
				)
				continue
			}

			for _, job := range stale {
				w.logger.Warn("Consistency finding: job stuck pending past staleness threshold",
					slog.String("job_id", job.JobID),
					slog.String("job_type", job.JobType),
					slog.Int("attempt_count", job.AttemptCount),
				)
			}

			if len(stale) > 0 {
				w.logger.Warn("Reconciler sweep finished",
					slog.Int("stale_pending_jobs", len(stale)),
				)
			}
		}
	}
}
