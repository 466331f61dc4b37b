package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tvanh/jobpipe/internal/worker/domain"
	"github.com/tvanh/jobpipe/internal/worker/storage"
	"github.com/tvanh/jobpipe/shared/postgresql"
	"github.com/tvanh/jobpipe/shared/rabbitmq"
)

// Config holds worker configuration
type Config struct {
	Logger            *slog.Logger
	DBClient          *postgresql.Client
	RabbitClient      *rabbitmq.Client
	Executors         *Registry
	Concurrency       int
	PrefetchCount     int
	JobTimeout        time.Duration
	ReconcileInterval time.Duration
	StaleAfter        time.Duration
}

// defaultRequeueDelay spaces out redeliveries of a failing delivery so a
// store or broker outage does not become a hot requeue loop.
const defaultRequeueDelay = time.Second

// Store is the slice of the storage layer the worker needs
type Store interface {
	GetJobByID(ctx context.Context, jobID string) (*domain.Job, error)
	ClaimJob(ctx context.Context, jobID string) (*domain.Job, error)
	CompleteJob(ctx context.Context, jobID string, result []byte) error
	FailJob(ctx context.Context, jobID, reason string) error
	ReleaseJob(ctx context.Context, jobID, reason string) error
	ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Job, error)
}

// Worker consumes work messages and drives jobs to a terminal state
type Worker struct {
	logger            *slog.Logger
	rabbitClient      *rabbitmq.Client
	storage           Store
	executors         *Registry
	workerID          string
	concurrency       int
	prefetchCount     int
	jobTimeout        time.Duration
	requeueDelay      time.Duration
	reconcileInterval time.Duration
	staleAfter        time.Duration
	wg                sync.WaitGroup
	stopChan          chan struct{}
	jobsChan          chan *domain.JobMessage
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	return &Worker{
		logger:            cfg.Logger,
		rabbitClient:      cfg.RabbitClient,
		storage:           storage.NewStorage(cfg.DBClient.GetDB(), cfg.Logger),
		executors:         cfg.Executors,
		workerID:          fmt.Sprintf("worker-%s", uuid.New().String()[:8]),
		concurrency:       cfg.Concurrency,
		prefetchCount:     cfg.PrefetchCount,
		jobTimeout:        cfg.JobTimeout,
		requeueDelay:      defaultRequeueDelay,
		reconcileInterval: cfg.ReconcileInterval,
		staleAfter:        cfg.StaleAfter,
		stopChan:          make(chan struct{}),
		jobsChan:          make(chan *domain.JobMessage),
	}
}

// Start begins consuming and processing jobs. It blocks until the context is
// canceled or the consumer setup fails.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to setup consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.startMessageDispatcher(ctx, deliveries)
	}()

	if w.reconcileInterval > 0 {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.reconcileLoop(ctx)
		}()
	}

	<-ctx.Done()
	w.logger.Info("Worker context canceled, stopping...")

	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
