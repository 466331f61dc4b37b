package worker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tvanh/jobpipe/internal/mocks"
	"github.com/tvanh/jobpipe/internal/worker/domain"
)

func newTestWorker(store *mocks.WorkerStoreMock, executors *Registry) *Worker {
	return &Worker{
		logger:     slog.New(slog.DiscardHandler),
		storage:    store,
		executors:  executors,
		workerID:   "worker-test",
		jobTimeout: time.Second,
	}
}

func registryWith(jobType string, fn ExecutorFunc) *Registry {
	r := NewRegistry()
	r.Register(jobType, fn)
	return r
}

func testMessage(jobID string) *domain.JobMessage {
	return &domain.JobMessage{
		JobID:      jobID,
		EnqueuedAt: time.Now().UTC(),
	}
}

func TestProcessJob_Success(t *testing.T) {
	store := new(mocks.WorkerStoreMock)
	jobID := uuid.New().String()

	pending := &domain.Job{
		JobID:       jobID,
		JobType:     "sentence-embedding",
		Payload:     []byte(`{"document": "hello"}`),
		Status:      domain.JobStatusPending,
		MaxAttempts: 3,
	}
	claimed := *pending
	claimed.Status = domain.JobStatusInProgress
	claimed.AttemptCount = 1

	store.On("GetJobByID", mock.Anything, jobID).Return(pending, nil)
	store.On("ClaimJob", mock.Anything, jobID).Return(&claimed, nil)
	store.On("CompleteJob", mock.Anything, jobID, []byte(`{"ok": true}`)).Return(nil)

	executors := registryWith("sentence-embedding", func(ctx context.Context, job *domain.Job) ([]byte, error) {
		return []byte(`{"ok": true}`), nil
	})

	w := newTestWorker(store, executors)
	err := w.processJob(context.Background(), testMessage(jobID))

	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestProcessJob_MissingJobDiscarded(t *testing.T) {
	store := new(mocks.WorkerStoreMock)
	jobID := uuid.New().String()

	store.On("GetJobByID", mock.Anything, jobID).Return(nil, domain.ErrJobNotFound)

	w := newTestWorker(store, NewRegistry())
	err := w.processJob(context.Background(), testMessage(jobID))

	require.NoError(t, err)
	store.AssertNotCalled(t, "ClaimJob", mock.Anything, mock.Anything)
}

func TestProcessJob_TerminalDuplicateDiscarded(t *testing.T) {
	for _, status := range []string{domain.JobStatusSucceeded, domain.JobStatusFailed} {
		t.Run(status, func(t *testing.T) {
			store := new(mocks.WorkerStoreMock)
			jobID := uuid.New().String()

			store.On("GetJobByID", mock.Anything, jobID).Return(&domain.Job{
				JobID:  jobID,
				Status: status,
			}, nil)

			w := newTestWorker(store, NewRegistry())
			err := w.processJob(context.Background(), testMessage(jobID))

			require.NoError(t, err)
			store.AssertNotCalled(t, "ClaimJob", mock.Anything, mock.Anything)
			store.AssertNotCalled(t, "CompleteJob", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestProcessJob_ClaimConflictDiscarded(t *testing.T) {
	store := new(mocks.WorkerStoreMock)
	jobID := uuid.New().String()

	store.On("GetJobByID", mock.Anything, jobID).Return(&domain.Job{
		JobID:  jobID,
		Status: domain.JobStatusPending,
	}, nil)
	store.On("ClaimJob", mock.Anything, jobID).Return(nil, domain.ErrJobConflict)

	w := newTestWorker(store, NewRegistry())
	err := w.processJob(context.Background(), testMessage(jobID))

	require.NoError(t, err)
	store.AssertNotCalled(t, "CompleteJob", mock.Anything, mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "FailJob", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessJob_LoadErrorIsRetryable(t *testing.T) {
	store := new(mocks.WorkerStoreMock)
	jobID := uuid.New().String()

	store.On("GetJobByID", mock.Anything, jobID).Return(nil, errors.New("connection refused"))

	w := newTestWorker(store, NewRegistry())
	err := w.processJob(context.Background(), testMessage(jobID))

	require.Error(t, err)
	var retryable *domain.RetryableError
	assert.True(t, errors.As(err, &retryable))
}

func TestProcessJob_InProgressRedeliveryResumes(t *testing.T) {
	// A job stuck in_progress after a worker crash must be claimable again
	// when the broker redelivers its message
	store := new(mocks.WorkerStoreMock)
	jobID := uuid.New().String()

	inProgress := &domain.Job{
		JobID:        jobID,
		JobType:      "sentence-embedding",
		Payload:      []byte(`{}`),
		Status:       domain.JobStatusInProgress,
		AttemptCount: 1,
		MaxAttempts:  3,
	}
	reclaimed := *inProgress
	reclaimed.AttemptCount = 2

	store.On("GetJobByID", mock.Anything, jobID).Return(inProgress, nil)
	store.On("ClaimJob", mock.Anything, jobID).Return(&reclaimed, nil)
	store.On("CompleteJob", mock.Anything, jobID, mock.Anything).Return(nil)

	executors := registryWith("sentence-embedding", func(ctx context.Context, job *domain.Job) ([]byte, error) {
		return []byte(`{"ok": true}`), nil
	})

	w := newTestWorker(store, executors)
	err := w.processJob(context.Background(), &domain.JobMessage{
		JobID:       jobID,
		EnqueuedAt:  time.Now().UTC(),
		Redelivered: true,
	})

	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestProcessJob_UnknownTypeFailsTerminally(t *testing.T) {
	store := new(mocks.WorkerStoreMock)
	jobID := uuid.New().String()

	store.On("GetJobByID", mock.Anything, jobID).Return(&domain.Job{
		JobID:   jobID,
		JobType: "no-such-type",
		Status:  domain.JobStatusPending,
	}, nil)
	store.On("ClaimJob", mock.Anything, jobID).Return(&domain.Job{
		JobID:        jobID,
		JobType:      "no-such-type",
		Status:       domain.JobStatusInProgress,
		AttemptCount: 1,
		MaxAttempts:  3,
	}, nil)
	store.On("FailJob", mock.Anything, jobID, mock.MatchedBy(func(reason string) bool {
		return strings.Contains(reason, "unknown job type")
	})).Return(nil)

	w := newTestWorker(store, NewRegistry())
	err := w.processJob(context.Background(), testMessage(jobID))

	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestProcessJob_FailureUnderBudgetReleases(t *testing.T) {
	store := new(mocks.WorkerStoreMock)
	jobID := uuid.New().String()

	store.On("GetJobByID", mock.Anything, jobID).Return(&domain.Job{
		JobID:   jobID,
		JobType: "sentence-embedding",
		Status:  domain.JobStatusPending,
	}, nil)
	store.On("ClaimJob", mock.Anything, jobID).Return(&domain.Job{
		JobID:        jobID,
		JobType:      "sentence-embedding",
		Status:       domain.JobStatusInProgress,
		AttemptCount: 1,
		MaxAttempts:  3,
	}, nil)
	store.On("ReleaseJob", mock.Anything, jobID, mock.Anything).Return(nil)

	executors := registryWith("sentence-embedding", func(ctx context.Context, job *domain.Job) ([]byte, error) {
		return nil, errors.New("model endpoint unavailable")
	})

	w := newTestWorker(store, executors)
	err := w.processJob(context.Background(), testMessage(jobID))

	// The delivery is requeued while the job still has budget
	require.Error(t, err)
	var retryable *domain.RetryableError
	assert.True(t, errors.As(err, &retryable))

	store.AssertCalled(t, "ReleaseJob", mock.Anything, jobID, mock.Anything)
	store.AssertNotCalled(t, "FailJob", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessJob_FailureAtBudgetFailsTerminally(t *testing.T) {
	store := new(mocks.WorkerStoreMock)
	jobID := uuid.New().String()

	store.On("GetJobByID", mock.Anything, jobID).Return(&domain.Job{
		JobID:   jobID,
		JobType: "sentence-embedding",
		Status:  domain.JobStatusPending,
	}, nil)
	store.On("ClaimJob", mock.Anything, jobID).Return(&domain.Job{
		JobID:        jobID,
		JobType:      "sentence-embedding",
		Status:       domain.JobStatusInProgress,
		AttemptCount: 3,
		MaxAttempts:  3,
	}, nil)
	store.On("FailJob", mock.Anything, jobID, mock.MatchedBy(func(reason string) bool {
		return strings.Contains(reason, "retry budget exhausted") &&
			strings.Contains(reason, "model endpoint unavailable")
	})).Return(nil)

	executors := registryWith("sentence-embedding", func(ctx context.Context, job *domain.Job) ([]byte, error) {
		return nil, errors.New("model endpoint unavailable")
	})

	w := newTestWorker(store, executors)
	err := w.processJob(context.Background(), testMessage(jobID))

	// Terminal failure is recorded in the store, so the delivery is settled
	require.NoError(t, err)
	store.AssertExpectations(t)
	store.AssertNotCalled(t, "ReleaseJob", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessJob_CompleteErrorIsRetryable(t *testing.T) {
	store := new(mocks.WorkerStoreMock)
	jobID := uuid.New().String()

	store.On("GetJobByID", mock.Anything, jobID).Return(&domain.Job{
		JobID:   jobID,
		JobType: "sentence-embedding",
		Status:  domain.JobStatusPending,
	}, nil)
	store.On("ClaimJob", mock.Anything, jobID).Return(&domain.Job{
		JobID:        jobID,
		JobType:      "sentence-embedding",
		Status:       domain.JobStatusInProgress,
		AttemptCount: 1,
		MaxAttempts:  3,
	}, nil)
	store.On("CompleteJob", mock.Anything, jobID, mock.Anything).Return(errors.New("connection reset"))

	executors := registryWith("sentence-embedding", func(ctx context.Context, job *domain.Job) ([]byte, error) {
		return []byte(`{}`), nil
	})

	w := newTestWorker(store, executors)
	err := w.processJob(context.Background(), testMessage(jobID))

	require.Error(t, err)
	var retryable *domain.RetryableError
	assert.True(t, errors.As(err, &retryable))
}

func TestPauseBeforeRequeue(t *testing.T) {
	w := newTestWorker(new(mocks.WorkerStoreMock), NewRegistry())

	t.Run("waits out the delay", func(t *testing.T) {
		w.requeueDelay = 20 * time.Millisecond

		start := time.Now()
		w.pauseBeforeRequeue(context.Background())
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})

	t.Run("returns early on context cancel", func(t *testing.T) {
		w.requeueDelay = time.Minute

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		start := time.Now()
		w.pauseBeforeRequeue(ctx)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("returns early on worker stop", func(t *testing.T) {
		w.requeueDelay = time.Minute
		w.stopChan = make(chan struct{})
		close(w.stopChan)

		start := time.Now()
		w.pauseBeforeRequeue(context.Background())
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestShouldRequeueJob(t *testing.T) {
	w := newTestWorker(new(mocks.WorkerStoreMock), NewRegistry())

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "retryable error",
			err:  domain.NewRetryableError(errors.New("connection refused")),
			want: true,
		},
		{
			name: "wrapped retryable error",
			err:  domain.NewRetryableError(domain.ErrJobNotFound),
			want: true,
		},
		{
			name: "claim conflict",
			err:  domain.ErrJobConflict,
			want: false,
		},
		{
			name: "unexpected error",
			err:  errors.New("boom"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.shouldRequeueJob(tt.err))
		})
	}
}
