package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/tvanh/jobpipe/internal/worker/domain"
)

// WorkerStoreMock mocks the worker's view of the store
type WorkerStoreMock struct {
	mock.Mock
}

func (m *WorkerStoreMock) GetJobByID(ctx context.Context, jobID string) (*domain.Job, error) {
	args := m.Called(ctx, jobID)

	job, _ := args.Get(0).(*domain.Job)
	return job, args.Error(1)
}

func (m *WorkerStoreMock) ClaimJob(ctx context.Context, jobID string) (*domain.Job, error) {
	args := m.Called(ctx, jobID)

	job, _ := args.Get(0).(*domain.Job)
	return job, args.Error(1)
}

func (m *WorkerStoreMock) CompleteJob(ctx context.Context, jobID string, result []byte) error {
	args := m.Called(ctx, jobID, result)
	return args.Error(0)
}

func (m *WorkerStoreMock) FailJob(ctx context.Context, jobID, reason string) error {
	args := m.Called(ctx, jobID, reason)
	return args.Error(0)
}

func (m *WorkerStoreMock) ReleaseJob(ctx context.Context, jobID, reason string) error {
	args := m.Called(ctx, jobID, reason)
	return args.Error(0)
}

func (m *WorkerStoreMock) ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Job, error) {
	args := m.Called(ctx, olderThan, limit)

	jobs, _ := args.Get(0).([]domain.Job)
	return jobs, args.Error(1)
}
