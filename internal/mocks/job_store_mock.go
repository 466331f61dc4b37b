package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/tvanh/jobpipe/internal/api/model"
	"github.com/tvanh/jobpipe/internal/api/storage"
)

// JobStoreMock mocks the Gateway's view of the store
type JobStoreMock struct {
	mock.Mock
}

func (m *JobStoreMock) CreateJob(ctx context.Context, job *model.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *JobStoreMock) GetJobByID(ctx context.Context, jobID string) (*model.Job, error) {
	args := m.Called(ctx, jobID)

	job, _ := args.Get(0).(*model.Job)
	return job, args.Error(1)
}

func (m *JobStoreMock) ListJobs(ctx context.Context, filter storage.JobFilter) ([]model.Job, error) {
	args := m.Called(ctx, filter)

	jobs, _ := args.Get(0).([]model.Job)
	return jobs, args.Error(1)
}

func (m *JobStoreMock) MarkJobFailed(ctx context.Context, jobID, reason string) error {
	args := m.Called(ctx, jobID, reason)
	return args.Error(0)
}

// PublisherMock mocks the broker publisher
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) PublishWithRetry(ctx context.Context, body []byte, contentType string) error {
	args := m.Called(ctx, body, contentType)
	return args.Error(0)
}
