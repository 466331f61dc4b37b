package handler

import (
	"context"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/tvanh/jobpipe/internal/api/model"
	"github.com/tvanh/jobpipe/internal/api/storage"
)

var validate = validator.New()

// JobStore is the slice of the storage layer the handlers need
type JobStore interface {
	CreateJob(ctx context.Context, job *model.Job) error
	GetJobByID(ctx context.Context, jobID string) (*model.Job, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]model.Job, error)
	MarkJobFailed(ctx context.Context, jobID, reason string) error
}

// Publisher publishes work messages to the broker
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// HealthChecker reports whether a backing service is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// BrokerChecker reports whether the broker connection is alive
type BrokerChecker interface {
	IsConnected() bool
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	Storage     JobStore
	Publisher   Publisher
	Health      HealthChecker
	Broker      BrokerChecker
	MaxAttempts int
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger      *slog.Logger
	storage     JobStore
	publisher   Publisher
	maxAttempts int
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:      deps.Logger,
		storage:     deps.Storage,
		publisher:   deps.Publisher,
		maxAttempts: deps.MaxAttempts,
	}
}

// FormatValidationErrors flattens validator errors into a field -> reason map
func FormatValidationErrors(err error) map[string]any {
	fields := map[string]any{}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fields
	}
	for _, e := range verrs {
		fields[e.Field()] = "failed " + e.Tag()
	}
	return fields
}
