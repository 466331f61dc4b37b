package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tvanh/jobpipe/internal/worker/domain"
)

// Executor runs the body of a job. The payload is opaque to the pipeline;
// implementations must be idempotent because a crashed attempt is re-executed
// from scratch on redelivery.
type Executor interface {
	Execute(ctx context.Context, job *domain.Job) ([]byte, error)
}

// ExecutorFunc adapts a function to the Executor interface
type ExecutorFunc func(ctx context.Context, job *domain.Job) ([]byte, error)

func (f ExecutorFunc) Execute(ctx context.Context, job *domain.Job) ([]byte, error) {
	return f(ctx, job)
}

// Registry maps job types to executors
type Registry struct {
	executors map[string]Executor
	fallback  Executor
}

// NewRegistry creates an empty executor registry
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[string]Executor),
	}
}

// Register binds an executor to a job type
func (r *Registry) Register(jobType string, ex Executor) {
	r.executors[jobType] = ex
}

// SetFallback sets the executor used for job types with no explicit binding
func (r *Registry) SetFallback(ex Executor) {
	r.fallback = ex
}

// Get returns the executor for a job type
func (r *Registry) Get(jobType string) (Executor, bool) {
	if ex, ok := r.executors[jobType]; ok {
		return ex, true
	}
	if r.fallback != nil {
		return r.fallback, true
	}
	return nil, false
}

// NewDefaultRegistry returns a registry with a simulated executor as the
// fallback so the pipeline is runnable end to end before real job bodies are
// plugged in.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.SetFallback(ExecutorFunc(simulateExecution))
	return r
}

// simulateExecution stands in for real job logic: it waits briefly and echoes
// the payload back as the result
func simulateExecution(ctx context.Context, job *domain.Job) ([]byte, error) {
	select {
	case <-time.After(2 * time.Second):
	case <-ctx.Done():
		return nil, fmt.Errorf("job execution canceled: %w", ctx.Err())
	}

	result := map[string]interface{}{
		"job_id":   job.JobID,
		"job_type": job.JobType,
		"echo":     json.RawMessage(job.Payload),
	}

	return json.Marshal(result)
}
