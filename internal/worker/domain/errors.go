package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrJobConflict is returned when a claim finds the job in an unexpected
	// status, meaning another worker currently owns this delivery
	ErrJobConflict = errors.New("job claim conflict")

	// ErrUnknownJobType is returned when no executor is registered for a job's type
	ErrUnknownJobType = errors.New("unknown job type")

	// ErrRetryBudgetExhausted is returned when a job has used up its attempts
	ErrRetryBudgetExhausted = errors.New("retry budget exhausted")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
