package domain

import (
	"errors"
)

const (
	JobStatusPending    = "pending"
	JobStatusInProgress = "in_progress"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"
)

var (
	ErrJobNotFound = errors.New("job not found")
)

// IsTerminalStatus reports whether a job can no longer change state
func IsTerminalStatus(status string) bool {
	return status == JobStatusSucceeded || status == JobStatusFailed
}
