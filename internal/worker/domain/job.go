package domain

import "time"

// Job is a job row as the worker sees it
type Job struct {
	JobID        string
	JobType      string
	Payload      []byte // JSON document, opaque to the pipeline
	Status       string
	AttemptCount int
	MaxAttempts  int
}

// JobMessage is a decoded work message plus its broker delivery state
type JobMessage struct {
	JobID       string    `json:"job_id"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
	DeliveryTag uint64    `json:"-"`
	Redelivered bool      `json:"-"`
}
