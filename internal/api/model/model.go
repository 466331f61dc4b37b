package model

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx/types"
)

type Job struct {
	JobID        string         `db:"job_id"`
	JobType      string         `db:"job_type"`
	Payload      types.JSONText `db:"payload"`
	Status       string         `db:"status"`
	Result       types.JSONText `db:"result"`
	ErrorMessage sql.NullString `db:"error_message"`
	AttemptCount int            `db:"attempt_count"`
	MaxAttempts  int            `db:"max_attempts"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}
