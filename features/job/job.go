// Package job tracks index rebuild requests: it records them in Postgres,
// hands them to the index worker over NSQ and lets admins retry failures.
package job

import (
	"errors"
	"time"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

var (
	ErrNotFound     = errors.New("job not found")
	ErrNotRetryable = errors.New("only failed jobs can be retried")
)

type Job struct {
	ID            string    `json:"id"`
	Root          string    `json:"root"`
	Status        Status    `json:"status"`
	Chunks        int       `json:"chunks"`
	Error         string    `json:"error"`
	Retries       int       `json:"retries"`
	CorrelationID string    `json:"correlation_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Task is the NSQ message body for a rebuild.
type Task struct {
	JobID         string `json:"job_id"`
	Root          string `json:"root"`
	CorrelationID string `json:"correlation_id"`
}
