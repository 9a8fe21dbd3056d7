package models

import (
	"time"

	"github.com/google/uuid"
)

// JobState is the state of a queued job.
type JobState string

const (
	JobStateScheduled JobState = "scheduled"
	JobStateRunning   JobState = "running"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

// Live returns true while the job is waiting or running.
func (s JobState) Live() bool {
	return s == JobStateScheduled || s == JobStateRunning
}

// Job is a unit of asynchronous work.
type Job struct {
	JobID     uuid.UUID // UUIDv7
	Queue     string
	Kind      string
	DedupeKey string // At most one live job per key
	Payload   []byte // JSON

	State     JobState
	Attempts  int
	RunAt     time.Time
	LastError string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// JobHandle is returned to callers that schedule work.
type JobHandle struct {
	JobID     uuid.UUID
	State     JobState
	CreatedAt time.Time
}

// Handle returns the caller facing view of the job.
func (j *Job) Handle() JobHandle {
	return JobHandle{JobID: j.JobID, State: j.State, CreatedAt: j.CreatedAt}
}
