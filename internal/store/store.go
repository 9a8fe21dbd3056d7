package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/projectkeeper/internal/models"
)

// Sentinel errors for job queue operations
var (
	ErrInvalidTaskToken = errors.New("invalid task token")
	ErrQueueMismatch    = errors.New("queue mismatch")
	ErrJobNotFound      = errors.New("job not found")
)

// EnqueueRequest describes a job to schedule.
type EnqueueRequest struct {
	Queue string
	Kind  string

	// DedupeKey, when set, makes Enqueue return the existing live job with the same key
	// instead of scheduling a second one.
	DedupeKey string

	Payload []byte
	RunAt   time.Time // zero means now
}

// JobStore defines the interface for the asynchronous job queue.
type JobStore interface {
	// Enqueue schedules a job. Idempotent per DedupeKey while a job with that key is live.
	Enqueue(ctx context.Context, req *EnqueueRequest) (*models.Job, error)

	// Dequeue claims up to maxJobs due jobs and hides them for timeoutSeconds.
	Dequeue(ctx context.Context, queue string, maxJobs int, timeoutSeconds int) ([]*JobWithToken, error)

	// UpdateVisibility extends the visibility timeout of a claimed job.
	UpdateVisibility(ctx context.Context, queue string, taskToken string, timeoutSeconds int) error

	// Complete marks a claimed job completed (success) or failed.
	Complete(ctx context.Context, taskToken string, success bool, lastError string) error

	// Release returns a claimed job to the queue, runnable again after delay.
	Release(ctx context.Context, taskToken string, delay time.Duration, lastError string) error

	// Get returns a job by ID.
	Get(ctx context.Context, jobID uuid.UUID) (*models.Job, error)

	// Lifecycle
	Start() error
	Stop() error
}

// JobWithToken represents a job with its associated task token
type JobWithToken struct {
	Job       *models.Job
	TaskToken string
}

// ClaimStore holds the single in-flight marker per tenant used to serialise teardowns.
type ClaimStore interface {
	// Claim takes the marker for tenantID. Returns false if another owner holds an unexpired claim.
	// Claiming again as the current owner renews the marker for another ttl.
	Claim(ctx context.Context, tenantID uuid.UUID, owner string, ttl time.Duration) (bool, error)

	// Release drops the marker if it is still held by owner.
	Release(ctx context.Context, tenantID uuid.UUID, owner string) error
}

// Stores groups the relational stores used by the lifecycle engine.
type Stores struct {
	Tenants     TenantStore
	Users       UserStore
	Resources   ResourceStore
	AccessCodes AccessCodeStore
	Revisions   RevisionStore
	UsageLogs   UsageLogStore

	DeletionLedger DeletionLedgerStore
}
