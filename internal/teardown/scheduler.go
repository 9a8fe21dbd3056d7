// Package teardown destroys a tenant and everything it owns, asynchronously.
package teardown

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/projectkeeper/internal/models"
	"github.com/wolfeidau/projectkeeper/internal/store"
	"github.com/wolfeidau/projectkeeper/internal/telemetry"
)

const (
	Queue   = "teardown"
	JobKind = "tenant.teardown"
)

var (
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrTeardownInProgress = errors.New("tenant teardown already in progress")
)

// DedupeKey returns the queue dedupe key for a tenant teardown.
func DedupeKey(tenantID uuid.UUID) string {
	return "teardown:" + tenantID.String()
}

// JobPayload is the JSON payload of a teardown job.
type JobPayload struct {
	TenantID uuid.UUID `json:"tenant_id"`
}

// Scheduler flags tenants for deletion and queues their teardown.
type Scheduler struct {
	tenants store.TenantStore
	jobs    store.JobStore
	now     func() time.Time
}

// NewScheduler creates a scheduler.
func NewScheduler(tenants store.TenantStore, jobs store.JobStore) *Scheduler {
	return &Scheduler{tenants: tenants, jobs: jobs, now: time.Now}
}

// Schedule flags the tenant deleted and enqueues its teardown. While a teardown job
// for the tenant is live the existing job is returned.
func (s *Scheduler) Schedule(ctx context.Context, tenantID uuid.UUID) (models.JobHandle, error) {
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrTenantNotFound) {
			return models.JobHandle{}, fmt.Errorf("%w: %s", ErrTenantNotFound, tenantID)
		}
		return models.JobHandle{}, fmt.Errorf("failed to get tenant: %w", err)
	}

	if !tenant.Deleted {
		tenant.Deleted = true
		tenant.UpdatedAt = s.now().UTC()
		if err := s.tenants.Update(ctx, tenant); err != nil {
			return models.JobHandle{}, fmt.Errorf("failed to flag tenant deleted: %w", err)
		}
	}

	payload, err := json.Marshal(JobPayload{TenantID: tenantID})
	if err != nil {
		return models.JobHandle{}, fmt.Errorf("failed to marshal job payload: %w", err)
	}

	job, err := s.jobs.Enqueue(ctx, &store.EnqueueRequest{
		Queue:     Queue,
		Kind:      JobKind,
		DedupeKey: DedupeKey(tenantID),
		Payload:   payload,
	})
	if err != nil {
		return models.JobHandle{}, fmt.Errorf("failed to enqueue teardown: %w", err)
	}

	telemetry.GetMetrics().TeardownsScheduledTotal.Add(ctx, 1)

	log.Ctx(ctx).Info().
		Str("tenant_id", tenantID.String()).
		Str("job_id", job.JobID.String()).
		Msg("Tenant teardown scheduled")

	return job.Handle(), nil
}
