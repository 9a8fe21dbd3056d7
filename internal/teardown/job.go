package teardown

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/wolfeidau/projectkeeper/internal/models"
)

// Handle runs the teardown described by a queued job. Malformed payloads fail the job
// permanently; any other error lets the worker retry it.
func (o *Orchestrator) Handle(ctx context.Context, job *models.Job) error {
	var payload JobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to decode teardown payload: %w", err))
	}
	if payload.TenantID == uuid.Nil {
		return backoff.Permanent(errors.New("teardown payload has no tenant id"))
	}

	_, err := o.Teardown(ctx, payload.TenantID)
	return err
}
