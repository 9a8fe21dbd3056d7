package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/projectkeeper/internal/store"
	"github.com/wolfeidau/projectkeeper/internal/telemetry"
)

// SoftDelete moves a resource to the soft deleted state. Its live access codes are
// soft deleted and every code of the resource is marked deletable in the same write,
// then an EventUpdated audit event is emitted. Deleting an already deleted resource is a no-op.
func (s *Service) SoftDelete(ctx context.Context, resourceID uuid.UUID, actor string) error {
	res, err := s.Get(ctx, resourceID)
	if err != nil {
		return err
	}
	if res.IsDeleted() {
		return nil
	}

	at := s.now().UTC()
	if err := s.stores.Resources.SoftDelete(ctx, resourceID, at); err != nil {
		if errors.Is(err, store.ErrResourceNotFound) {
			return fmt.Errorf("%w: %s", ErrResourceNotFound, resourceID)
		}
		return fmt.Errorf("failed to soft delete resource: %w", err)
	}

	telemetry.GetMetrics().ResourcesSoftDeletedTotal.Add(ctx, 1)

	event := AuditEvent{
		Kind:       EventUpdated,
		Reason:     ReasonSoftDelete,
		TenantID:   res.TenantID,
		ResourceID: res.ResourceID,
		Actor:      actor,
		At:         at,
	}
	if err := s.audit.Record(ctx, event); err != nil {
		// the transition is committed, audit delivery is best effort
		log.Ctx(ctx).Warn().Err(err).
			Str("resource_id", resourceID.String()).
			Msg("Failed to record soft delete audit event")
	}

	return nil
}

// DestroyFully removes a resource regardless of state, in this order: payload
// artifacts, payload row, access codes, revisions (per retention policy), base row.
// An interruption therefore leaves a base row without payload, which SweepOrphans
// finishes. A resource already missing its payload is still destroyed and the
// returned error wraps ErrInconsistentState.
func (s *Service) DestroyFully(ctx context.Context, resourceID uuid.UUID, opts ...DestroyOption) error {
	o := destroyOptions{retention: s.cfg.RevisionRetention}
	for _, opt := range opts {
		opt(&o)
	}

	metrics := telemetry.GetMetrics()

	res, err := s.Get(ctx, resourceID)
	if err != nil {
		return err
	}

	logger := log.Ctx(ctx).With().
		Str("tenant_id", res.TenantID.String()).
		Str("resource_id", resourceID.String()).
		Logger()

	var inconsistent error

	if res.Payload == nil {
		inconsistent = fmt.Errorf("%w: resource %s has no payload", ErrInconsistentState, resourceID)
	} else {
		if keys := res.Payload.Artifacts(); len(keys) > 0 {
			if err := s.artifacts.DeleteArtifacts(ctx, res.TenantID, keys); err != nil {
				return fmt.Errorf("failed to delete payload artifacts: %w", err)
			}
		}

		if err := s.stores.Resources.DeletePayload(ctx, resourceID); err != nil {
			if !errors.Is(err, store.ErrPayloadNotFound) {
				return fmt.Errorf("failed to delete payload: %w", err)
			}
			inconsistent = fmt.Errorf("%w: resource %s has no payload", ErrInconsistentState, resourceID)
		}
	}

	if inconsistent != nil {
		metrics.InconsistentStatesTotal.Add(ctx, 1)
		logger.Error().Err(inconsistent).Msg("Destroying resource with missing payload")
	}

	codes, err := s.stores.AccessCodes.DeleteByResource(ctx, resourceID)
	if err != nil {
		return fmt.Errorf("failed to delete access codes: %w", err)
	}

	var revisions int64
	if o.retention == RetentionPurge {
		revisions, err = s.stores.Revisions.DeleteByResource(ctx, resourceID)
		if err != nil {
			return fmt.Errorf("failed to delete revisions: %w", err)
		}
	}

	if err := s.stores.Resources.Delete(ctx, resourceID); err != nil && !errors.Is(err, store.ErrResourceNotFound) {
		return fmt.Errorf("failed to delete resource: %w", err)
	}

	metrics.ResourcesDestroyedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("resource_type", string(res.Type)),
		attribute.String("retention", string(o.retention)),
	))

	logger.Info().
		Int64("access_codes", codes).
		Int64("revisions", revisions).
		Str("retention", string(o.retention)).
		Msg("Resource destroyed")

	return inconsistent
}

// SweepOrphans finishes destruction of resources whose payload is gone, returning
// how many were removed. limit 0 uses the configured batch size.
func (s *Service) SweepOrphans(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = s.cfg.SweepBatchSize
	}

	orphans, err := s.stores.Resources.ListOrphaned(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list orphaned resources: %w", err)
	}

	swept := 0
	for _, res := range orphans {
		err := s.DestroyFully(ctx, res.ResourceID)
		switch {
		case err == nil, errors.Is(err, ErrInconsistentState):
			swept++
		case errors.Is(err, ErrResourceNotFound):
			// removed concurrently
		default:
			return swept, err
		}
	}

	if swept > 0 {
		log.Ctx(ctx).Info().Int("swept", swept).Msg("Orphaned resources swept")
	}

	return swept, nil
}
