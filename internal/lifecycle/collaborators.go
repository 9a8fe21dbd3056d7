package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/projectkeeper/internal/models"
)

// Oracle answers capability and quota questions for a tenant at decision time.
type Oracle interface {
	IsTypeEnabled(ctx context.Context, tenantID uuid.UUID, resourceType models.ResourceType) (bool, error)
	SubscriptionActive(ctx context.Context, tenantID uuid.UUID) (bool, error)
	QuotaRemaining(ctx context.Context, tenantID uuid.UUID) (int, error)
}

// ArtifactStore removes external state owned by a payload.
type ArtifactStore interface {
	DeleteArtifacts(ctx context.Context, tenantID uuid.UUID, keys []string) error
}

type EventKind string

const (
	EventUpdated EventKind = "updated"

	ReasonSoftDelete = "soft_delete"
)

// AuditEvent is emitted for state changes that audit and versioning consumers observe.
type AuditEvent struct {
	Kind       EventKind
	Reason     string
	TenantID   uuid.UUID
	ResourceID uuid.UUID
	Actor      string
	At         time.Time
}

// AuditSink receives audit events after the transition committed.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent) error
}

// LogAuditSink writes audit events to the context logger.
type LogAuditSink struct{}

func (LogAuditSink) Record(ctx context.Context, event AuditEvent) error {
	log.Ctx(ctx).Info().
		Str("event", string(event.Kind)).
		Str("reason", event.Reason).
		Str("tenant_id", event.TenantID.String()).
		Str("resource_id", event.ResourceID.String()).
		Str("actor", event.Actor).
		Time("at", event.At).
		Msg("Resource audit event")
	return nil
}

type noopArtifacts struct{}

func (noopArtifacts) DeleteArtifacts(context.Context, uuid.UUID, []string) error { return nil }
