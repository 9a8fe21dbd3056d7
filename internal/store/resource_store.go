package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/projectkeeper/internal/models"
)

// Sentinel errors for resource store operations
var (
	ErrResourceNotFound      = errors.New("resource not found")
	ErrResourceAlreadyExists = errors.New("resource already exists")
	ErrPayloadNotFound       = errors.New("payload not found")
	ErrQuotaExceeded         = errors.New("resource quota exceeded")
)

// ListResourcesOptions filters ListByTenant.
type ListResourcesOptions struct {
	IncludeDeleted bool
	After          uuid.UUID // keyset cursor, uuid.Nil for the first page
	Limit          int       // 0 = default (100)
}

// ResourceStore persists resources together with their payloads.
// Every method that touches more than one row runs in a single transaction.
type ResourceStore interface {
	// Create inserts the resource and its payload. The live resource count of the tenant
	// is checked against quota under a tenant lock; ErrQuotaExceeded is returned when reached.
	Create(ctx context.Context, res *models.Resource, quota int) error

	// Get returns a resource including soft-deleted ones. Payload is nil if the payload row is missing.
	Get(ctx context.Context, resourceID uuid.UUID) (*models.Resource, error)

	// Update writes the mutable resource fields and payload, and appends snapshot when not nil.
	Update(ctx context.Context, res *models.Resource, snapshot *models.RevisionSnapshot) error

	// Touch sets last_opened_at and appends the usage log row. Never creates revisions.
	Touch(ctx context.Context, resourceID uuid.UUID, openedAt time.Time, usage *models.UsageLog) error

	// SoftDelete sets deleted_at, soft-deletes live access codes and marks every
	// access code of the resource deletable.
	SoftDelete(ctx context.Context, resourceID uuid.UUID, at time.Time) error

	// Restore clears deleted_at, checking the live count against quota like Create.
	Restore(ctx context.Context, resourceID uuid.UUID, quota int, at time.Time) error

	// CountActive returns the number of live resources of a tenant.
	CountActive(ctx context.Context, tenantID uuid.UUID) (int, error)

	// ListByTenant pages through resources ordered by ID.
	ListByTenant(ctx context.Context, tenantID uuid.UUID, opts ListResourcesOptions) ([]*models.Resource, error)

	// DeletePayload removes the payload row. Returns ErrPayloadNotFound if missing.
	DeletePayload(ctx context.Context, resourceID uuid.UUID) error

	// Delete removes the base resource row. Returns ErrResourceNotFound if missing.
	Delete(ctx context.Context, resourceID uuid.UUID) error

	// ListOrphaned returns resources whose payload row is missing.
	ListOrphaned(ctx context.Context, limit int) ([]*models.Resource, error)
}
