package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/wolfeidau/projectkeeper/internal/models"
)

// RevisionStore reads and purges revision snapshots. Snapshots are written by
// ResourceStore.Update in the same transaction as the change they capture.
type RevisionStore interface {
	// List returns snapshots of a resource ordered by capture time.
	List(ctx context.Context, resourceID uuid.UUID) ([]*models.RevisionSnapshot, error)

	// DeleteByResource purges snapshots of a resource.
	DeleteByResource(ctx context.Context, resourceID uuid.UUID) (int64, error)

	// DeleteByTenant purges snapshots of every resource of a tenant.
	DeleteByTenant(ctx context.Context, tenantID uuid.UUID) (int64, error)
}

// UsageLogStore manages tenant-scoped usage rows.
type UsageLogStore interface {
	// CountByTenant returns the number of rows for a tenant.
	CountByTenant(ctx context.Context, tenantID uuid.UUID) (int64, error)

	// DeleteByTenant removes every row for a tenant.
	DeleteByTenant(ctx context.Context, tenantID uuid.UUID) (int64, error)
}
