package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/wolfeidau/projectkeeper/internal/models"
)

// DeletionLedgerStore keeps the submissions destroyed by an unfinished tenant teardown.
// Rows are not tied to the tenant row and outlive it until the summary has been sent.
type DeletionLedgerStore interface {
	// Record upserts the entry for entry.ResourceID. Recording a resource again replaces
	// its name and count but keeps the original RecordedAt.
	Record(ctx context.Context, entry *models.DeletionLedgerEntry) error

	// List returns the entries of a tenant ordered by RecordedAt, then resource ID.
	List(ctx context.Context, tenantID uuid.UUID) ([]*models.DeletionLedgerEntry, error)

	// DeleteByTenant removes every entry of a tenant.
	DeleteByTenant(ctx context.Context, tenantID uuid.UUID) (int64, error)
}
