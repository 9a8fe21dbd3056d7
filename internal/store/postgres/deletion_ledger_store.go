package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfeidau/projectkeeper/internal/models"
)

// DeletionLedgerStore implements store.DeletionLedgerStore using PostgreSQL.
type DeletionLedgerStore struct {
	pool *pgxpool.Pool
}

// NewDeletionLedgerStore creates a new PostgreSQL-backed deletion ledger store.
func NewDeletionLedgerStore(pool *pgxpool.Pool) *DeletionLedgerStore {
	return &DeletionLedgerStore{pool: pool}
}

// Record upserts the entry of a resource, keeping the first recorded_at.
func (s *DeletionLedgerStore) Record(ctx context.Context, entry *models.DeletionLedgerEntry) error {
	recordedAt := entry.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO deletion_ledger (
			tenant_id, resource_id, tenant_name, resource_name, submission_count, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, resource_id) DO UPDATE
			SET tenant_name = EXCLUDED.tenant_name,
				resource_name = EXCLUDED.resource_name,
				submission_count = EXCLUDED.submission_count
	`,
		entry.TenantID,
		entry.ResourceID,
		entry.TenantName,
		entry.ResourceName,
		entry.SubmissionCount,
		recordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record deletion: %w", mapPostgresError(err))
	}

	return nil
}

// List returns the entries of a tenant in recording order.
func (s *DeletionLedgerStore) List(ctx context.Context, tenantID uuid.UUID) ([]*models.DeletionLedgerEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tenant_id, resource_id, tenant_name, resource_name, submission_count, recorded_at
		FROM deletion_ledger
		WHERE tenant_id = $1
		ORDER BY recorded_at, resource_id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deletion ledger: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var entries []*models.DeletionLedgerEntry
	for rows.Next() {
		var e models.DeletionLedgerEntry
		if err := rows.Scan(&e.TenantID, &e.ResourceID, &e.TenantName, &e.ResourceName, &e.SubmissionCount, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan deletion ledger entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deletion ledger: %w", mapPostgresError(err))
	}

	return entries, nil
}

// DeleteByTenant removes every entry of a tenant.
func (s *DeletionLedgerStore) DeleteByTenant(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	result, err := s.pool.Exec(ctx, `DELETE FROM deletion_ledger WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete deletion ledger: %w", mapPostgresError(err))
	}
	return result.RowsAffected(), nil
}
