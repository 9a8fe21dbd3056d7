package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfeidau/projectkeeper/internal/models"
)

// RevisionStore implements store.RevisionStore using PostgreSQL.
type RevisionStore struct {
	pool *pgxpool.Pool
}

// NewRevisionStore creates a new PostgreSQL-backed revision store.
func NewRevisionStore(pool *pgxpool.Pool) *RevisionStore {
	return &RevisionStore{pool: pool}
}

// insertRevision appends a snapshot inside the caller's transaction.
func insertRevision(ctx context.Context, tx pgx.Tx, snap *models.RevisionSnapshot) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO revisions (
			revision_id, resource_id, tenant_id, captured_at, changed_by,
			content, checksum, downloads_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		snap.RevisionID,
		snap.ResourceID,
		snap.TenantID,
		snap.CapturedAt,
		snap.ChangedBy,
		snap.Content,
		int64(snap.Checksum), //nolint:gosec // stored bit for bit in a signed column
		snap.DownloadsCount,
	)
	return mapPostgresError(err)
}

// List returns snapshots of a resource in capture order.
func (s *RevisionStore) List(ctx context.Context, resourceID uuid.UUID) ([]*models.RevisionSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT revision_id, resource_id, tenant_id, captured_at, changed_by,
		       content, checksum, downloads_count
		FROM revisions
		WHERE resource_id = $1
		ORDER BY revision_id
	`, resourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list revisions: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var snapshots []*models.RevisionSnapshot
	for rows.Next() {
		var (
			snap     models.RevisionSnapshot
			checksum int64
		)
		err := rows.Scan(
			&snap.RevisionID,
			&snap.ResourceID,
			&snap.TenantID,
			&snap.CapturedAt,
			&snap.ChangedBy,
			&snap.Content,
			&checksum,
			&snap.DownloadsCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan revision: %w", err)
		}
		snap.Checksum = uint64(checksum) //nolint:gosec // stored bit for bit in a signed column
		snapshots = append(snapshots, &snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list revisions: %w", mapPostgresError(err))
	}

	return snapshots, nil
}

// DeleteByResource purges snapshots of a resource.
func (s *RevisionStore) DeleteByResource(ctx context.Context, resourceID uuid.UUID) (int64, error) {
	result, err := s.pool.Exec(ctx, `DELETE FROM revisions WHERE resource_id = $1`, resourceID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete revisions: %w", mapPostgresError(err))
	}
	return result.RowsAffected(), nil
}

// DeleteByTenant purges every snapshot of a tenant, including retained ones whose resource is gone.
func (s *RevisionStore) DeleteByTenant(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	result, err := s.pool.Exec(ctx, `DELETE FROM revisions WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete revisions: %w", mapPostgresError(err))
	}
	return result.RowsAffected(), nil
}

// UsageLogStore implements store.UsageLogStore using PostgreSQL.
type UsageLogStore struct {
	pool *pgxpool.Pool
}

// NewUsageLogStore creates a new PostgreSQL-backed usage log store.
func NewUsageLogStore(pool *pgxpool.Pool) *UsageLogStore {
	return &UsageLogStore{pool: pool}
}

// CountByTenant returns the number of usage rows for a tenant.
func (s *UsageLogStore) CountByTenant(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM usage_logs WHERE tenant_id = $1`, tenantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count usage logs: %w", mapPostgresError(err))
	}
	return n, nil
}

// DeleteByTenant removes every usage row for a tenant in one statement.
func (s *UsageLogStore) DeleteByTenant(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	result, err := s.pool.Exec(ctx, `DELETE FROM usage_logs WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete usage logs: %w", mapPostgresError(err))
	}
	return result.RowsAffected(), nil
}
