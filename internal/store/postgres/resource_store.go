package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/projectkeeper/internal/models"
	"github.com/wolfeidau/projectkeeper/internal/store"
)

const resourceColumns = `r.resource_id, r.tenant_id, r.name, r.resource_type, r.creator_ref, r.last_editor_ref,
	r.font_id, r.no_data_sync, r.last_opened_at, r.deleted_at, r.created_at, r.updated_at, p.data`

// ResourceStore implements store.ResourceStore using PostgreSQL.
// The base row lives in resources and the payload in resource_payloads.
type ResourceStore struct {
	pool *pgxpool.Pool
}

// NewResourceStore creates a new PostgreSQL-backed resource store.
func NewResourceStore(pool *pgxpool.Pool) *ResourceStore {
	return &ResourceStore{pool: pool}
}

// Create inserts the base row and payload after checking quota under a tenant row lock.
func (s *ResourceStore) Create(ctx context.Context, res *models.Resource, quota int) error {
	if res.Payload == nil {
		return fmt.Errorf("%w: resource %s has no payload", store.ErrPayloadNotFound, res.ResourceID)
	}

	data, err := models.EncodePayload(res.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	err = withTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := checkQuota(ctx, tx, res.TenantID, quota); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO resources (
				resource_id, tenant_id, name, resource_type, creator_ref, last_editor_ref,
				font_id, no_data_sync, last_opened_at, deleted_at, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`,
			res.ResourceID,
			res.TenantID,
			res.Name,
			string(res.Type),
			res.CreatorRef,
			res.LastEditorRef,
			res.FontID,
			res.NoDataSync,
			res.LastOpenedAt,
			res.DeletedAt,
			res.CreatedAt,
			res.UpdatedAt,
		)
		if err != nil {
			return mapPostgresError(err)
		}

		_, err = tx.Exec(ctx, `INSERT INTO resource_payloads (resource_id, data) VALUES ($1, $2)`, res.ResourceID, data)
		return mapPostgresError(err)
	})
	if err != nil {
		return err
	}

	log.Debug().
		Str("resource_id", res.ResourceID.String()).
		Str("tenant_id", res.TenantID.String()).
		Str("type", string(res.Type)).
		Msg("Created resource")

	return nil
}

// checkQuota locks the tenant row and compares its live resource count with quota.
func checkQuota(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID, quota int) error {
	var locked uuid.UUID
	err := tx.QueryRow(ctx, `SELECT tenant_id FROM tenants WHERE tenant_id = $1 FOR UPDATE`, tenantID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrTenantNotFound
	}
	if err != nil {
		return mapPostgresError(err)
	}

	var active int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM resources WHERE tenant_id = $1 AND deleted_at IS NULL`,
		tenantID,
	).Scan(&active)
	if err != nil {
		return mapPostgresError(err)
	}

	if active >= quota {
		return store.ErrQuotaExceeded
	}
	return nil
}

// Get returns a resource including soft-deleted ones, with a nil Payload when the payload row is missing.
func (s *ResourceStore) Get(ctx context.Context, resourceID uuid.UUID) (*models.Resource, error) {
	query := `SELECT ` + resourceColumns + `
		FROM resources r
		LEFT JOIN resource_payloads p ON p.resource_id = r.resource_id
		WHERE r.resource_id = $1`

	res, err := scanResource(s.pool.QueryRow(ctx, query, resourceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrResourceNotFound
		}
		return nil, fmt.Errorf("failed to get resource: %w", mapPostgresError(err))
	}

	return res, nil
}

// Update writes the mutable fields and payload, appending snapshot in the same transaction.
func (s *ResourceStore) Update(ctx context.Context, res *models.Resource, snapshot *models.RevisionSnapshot) error {
	var data []byte
	if res.Payload != nil {
		var err error
		if data, err = models.EncodePayload(res.Payload); err != nil {
			return fmt.Errorf("failed to encode payload: %w", err)
		}
	}

	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE resources SET
				name = $2,
				last_editor_ref = $3,
				font_id = $4,
				no_data_sync = $5,
				updated_at = $6
			WHERE resource_id = $1
		`,
			res.ResourceID,
			res.Name,
			res.LastEditorRef,
			res.FontID,
			res.NoDataSync,
			res.UpdatedAt,
		)
		if err != nil {
			return mapPostgresError(err)
		}
		if result.RowsAffected() == 0 {
			return store.ErrResourceNotFound
		}

		found := true
		if data != nil {
			result, err = tx.Exec(ctx, `UPDATE resource_payloads SET data = $2 WHERE resource_id = $1`, res.ResourceID, data)
			found = err == nil && result.RowsAffected() > 0
		} else {
			err = tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM resource_payloads WHERE resource_id = $1)`,
				res.ResourceID,
			).Scan(&found)
		}
		if err != nil {
			return mapPostgresError(err)
		}
		if !found {
			return store.ErrPayloadNotFound
		}

		if snapshot != nil {
			return insertRevision(ctx, tx, snapshot)
		}
		return nil
	})
}

// Touch sets last_opened_at and records the usage row.
func (s *ResourceStore) Touch(ctx context.Context, resourceID uuid.UUID, openedAt time.Time, usage *models.UsageLog) error {
	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `UPDATE resources SET last_opened_at = $2 WHERE resource_id = $1`, resourceID, openedAt)
		if err != nil {
			return mapPostgresError(err)
		}
		if result.RowsAffected() == 0 {
			return store.ErrResourceNotFound
		}

		if usage == nil {
			return nil
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO usage_logs (usage_log_id, tenant_id, resource_id, kind, occurred_at)
			VALUES ($1, $2, $3, $4, $5)
		`, usage.UsageLogID, usage.TenantID, usage.ResourceID, usage.Kind, usage.OccurredAt)
		return mapPostgresError(err)
	})
}

// SoftDelete sets deleted_at and cascades to the resource's own access codes.
func (s *ResourceStore) SoftDelete(ctx context.Context, resourceID uuid.UUID, at time.Time) error {
	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE resources SET
				deleted_at = COALESCE(deleted_at, $2),
				updated_at = CASE WHEN deleted_at IS NULL THEN $2 ELSE updated_at END
			WHERE resource_id = $1
		`, resourceID, at)
		if err != nil {
			return mapPostgresError(err)
		}
		if result.RowsAffected() == 0 {
			return store.ErrResourceNotFound
		}

		_, err = tx.Exec(ctx, `
			UPDATE access_codes SET
				deleted_at = COALESCE(deleted_at, $2),
				deletable = TRUE
			WHERE resource_id = $1
		`, resourceID, at)
		return mapPostgresError(err)
	})
}

// Restore clears deleted_at when the tenant still has quota. Restoring a live resource is a no-op.
func (s *ResourceStore) Restore(ctx context.Context, resourceID uuid.UUID, quota int, at time.Time) error {
	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		var (
			tenantID uuid.UUID
			deleted  bool
		)
		err := tx.QueryRow(ctx,
			`SELECT tenant_id, deleted_at IS NOT NULL FROM resources WHERE resource_id = $1`,
			resourceID,
		).Scan(&tenantID, &deleted)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrResourceNotFound
		}
		if err != nil {
			return mapPostgresError(err)
		}
		if !deleted {
			return nil
		}

		if err := checkQuota(ctx, tx, tenantID, quota); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE resources SET deleted_at = NULL, updated_at = $2
			WHERE resource_id = $1 AND deleted_at IS NOT NULL
		`, resourceID, at)
		return mapPostgresError(err)
	})
}

// CountActive returns the number of live resources of a tenant.
func (s *ResourceStore) CountActive(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM resources WHERE tenant_id = $1 AND deleted_at IS NULL`,
		tenantID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count resources: %w", mapPostgresError(err))
	}
	return n, nil
}

// ListByTenant pages through a tenant's resources using the resource ID as keyset cursor.
func (s *ResourceStore) ListByTenant(ctx context.Context, tenantID uuid.UUID, opts store.ListResourcesOptions) ([]*models.Resource, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `SELECT ` + resourceColumns + `
		FROM resources r
		LEFT JOIN resource_payloads p ON p.resource_id = r.resource_id
		WHERE r.tenant_id = $1
		  AND ($2 OR r.deleted_at IS NULL)
		  AND r.resource_id > $3
		ORDER BY r.resource_id
		LIMIT $4`

	return s.queryResources(ctx, query, tenantID, opts.IncludeDeleted, opts.After, limit)
}

// DeletePayload removes the payload row.
func (s *ResourceStore) DeletePayload(ctx context.Context, resourceID uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM resource_payloads WHERE resource_id = $1`, resourceID)
	if err != nil {
		return fmt.Errorf("failed to delete payload: %w", mapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return store.ErrPayloadNotFound
	}
	return nil
}

// Delete removes the base resource row.
func (s *ResourceStore) Delete(ctx context.Context, resourceID uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM resources WHERE resource_id = $1`, resourceID)
	if err != nil {
		return fmt.Errorf("failed to delete resource: %w", mapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return store.ErrResourceNotFound
	}

	log.Debug().Str("resource_id", resourceID.String()).Msg("Deleted resource row")

	return nil
}

// ListOrphaned returns resources whose payload row is missing.
func (s *ResourceStore) ListOrphaned(ctx context.Context, limit int) ([]*models.Resource, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `SELECT ` + resourceColumns + `
		FROM resources r
		LEFT JOIN resource_payloads p ON p.resource_id = r.resource_id
		WHERE p.resource_id IS NULL
		ORDER BY r.resource_id
		LIMIT $1`

	return s.queryResources(ctx, query, limit)
}

func (s *ResourceStore) queryResources(ctx context.Context, query string, args ...any) ([]*models.Resource, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var resources []*models.Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		resources = append(resources, res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", mapPostgresError(err))
	}

	return resources, nil
}

func scanResource(row pgx.Row) (*models.Resource, error) {
	var (
		res     models.Resource
		resType string
		data    []byte
	)

	err := row.Scan(
		&res.ResourceID,
		&res.TenantID,
		&res.Name,
		&resType,
		&res.CreatorRef,
		&res.LastEditorRef,
		&res.FontID,
		&res.NoDataSync,
		&res.LastOpenedAt,
		&res.DeletedAt,
		&res.CreatedAt,
		&res.UpdatedAt,
		&data,
	)
	if err != nil {
		return nil, err
	}

	res.Type = models.ResourceType(resType)
	if data != nil {
		payload, err := models.DecodePayload(res.Type, data)
		if err != nil {
			return nil, err
		}
		res.Payload = payload
	}

	return &res, nil
}
