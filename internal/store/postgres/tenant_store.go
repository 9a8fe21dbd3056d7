package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/projectkeeper/internal/models"
	"github.com/wolfeidau/projectkeeper/internal/store"
)

const tenantColumns = `tenant_id, name, plan, activated, deleted, resource_quota, storage_root,
	created_via, subscription_expires_at, font_id, no_data_sync, created_at, updated_at`

// TenantStore implements store.TenantStore using PostgreSQL.
type TenantStore struct {
	pool *pgxpool.Pool
}

// NewTenantStore creates a new PostgreSQL-backed tenant store.
func NewTenantStore(pool *pgxpool.Pool) *TenantStore {
	return &TenantStore{pool: pool}
}

// Create creates a new tenant in the database.
func (s *TenantStore) Create(ctx context.Context, tenant *models.Tenant) error {
	tenant.ApplyCreationDefaults(time.Now())

	query := `INSERT INTO tenants (` + tenantColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := s.pool.Exec(ctx, query,
		tenant.TenantID,
		tenant.Name,
		tenant.Plan,
		tenant.Activated,
		tenant.Deleted,
		tenant.ResourceQuota,
		tenant.StorageRoot,
		tenant.CreatedVia,
		tenant.SubscriptionExpiresAt,
		tenant.FontID,
		tenant.NoDataSync,
		tenant.CreatedAt,
		tenant.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("tenant_id", tenant.TenantID.String()).
		Str("name", tenant.Name).
		Msg("Created tenant")

	return nil
}

// Get retrieves a tenant by ID.
func (s *TenantStore) Get(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE tenant_id = $1`

	tenant, err := scanTenant(s.pool.QueryRow(ctx, query, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", mapPostgresError(err))
	}

	return tenant, nil
}

// Update updates an existing tenant.
func (s *TenantStore) Update(ctx context.Context, tenant *models.Tenant) error {
	tenant.UpdatedAt = time.Now()

	query := `
		UPDATE tenants SET
			name = $2,
			plan = $3,
			activated = $4,
			deleted = $5,
			resource_quota = $6,
			storage_root = $7,
			created_via = $8,
			subscription_expires_at = $9,
			font_id = $10,
			no_data_sync = $11,
			updated_at = $12
		WHERE tenant_id = $1
	`

	result, err := s.pool.Exec(ctx, query,
		tenant.TenantID,
		tenant.Name,
		tenant.Plan,
		tenant.Activated,
		tenant.Deleted,
		tenant.ResourceQuota,
		tenant.StorageRoot,
		tenant.CreatedVia,
		tenant.SubscriptionExpiresAt,
		tenant.FontID,
		tenant.NoDataSync,
		tenant.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrTenantNotFound
	}

	return nil
}

// Activate sets the activated flag, leaving updated_at alone when the tenant is already active.
func (s *TenantStore) Activate(ctx context.Context, tenantID uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE tenants
		SET activated = TRUE,
			updated_at = CASE WHEN activated THEN updated_at ELSE NOW() END
		WHERE tenant_id = $1
	`, tenantID)
	if err != nil {
		return fmt.Errorf("failed to activate tenant: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrTenantNotFound
	}

	log.Info().Str("tenant_id", tenantID.String()).Msg("Activated tenant")

	return nil
}

// Delete removes the tenant row. Foreign keys refuse it while child rows remain.
func (s *TenantStore) Delete(ctx context.Context, tenantID uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM tenants WHERE tenant_id = $1`, tenantID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return fmt.Errorf("%w: %s", store.ErrTenantNotEmpty, pgErr.Detail)
		}
		return fmt.Errorf("failed to delete tenant: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrTenantNotFound
	}

	log.Info().Str("tenant_id", tenantID.String()).Msg("Deleted tenant")

	return nil
}

func scanTenant(row pgx.Row) (*models.Tenant, error) {
	var t models.Tenant
	err := row.Scan(
		&t.TenantID,
		&t.Name,
		&t.Plan,
		&t.Activated,
		&t.Deleted,
		&t.ResourceQuota,
		&t.StorageRoot,
		&t.CreatedVia,
		&t.SubscriptionExpiresAt,
		&t.FontID,
		&t.NoDataSync,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
