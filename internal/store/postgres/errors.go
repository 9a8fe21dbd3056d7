package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wolfeidau/projectkeeper/internal/store"
)

// Constraint names declared in the schema migrations.
const (
	constraintTenantsPkey       = "tenants_pkey"
	constraintTenantsName       = "tenants_name_key"
	constraintUsersPkey         = "users_pkey"
	constraintUsersEmail        = "idx_users_tenant_email"
	constraintResourcesPkey     = "resources_pkey"
	constraintLiveCode          = "idx_access_codes_live_code"
	constraintLivePreview       = "idx_access_codes_live_preview"
	constraintResourcesTenantFK = "resources_tenant_id_fkey"
	constraintCodesResourceFK   = "access_codes_resource_id_fkey"
)

// mapPostgresError maps PostgreSQL-specific errors to store sentinel errors.
// Returns the original error if it's not a PostgreSQL error.
func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		switch pgErr.ConstraintName {
		case constraintLiveCode:
			return store.ErrAccessCodeConflict
		case constraintLivePreview:
			return store.ErrPreviewCodeExists
		case constraintTenantsPkey, constraintTenantsName:
			return store.ErrTenantAlreadyExists
		case constraintUsersPkey, constraintUsersEmail:
			return store.ErrUserAlreadyExists
		case constraintResourcesPkey:
			return store.ErrResourceAlreadyExists
		}
		return fmt.Errorf("unique constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.ForeignKeyViolation:
		switch pgErr.ConstraintName {
		case constraintResourcesTenantFK:
			return fmt.Errorf("%w: %s", store.ErrTenantNotFound, pgErr.Detail)
		case constraintCodesResourceFK:
			return fmt.Errorf("%w: %s", store.ErrResourceNotFound, pgErr.Detail)
		}
		return fmt.Errorf("foreign key violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.CheckViolation:
		return fmt.Errorf("check constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		return fmt.Errorf("transaction conflict (retryable): %w", err)

	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.SQLClientUnableToEstablishSQLConnection:
		return fmt.Errorf("database connection error: %w", err)

	case pgerrcode.AdminShutdown,
		pgerrcode.CrashShutdown:
		return fmt.Errorf("database server unavailable: %w", err)

	case pgerrcode.QueryCanceled:
		return fmt.Errorf("query canceled: %w", err)

	case pgerrcode.InsufficientResources,
		pgerrcode.DiskFull,
		pgerrcode.OutOfMemory,
		pgerrcode.TooManyConnections:
		return fmt.Errorf("database resource limit: %w", err)

	default:
		return fmt.Errorf("postgres error [%s]: %s (detail: %s, hint: %s): %w",
			pgErr.Code, pgErr.Message, pgErr.Detail, pgErr.Hint, err)
	}
}
