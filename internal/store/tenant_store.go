package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/projectkeeper/internal/models"
)

// Sentinel errors for tenant store operations
var (
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrTenantAlreadyExists = errors.New("tenant already exists")
	ErrTenantNotEmpty      = errors.New("tenant still owns rows")
)

// TenantStore defines the interface for tenant storage operations.
type TenantStore interface {
	// Create creates a new tenant, applying Tenant.ApplyCreationDefaults first so that
	// tenants from self-service channels start out unactivated.
	// Returns ErrTenantAlreadyExists if a tenant with the same ID or name already exists.
	Create(ctx context.Context, tenant *models.Tenant) error

	// Activate marks a manually activated tenant as active. Activating an active tenant is a no-op.
	// Returns ErrTenantNotFound if the tenant doesn't exist.
	Activate(ctx context.Context, tenantID uuid.UUID) error

	// Get retrieves a tenant by ID.
	// Returns ErrTenantNotFound if the tenant doesn't exist.
	Get(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error)

	// Update updates an existing tenant.
	// Returns ErrTenantNotFound if the tenant doesn't exist.
	Update(ctx context.Context, tenant *models.Tenant) error

	// Delete removes the tenant row. Child rows must already be gone; teardown removes them first.
	// Returns ErrTenantNotFound if the tenant doesn't exist and ErrTenantNotEmpty while
	// users, resources or usage rows remain.
	Delete(ctx context.Context, tenantID uuid.UUID) error
}
