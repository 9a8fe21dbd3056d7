package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/projectkeeper/internal/models"
	"github.com/wolfeidau/projectkeeper/internal/store"
)

// TenantStore implements store.TenantStore using in-memory storage.
type TenantStore struct {
	db *database
}

// Create creates a new tenant in memory.
func (s *TenantStore) Create(ctx context.Context, tenant *models.Tenant) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, exists := s.db.tenants[tenant.TenantID]; exists {
		return store.ErrTenantAlreadyExists
	}
	for _, t := range s.db.tenants {
		if t.Name == tenant.Name {
			return store.ErrTenantAlreadyExists
		}
	}

	tenant.ApplyCreationDefaults(time.Now())

	// Clone to avoid external modifications
	clone := *tenant
	s.db.tenants[tenant.TenantID] = &clone

	return nil
}

// Get retrieves a tenant by ID.
func (s *TenantStore) Get(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	tenant, exists := s.db.tenants[tenantID]
	if !exists {
		return nil, store.ErrTenantNotFound
	}

	clone := *tenant
	return &clone, nil
}

// Update updates an existing tenant.
func (s *TenantStore) Update(ctx context.Context, tenant *models.Tenant) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, exists := s.db.tenants[tenant.TenantID]; !exists {
		return store.ErrTenantNotFound
	}

	tenant.UpdatedAt = time.Now()

	clone := *tenant
	s.db.tenants[tenant.TenantID] = &clone

	return nil
}

// Activate sets the activated flag.
func (s *TenantStore) Activate(ctx context.Context, tenantID uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	tenant, exists := s.db.tenants[tenantID]
	if !exists {
		return store.ErrTenantNotFound
	}
	if !tenant.Activated {
		tenant.Activated = true
		tenant.UpdatedAt = time.Now()
	}

	return nil
}

// Delete deletes a tenant by ID.
func (s *TenantStore) Delete(ctx context.Context, tenantID uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, exists := s.db.tenants[tenantID]; !exists {
		return store.ErrTenantNotFound
	}
	if s.db.ownsRowsLocked(tenantID) {
		return store.ErrTenantNotEmpty
	}

	delete(s.db.tenants, tenantID)

	return nil
}
