package memory

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/projectkeeper/internal/models"
	"github.com/wolfeidau/projectkeeper/internal/store"
)

const defaultListLimit = 100

// ResourceStore implements store.ResourceStore using in-memory storage.
type ResourceStore struct {
	db *database
}

// Create inserts the resource and its payload, enforcing the tenant quota.
func (s *ResourceStore) Create(ctx context.Context, res *models.Resource, quota int) error {
	if res.Payload == nil {
		return fmt.Errorf("%w: resource %s has no payload", store.ErrPayloadNotFound, res.ResourceID)
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, exists := s.db.resources[res.ResourceID]; exists {
		return store.ErrResourceAlreadyExists
	}
	if _, exists := s.db.tenants[res.TenantID]; !exists {
		return store.ErrTenantNotFound
	}
	if s.db.countActiveLocked(res.TenantID) >= quota {
		return store.ErrQuotaExceeded
	}

	clone := res.Clone()
	s.db.payloads[res.ResourceID] = clone.Payload
	clone.Payload = nil
	s.db.resources[res.ResourceID] = clone

	return nil
}

// Get returns a resource with its payload attached.
func (s *ResourceStore) Get(ctx context.Context, resourceID uuid.UUID) (*models.Resource, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	res, exists := s.db.resources[resourceID]
	if !exists {
		return nil, store.ErrResourceNotFound
	}

	return s.db.withPayloadLocked(res), nil
}

// Update writes the resource, its payload and the optional snapshot together.
func (s *ResourceStore) Update(ctx context.Context, res *models.Resource, snapshot *models.RevisionSnapshot) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	existing, exists := s.db.resources[res.ResourceID]
	if !exists {
		return store.ErrResourceNotFound
	}
	if _, exists := s.db.payloads[res.ResourceID]; !exists {
		return store.ErrPayloadNotFound
	}

	existing.Name = res.Name
	existing.LastEditorRef = res.LastEditorRef
	existing.FontID = res.FontID
	existing.NoDataSync = res.NoDataSync
	existing.UpdatedAt = res.UpdatedAt

	if res.Payload != nil {
		s.db.payloads[res.ResourceID] = models.ClonePayload(res.Payload)
	}

	if snapshot != nil {
		clone := *snapshot
		s.db.revisions[res.ResourceID] = append(s.db.revisions[res.ResourceID], &clone)
	}

	return nil
}

// Touch records an open without creating a revision.
func (s *ResourceStore) Touch(ctx context.Context, resourceID uuid.UUID, openedAt time.Time, usage *models.UsageLog) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	res, exists := s.db.resources[resourceID]
	if !exists {
		return store.ErrResourceNotFound
	}

	res.LastOpenedAt = &openedAt
	if usage != nil {
		clone := *usage
		s.db.usage = append(s.db.usage, &clone)
	}

	return nil
}

// SoftDelete marks the resource deleted and cascades to its access codes.
func (s *ResourceStore) SoftDelete(ctx context.Context, resourceID uuid.UUID, at time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	res, exists := s.db.resources[resourceID]
	if !exists {
		return store.ErrResourceNotFound
	}

	if res.DeletedAt == nil {
		res.DeletedAt = &at
		res.UpdatedAt = at
	}

	for _, code := range s.db.codes {
		if code.ResourceID != resourceID {
			continue
		}
		if code.DeletedAt == nil {
			deletedAt := at
			code.DeletedAt = &deletedAt
		}
		code.Deletable = true
	}

	return nil
}

// Restore clears the soft delete if the tenant has quota left.
func (s *ResourceStore) Restore(ctx context.Context, resourceID uuid.UUID, quota int, at time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	res, exists := s.db.resources[resourceID]
	if !exists {
		return store.ErrResourceNotFound
	}
	if res.DeletedAt == nil {
		return nil
	}
	if s.db.countActiveLocked(res.TenantID) >= quota {
		return store.ErrQuotaExceeded
	}

	res.DeletedAt = nil
	res.UpdatedAt = at

	return nil
}

// CountActive returns the number of live resources of a tenant.
func (s *ResourceStore) CountActive(ctx context.Context, tenantID uuid.UUID) (int, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	return s.db.countActiveLocked(tenantID), nil
}

// ListByTenant pages through a tenant's resources ordered by ID.
func (s *ResourceStore) ListByTenant(ctx context.Context, tenantID uuid.UUID, opts store.ListResourcesOptions) ([]*models.Resource, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var result []*models.Resource
	for _, res := range s.db.resources {
		if res.TenantID != tenantID {
			continue
		}
		if res.DeletedAt != nil && !opts.IncludeDeleted {
			continue
		}
		if opts.After != uuid.Nil && bytes.Compare(res.ResourceID[:], opts.After[:]) <= 0 {
			continue
		}
		result = append(result, s.db.withPayloadLocked(res))
	}

	sortByID(result)
	if len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// DeletePayload removes the payload of a resource.
func (s *ResourceStore) DeletePayload(ctx context.Context, resourceID uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, exists := s.db.payloads[resourceID]; !exists {
		return store.ErrPayloadNotFound
	}

	delete(s.db.payloads, resourceID)

	return nil
}

// Delete removes the base resource row.
func (s *ResourceStore) Delete(ctx context.Context, resourceID uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, exists := s.db.resources[resourceID]; !exists {
		return store.ErrResourceNotFound
	}

	delete(s.db.resources, resourceID)

	return nil
}

// ListOrphaned returns resources whose payload is missing.
func (s *ResourceStore) ListOrphaned(ctx context.Context, limit int) ([]*models.Resource, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var result []*models.Resource
	for id, res := range s.db.resources {
		if _, ok := s.db.payloads[id]; ok {
			continue
		}
		result = append(result, res.Clone())
	}

	sortByID(result)
	if len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}
