package memory

import (
	"context"

	"github.com/google/uuid"
	"github.com/wolfeidau/projectkeeper/internal/models"
)

// RevisionStore implements store.RevisionStore using in-memory storage.
type RevisionStore struct {
	db *database
}

// List returns snapshots of a resource in capture order.
func (s *RevisionStore) List(ctx context.Context, resourceID uuid.UUID) ([]*models.RevisionSnapshot, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	snapshots := s.db.revisions[resourceID]
	result := make([]*models.RevisionSnapshot, 0, len(snapshots))
	for _, snap := range snapshots {
		clone := *snap
		result = append(result, &clone)
	}

	return result, nil
}

// DeleteByResource purges snapshots of a resource.
func (s *RevisionStore) DeleteByResource(ctx context.Context, resourceID uuid.UUID) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	n := int64(len(s.db.revisions[resourceID]))
	delete(s.db.revisions, resourceID)

	return n, nil
}

// DeleteByTenant purges snapshots of every resource of a tenant, including retained
// snapshots whose resource is already gone.
func (s *RevisionStore) DeleteByTenant(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var n int64
	for resourceID, snapshots := range s.db.revisions {
		if len(snapshots) == 0 || snapshots[0].TenantID != tenantID {
			continue
		}
		n += int64(len(snapshots))
		delete(s.db.revisions, resourceID)
	}

	return n, nil
}

// UsageLogStore implements store.UsageLogStore using in-memory storage.
type UsageLogStore struct {
	db *database
}

// CountByTenant returns the number of usage rows for a tenant.
func (s *UsageLogStore) CountByTenant(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var n int64
	for _, row := range s.db.usage {
		if row.TenantID == tenantID {
			n++
		}
	}

	return n, nil
}

// DeleteByTenant removes every usage row for a tenant.
func (s *UsageLogStore) DeleteByTenant(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	kept := s.db.usage[:0]
	var n int64
	for _, row := range s.db.usage {
		if row.TenantID == tenantID {
			n++
			continue
		}
		kept = append(kept, row)
	}
	s.db.usage = kept

	return n, nil
}
