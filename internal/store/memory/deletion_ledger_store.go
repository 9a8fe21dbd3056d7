package memory

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/projectkeeper/internal/models"
)

// DeletionLedgerStore implements store.DeletionLedgerStore using in-memory storage.
type DeletionLedgerStore struct {
	db *database
}

// Record upserts the entry of a resource.
func (s *DeletionLedgerStore) Record(ctx context.Context, entry *models.DeletionLedgerEntry) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	entries, ok := s.db.ledger[entry.TenantID]
	if !ok {
		entries = make(map[uuid.UUID]*models.DeletionLedgerEntry)
		s.db.ledger[entry.TenantID] = entries
	}

	clone := *entry
	if existing, ok := entries[entry.ResourceID]; ok {
		clone.RecordedAt = existing.RecordedAt
	} else if clone.RecordedAt.IsZero() {
		clone.RecordedAt = time.Now()
	}
	entries[entry.ResourceID] = &clone

	return nil
}

// List returns the entries of a tenant in recording order.
func (s *DeletionLedgerStore) List(ctx context.Context, tenantID uuid.UUID) ([]*models.DeletionLedgerEntry, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	result := make([]*models.DeletionLedgerEntry, 0, len(s.db.ledger[tenantID]))
	for _, e := range s.db.ledger[tenantID] {
		clone := *e
		result = append(result, &clone)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].RecordedAt.Equal(result[j].RecordedAt) {
			return result[i].RecordedAt.Before(result[j].RecordedAt)
		}
		return bytes.Compare(result[i].ResourceID[:], result[j].ResourceID[:]) < 0
	})

	return result, nil
}

// DeleteByTenant removes every entry of a tenant.
func (s *DeletionLedgerStore) DeleteByTenant(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	n := int64(len(s.db.ledger[tenantID]))
	delete(s.db.ledger, tenantID)

	return n, nil
}
