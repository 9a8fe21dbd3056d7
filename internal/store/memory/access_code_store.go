package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/wolfeidau/projectkeeper/internal/models"
	"github.com/wolfeidau/projectkeeper/internal/store"
)

// AccessCodeStore implements store.AccessCodeStore using in-memory storage.
type AccessCodeStore struct {
	db *database
}

// Create inserts an access code, enforcing live code uniqueness and the single preview code.
func (s *AccessCodeStore) Create(ctx context.Context, code *models.AccessCode) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, exists := s.db.resources[code.ResourceID]; !exists {
		return store.ErrResourceNotFound
	}

	for _, existing := range s.db.codes {
		if existing.DeletedAt != nil {
			continue
		}
		if existing.Code == code.Code {
			return store.ErrAccessCodeConflict
		}
		if code.IsPreview && existing.IsPreview && existing.ResourceID == code.ResourceID {
			return store.ErrPreviewCodeExists
		}
	}

	clone := *code
	s.db.codes[code.AccessCodeID] = &clone

	return nil
}

// CodeExists reports whether a live code with this value exists.
func (s *AccessCodeStore) CodeExists(ctx context.Context, code string) (bool, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	for _, existing := range s.db.codes {
		if existing.DeletedAt == nil && existing.Code == code {
			return true, nil
		}
	}

	return false, nil
}

// GetPreview returns the live preview code of a resource.
func (s *AccessCodeStore) GetPreview(ctx context.Context, resourceID uuid.UUID) (*models.AccessCode, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	for _, code := range s.db.codes {
		if code.ResourceID == resourceID && code.IsPreview && code.DeletedAt == nil {
			clone := *code
			return &clone, nil
		}
	}

	return nil, store.ErrAccessCodeNotFound
}

// ListByResource returns the codes of a resource ordered by creation.
func (s *AccessCodeStore) ListByResource(ctx context.Context, resourceID uuid.UUID, includeDeleted bool) ([]*models.AccessCode, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var result []*models.AccessCode
	for _, code := range s.db.codes {
		if code.ResourceID != resourceID {
			continue
		}
		if code.DeletedAt != nil && !includeDeleted {
			continue
		}
		clone := *code
		result = append(result, &clone)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

// CountLive returns the number of live codes of a resource.
func (s *AccessCodeStore) CountLive(ctx context.Context, resourceID uuid.UUID) (int, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	n := 0
	for _, code := range s.db.codes {
		if code.ResourceID == resourceID && code.DeletedAt == nil {
			n++
		}
	}

	return n, nil
}

// DeleteByResource removes every code of a resource.
func (s *AccessCodeStore) DeleteByResource(ctx context.Context, resourceID uuid.UUID) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var n int64
	for id, code := range s.db.codes {
		if code.ResourceID == resourceID {
			delete(s.db.codes, id)
			n++
		}
	}

	return n, nil
}
