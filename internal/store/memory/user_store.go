package memory

import (
	"context"

	"github.com/google/uuid"
	"github.com/wolfeidau/projectkeeper/internal/models"
	"github.com/wolfeidau/projectkeeper/internal/store"
)

// UserStore implements store.UserStore using in-memory storage.
type UserStore struct {
	db *database
}

// Create creates a new user in memory.
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, exists := s.db.users[user.UserID]; exists {
		return store.ErrUserAlreadyExists
	}
	if _, exists := s.db.tenants[user.TenantID]; !exists {
		return store.ErrTenantNotFound
	}

	clone := *user
	s.db.users[user.UserID] = &clone

	return nil
}

// Get retrieves a user by ID.
func (s *UserStore) Get(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	user, exists := s.db.users[userID]
	if !exists {
		return nil, store.ErrUserNotFound
	}

	clone := *user
	return &clone, nil
}

// ListByTenant returns every user of a tenant.
func (s *UserStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.User, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var result []*models.User
	for _, user := range s.db.users {
		if user.TenantID == tenantID {
			clone := *user
			result = append(result, &clone)
		}
	}

	return result, nil
}

// Delete removes a user, refusing protected users unless force is set.
func (s *UserStore) Delete(ctx context.Context, userID uuid.UUID, force bool) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	user, exists := s.db.users[userID]
	if !exists {
		return store.ErrUserNotFound
	}
	if user.Protected && !force {
		return store.ErrUserProtected
	}

	delete(s.db.users, userID)

	return nil
}
