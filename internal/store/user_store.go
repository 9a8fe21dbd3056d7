package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/projectkeeper/internal/models"
)

// Errors
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserProtected     = errors.New("user is protected")
)

// UserStore manages tenant users.
type UserStore interface {
	// Create creates a new user.
	Create(ctx context.Context, user *models.User) error

	// Get retrieves a user by ID.
	Get(ctx context.Context, userID uuid.UUID) (*models.User, error)

	// ListByTenant returns every user of a tenant.
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.User, error)

	// Delete removes a user. Protected users are only removed when force is set,
	// otherwise ErrUserProtected is returned.
	Delete(ctx context.Context, userID uuid.UUID, force bool) error
}
