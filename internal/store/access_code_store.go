package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/projectkeeper/internal/models"
)

// Sentinel errors for access code operations
var (
	ErrAccessCodeNotFound = errors.New("access code not found")
	ErrAccessCodeConflict = errors.New("access code already in use")
	ErrPreviewCodeExists  = errors.New("preview access code already exists")
)

// AccessCodeStore persists access codes. Code uniqueness among live codes and the
// single live preview code per resource are enforced here.
type AccessCodeStore interface {
	// Create inserts a code. Returns ErrAccessCodeConflict if Code is taken by a live code,
	// ErrPreviewCodeExists if the resource already has a live preview code.
	Create(ctx context.Context, code *models.AccessCode) error

	// CodeExists reports whether a live code with this value exists.
	CodeExists(ctx context.Context, code string) (bool, error)

	// GetPreview returns the live preview code of a resource or ErrAccessCodeNotFound.
	GetPreview(ctx context.Context, resourceID uuid.UUID) (*models.AccessCode, error)

	// ListByResource returns the codes of a resource.
	ListByResource(ctx context.Context, resourceID uuid.UUID, includeDeleted bool) ([]*models.AccessCode, error)

	// CountLive returns the number of live codes of a resource.
	CountLive(ctx context.Context, resourceID uuid.UUID) (int, error)

	// DeleteByResource removes every code of a resource, returning the number removed.
	DeleteByResource(ctx context.Context, resourceID uuid.UUID) (int64, error)
}
