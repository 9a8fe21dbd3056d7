package models

import (
	"time"

	"github.com/google/uuid"
)

// PreviewCodeName is the name given to the special preview access code.
const PreviewCodeName = "Preview"

// AccessCode is a published token granting external access to a resource.
type AccessCode struct {
	AccessCodeID uuid.UUID // UUIDv7
	ResourceID   uuid.UUID // FK to resources
	TenantID     uuid.UUID // Denormalized for tenant-wide cleanup
	Name         string
	Code         string // Case sensitive, unique among live codes

	IsPreview bool
	IsPublic  bool
	Online    bool

	Deletable bool       // Picked up by the external batched cleanup sweep
	DeletedAt *time.Time // Soft delete

	CreatedAt time.Time
}

// IsDeleted returns true if the access code has been soft-deleted.
func (c *AccessCode) IsDeleted() bool {
	return c.DeletedAt != nil
}
