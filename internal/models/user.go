package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a person belonging to a tenant.
// Protected users (for example the tenant's primary admin) can only be removed with a force override.
type User struct {
	UserID    uuid.UUID // UUIDv7
	TenantID  uuid.UUID // FK to tenants
	Name      string
	Email     string
	Protected bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
