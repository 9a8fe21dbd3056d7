package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant creation channels.
const (
	CreatedViaWeb  = "web"
	CreatedViaAPI  = "api"  // self-service signup from a device
	CreatedViaForm = "form" // self-service signup from the public form
)

// Tenant represents an isolated customer account.
// Every resource, user and usage log row belongs to exactly one tenant.
type Tenant struct {
	TenantID uuid.UUID // UUIDv7
	Name     string
	Plan     string // Plan name, resolved by the capability oracle

	Activated bool
	Deleted   bool // Flagged for asynchronous teardown

	ResourceQuota int    // Maximum number of live (not soft-deleted) resources
	StorageRoot   string // Directory holding the tenant's uploaded files
	CreatedVia    string // "web", "api", "form"

	SubscriptionExpiresAt *time.Time // nil means no expiry

	// Defaults inherited by new resources
	FontID     *string
	NoDataSync bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ManualActivation reports whether the tenant signed up through a self-service channel
// and therefore needs an explicit activation step.
func (t *Tenant) ManualActivation() bool {
	return t.CreatedVia == CreatedViaAPI || t.CreatedVia == CreatedViaForm
}

// ApplyCreationDefaults activates the tenant unless it requires manual activation
// and stamps unset timestamps with now.
func (t *Tenant) ApplyCreationDefaults(now time.Time) {
	if t.CreatedVia == "" {
		t.CreatedVia = CreatedViaWeb
	}
	if !t.ManualActivation() {
		t.Activated = true
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
}

// SubscriptionActive returns true if the subscription has not expired at the given time.
func (t *Tenant) SubscriptionActive(now time.Time) bool {
	return t.SubscriptionExpiresAt == nil || now.Before(*t.SubscriptionExpiresAt)
}
