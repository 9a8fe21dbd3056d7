package models

import (
	"time"

	"github.com/google/uuid"
)

// Usage log kinds.
const (
	UsageKindOpen     = "open"
	UsageKindDownload = "download"
)

// UsageLog is a tenant-scoped traffic row. Rows have no individual ownership
// and are removed in bulk.
type UsageLog struct {
	UsageLogID uuid.UUID
	TenantID   uuid.UUID
	ResourceID uuid.UUID
	Kind       string
	OccurredAt time.Time
}
