package models

import (
	"time"

	"github.com/google/uuid"
)

// RevisionSnapshot is an immutable capture of a resource's tracked content.
type RevisionSnapshot struct {
	RevisionID uuid.UUID // UUIDv7, ordered by capture time
	ResourceID uuid.UUID
	TenantID   uuid.UUID
	CapturedAt time.Time
	ChangedBy  string

	Content  []byte // zstd compressed revision state
	Checksum uint64 // CRC64-NVME of the uncompressed content

	DownloadsCount int64
}
