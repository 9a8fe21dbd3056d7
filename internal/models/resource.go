package models

import (
	"time"

	"github.com/google/uuid"
)

// ResourceType is the closed set of resource variants.
type ResourceType string

const (
	ResourceTypeLead      ResourceType = "lead"      // forms collecting submissions
	ResourceTypeEBook     ResourceType = "ebook"     // downloadable documents
	ResourceTypeScene3D   ResourceType = "scene3d"   // 3D scenes
	ResourceTypeLink      ResourceType = "link"      // external links
	ResourceTypePresenter ResourceType = "presenter" // slide presentations
)

// ResourceTypes lists every valid resource type.
var ResourceTypes = []ResourceType{
	ResourceTypeLead,
	ResourceTypeEBook,
	ResourceTypeScene3D,
	ResourceTypeLink,
	ResourceTypePresenter,
}

// Valid reports whether t is one of the known resource types.
func (t ResourceType) Valid() bool {
	for _, rt := range ResourceTypes {
		if rt == t {
			return true
		}
	}
	return false
}

// HistoryTracked reports whether updates to resources of this type are snapshotted.
func (t ResourceType) HistoryTracked() bool {
	return t == ResourceTypeLead || t == ResourceTypePresenter
}

// Publishable reports whether resources of this type can be reached through access codes.
func (t ResourceType) Publishable() bool {
	return t.Valid() && t != ResourceTypeLink
}

// ResourceState is derived from the soft-delete timestamp.
type ResourceState string

const (
	ResourceStateActive      ResourceState = "active"
	ResourceStateSoftDeleted ResourceState = "soft_deleted"
)

// Resource is a tenant-owned project. Type specific data and behaviour live in Payload,
// which is created and destroyed together with the resource.
type Resource struct {
	ResourceID uuid.UUID // UUIDv7
	TenantID   uuid.UUID // FK to tenants
	Name       string
	Type       ResourceType // immutable after creation

	CreatorRef    string
	LastEditorRef string

	// Display defaults inherited from the tenant on creation
	FontID     *string
	NoDataSync bool

	LastOpenedAt *time.Time // not tracked by revisions
	DeletedAt    *time.Time // soft delete

	CreatedAt time.Time
	UpdatedAt time.Time

	// Payload is nil only when the resource is inconsistent (payload row missing).
	Payload Payload
}

// State returns the lifecycle state of the resource.
func (r *Resource) State() ResourceState {
	if r.DeletedAt != nil {
		return ResourceStateSoftDeleted
	}
	return ResourceStateActive
}

// IsDeleted returns true if the resource has been soft-deleted.
func (r *Resource) IsDeleted() bool {
	return r.DeletedAt != nil
}

// Submissions returns the user-submitted data count if the payload exposes one.
func (r *Resource) Submissions() (int64, bool) {
	src, ok := r.Payload.(SubmissionSource)
	if !ok {
		return 0, false
	}
	return src.Submissions(), true
}

// Downloads returns the payload's download counter, or zero.
func (r *Resource) Downloads() int64 {
	if d, ok := r.Payload.(Downloadable); ok {
		return d.Downloads()
	}
	return 0
}

// Clone returns a deep enough copy for stores to hand out safely.
func (r *Resource) Clone() *Resource {
	clone := *r
	if r.FontID != nil {
		v := *r.FontID
		clone.FontID = &v
	}
	if r.LastOpenedAt != nil {
		v := *r.LastOpenedAt
		clone.LastOpenedAt = &v
	}
	if r.DeletedAt != nil {
		v := *r.DeletedAt
		clone.DeletedAt = &v
	}
	if r.Payload != nil {
		clone.Payload = ClonePayload(r.Payload)
	}
	return &clone
}
