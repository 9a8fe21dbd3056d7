package models

import (
	"time"

	"github.com/google/uuid"
)

// DeletedSubmissions records user-submitted data destroyed with a resource.
type DeletedSubmissions struct {
	ResourceName    string `json:"resource_name"`
	SubmissionCount int64  `json:"submission_count"`
}

// DeletionSummary is produced by a tenant teardown and used for the post-teardown notification.
type DeletionSummary struct {
	TenantID   uuid.UUID            `json:"tenant_id"`
	TenantName string               `json:"tenant_name"`
	Entries    []DeletedSubmissions `json:"entries"`
}

// Add records a destroyed resource's submissions.
func (s *DeletionSummary) Add(resourceName string, submissions int64) {
	s.Entries = append(s.Entries, DeletedSubmissions{ResourceName: resourceName, SubmissionCount: submissions})
}

// Empty returns true if no submissions were destroyed.
func (s *DeletionSummary) Empty() bool {
	return s == nil || len(s.Entries) == 0
}

// DeletionLedgerEntry is written before a resource with submissions is destroyed during
// teardown, so a summary can be rebuilt when the teardown is retried.
type DeletionLedgerEntry struct {
	TenantID        uuid.UUID
	TenantName      string
	ResourceID      uuid.UUID
	ResourceName    string
	SubmissionCount int64
	RecordedAt      time.Time
}

// SummaryFromLedger builds a summary from ledger entries in the order given.
func SummaryFromLedger(tenantID uuid.UUID, tenantName string, entries []*DeletionLedgerEntry) *DeletionSummary {
	summary := &DeletionSummary{TenantID: tenantID, TenantName: tenantName}
	for _, e := range entries {
		if summary.TenantName == "" {
			summary.TenantName = e.TenantName
		}
		summary.Add(e.ResourceName, e.SubmissionCount)
	}
	return summary
}
