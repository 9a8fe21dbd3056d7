package memory

import (
	"bytes"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/wolfeidau/projectkeeper/internal/models"
	"github.com/wolfeidau/projectkeeper/internal/store"
)

// database is the shared state behind the in-memory stores.
// A single mutex makes every multi-row operation atomic, standing in for a transaction.
type database struct {
	mu sync.RWMutex

	tenants   map[uuid.UUID]*models.Tenant
	users     map[uuid.UUID]*models.User
	resources map[uuid.UUID]*models.Resource // stored without Payload
	payloads  map[uuid.UUID]models.Payload   // resource_id -> Payload
	codes     map[uuid.UUID]*models.AccessCode
	revisions map[uuid.UUID][]*models.RevisionSnapshot // resource_id -> snapshots in capture order
	usage     []*models.UsageLog
	ledger    map[uuid.UUID]map[uuid.UUID]*models.DeletionLedgerEntry // tenant_id -> resource_id -> entry
}

func newDatabase() *database {
	return &database{
		tenants:   make(map[uuid.UUID]*models.Tenant),
		users:     make(map[uuid.UUID]*models.User),
		resources: make(map[uuid.UUID]*models.Resource),
		payloads:  make(map[uuid.UUID]models.Payload),
		codes:     make(map[uuid.UUID]*models.AccessCode),
		revisions: make(map[uuid.UUID][]*models.RevisionSnapshot),
		ledger:    make(map[uuid.UUID]map[uuid.UUID]*models.DeletionLedgerEntry),
	}
}

// NewStores creates the in-memory relational stores sharing one database.
// This implementation is for testing only - data is lost on restart.
func NewStores() *store.Stores {
	db := newDatabase()
	return &store.Stores{
		Tenants:     &TenantStore{db: db},
		Users:       &UserStore{db: db},
		Resources:   &ResourceStore{db: db},
		AccessCodes: &AccessCodeStore{db: db},
		Revisions:   &RevisionStore{db: db},
		UsageLogs:   &UsageLogStore{db: db},

		DeletionLedger: &DeletionLedgerStore{db: db},
	}
}

// countActiveLocked returns the number of live resources of a tenant. Caller holds mu.
func (d *database) countActiveLocked(tenantID uuid.UUID) int {
	n := 0
	for _, r := range d.resources {
		if r.TenantID == tenantID && r.DeletedAt == nil {
			n++
		}
	}
	return n
}

// ownsRowsLocked reports whether users, resources or usage rows still reference the tenant. Caller holds mu.
func (d *database) ownsRowsLocked(tenantID uuid.UUID) bool {
	for _, u := range d.users {
		if u.TenantID == tenantID {
			return true
		}
	}
	for _, r := range d.resources {
		if r.TenantID == tenantID {
			return true
		}
	}
	for _, row := range d.usage {
		if row.TenantID == tenantID {
			return true
		}
	}
	return false
}

// withPayloadLocked returns a clone of res with its payload attached. Caller holds mu.
func (d *database) withPayloadLocked(res *models.Resource) *models.Resource {
	clone := res.Clone()
	if p, ok := d.payloads[res.ResourceID]; ok {
		clone.Payload = models.ClonePayload(p)
	}
	return clone
}

func sortByID(resources []*models.Resource) {
	sort.Slice(resources, func(i, j int) bool {
		return bytes.Compare(resources[i].ResourceID[:], resources[j].ResourceID[:]) < 0
	})
}
