// Package capability answers whether a tenant may use a resource type and how much
// of its resource quota is left.
package capability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/projectkeeper/internal/models"
	"github.com/wolfeidau/projectkeeper/internal/store"
)

// PlanOracle resolves capabilities from the tenant's plan and counts live resources
// in the store at decision time.
type PlanOracle struct {
	tenants   store.TenantStore
	resources store.ResourceStore
	plans     *Plans
	now       func() time.Time
}

// NewPlanOracle creates an oracle over the given stores and plans.
func NewPlanOracle(tenants store.TenantStore, resources store.ResourceStore, plans *Plans) *PlanOracle {
	return &PlanOracle{
		tenants:   tenants,
		resources: resources,
		plans:     plans,
		now:       time.Now,
	}
}

// IsTypeEnabled reports whether the tenant's plan enables resourceType.
// Tenants on a plan missing from the plan file get nothing enabled.
func (o *PlanOracle) IsTypeEnabled(ctx context.Context, tenantID uuid.UUID, resourceType models.ResourceType) (bool, error) {
	tenant, err := o.tenants.Get(ctx, tenantID)
	if err != nil {
		return false, fmt.Errorf("failed to get tenant: %w", err)
	}

	enabled, err := o.plans.Enabled(tenant.Plan, resourceType)
	if errors.Is(err, ErrUnknownPlan) {
		log.Ctx(ctx).Warn().
			Str("tenant_id", tenantID.String()).
			Str("plan", tenant.Plan).
			Msg("Tenant plan not found in plan file")
		return false, nil
	}

	return enabled, err
}

// SubscriptionActive reports whether the tenant's subscription has not expired.
func (o *PlanOracle) SubscriptionActive(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	tenant, err := o.tenants.Get(ctx, tenantID)
	if err != nil {
		return false, fmt.Errorf("failed to get tenant: %w", err)
	}

	return tenant.SubscriptionActive(o.now()), nil
}

// QuotaRemaining returns how many more live resources the tenant may hold, never negative.
func (o *PlanOracle) QuotaRemaining(ctx context.Context, tenantID uuid.UUID) (int, error) {
	tenant, err := o.tenants.Get(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to get tenant: %w", err)
	}

	active, err := o.resources.CountActive(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to count resources: %w", err)
	}

	return max(tenant.ResourceQuota-active, 0), nil
}
