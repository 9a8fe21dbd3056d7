package capability

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/projectkeeper/internal/models"
	"github.com/wolfeidau/projectkeeper/internal/store"
	"github.com/wolfeidau/projectkeeper/internal/store/memory"
)

const planYAML = `
default_plan: basic
plans:
  - name: basic
    types: [ebook, link]
  - name: pro
    types: [lead, ebook, scene3d, link, presenter]
`

func TestParsePlans(t *testing.T) {
	t.Run("valid file", func(t *testing.T) {
		plans, err := ParsePlans([]byte(planYAML))
		require.NoError(t, err)

		enabled, err := plans.Enabled("pro", models.ResourceTypeLead)
		require.NoError(t, err)
		require.True(t, enabled)

		enabled, err = plans.Enabled("", models.ResourceTypeLead)
		require.NoError(t, err)
		require.False(t, enabled)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := ParsePlans([]byte("plans:\n  - name: x\n    types: [spreadsheet]\n"))
		require.ErrorIs(t, err, models.ErrUnknownResourceType)
	})

	t.Run("duplicate plan", func(t *testing.T) {
		_, err := ParsePlans([]byte("plans:\n  - name: x\n  - name: x\n"))
		require.Error(t, err)
	})

	t.Run("missing default plan", func(t *testing.T) {
		_, err := ParsePlans([]byte("default_plan: gold\nplans:\n  - name: x\n"))
		require.ErrorIs(t, err, ErrUnknownPlan)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := ParsePlans([]byte("plans: [\n"))
		require.Error(t, err)
	})
}

func TestLoadPlans(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(planYAML), 0o600))

	plans, err := LoadPlans(path)
	require.NoError(t, err)

	_, err = plans.Enabled("pro", models.ResourceTypeScene3D)
	require.NoError(t, err)

	_, err = LoadPlans(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func newTenant(t *testing.T, stores *store.Stores, plan string, quota int) *models.Tenant {
	t.Helper()

	tenant := &models.Tenant{
		TenantID:      uuid.Must(uuid.NewV7()),
		Name:          "tenant-" + uuid.NewString(),
		Plan:          plan,
		Activated:     true,
		ResourceQuota: quota,
	}
	require.NoError(t, stores.Tenants.Create(context.Background(), tenant))

	return tenant
}

func TestPlanOracle(t *testing.T) {
	ctx := context.Background()

	plans, err := ParsePlans([]byte(planYAML))
	require.NoError(t, err)

	t.Run("type enabled by plan", func(t *testing.T) {
		stores := memory.NewStores()
		oracle := NewPlanOracle(stores.Tenants, stores.Resources, plans)
		tenant := newTenant(t, stores, "basic", 5)

		enabled, err := oracle.IsTypeEnabled(ctx, tenant.TenantID, models.ResourceTypeEBook)
		require.NoError(t, err)
		require.True(t, enabled)

		enabled, err = oracle.IsTypeEnabled(ctx, tenant.TenantID, models.ResourceTypeLead)
		require.NoError(t, err)
		require.False(t, enabled)
	})

	t.Run("unknown plan enables nothing", func(t *testing.T) {
		stores := memory.NewStores()
		oracle := NewPlanOracle(stores.Tenants, stores.Resources, plans)
		tenant := newTenant(t, stores, "legacy", 5)

		enabled, err := oracle.IsTypeEnabled(ctx, tenant.TenantID, models.ResourceTypeEBook)
		require.NoError(t, err)
		require.False(t, enabled)
	})

	t.Run("unknown tenant", func(t *testing.T) {
		stores := memory.NewStores()
		oracle := NewPlanOracle(stores.Tenants, stores.Resources, plans)

		_, err := oracle.IsTypeEnabled(ctx, uuid.Must(uuid.NewV7()), models.ResourceTypeEBook)
		require.ErrorIs(t, err, store.ErrTenantNotFound)
	})

	t.Run("subscription expiry", func(t *testing.T) {
		stores := memory.NewStores()
		oracle := NewPlanOracle(stores.Tenants, stores.Resources, plans)
		tenant := newTenant(t, stores, "basic", 5)

		active, err := oracle.SubscriptionActive(ctx, tenant.TenantID)
		require.NoError(t, err)
		require.True(t, active)

		expired := time.Now().Add(-time.Hour)
		tenant.SubscriptionExpiresAt = &expired
		require.NoError(t, stores.Tenants.Update(ctx, tenant))

		active, err = oracle.SubscriptionActive(ctx, tenant.TenantID)
		require.NoError(t, err)
		require.False(t, active)
	})

	t.Run("quota counts live resources only", func(t *testing.T) {
		stores := memory.NewStores()
		oracle := NewPlanOracle(stores.Tenants, stores.Resources, plans)
		tenant := newTenant(t, stores, "basic", 2)

		remaining, err := oracle.QuotaRemaining(ctx, tenant.TenantID)
		require.NoError(t, err)
		require.Equal(t, 2, remaining)

		var ids []uuid.UUID
		for i := 0; i < 2; i++ {
			res := &models.Resource{
				ResourceID: uuid.Must(uuid.NewV7()),
				TenantID:   tenant.TenantID,
				Name:       "book",
				Type:       models.ResourceTypeEBook,
				Payload:    &models.EBookPayload{DocumentKey: "doc.pdf"},
			}
			require.NoError(t, stores.Resources.Create(ctx, res, tenant.ResourceQuota))
			ids = append(ids, res.ResourceID)
		}

		remaining, err = oracle.QuotaRemaining(ctx, tenant.TenantID)
		require.NoError(t, err)
		require.Zero(t, remaining)

		require.NoError(t, stores.Resources.SoftDelete(ctx, ids[0], time.Now()))

		remaining, err = oracle.QuotaRemaining(ctx, tenant.TenantID)
		require.NoError(t, err)
		require.Equal(t, 1, remaining)
	})
}

func TestAllTypes(t *testing.T) {
	plans := AllTypes()
	for _, rt := range models.ResourceTypes {
		enabled, err := plans.Enabled("", rt)
		require.NoError(t, err)
		require.True(t, enabled)
	}
}

func TestPlans_Listing(t *testing.T) {
	plans, err := NewPlans(PlanFile{
		DefaultPlan: "starter",
		Plans: []Plan{
			{Name: "starter", Types: []models.ResourceType{models.ResourceTypeLink, models.ResourceTypeLead}},
			{Name: "agency", Types: models.ResourceTypes},
		},
	})
	require.NoError(t, err)

	require.Equal(t, "starter", plans.Default())
	require.Equal(t, []string{"agency", "starter"}, plans.Names())
	require.Equal(t, models.ResourceTypes, plans.Types("agency"))
	require.Empty(t, plans.Types("missing"))

	starter := plans.Types("starter")
	require.Len(t, starter, 2)
	require.Contains(t, starter, models.ResourceTypeLink)
	require.Contains(t, starter, models.ResourceTypeLead)
}
