package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/projectkeeper/internal/teardown"
)

type TeardownCmd struct {
	Store StoreFlags `embed:""`

	TenantID string `arg:"" help:"tenant to delete"`
}

func (t *TeardownCmd) Run(ctx context.Context, globals *Globals) error {
	tenantID, err := uuid.Parse(t.TenantID)
	if err != nil {
		return fmt.Errorf("invalid tenant id %q: %w", t.TenantID, err)
	}

	b, err := openBackend(ctx, t.Store, true)
	if err != nil {
		return err
	}
	defer b.Close()

	handle, err := teardown.NewScheduler(b.stores.Tenants, b.jobs).Schedule(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to schedule teardown: %w", err)
	}

	log.Info().
		Str("tenant_id", tenantID.String()).
		Str("job_id", handle.JobID.String()).
		Msg("Tenant teardown scheduled")

	return nil
}
