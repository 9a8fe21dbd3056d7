package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type ActivateCmd struct {
	Store StoreFlags `embed:""`

	TenantID string `arg:"" help:"tenant signed up through the API or form channel"`
}

func (a *ActivateCmd) Run(ctx context.Context, globals *Globals) error {
	tenantID, err := uuid.Parse(a.TenantID)
	if err != nil {
		return fmt.Errorf("invalid tenant id %q: %w", a.TenantID, err)
	}

	b, err := openBackend(ctx, a.Store, false)
	if err != nil {
		return err
	}
	defer b.Close()

	if err := b.stores.Tenants.Activate(ctx, tenantID); err != nil {
		return fmt.Errorf("failed to activate tenant: %w", err)
	}

	log.Info().Str("tenant_id", tenantID.String()).Msg("Tenant activated")

	return nil
}
