package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/projectkeeper/internal/storage"
)

type SweepCmd struct {
	Store     StoreFlags     `embed:""`
	Lifecycle LifecycleFlags `embed:"" prefix:"lifecycle-"`

	Limit int `help:"maximum resources destroyed, 0 uses the service default" default:"0"`
}

func (s *SweepCmd) Run(ctx context.Context, globals *Globals) error {
	b, err := openBackend(ctx, s.Store, false)
	if err != nil {
		return err
	}
	defer b.Close()

	svc, closeLifecycle, err := newLifecycle(b.stores, s.Lifecycle, storage.NewOsFS(s.Lifecycle.MediaRoot))
	if err != nil {
		return fmt.Errorf("failed to create lifecycle service: %w", err)
	}
	defer closeLifecycle()

	n, err := svc.SweepOrphans(ctx, s.Limit)
	if err != nil {
		return fmt.Errorf("orphan sweep failed after destroying %d resources: %w", n, err)
	}

	log.Info().Int("destroyed", n).Msg("Orphan sweep finished")

	return nil
}
