package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	postgresstore "github.com/wolfeidau/projectkeeper/internal/store/postgres"
)

type MigrateCmd struct {
	Postgres PostgresFlags `embed:"" prefix:"postgres-"`
}

func (m *MigrateCmd) Run(ctx context.Context, globals *Globals) error {
	if err := m.Postgres.Validate(); err != nil {
		return err
	}

	pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
		ConnString: m.Postgres.ConnString,
		MaxConns:   m.Postgres.MaxConns,
		MinConns:   m.Postgres.MinConns,
	})
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	if err := postgresstore.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info().Msg("Migrations applied")

	return nil
}
