package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfeidau/projectkeeper/internal/store"
)

const defaultListLimit = 100

// NewStores creates the PostgreSQL-backed relational stores sharing one pool.
func NewStores(pool *pgxpool.Pool) *store.Stores {
	return &store.Stores{
		Tenants:     NewTenantStore(pool),
		Users:       NewUserStore(pool),
		Resources:   NewResourceStore(pool),
		AccessCodes: NewAccessCodeStore(pool),
		Revisions:   NewRevisionStore(pool),
		UsageLogs:   NewUsageLogStore(pool),

		DeletionLedger: NewDeletionLedgerStore(pool),
	}
}

// withTx runs fn in a transaction, committing when fn returns nil.
func withTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapPostgresError(err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapPostgresError(err))
	}
	return nil
}
