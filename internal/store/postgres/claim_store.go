package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ClaimStore implements store.ClaimStore with one row per tenant in teardown_claims.
type ClaimStore struct {
	pool *pgxpool.Pool
}

// NewClaimStore creates a new PostgreSQL-backed claim store.
func NewClaimStore(pool *pgxpool.Pool) *ClaimStore {
	return &ClaimStore{pool: pool}
}

// Claim takes the marker unless a different owner holds an unexpired one.
func (s *ClaimStore) Claim(ctx context.Context, tenantID uuid.UUID, owner string, ttl time.Duration) (bool, error) {
	var holder string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO teardown_claims (tenant_id, owner, expires_at)
		VALUES ($1, $2, NOW() + $3 * INTERVAL '1 millisecond')
		ON CONFLICT (tenant_id) DO UPDATE
			SET owner = EXCLUDED.owner, expires_at = EXCLUDED.expires_at
			WHERE teardown_claims.owner = EXCLUDED.owner OR teardown_claims.expires_at < NOW()
		RETURNING owner
	`, tenantID, owner, ttl.Milliseconds()).Scan(&holder)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to claim tenant: %w", mapPostgresError(err))
	}

	return true, nil
}

// Release drops the marker if owner still holds it.
func (s *ClaimStore) Release(ctx context.Context, tenantID uuid.UUID, owner string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM teardown_claims WHERE tenant_id = $1 AND owner = $2`, tenantID, owner)
	if err != nil {
		return fmt.Errorf("failed to release claim: %w", mapPostgresError(err))
	}
	return nil
}
