package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfeidau/projectkeeper/internal/models"
	"github.com/wolfeidau/projectkeeper/internal/store"
)

const accessCodeColumns = `access_code_id, resource_id, tenant_id, name, code,
	is_preview, is_public, online, deletable, deleted_at, created_at`

// AccessCodeStore implements store.AccessCodeStore using PostgreSQL.
// Live code uniqueness and the single live preview are partial unique indexes.
type AccessCodeStore struct {
	pool *pgxpool.Pool
}

// NewAccessCodeStore creates a new PostgreSQL-backed access code store.
func NewAccessCodeStore(pool *pgxpool.Pool) *AccessCodeStore {
	return &AccessCodeStore{pool: pool}
}

// Create inserts a code, mapping index violations to ErrAccessCodeConflict or ErrPreviewCodeExists.
func (s *AccessCodeStore) Create(ctx context.Context, code *models.AccessCode) error {
	query := `INSERT INTO access_codes (` + accessCodeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.pool.Exec(ctx, query,
		code.AccessCodeID,
		code.ResourceID,
		code.TenantID,
		code.Name,
		code.Code,
		code.IsPreview,
		code.IsPublic,
		code.Online,
		code.Deletable,
		code.DeletedAt,
		code.CreatedAt,
	)
	if err != nil {
		mapped := mapPostgresError(err)
		if errors.Is(mapped, store.ErrAccessCodeConflict) ||
			errors.Is(mapped, store.ErrPreviewCodeExists) ||
			errors.Is(mapped, store.ErrResourceNotFound) {
			return mapped
		}
		return fmt.Errorf("failed to create access code: %w", mapped)
	}

	return nil
}

// CodeExists reports whether a live code with this value exists.
func (s *AccessCodeStore) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM access_codes WHERE code = $1 AND deleted_at IS NULL)`,
		code,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check access code: %w", mapPostgresError(err))
	}
	return exists, nil
}

// GetPreview returns the live preview code of a resource.
func (s *AccessCodeStore) GetPreview(ctx context.Context, resourceID uuid.UUID) (*models.AccessCode, error) {
	query := `SELECT ` + accessCodeColumns + ` FROM access_codes
		WHERE resource_id = $1 AND is_preview AND deleted_at IS NULL`

	code, err := scanAccessCode(s.pool.QueryRow(ctx, query, resourceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrAccessCodeNotFound
		}
		return nil, fmt.Errorf("failed to get preview code: %w", mapPostgresError(err))
	}
	return code, nil
}

// ListByResource returns the codes of a resource ordered by creation.
func (s *AccessCodeStore) ListByResource(ctx context.Context, resourceID uuid.UUID, includeDeleted bool) ([]*models.AccessCode, error) {
	query := `SELECT ` + accessCodeColumns + ` FROM access_codes
		WHERE resource_id = $1 AND ($2 OR deleted_at IS NULL)
		ORDER BY created_at, access_code_id`

	rows, err := s.pool.Query(ctx, query, resourceID, includeDeleted)
	if err != nil {
		return nil, fmt.Errorf("failed to list access codes: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var codes []*models.AccessCode
	for rows.Next() {
		code, err := scanAccessCode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan access code: %w", err)
		}
		codes = append(codes, code)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list access codes: %w", mapPostgresError(err))
	}

	return codes, nil
}

// CountLive returns the number of live codes of a resource.
func (s *AccessCodeStore) CountLive(ctx context.Context, resourceID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM access_codes WHERE resource_id = $1 AND deleted_at IS NULL`,
		resourceID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count access codes: %w", mapPostgresError(err))
	}
	return n, nil
}

// DeleteByResource removes every code of a resource.
func (s *AccessCodeStore) DeleteByResource(ctx context.Context, resourceID uuid.UUID) (int64, error) {
	result, err := s.pool.Exec(ctx, `DELETE FROM access_codes WHERE resource_id = $1`, resourceID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete access codes: %w", mapPostgresError(err))
	}
	return result.RowsAffected(), nil
}

func scanAccessCode(row pgx.Row) (*models.AccessCode, error) {
	var c models.AccessCode
	err := row.Scan(
		&c.AccessCodeID,
		&c.ResourceID,
		&c.TenantID,
		&c.Name,
		&c.Code,
		&c.IsPreview,
		&c.IsPublic,
		&c.Online,
		&c.Deletable,
		&c.DeletedAt,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
