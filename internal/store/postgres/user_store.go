package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/projectkeeper/internal/models"
	"github.com/wolfeidau/projectkeeper/internal/store"
)

const userColumns = `user_id, tenant_id, name, email, protected, created_at, updated_at`

// UserStore implements store.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new PostgreSQL-backed user store.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// Create creates a new user.
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (` + userColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		user.UserID,
		user.TenantID,
		user.Name,
		user.Email,
		user.Protected,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", mapPostgresError(err))
	}

	return nil
}

// Get retrieves a user by ID.
func (s *UserStore) Get(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`

	user, err := scanUser(s.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", mapPostgresError(err))
	}

	return user, nil
}

// ListByTenant returns every user of a tenant ordered by creation.
func (s *UserStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE tenant_id = $1 ORDER BY created_at, user_id`

	rows, err := s.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", mapPostgresError(err))
	}

	return users, nil
}

// Delete removes a user. The protected check and delete happen in one statement.
func (s *UserStore) Delete(ctx context.Context, userID uuid.UUID, force bool) error {
	result, err := s.pool.Exec(ctx,
		`DELETE FROM users WHERE user_id = $1 AND (NOT protected OR $2)`,
		userID, force,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 1 {
		log.Debug().Str("user_id", userID.String()).Bool("force", force).Msg("Deleted user")
		return nil
	}

	var protected bool
	err = s.pool.QueryRow(ctx, `SELECT protected FROM users WHERE user_id = $1`, userID).Scan(&protected)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", mapPostgresError(err))
	}

	return store.ErrUserProtected
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.UserID, &u.TenantID, &u.Name, &u.Email, &u.Protected, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}
