package repositories

import (
	"context"
	"strings"
	"time"

	"github.com/chainlance/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) UpsertByAddress(ctx context.Context, address string, displayName *string) (*models.User, error) {
	var u models.User
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (address, display_name)
		VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET
			display_name = COALESCE(EXCLUDED.display_name, users.display_name),
			last_active_at = now()
		RETURNING id, address, display_name, created_at, last_active_at
	`, strings.ToLower(address), displayName).Scan(
		&u.ID, &u.Address, &u.DisplayName, &u.CreatedAt, &u.LastActiveAt,
	)
	return &u, err
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := r.pool.QueryRow(ctx, `
		SELECT id, address, display_name, created_at, last_active_at
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Address, &u.DisplayName, &u.CreatedAt, &u.LastActiveAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) GetByAddress(ctx context.Context, address string) (*models.User, error) {
	var u models.User
	err := r.pool.QueryRow(ctx, `
		SELECT id, address, display_name, created_at, last_active_at
		FROM users WHERE address = $1
	`, strings.ToLower(address)).Scan(&u.ID, &u.Address, &u.DisplayName, &u.CreatedAt, &u.LastActiveAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) UpdateLastActive(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_active_at = $1 WHERE id = $2`, time.Now(), id)
	return err
}
