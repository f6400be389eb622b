package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/casnet/casnet-backend/internal/platform/db"
	"github.com/casnet/casnet-backend/internal/platform/httpx"
)

// ErrNotFound indicates the user does not exist.
var ErrNotFound = fmt.Errorf("users: %w", httpx.ErrNotFound)

// ErrNameTaken indicates the login name is already registered.
var ErrNameTaken = fmt.Errorf("users: name already registered: %w", httpx.ErrDuplicate)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a user with an already hashed password.
func (r *Repository) Create(ctx context.Context, name, passwordHash string) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx, `INSERT INTO users (id, name, password_hash) VALUES ($1, $2, $3)
		RETURNING id, name, created_at, updated_at`, uuid.NewString(), name, passwordHash).
		Scan(&user.ID, &user.Name, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return User{}, ErrNameTaken
		}
		return User{}, err
	}
	return user, nil
}

// Get fetches a user by id.
func (r *Repository) Get(ctx context.Context, id string) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx, `SELECT id, name, created_at, updated_at FROM users WHERE id = $1`, id).
		Scan(&user.ID, &user.Name, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

// Delete removes a user. Role rows and direct grants go with it through the
// ON DELETE CASCADE foreign keys.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

var _ RepositoryPort = (*Repository)(nil)
