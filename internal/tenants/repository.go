package tenants

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/casnet/casnet-backend/internal/platform/httpx"
)

// ErrNotFound indicates the tenant does not exist.
var ErrNotFound = fmt.Errorf("tenants: %w", httpx.ErrNotFound)

// Repository defines tenant persistence.
type Repository interface {
	Create(ctx context.Context, in Input) (Tenant, error)
	Get(ctx context.Context, id string) (Tenant, error)
	ListByIDs(ctx context.Context, ids []string) ([]Tenant, error)
	Update(ctx context.Context, id string, in Input) (Tenant, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const tenantColumns = `id, name, description, status, created_at, updated_at`

// Create inserts a tenant.
func (r *PGRepository) Create(ctx context.Context, in Input) (Tenant, error) {
	status := StatusActive
	if in.Status != nil {
		status = *in.Status
	}
	row := r.pool.QueryRow(ctx, `INSERT INTO tenants (id, name, description, status) VALUES ($1, $2, $3, $4)
		RETURNING `+tenantColumns, uuid.NewString(), in.Name, in.Description, status)
	return scanTenant(row)
}

// Get fetches a tenant by id.
func (r *PGRepository) Get(ctx context.Context, id string) (Tenant, error) {
	t, err := scanTenant(r.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Tenant{}, ErrNotFound
	}
	return t, err
}

// ListByIDs returns the tenants among ids ordered by name.
func (r *PGRepository) ListByIDs(ctx context.Context, ids []string) ([]Tenant, error) {
	if len(ids) == 0 {
		return []Tenant{}, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = ANY($1) ORDER BY name, id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Tenant, 0, len(ids))
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Update overwrites name and description and, when given, status.
func (r *PGRepository) Update(ctx context.Context, id string, in Input) (Tenant, error) {
	t, err := scanTenant(r.pool.QueryRow(ctx, `UPDATE tenants
		SET name = $2, description = $3, status = COALESCE($4, status), updated_at = now()
		WHERE id = $1 RETURNING `+tenantColumns, id, in.Name, in.Description, in.Status))
	if errors.Is(err, pgx.ErrNoRows) {
		return Tenant{}, ErrNotFound
	}
	return t, err
}

// Delete removes a tenant. Role rows, grants and tenant-scoped resources are
// removed by ON DELETE CASCADE.
func (r *PGRepository) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanTenant(row pgx.Row) (Tenant, error) {
	var t Tenant
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

var _ Repository = (*PGRepository)(nil)
