package tags

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

// ErrNotFound indicates the tag does not exist.
var ErrNotFound = fmt.Errorf("tags: %w", httpx.ErrNotFound)

// Repository defines tag persistence.
type Repository interface {
	List(ctx context.Context, tenantID string, limit, offset int) ([]Tag, int, error)
	Create(ctx context.Context, tenantID string, in CreateInput) (Tag, error)
	Get(ctx context.Context, id string) (Tag, error)
	Update(ctx context.Context, id string, in UpdateInput) (Tag, error)
	Delete(ctx context.Context, id string) (Tag, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const tagColumns = `id, tenant_id, name, description, color, category, usage_count, is_active, created_at, updated_at`

// List returns one page of a tenant's tags and the tenant's total count.
func (r *PGRepository) List(ctx context.Context, tenantID string, limit, offset int) ([]Tag, int, error) {
	var (
		out   []Tag
		total int
	)
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM tags WHERE tenant_id = $1`, tenantID).Scan(&total); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT `+tagColumns+` FROM tags WHERE tenant_id = $1
			ORDER BY created_at, id LIMIT $2 OFFSET $3`, tenantID, limit, offset)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = make([]Tag, 0, limit)
		for rows.Next() {
			t, err := scanTag(rows)
			if err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Create inserts a tag in tenantID.
func (r *PGRepository) Create(ctx context.Context, tenantID string, in CreateInput) (Tag, error) {
	t, err := scanTag(r.pool.QueryRow(ctx, `INSERT INTO tags (id, tenant_id, name, description, color, category)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+tagColumns,
		uuid.NewString(), tenantID, in.Name, in.Description, in.Color, in.Category))
	if db.IsForeignKeyViolation(err) {
		return Tag{}, fmt.Errorf("tags: unknown tenant: %w", httpx.ErrNotFound)
	}
	return t, err
}

// Get fetches a tag by id.
func (r *PGRepository) Get(ctx context.Context, id string) (Tag, error) {
	t, err := scanTag(r.pool.QueryRow(ctx, `SELECT `+tagColumns+` FROM tags WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Tag{}, ErrNotFound
	}
	return t, err
}

// Update applies the non-nil fields of in.
func (r *PGRepository) Update(ctx context.Context, id string, in UpdateInput) (Tag, error) {
	t, err := scanTag(r.pool.QueryRow(ctx, `UPDATE tags SET
			name = COALESCE($2, name),
			description = COALESCE($3, description),
			color = COALESCE($4, color),
			category = COALESCE($5, category),
			is_active = COALESCE($6, is_active),
			updated_at = now()
		WHERE id = $1 RETURNING `+tagColumns,
		id, in.Name, in.Description, in.Color, in.Category, in.IsActive))
	if errors.Is(err, pgx.ErrNoRows) {
		return Tag{}, ErrNotFound
	}
	return t, err
}

// Delete removes a tag and returns it as it was.
func (r *PGRepository) Delete(ctx context.Context, id string) (Tag, error) {
	t, err := scanTag(r.pool.QueryRow(ctx, `DELETE FROM tags WHERE id = $1 RETURNING `+tagColumns, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Tag{}, ErrNotFound
	}
	return t, err
}

func scanTag(row pgx.Row) (Tag, error) {
	var t Tag
	err := row.Scan(&t.ID, &t.TenantID, &t.Name, &t.Description, &t.Color, &t.Category,
		&t.UsageCount, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

var _ Repository = (*PGRepository)(nil)
