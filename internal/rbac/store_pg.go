package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/casnet/casnet-backend/internal/platform/db"
)

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PGStore backed by the provided pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

var _ Store = (*PGStore)(nil)

const (
	roleColumns       = `id, user_id, tenant_id, role, created_at, updated_at`
	permissionColumns = `id, user_id, tenant_id, permission, created_at, updated_at`
)

// ListRolePermissions returns every catalog fact.
func (s *PGStore) ListRolePermissions(ctx context.Context) ([]RolePermission, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, role, permission, created_at, updated_at FROM role_permissions ORDER BY role, permission`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var facts []RolePermission
	for rows.Next() {
		var fact RolePermission
		if err := rows.Scan(&fact.ID, &fact.Role, &fact.Permission, &fact.CreatedAt, &fact.UpdatedAt); err != nil {
			return nil, err
		}
		facts = append(facts, fact)
	}
	return facts, rows.Err()
}

// SeedRolePermissions inserts missing facts in one transaction.
func (s *PGStore) SeedRolePermissions(ctx context.Context, facts []RolePermission) (int, error) {
	inserted := 0
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, fact := range facts {
			batch.Queue(`INSERT INTO role_permissions (id, role, permission) VALUES ($1, $2, $3)
				ON CONFLICT (role, permission) DO NOTHING`, uuid.NewString(), fact.Role, fact.Permission)
		}
		results := tx.SendBatch(ctx, batch)
		for range facts {
			tag, err := results.Exec()
			if err != nil {
				_ = results.Close()
				return err
			}
			inserted += int(tag.RowsAffected())
		}
		return results.Close()
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// GetUserTenantRole fetches the role row of a pair.
func (s *PGStore) GetUserTenantRole(ctx context.Context, userID, tenantID string) (UserTenantRole, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM user_tenant_roles WHERE user_id = $1 AND tenant_id = $2`, userID, tenantID)
	utr, err := scanRole(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserTenantRole{}, ErrNotFound
	}
	return utr, err
}

// ListRolesByUser returns every role row of a user.
func (s *PGStore) ListRolesByUser(ctx context.Context, userID string) ([]UserTenantRole, error) {
	return s.listRoles(ctx, `SELECT `+roleColumns+` FROM user_tenant_roles WHERE user_id = $1 ORDER BY created_at, tenant_id`, userID)
}

// ListRolesByTenant returns every role row of a tenant.
func (s *PGStore) ListRolesByTenant(ctx context.Context, tenantID string) ([]UserTenantRole, error) {
	return s.listRoles(ctx, `SELECT `+roleColumns+` FROM user_tenant_roles WHERE tenant_id = $1 ORDER BY created_at, user_id`, tenantID)
}

func (s *PGStore) listRoles(ctx context.Context, query string, arg string) ([]UserTenantRole, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UserTenantRole
	for rows.Next() {
		utr, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, utr)
	}
	return out, rows.Err()
}

// ListDirectPermissions returns the direct grants of a pair.
func (s *PGStore) ListDirectPermissions(ctx context.Context, userID, tenantID string) ([]UserTenantPermission, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+permissionColumns+` FROM user_tenant_permissions
		WHERE user_id = $1 AND tenant_id = $2 ORDER BY permission`, userID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UserTenantPermission
	for rows.Next() {
		utp, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, utp)
	}
	return out, rows.Err()
}

// UpsertUserTenantRole relies on the (user_id, tenant_id) unique constraint so
// concurrent writers for the same pair serialize on the row.
func (s *PGStore) UpsertUserTenantRole(ctx context.Context, userID, tenantID string, role Role) (UserTenantRole, error) {
	row := s.pool.QueryRow(ctx, `INSERT INTO user_tenant_roles (id, user_id, tenant_id, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, tenant_id) DO UPDATE SET role = EXCLUDED.role, updated_at = now()
		RETURNING `+roleColumns, uuid.NewString(), userID, tenantID, role)
	utr, err := scanRole(row)
	if db.IsForeignKeyViolation(err) {
		return UserTenantRole{}, fmt.Errorf("%w: unknown user or tenant", ErrNotFound)
	}
	return utr, err
}

// InsertUserTenantPermission is idempotent: the no-op update makes RETURNING
// yield the existing row.
func (s *PGStore) InsertUserTenantPermission(ctx context.Context, userID, tenantID string, perm Permission) (UserTenantPermission, error) {
	row := s.pool.QueryRow(ctx, `INSERT INTO user_tenant_permissions (id, user_id, tenant_id, permission)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, tenant_id, permission) DO UPDATE SET permission = EXCLUDED.permission
		RETURNING `+permissionColumns, uuid.NewString(), userID, tenantID, perm)
	utp, err := scanPermission(row)
	if db.IsForeignKeyViolation(err) {
		return UserTenantPermission{}, fmt.Errorf("%w: unknown user or tenant", ErrNotFound)
	}
	return utp, err
}

// DeleteUserTenantPermission removes one direct grant.
func (s *PGStore) DeleteUserTenantPermission(ctx context.Context, userID, tenantID string, perm Permission) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM user_tenant_permissions WHERE user_id = $1 AND tenant_id = $2 AND permission = $3`,
		userID, tenantID, perm)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteUserFromTenant deletes the role row and the grants in one transaction.
func (s *PGStore) DeleteUserFromTenant(ctx context.Context, userID, tenantID string) (bool, error) {
	var removed bool
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM user_tenant_roles WHERE user_id = $1 AND tenant_id = $2`, userID, tenantID)
		if err != nil {
			return err
		}
		removed = tag.RowsAffected() > 0
		_, err = tx.Exec(ctx, `DELETE FROM user_tenant_permissions WHERE user_id = $1 AND tenant_id = $2`, userID, tenantID)
		return err
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// DeleteOrphanedPermissions removes grants without a role row.
func (s *PGStore) DeleteOrphanedPermissions(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM user_tenant_permissions p
		WHERE p.created_at < $1
		AND NOT EXISTS (
			SELECT 1 FROM user_tenant_roles r WHERE r.user_id = p.user_id AND r.tenant_id = p.tenant_id
		)`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// TableLookup resolves the owning tenant of a row in a tenant-scoped table
// that has id and tenant_id columns.
func TableLookup(q Querier, table string) ResourceLookup {
	query := `SELECT tenant_id FROM ` + pgx.Identifier{table}.Sanitize() + ` WHERE id = $1`
	return func(ctx context.Context, id string) (string, bool, error) {
		var tenantID string
		if err := q.QueryRow(ctx, query, id).Scan(&tenantID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return "", false, nil
			}
			return "", false, fmt.Errorf("rbac: lookup %s: %w", table, err)
		}
		return tenantID, true, nil
	}
}

func scanRole(row pgx.Row) (UserTenantRole, error) {
	var utr UserTenantRole
	err := row.Scan(&utr.ID, &utr.UserID, &utr.TenantID, &utr.Role, &utr.CreatedAt, &utr.UpdatedAt)
	return utr, err
}

func scanPermission(row pgx.Row) (UserTenantPermission, error) {
	var utp UserTenantPermission
	err := row.Scan(&utp.ID, &utp.UserID, &utp.TenantID, &utp.Permission, &utp.CreatedAt, &utp.UpdatedAt)
	return utp, err
}
