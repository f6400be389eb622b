package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/casnet/casnet-backend/internal/platform/httpx"
)

// ErrNotFound indicates that the requested row, user or tenant does not exist.
var ErrNotFound = fmt.Errorf("rbac: %w", httpx.ErrNotFound)

// Store is the Identity Store: the system of record for role assignments and
// direct grants. Uniqueness of (role, permission), (user, tenant) role rows and
// (user, tenant, permission) grants is enforced here, not in the engine.
type Store interface {
	CatalogSource

	// SeedRolePermissions inserts missing facts and reports how many were added.
	SeedRolePermissions(ctx context.Context, facts []RolePermission) (int, error)

	// GetUserTenantRole returns ErrNotFound when the pair has no role row.
	GetUserTenantRole(ctx context.Context, userID, tenantID string) (UserTenantRole, error)
	ListRolesByUser(ctx context.Context, userID string) ([]UserTenantRole, error)
	ListRolesByTenant(ctx context.Context, tenantID string) ([]UserTenantRole, error)
	ListDirectPermissions(ctx context.Context, userID, tenantID string) ([]UserTenantPermission, error)

	// UpsertUserTenantRole overwrites the role of an existing row or inserts one.
	UpsertUserTenantRole(ctx context.Context, userID, tenantID string, role Role) (UserTenantRole, error)
	// InsertUserTenantPermission returns the existing row unchanged when present.
	InsertUserTenantPermission(ctx context.Context, userID, tenantID string, perm Permission) (UserTenantPermission, error)
	DeleteUserTenantPermission(ctx context.Context, userID, tenantID string, perm Permission) (bool, error)
	// DeleteUserFromTenant removes the role row and every direct grant of the
	// pair atomically and reports whether a role row existed.
	DeleteUserFromTenant(ctx context.Context, userID, tenantID string) (bool, error)
	// DeleteOrphanedPermissions removes grants created before cutoff whose pair
	// has no role row.
	DeleteOrphanedPermissions(ctx context.Context, cutoff time.Time) (int64, error)
}
