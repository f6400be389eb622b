package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/casnet/casnet-backend/internal/platform/httpx"
)

// adminOrOwner is the closed set of roles that pass admin-or-owner checks.
// A new role only joins it by being listed here.
var adminOrOwner = map[Role]struct{}{
	RoleAdmin: {},
	RoleOwner: {},
}

// Service is the permission resolution engine. It combines role rows, direct
// grants and the role catalog into access decisions and mediates every write
// to those facts. Lookups return an error only for store faults; absence is
// reported through the zero value and a false flag.
type Service struct {
	store     Store
	catalog   *Catalog
	resources *ResourceRegistry
}

// NewService constructs the engine. A nil registry resolves no resources.
func NewService(store Store, catalog *Catalog, resources *ResourceRegistry) *Service {
	if resources == nil {
		resources = NewResourceRegistry()
	}
	return &Service{store: store, catalog: catalog, resources: resources}
}

// Catalog exposes the injected role catalog.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// Resources exposes the resource owner registry.
func (s *Service) Resources() *ResourceRegistry {
	return s.resources
}

// RoleInTenant returns the user's role in the tenant. ok is false when the
// user has no standing there.
func (s *Service) RoleInTenant(ctx context.Context, userID, tenantID string) (Role, bool, error) {
	utr, err := s.store.GetUserTenantRole(ctx, userID, tenantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("rbac: role in tenant: %w", err)
	}
	return utr.Role, true, nil
}

// DirectPermissions returns the permissions granted to the user individually.
func (s *Service) DirectPermissions(ctx context.Context, userID, tenantID string) (PermissionSet, error) {
	rows, err := s.store.ListDirectPermissions(ctx, userID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("rbac: direct permissions: %w", err)
	}
	set := make(PermissionSet, len(rows))
	for _, row := range rows {
		set[row.Permission] = struct{}{}
	}
	return set, nil
}

// RolePermissions returns the catalog permissions of the user's role, empty
// when the user has no role.
func (s *Service) RolePermissions(ctx context.Context, userID, tenantID string) (PermissionSet, error) {
	role, ok, err := s.RoleInTenant(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return PermissionSet{}, nil
	}
	return s.catalog.PermissionsFor(ctx, role)
}

// EffectivePermissions is the union of role-derived and direct permissions.
// Nothing is ever subtracted.
func (s *Service) EffectivePermissions(ctx context.Context, userID, tenantID string) (PermissionSet, error) {
	var rolePerms, direct PermissionSet
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rolePerms, err = s.RolePermissions(gctx, userID, tenantID)
		return err
	})
	g.Go(func() error {
		var err error
		direct, err = s.DirectPermissions(gctx, userID, tenantID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	effective := rolePerms.Clone()
	effective.Add(direct)
	return effective, nil
}

// HasPermission reports whether perm is in the user's effective set.
func (s *Service) HasPermission(ctx context.Context, userID, tenantID string, perm Permission) (bool, error) {
	effective, err := s.EffectivePermissions(ctx, userID, tenantID)
	if err != nil {
		return false, err
	}
	return effective.Has(perm), nil
}

// HasRole reports an exact role match. Direct grants never imply a role.
func (s *Service) HasRole(ctx context.Context, userID, tenantID string, role Role) (bool, error) {
	current, ok, err := s.RoleInTenant(ctx, userID, tenantID)
	if err != nil || !ok {
		return false, err
	}
	return current == role, nil
}

// IsOwner reports whether the user owns the tenant.
func (s *Service) IsOwner(ctx context.Context, userID, tenantID string) (bool, error) {
	return s.HasRole(ctx, userID, tenantID, RoleOwner)
}

// IsAdminOrOwner reports whether the user's role is ADMIN or OWNER.
func (s *Service) IsAdminOrOwner(ctx context.Context, userID, tenantID string) (bool, error) {
	role, ok, err := s.RoleInTenant(ctx, userID, tenantID)
	if err != nil || !ok {
		return false, err
	}
	_, privileged := adminOrOwner[role]
	return privileged, nil
}

// CanAccessTenant reports whether the user has any role in the tenant, even
// one that grants no permissions.
func (s *Service) CanAccessTenant(ctx context.Context, userID, tenantID string) (bool, error) {
	_, ok, err := s.RoleInTenant(ctx, userID, tenantID)
	return ok, err
}

// AccessibleTenants lists the tenants where the user holds a role, in
// assignment order.
func (s *Service) AccessibleTenants(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.store.ListRolesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: accessible tenants: %w", err)
	}
	tenants := make([]string, 0, len(rows))
	for _, row := range rows {
		tenants = append(tenants, row.TenantID)
	}
	return tenants, nil
}

// AssignRole sets the user's role in the tenant, inserting the row when the
// user had no standing. It is the only way to grant tenant access.
func (s *Service) AssignRole(ctx context.Context, userID, tenantID string, role Role) (UserTenantRole, error) {
	if !role.Valid() {
		return UserTenantRole{}, fmt.Errorf("%w: unknown role %q", httpx.ErrValidation, role)
	}
	utr, err := s.store.UpsertUserTenantRole(ctx, userID, tenantID, role)
	if err != nil {
		return UserTenantRole{}, mutationError("assign role", err)
	}
	return utr, nil
}

// AssignPermission grants perm directly. Granting an existing permission
// returns the stored row unchanged.
func (s *Service) AssignPermission(ctx context.Context, userID, tenantID string, perm Permission) (UserTenantPermission, error) {
	if !perm.Valid() {
		return UserTenantPermission{}, fmt.Errorf("%w: unknown permission %q", httpx.ErrValidation, perm)
	}
	utp, err := s.store.InsertUserTenantPermission(ctx, userID, tenantID, perm)
	if err != nil {
		return UserTenantPermission{}, mutationError("assign permission", err)
	}
	return utp, nil
}

// RemovePermission revokes one direct grant and reports whether it existed.
// Role-derived permissions are unaffected.
func (s *Service) RemovePermission(ctx context.Context, userID, tenantID string, perm Permission) (bool, error) {
	removed, err := s.store.DeleteUserTenantPermission(ctx, userID, tenantID, perm)
	if err != nil {
		return false, mutationError("remove permission", err)
	}
	return removed, nil
}

// RemoveUserFromTenant deletes the role row and every direct grant of the pair
// in one store transaction and reports whether a role row existed.
func (s *Service) RemoveUserFromTenant(ctx context.Context, userID, tenantID string) (bool, error) {
	removed, err := s.store.DeleteUserFromTenant(ctx, userID, tenantID)
	if err != nil {
		return false, mutationError("remove user from tenant", err)
	}
	return removed, nil
}

// TenantOwningResource resolves the tenant that owns a resource id by asking
// the registered collections in order.
func (s *Service) TenantOwningResource(ctx context.Context, resourceID string) (string, bool, error) {
	owner, ok, err := s.resources.Owner(ctx, resourceID)
	if err != nil || !ok {
		return "", false, err
	}
	return owner.TenantID, true, nil
}

// ResourceOwner is TenantOwningResource plus the collection the id was found in.
func (s *Service) ResourceOwner(ctx context.Context, resourceID string) (ResourceOwner, bool, error) {
	return s.resources.Owner(ctx, resourceID)
}

// TenantMembers lists the role rows of a tenant.
func (s *Service) TenantMembers(ctx context.Context, tenantID string) ([]UserTenantRole, error) {
	rows, err := s.store.ListRolesByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("rbac: tenant members: %w", err)
	}
	return rows, nil
}

// PermissionBreakdown explains where a user's permissions come from.
type PermissionBreakdown struct {
	UserID               string        `json:"user_id"`
	TenantID             string        `json:"tenant_id"`
	Role                 Role          `json:"role"`
	RolePermissions      PermissionSet `json:"role_permissions"`
	DirectPermissions    PermissionSet `json:"direct_permissions"`
	EffectivePermissions PermissionSet `json:"effective_permissions"`
}

// PermissionBreakdown returns ok=false when the user has no role in the tenant.
func (s *Service) PermissionBreakdown(ctx context.Context, userID, tenantID string) (PermissionBreakdown, bool, error) {
	role, ok, err := s.RoleInTenant(ctx, userID, tenantID)
	if err != nil || !ok {
		return PermissionBreakdown{}, false, err
	}
	rolePerms, err := s.catalog.PermissionsFor(ctx, role)
	if err != nil {
		return PermissionBreakdown{}, false, err
	}
	direct, err := s.DirectPermissions(ctx, userID, tenantID)
	if err != nil {
		return PermissionBreakdown{}, false, err
	}
	effective := rolePerms.Clone()
	effective.Add(direct)
	return PermissionBreakdown{
		UserID:               userID,
		TenantID:             tenantID,
		Role:                 role,
		RolePermissions:      rolePerms,
		DirectPermissions:    direct,
		EffectivePermissions: effective,
	}, true, nil
}

// RoleSummary counts tenant members per role.
type RoleSummary struct {
	TenantID   string `json:"tenant_id"`
	TenantName string `json:"tenant_name,omitempty"`
	TotalUsers int    `json:"total_users"`
	Owners     int    `json:"owners"`
	Admins     int    `json:"admins"`
	Users      int    `json:"users"`
}

// RoleSummary summarizes the roles held in a tenant.
func (s *Service) RoleSummary(ctx context.Context, tenantID string) (RoleSummary, error) {
	members, err := s.TenantMembers(ctx, tenantID)
	if err != nil {
		return RoleSummary{}, err
	}
	summary := RoleSummary{TenantID: tenantID, TotalUsers: len(members)}
	for _, m := range members {
		switch m.Role {
		case RoleOwner:
			summary.Owners++
		case RoleAdmin:
			summary.Admins++
		case RoleUser:
			summary.Users++
		}
	}
	return summary, nil
}

// Permission sources reported by CheckPermission.
const (
	SourceRole   = "role"
	SourceDirect = "direct"
	SourceNone   = "none"
)

// PermissionCheck is the outcome of CheckPermission.
type PermissionCheck struct {
	UserID        string     `json:"user_id"`
	TenantID      string     `json:"tenant_id"`
	Permission    Permission `json:"permission"`
	HasPermission bool       `json:"has_permission"`
	Source        string     `json:"source"`
}

// CheckPermission is HasPermission that also reports where the permission came
// from. The role wins when both sources grant it.
func (s *Service) CheckPermission(ctx context.Context, userID, tenantID string, perm Permission) (PermissionCheck, error) {
	check := PermissionCheck{UserID: userID, TenantID: tenantID, Permission: perm, Source: SourceNone}
	rolePerms, err := s.RolePermissions(ctx, userID, tenantID)
	if err != nil {
		return check, err
	}
	if rolePerms.Has(perm) {
		check.HasPermission, check.Source = true, SourceRole
		return check, nil
	}
	direct, err := s.DirectPermissions(ctx, userID, tenantID)
	if err != nil {
		return check, err
	}
	if direct.Has(perm) {
		check.HasPermission, check.Source = true, SourceDirect
	}
	return check, nil
}

// SeedCatalog stores the default catalog facts that are missing and drops the
// cached snapshot so the next lookup sees them.
func (s *Service) SeedCatalog(ctx context.Context) (int, error) {
	inserted, err := s.store.SeedRolePermissions(ctx, DefaultCatalog())
	if err != nil {
		return 0, mutationError("seed catalog", err)
	}
	s.catalog.Invalidate()
	return inserted, nil
}

// ReconcileGrants deletes direct grants older than cutoff whose pair has no
// role row, which can only exist after an interrupted cleanup.
func (s *Service) ReconcileGrants(ctx context.Context, cutoff time.Time) (int64, error) {
	removed, err := s.store.DeleteOrphanedPermissions(ctx, cutoff)
	if err != nil {
		return 0, mutationError("reconcile grants", err)
	}
	return removed, nil
}

// mutationError keeps ErrNotFound (unknown user or tenant) distinguishable and
// marks everything else as a persistence failure.
func mutationError(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("rbac: %s: %w", op, err)
	}
	return persistenceError(op, err)
}
