package users

import (
	"time"

	"github.com/casnet/casnet-backend/internal/rbac"
)

// User represents a user account.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TenantAccess describes the caller's standing in one tenant.
type TenantAccess struct {
	TenantID             string             `json:"tenant_id"`
	Role                 rbac.Role          `json:"role"`
	EffectivePermissions rbac.PermissionSet `json:"effective_permissions"`
}

// Profile is a user with every tenant they can access.
type Profile struct {
	User
	Tenants      []string       `json:"tenants"`
	TenantAccess []TenantAccess `json:"tenant_access"`
}
