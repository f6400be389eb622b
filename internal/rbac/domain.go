package rbac

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/casnet/casnet-backend/internal/platform/httpx"
)

// Role is the coarse privilege tier a user holds in a tenant.
type Role string

// Roles, lowest privilege first.
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
	RoleOwner Role = "owner"
)

// Roles returns the closed role set.
func Roles() []Role {
	return []Role{RoleUser, RoleAdmin, RoleOwner}
}

// Valid reports whether r belongs to the closed role set.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleOwner:
		return true
	}
	return false
}

// ParseRole accepts a role name in any case.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", httpx.ErrValidation, raw)
	}
	return role, nil
}

// Permission is a fine-grained capability token checked per tenant.
type Permission string

// Resource permissions.
const (
	PermViewPersons   Permission = "view_persons"
	PermCreatePersons Permission = "create_persons"
	PermEditPersons   Permission = "edit_persons"
	PermDeletePersons Permission = "delete_persons"

	PermViewTasks   Permission = "view_tasks"
	PermCreateTasks Permission = "create_tasks"
	PermEditTasks   Permission = "edit_tasks"
	PermDeleteTasks Permission = "delete_tasks"

	PermViewRecords   Permission = "view_records"
	PermCreateRecords Permission = "create_records"
	PermEditRecords   Permission = "edit_records"
	PermDeleteRecords Permission = "delete_records"

	PermViewTags   Permission = "view_tags"
	PermCreateTags Permission = "create_tags"
	PermEditTags   Permission = "edit_tags"
	PermDeleteTags Permission = "delete_tags"

	PermViewCalendar   Permission = "view_calendar"
	PermCreateCalendar Permission = "create_calendar"
	PermEditCalendar   Permission = "edit_calendar"
	PermDeleteCalendar Permission = "delete_calendar"
)

// User, tenant and analytics permissions.
const (
	PermViewUsers         Permission = "view_users"
	PermManageUsers       Permission = "manage_users"
	PermAssignRoles       Permission = "assign_roles"
	PermManagePermissions Permission = "manage_permissions"

	PermManageTenant Permission = "manage_tenant"
	PermDeleteTenant Permission = "delete_tenant"

	PermViewAnalytics Permission = "view_analytics"
)

var permissionCategories = map[Permission]string{
	PermViewPersons: "persons", PermCreatePersons: "persons", PermEditPersons: "persons", PermDeletePersons: "persons",
	PermViewTasks: "tasks", PermCreateTasks: "tasks", PermEditTasks: "tasks", PermDeleteTasks: "tasks",
	PermViewRecords: "records", PermCreateRecords: "records", PermEditRecords: "records", PermDeleteRecords: "records",
	PermViewTags: "tags", PermCreateTags: "tags", PermEditTags: "tags", PermDeleteTags: "tags",
	PermViewCalendar: "calendar", PermCreateCalendar: "calendar", PermEditCalendar: "calendar", PermDeleteCalendar: "calendar",
	PermViewUsers: "users", PermManageUsers: "users", PermAssignRoles: "users", PermManagePermissions: "users",
	PermManageTenant: "tenant", PermDeleteTenant: "tenant",
	PermViewAnalytics: "analytics",
}

// Permissions returns the closed permission set in a stable order.
func Permissions() []Permission {
	out := make([]Permission, 0, len(permissionCategories))
	for p := range permissionCategories {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Valid reports whether p belongs to the closed permission set.
func (p Permission) Valid() bool {
	_, ok := permissionCategories[p]
	return ok
}

// Category groups the permission by the resource or area it governs.
func (p Permission) Category() string {
	return permissionCategories[p]
}

// ParsePermission accepts a permission name in any case.
func ParsePermission(raw string) (Permission, error) {
	perm := Permission(strings.ToLower(strings.TrimSpace(raw)))
	if !perm.Valid() {
		return "", fmt.Errorf("%w: unknown permission %q", httpx.ErrValidation, raw)
	}
	return perm, nil
}

// PermissionSet is an unordered set of permissions.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from the given permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Has reports membership.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Add inserts every permission of other into s.
func (s PermissionSet) Add(other PermissionSet) {
	for p := range other {
		s[p] = struct{}{}
	}
}

// Clone returns an independent copy.
func (s PermissionSet) Clone() PermissionSet {
	out := make(PermissionSet, len(s))
	out.Add(s)
	return out
}

// Sorted returns the members in lexical order.
func (s PermissionSet) Sorted() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// RolePermission states that every holder of Role is granted Permission.
type RolePermission struct {
	ID         string     `json:"id"`
	Role       Role       `json:"role"`
	Permission Permission `json:"permission"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// UserTenantRole is the single role a user holds in a tenant.
type UserTenantRole struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TenantID  string    `json:"tenant_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserTenantPermission is a permission granted directly to a user in a tenant.
type UserTenantPermission struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	TenantID   string     `json:"tenant_id"`
	Permission Permission `json:"permission"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
