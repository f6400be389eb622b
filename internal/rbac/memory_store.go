package rbac

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type pairKey struct {
	userID   string
	tenantID string
}

// MemoryStore is an in-process Store. All methods are safe for concurrent use;
// writes for the same pair are serialized by the store mutex.
type MemoryStore struct {
	mu          sync.RWMutex
	now         func() time.Time
	catalog     map[Role]map[Permission]RolePermission
	roles       map[pairKey]UserTenantRole
	permissions map[pairKey]map[Permission]UserTenantPermission
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:         time.Now,
		catalog:     make(map[Role]map[Permission]RolePermission),
		roles:       make(map[pairKey]UserTenantRole),
		permissions: make(map[pairKey]map[Permission]UserTenantPermission),
	}
}

var _ Store = (*MemoryStore)(nil)

// ListRolePermissions implements CatalogSource.
func (m *MemoryStore) ListRolePermissions(context.Context) ([]RolePermission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []RolePermission
	for _, perms := range m.catalog {
		for _, fact := range perms {
			out = append(out, fact)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Role != out[j].Role {
			return out[i].Role < out[j].Role
		}
		return out[i].Permission < out[j].Permission
	})
	return out, nil
}

// SeedRolePermissions adds facts that are not present yet.
func (m *MemoryStore) SeedRolePermissions(_ context.Context, facts []RolePermission) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inserted := 0
	for _, fact := range facts {
		perms, ok := m.catalog[fact.Role]
		if !ok {
			perms = make(map[Permission]RolePermission)
			m.catalog[fact.Role] = perms
		}
		if _, exists := perms[fact.Permission]; exists {
			continue
		}
		now := m.now()
		perms[fact.Permission] = RolePermission{
			ID:         uuid.NewString(),
			Role:       fact.Role,
			Permission: fact.Permission,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		inserted++
	}
	return inserted, nil
}

// GetUserTenantRole implements Store.
func (m *MemoryStore) GetUserTenantRole(_ context.Context, userID, tenantID string) (UserTenantRole, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	utr, ok := m.roles[pairKey{userID, tenantID}]
	if !ok {
		return UserTenantRole{}, ErrNotFound
	}
	return utr, nil
}

// ListRolesByUser implements Store.
func (m *MemoryStore) ListRolesByUser(_ context.Context, userID string) ([]UserTenantRole, error) {
	return m.filterRoles(func(k pairKey) bool { return k.userID == userID }), nil
}

// ListRolesByTenant implements Store.
func (m *MemoryStore) ListRolesByTenant(_ context.Context, tenantID string) ([]UserTenantRole, error) {
	return m.filterRoles(func(k pairKey) bool { return k.tenantID == tenantID }), nil
}

func (m *MemoryStore) filterRoles(match func(pairKey) bool) []UserTenantRole {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []UserTenantRole
	for key, utr := range m.roles {
		if match(key) {
			out = append(out, utr)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListDirectPermissions implements Store.
func (m *MemoryStore) ListDirectPermissions(_ context.Context, userID, tenantID string) ([]UserTenantPermission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	grants := m.permissions[pairKey{userID, tenantID}]
	out := make([]UserTenantPermission, 0, len(grants))
	for _, utp := range grants {
		out = append(out, utp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Permission < out[j].Permission })
	return out, nil
}

// UpsertUserTenantRole implements Store.
func (m *MemoryStore) UpsertUserTenantRole(_ context.Context, userID, tenantID string, role Role) (UserTenantRole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey{userID, tenantID}
	now := m.now()
	utr, ok := m.roles[key]
	if ok {
		utr.Role = role
		utr.UpdatedAt = now
	} else {
		utr = UserTenantRole{
			ID:        uuid.NewString(),
			UserID:    userID,
			TenantID:  tenantID,
			Role:      role,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	m.roles[key] = utr
	return utr, nil
}

// InsertUserTenantPermission implements Store.
func (m *MemoryStore) InsertUserTenantPermission(_ context.Context, userID, tenantID string, perm Permission) (UserTenantPermission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey{userID, tenantID}
	grants, ok := m.permissions[key]
	if !ok {
		grants = make(map[Permission]UserTenantPermission)
		m.permissions[key] = grants
	}
	if utp, exists := grants[perm]; exists {
		return utp, nil
	}
	now := m.now()
	utp := UserTenantPermission{
		ID:         uuid.NewString(),
		UserID:     userID,
		TenantID:   tenantID,
		Permission: perm,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	grants[perm] = utp
	return utp, nil
}

// DeleteUserTenantPermission implements Store.
func (m *MemoryStore) DeleteUserTenantPermission(_ context.Context, userID, tenantID string, perm Permission) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey{userID, tenantID}
	grants := m.permissions[key]
	if _, ok := grants[perm]; !ok {
		return false, nil
	}
	delete(grants, perm)
	if len(grants) == 0 {
		delete(m.permissions, key)
	}
	return true, nil
}

// DeleteUserFromTenant implements Store.
func (m *MemoryStore) DeleteUserFromTenant(_ context.Context, userID, tenantID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey{userID, tenantID}
	_, existed := m.roles[key]
	delete(m.roles, key)
	delete(m.permissions, key)
	return existed, nil
}

// DeleteOrphanedPermissions implements Store.
func (m *MemoryStore) DeleteOrphanedPermissions(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for key, grants := range m.permissions {
		if _, ok := m.roles[key]; ok {
			continue
		}
		for perm, utp := range grants {
			if utp.CreatedAt.Before(cutoff) {
				delete(grants, perm)
				removed++
			}
		}
		if len(grants) == 0 {
			delete(m.permissions, key)
		}
	}
	return removed, nil
}

// DeleteTenant drops every role row and grant of a tenant, mirroring the
// ON DELETE CASCADE of the relational schema.
func (m *MemoryStore) DeleteTenant(tenantID string) {
	m.deleteWhere(func(k pairKey) bool { return k.tenantID == tenantID })
}

// DeleteUser drops every role row and grant of a user.
func (m *MemoryStore) DeleteUser(userID string) {
	m.deleteWhere(func(k pairKey) bool { return k.userID == userID })
}

func (m *MemoryStore) deleteWhere(match func(pairKey) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.roles {
		if match(key) {
			delete(m.roles, key)
		}
	}
	for key := range m.permissions {
		if match(key) {
			delete(m.permissions, key)
		}
	}
}
