package rbac

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// CatalogSource yields the RolePermission facts the catalog is built from.
type CatalogSource interface {
	ListRolePermissions(ctx context.Context) ([]RolePermission, error)
}

// StaticSource serves a fixed list of facts. Useful for tests and for
// deployments that keep the catalog in code.
type StaticSource []RolePermission

// ListRolePermissions implements CatalogSource.
func (s StaticSource) ListRolePermissions(context.Context) ([]RolePermission, error) {
	out := make([]RolePermission, len(s))
	copy(out, s)
	return out, nil
}

// Catalog answers "which permissions does role R grant" from an in-memory
// snapshot. The snapshot is built lazily on first use and kept until
// Invalidate is called; edits to the underlying facts are not observed before
// that.
type Catalog struct {
	source CatalogSource
	group  singleflight.Group

	mu         sync.RWMutex
	byRole     map[Role]PermissionSet
	generation uint64
}

// NewCatalog constructs a catalog over source.
func NewCatalog(source CatalogSource) *Catalog {
	return &Catalog{source: source}
}

// PermissionsFor returns a copy of the permissions granted to role. A role
// without catalog entries yields an empty set.
func (c *Catalog) PermissionsFor(ctx context.Context, role Role) (PermissionSet, error) {
	snapshot, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	set, ok := snapshot[role]
	if !ok {
		return PermissionSet{}, nil
	}
	return set.Clone(), nil
}

// Snapshot returns a copy of the full role to permission mapping.
func (c *Catalog) Snapshot(ctx context.Context) (map[Role]PermissionSet, error) {
	snapshot, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[Role]PermissionSet, len(snapshot))
	for role, set := range snapshot {
		out[role] = set.Clone()
	}
	return out, nil
}

// Load rebuilds the snapshot from the source immediately.
func (c *Catalog) Load(ctx context.Context) error {
	c.Invalidate()
	_, err := c.snapshot(ctx)
	return err
}

// Invalidate drops the snapshot; the next lookup reloads it.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.byRole = nil
	c.generation++
	c.mu.Unlock()
}

func (c *Catalog) snapshot(ctx context.Context) (map[Role]PermissionSet, error) {
	c.mu.RLock()
	byRole, gen := c.byRole, c.generation
	c.mu.RUnlock()
	if byRole != nil {
		return byRole, nil
	}

	// The load is shared, so it must outlive any single caller's cancellation.
	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(strconv.FormatUint(gen, 10), func() (interface{}, error) {
		facts, err := c.source.ListRolePermissions(loadCtx)
		if err != nil {
			return nil, fmt.Errorf("rbac: load catalog: %w", err)
		}
		built := make(map[Role]PermissionSet)
		for _, fact := range facts {
			if built[fact.Role] == nil {
				built[fact.Role] = PermissionSet{}
			}
			built[fact.Role][fact.Permission] = struct{}{}
		}
		c.mu.Lock()
		// A concurrent Invalidate means these facts may already be stale.
		if c.generation == gen {
			c.byRole = built
		}
		c.mu.Unlock()
		return built, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[Role]PermissionSet), nil
	}
}

// DefaultCatalog returns the bootstrap RolePermission facts.
func DefaultCatalog() []RolePermission {
	resourcePerms := []Permission{
		PermViewPersons, PermCreatePersons, PermEditPersons, PermDeletePersons,
		PermViewTasks, PermCreateTasks, PermEditTasks, PermDeleteTasks,
		PermViewRecords, PermCreateRecords, PermEditRecords, PermDeleteRecords,
		PermViewTags, PermCreateTags, PermEditTags, PermDeleteTags,
		PermViewCalendar, PermCreateCalendar, PermEditCalendar, PermDeleteCalendar,
	}
	userPerms := []Permission{
		PermViewPersons, PermCreatePersons, PermEditPersons,
		PermViewTasks, PermCreateTasks, PermEditTasks,
		PermViewRecords, PermCreateRecords, PermEditRecords,
		PermViewTags, PermCreateTags, PermEditTags,
		PermViewCalendar, PermCreateCalendar, PermEditCalendar,
	}
	adminPerms := append(append([]Permission{}, resourcePerms...),
		PermViewUsers, PermManageUsers, PermAssignRoles, PermManagePermissions, PermViewAnalytics)

	var facts []RolePermission
	add := func(role Role, perms []Permission) {
		for _, p := range perms {
			facts = append(facts, RolePermission{Role: role, Permission: p})
		}
	}
	add(RoleUser, userPerms)
	add(RoleAdmin, adminPerms)
	add(RoleOwner, Permissions())
	return facts
}
