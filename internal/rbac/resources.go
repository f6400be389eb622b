package rbac

import (
	"context"
	"fmt"
	"sync"
)

// ResourceLookup reports the tenant owning the resource with the given id.
// found is false when no such resource exists in the lookup's collection.
type ResourceLookup func(ctx context.Context, id string) (tenantID string, found bool, err error)

// ResourceOwner names the collection a resource was found in and its tenant.
type ResourceOwner struct {
	Type     string
	TenantID string
}

type resourceEntry struct {
	resourceType string
	lookup       ResourceLookup
}

// ResourceRegistry maps resource types to owner lookups. Lookups run in
// registration order and the first collection containing the id wins; an id
// present in two collections resolves to the earlier registration.
type ResourceRegistry struct {
	mu      sync.RWMutex
	entries []resourceEntry
}

// NewResourceRegistry constructs an empty registry.
func NewResourceRegistry() *ResourceRegistry {
	return &ResourceRegistry{}
}

// Register appends a lookup for resourceType. Registering the same type twice
// replaces the earlier lookup in place.
func (r *ResourceRegistry) Register(resourceType string, lookup ResourceLookup) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		if r.entries[i].resourceType == resourceType {
			r.entries[i].lookup = lookup
			return
		}
	}
	r.entries = append(r.entries, resourceEntry{resourceType: resourceType, lookup: lookup})
}

// Types returns the registered resource types in lookup order.
func (r *ResourceRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.resourceType)
	}
	return out
}

// Owner resolves the owning tenant of id. A lookup error stops the search.
func (r *ResourceRegistry) Owner(ctx context.Context, id string) (ResourceOwner, bool, error) {
	r.mu.RLock()
	entries := make([]resourceEntry, len(r.entries))
	copy(entries, r.entries)
	r.mu.RUnlock()

	for _, e := range entries {
		tenantID, found, err := e.lookup(ctx, id)
		if err != nil {
			return ResourceOwner{}, false, fmt.Errorf("rbac: resolve %s owner: %w", e.resourceType, err)
		}
		if found {
			return ResourceOwner{Type: e.resourceType, TenantID: tenantID}, true, nil
		}
	}
	return ResourceOwner{}, false, nil
}

// MapLookup serves owners from a fixed id to tenant map.
func MapLookup(owners map[string]string) ResourceLookup {
	return func(_ context.Context, id string) (string, bool, error) {
		tenantID, ok := owners[id]
		return tenantID, ok, nil
	}
}
