package app

import "github.com/casnet/casnet-backend/internal/rbac"

// ResourceTables lists the tenant-scoped tables consulted, in order, when a
// resource-scoped gate resolves the owning tenant of an id.
var ResourceTables = []string{"persons", "records", "tasks", "calendar_events", "tags"}

// NewResourceRegistry registers a table lookup for every resource table.
func NewResourceRegistry(q rbac.Querier) *rbac.ResourceRegistry {
	registry := rbac.NewResourceRegistry()
	for _, table := range ResourceTables {
		registry.Register(table, rbac.TableLookup(q, table))
	}
	return registry
}
