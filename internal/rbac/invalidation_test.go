package rbac_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casnet/casnet-backend/internal/rbac"
)

type countingRecorder struct {
	n atomic.Int32
}

func (c *countingRecorder) ObserveInvalidation(string) { c.n.Add(1) }

func TestCatalogInvalidatorReloadsOnMessage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := rbac.NewMemoryStore()
	catalog := rbac.NewCatalog(store)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	perms, err := catalog.PermissionsFor(ctx, rbac.RoleOwner)
	require.NoError(t, err)
	require.Empty(t, perms)

	recorder := &countingRecorder{}
	invalidator := rbac.NewCatalogInvalidator(client, "casnet:rbac:catalog", catalog, nil).WithRecorder(recorder)
	require.NoError(t, invalidator.Start(ctx))

	_, err = store.SeedRolePermissions(ctx, rbac.DefaultCatalog())
	require.NoError(t, err)
	perms, err = catalog.PermissionsFor(ctx, rbac.RoleOwner)
	require.NoError(t, err)
	assert.Empty(t, perms, "stale until invalidated")

	require.NoError(t, rbac.PublishCatalogInvalidation(ctx, client, "casnet:rbac:catalog", "seed"))
	assert.Eventually(t, func() bool {
		perms, err := catalog.PermissionsFor(ctx, rbac.RoleOwner)
		return err == nil && len(perms) == len(rbac.Permissions())
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return recorder.n.Load() == 1 }, time.Second, 10*time.Millisecond)
}
