package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceRegistryFirstMatchWins(t *testing.T) {
	reg := NewResourceRegistry()
	reg.Register("persons", MapLookup(map[string]string{"p-1": "t-1", "dup": "t-persons"}))
	reg.Register("tags", MapLookup(map[string]string{"tag-1": "t-2", "dup": "t-tags"}))

	ctx := context.Background()
	owner, ok, err := reg.Owner(ctx, "tag-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ResourceOwner{Type: "tags", TenantID: "t-2"}, owner)

	owner, ok, err = reg.Owner(ctx, "dup")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "persons", owner.Type)
	assert.Equal(t, "t-persons", owner.TenantID)

	_, ok, err = reg.Owner(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResourceRegistryErrorStopsSearch(t *testing.T) {
	reg := NewResourceRegistry()
	reg.Register("records", func(context.Context, string) (string, bool, error) {
		return "", false, errors.New("timeout")
	})
	called := false
	reg.Register("tags", func(context.Context, string) (string, bool, error) {
		called = true
		return "t-1", true, nil
	})

	_, ok, err := reg.Owner(context.Background(), "x")
	require.Error(t, err)
	assert.False(t, ok)
	assert.False(t, called)
}

func TestResourceRegistryReRegisterKeepsOrder(t *testing.T) {
	reg := NewResourceRegistry()
	reg.Register("persons", MapLookup(nil))
	reg.Register("records", MapLookup(nil))
	reg.Register("persons", MapLookup(map[string]string{"p": "t"}))
	assert.Equal(t, []string{"persons", "records"}, reg.Types())

	owner, ok, err := reg.Owner(context.Background(), "p")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "t", owner.TenantID)
}
