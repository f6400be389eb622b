package users

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/casnet/casnet-backend/internal/platform/httpx"
	"github.com/casnet/casnet-backend/internal/rbac"
)

type memoryRepo struct {
	mu     sync.Mutex
	users  map[string]User
	hashes map[string]string
	store  *rbac.MemoryStore
}

func newMemoryRepo(store *rbac.MemoryStore) *memoryRepo {
	return &memoryRepo{users: map[string]User{}, hashes: map[string]string{}, store: store}
}

func (m *memoryRepo) Create(_ context.Context, name, hash string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Name == name {
			return User{}, ErrNameTaken
		}
	}
	now := time.Now()
	u := User{ID: uuid.NewString(), Name: name, CreatedAt: now, UpdatedAt: now}
	m.users[u.ID] = u
	m.hashes[u.ID] = hash
	return u, nil
}

func (m *memoryRepo) Get(_ context.Context, id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *memoryRepo) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return false, nil
	}
	delete(m.users, id)
	m.store.DeleteUser(id)
	return true, nil
}

func newTestService(t *testing.T) (*Service, *memoryRepo, *rbac.Service) {
	t.Helper()
	store := rbac.NewMemoryStore()
	_, err := store.SeedRolePermissions(context.Background(), rbac.DefaultCatalog())
	require.NoError(t, err)
	engine := rbac.NewService(store, rbac.NewCatalog(store), nil)
	repo := newMemoryRepo(store)
	svc := NewService(repo, engine)
	svc.bcryptCost = bcrypt.MinCost
	return svc, repo, engine
}

func TestRegisterHashesPassword(t *testing.T) {
	svc, repo, _ := newTestService(t)
	user, err := svc.Register(context.Background(), "  alice ", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Name)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.hashes[user.ID]), []byte("correct horse")))

	_, err = svc.Register(context.Background(), "alice", "another pass")
	assert.ErrorIs(t, err, httpx.ErrDuplicate)

	_, err = svc.Register(context.Background(), "   ", "password1")
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestRegisterRejectsPasswordOverBcryptLimit(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Register(context.Background(), "zoe", strings.Repeat("é", 40))
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Register(context.Background(), "zoe", strings.Repeat("é", 36))
	require.NoError(t, err)
}

func TestProfileListsTenantAccess(t *testing.T) {
	svc, _, engine := newTestService(t)
	ctx := context.Background()
	user, err := svc.Register(ctx, "bob", "password1")
	require.NoError(t, err)

	profile, err := svc.Profile(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, profile.Tenants)

	_, err = engine.AssignRole(ctx, user.ID, "t1", rbac.RoleAdmin)
	require.NoError(t, err)
	_, err = engine.AssignPermission(ctx, user.ID, "t1", rbac.PermDeleteTenant)
	require.NoError(t, err)

	profile, err = svc.Profile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, profile.Tenants)
	require.Len(t, profile.TenantAccess, 1)
	assert.Equal(t, rbac.RoleAdmin, profile.TenantAccess[0].Role)
	assert.True(t, profile.TenantAccess[0].EffectivePermissions.Has(rbac.PermDeleteTenant))
}

func TestDeleteCascadesAccess(t *testing.T) {
	svc, _, engine := newTestService(t)
	ctx := context.Background()
	user, err := svc.Register(ctx, "carol", "password1")
	require.NoError(t, err)
	_, err = engine.AssignRole(ctx, user.ID, "t1", rbac.RoleOwner)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, user.ID))
	tenants, err := engine.AccessibleTenants(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, tenants)

	assert.ErrorIs(t, svc.Delete(ctx, user.ID), ErrNotFound)
	_, err = svc.Profile(ctx, user.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
