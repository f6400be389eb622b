package rbac_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casnet/casnet-backend/internal/rbac"
	"github.com/casnet/casnet-backend/internal/shared"
)

type memoryAudit struct {
	mu      sync.Mutex
	entries []shared.AuditLog
}

func (m *memoryAudit) Record(_ context.Context, log shared.AuditLog) error {
	if err := shared.ValidateAuditLog(log); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append([]shared.AuditLog{log}, m.entries...)
	return nil
}

func (m *memoryAudit) List(_ context.Context, tenantID string, limit, offset int) ([]shared.AuditLog, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []shared.AuditLog
	for _, e := range m.entries {
		if e.TenantID == tenantID {
			matched = append(matched, e)
		}
	}
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	return matched[offset:min(offset+limit, total)], total, nil
}

type apiFixture struct {
	svc    *rbac.Service
	audit  *memoryAudit
	router chi.Router
	user   string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	svc, _ := newService(t, nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gate := rbac.Gate{Service: svc, Logger: logger}
	f := &apiFixture{svc: svc, audit: &memoryAudit{}}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithUser(req.Context(), shared.User{ID: f.user, Name: f.user})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/tenants", rbac.NewHandler(logger, svc, gate).WithAudit(f.audit).MountRoutes)
	r.Route("/permissions", rbac.NewPermissionsHandler(logger, svc).MountRoutes)
	f.router = r

	ctx := context.Background()
	for user, role := range map[string]rbac.Role{"owner": rbac.RoleOwner, "admin": rbac.RoleAdmin, "member": rbac.RoleUser} {
		_, err := svc.AssignRole(ctx, user, "t1", role)
		require.NoError(t, err)
	}
	return f
}

func (f *apiFixture) call(t *testing.T, as, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	f.user = as
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHandlerListMembers(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.call(t, "admin", http.MethodGet, "/tenants/t1/users", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var members []rbac.UserTenantRole
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &members))
	assert.Len(t, members, 3)

	rec = f.call(t, "member", http.MethodGet, "/tenants/t1/users", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandlerAddAndUpdateMember(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.call(t, "admin", http.MethodPost, "/tenants/t1/users", `{"user_id":"newbie","role":"USER"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "user", decodeBody(t, rec)["role"])

	rec = f.call(t, "owner", http.MethodPut, "/tenants/t1/users/newbie/role", `{"role":"admin"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	role, ok, err := f.svc.RoleInTenant(context.Background(), "newbie", "t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rbac.RoleAdmin, role)

	rec = f.call(t, "owner", http.MethodPut, "/tenants/t1/users/newbie/role", `{"role":"emperor"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", decodeBody(t, rec)["error_code"])

	rec = f.call(t, "owner", http.MethodPost, "/tenants/t1/users", `{"role":"user"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", decodeBody(t, rec)["error_code"])
}

func TestHandlerRemoveMember(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.call(t, "admin", http.MethodDelete, "/tenants/t1/users/member", "")
	require.Equal(t, http.StatusForbidden, rec.Code, "only owners remove members")

	rec = f.call(t, "owner", http.MethodDelete, "/tenants/t1/users/owner", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.call(t, "owner", http.MethodDelete, "/tenants/t1/users/member", "")
	require.Equal(t, http.StatusOK, rec.Code)
	access, err := f.svc.CanAccessTenant(context.Background(), "member", "t1")
	require.NoError(t, err)
	assert.False(t, access)

	rec = f.call(t, "owner", http.MethodDelete, "/tenants/t1/users/member", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "USER_NOT_FOUND", decodeBody(t, rec)["error_code"])
}

func TestHandlerDirectPermissions(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.call(t, "admin", http.MethodPost, "/tenants/t1/users/member/permissions", `{"permission":"delete_tenant"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.call(t, "admin", http.MethodPost, "/tenants/t1/users/outsider/permissions", `{"permission":"delete_tenant"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.call(t, "admin", http.MethodPost, "/tenants/t1/users/member/permissions", `{"permission":"launch_rockets"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.call(t, "admin", http.MethodGet, "/tenants/t1/users/member/permissions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, []any{"delete_tenant"}, body["direct_permissions"])
	assert.Contains(t, body["effective_permissions"], "delete_tenant")
	assert.NotContains(t, body["role_permissions"], "delete_tenant")

	rec = f.call(t, "admin", http.MethodGet, "/tenants/t1/users/outsider/permissions", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.call(t, "admin", http.MethodDelete, "/tenants/t1/users/member/permissions/delete_tenant", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.call(t, "admin", http.MethodDelete, "/tenants/t1/users/member/permissions/delete_tenant", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerRoleSummaryAndCheck(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.call(t, "owner", http.MethodGet, "/tenants/t1/role-summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tenant_id":"t1","total_users":3,"owners":1,"admins":1,"users":1}`, rec.Body.String())

	rec = f.call(t, "member", http.MethodGet, "/tenants/t1/permissions/check?permission=view_tags", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["has_permission"])
	assert.Equal(t, "role", body["source"])

	rec = f.call(t, "outsider", http.MethodGet, "/tenants/t1/permissions/check?permission=view_tags", "")
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "TENANT_ACCESS_DENIED", decodeBody(t, rec)["error_code"])
}

func TestPermissionsHandlerListsCatalog(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.call(t, "member", http.MethodGet, "/permissions/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Permissions []struct {
			Permission string `json:"permission"`
			Category   string `json:"category"`
		} `json:"permissions"`
		Roles map[string][]string `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Permissions, len(rbac.Permissions()))
	assert.Len(t, body.Roles["owner"], len(rbac.Permissions()))
	assert.NotContains(t, body.Roles["user"], "delete_tenant")
}

func TestHandlerAuditTrail(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.call(t, "admin", http.MethodPost, "/tenants/t1/users", `{"user_id":"newbie","role":"user"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = f.call(t, "admin", http.MethodPost, "/tenants/t1/users/newbie/permissions", `{"permission":"delete_tags"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = f.call(t, "owner", http.MethodDelete, "/tenants/t1/users/newbie", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.call(t, "owner", http.MethodDelete, "/tenants/t1/users/newbie", "")
	require.Equal(t, http.StatusNotFound, rec.Code, "failed mutations are not audited")

	rec = f.call(t, "admin", http.MethodGet, "/tenants/t1/audit", "")
	require.Equal(t, http.StatusForbidden, rec.Code, "only owners read the trail")

	rec = f.call(t, "owner", http.MethodGet, "/tenants/t1/audit?page_size=2", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var page shared.Page[shared.AuditLog]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Data, 2)
	assert.Equal(t, 3, page.Meta.TotalItems)
	assert.True(t, page.Meta.HasNext)
	assert.Equal(t, "member.remove", page.Data[0].Action)
	assert.Equal(t, "owner", page.Data[0].ActorID)
	assert.Equal(t, "permission.grant", page.Data[1].Action)
	assert.Equal(t, "delete_tags", page.Data[1].Meta["permission"])
}

// unknownUserStore rejects role writes for users it has never seen, the way
// the Postgres foreign keys do.
type unknownUserStore struct {
	*rbac.MemoryStore
	known map[string]bool
}

func (s unknownUserStore) UpsertUserTenantRole(ctx context.Context, userID, tenantID string, role rbac.Role) (rbac.UserTenantRole, error) {
	if !s.known[userID] {
		return rbac.UserTenantRole{}, fmt.Errorf("%w: unknown user or tenant", rbac.ErrNotFound)
	}
	return s.MemoryStore.UpsertUserTenantRole(ctx, userID, tenantID, role)
}

func TestHandlerAssignUnknownUser(t *testing.T) {
	base := rbac.NewMemoryStore()
	_, err := base.SeedRolePermissions(context.Background(), rbac.DefaultCatalog())
	require.NoError(t, err)
	_, err = base.UpsertUserTenantRole(context.Background(), "owner", "t1", rbac.RoleOwner)
	require.NoError(t, err)
	store := unknownUserStore{MemoryStore: base, known: map[string]bool{"owner": true}}
	svc := rbac.NewService(store, rbac.NewCatalog(store), nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithUser(req.Context(), shared.User{ID: "owner"})))
		})
	})
	r.Route("/tenants", rbac.NewHandler(logger, svc, rbac.Gate{Service: svc, Logger: logger}).MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tenants/t1/users", strings.NewReader(`{"user_id":"ghost","role":"user"}`)))
	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "USER_NOT_FOUND", body["error_code"])
	assert.Equal(t, "User not found", body["message"])
	assert.NotContains(t, rec.Body.String(), "rbac:")
}

type tenantNames map[string]string

func (n tenantNames) TenantName(_ context.Context, tenantID string) (string, error) {
	name, ok := n[tenantID]
	if !ok {
		return "", fmt.Errorf("tenant %s not found", tenantID)
	}
	return name, nil
}

func TestHandlerRoleSummaryTenantName(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()
	_, err := svc.AssignRole(ctx, "owner", "t1", rbac.RoleOwner)
	require.NoError(t, err)
	_, err = svc.AssignRole(ctx, "owner", "t2", rbac.RoleOwner)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := rbac.NewHandler(logger, svc, rbac.Gate{Service: svc, Logger: logger}).WithTenantNames(tenantNames{"t1": "LSPD"})

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithUser(req.Context(), shared.User{ID: "owner"})))
		})
	})
	r.Route("/tenants", handler.MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tenants/t1/role-summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tenant_id":"t1","tenant_name":"LSPD","total_users":1,"owners":1,"admins":0,"users":0}`, rec.Body.String())

	// A failed name lookup still answers with the counts.
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tenants/t2/role-summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "tenant_name")
}
