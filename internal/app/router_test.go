package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casnet/casnet-backend/internal/auth"
	"github.com/casnet/casnet-backend/internal/observability"
	"github.com/casnet/casnet-backend/internal/rbac"
	"github.com/casnet/casnet-backend/internal/shared"
)

type singleUserRepo struct {
	user auth.User
}

func (s singleUserRepo) FindByName(_ context.Context, name string) (*auth.User, error) {
	if name != s.user.Name {
		return nil, shared.ErrNotFound
	}
	u := s.user
	return &u, nil
}

func (s singleUserRepo) FindByID(_ context.Context, id string) (*auth.User, error) {
	if id != s.user.ID {
		return nil, shared.ErrNotFound
	}
	u := s.user
	return &u, nil
}

type routerFixture struct {
	handler http.Handler
	engine  *rbac.Service
	token   string
}

func newRouterFixture(t *testing.T, readiness map[string]Pinger) routerFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	user := auth.User{ID: "u-1", Name: "officer"}
	tokens, err := auth.NewTokenManager("test-secret", "casnet", time.Hour)
	require.NoError(t, err)
	authService := auth.NewService(singleUserRepo{user: user}, tokens)
	issued, err := tokens.Issue(&user)
	require.NoError(t, err)

	store := rbac.NewMemoryStore()
	engine := rbac.NewService(store, rbac.NewCatalog(store), nil)
	_, err = engine.SeedCatalog(context.Background())
	require.NoError(t, err)
	metrics := observability.NewMetrics()
	gate := rbac.Gate{Service: engine, Logger: logger, Metrics: metrics}

	handler := NewRouter(RouterParams{
		Logger:             logger,
		Config:             &Config{APIPrefix: "/api/v1"},
		Authenticate:       auth.Middleware{Service: authService, Logger: logger}.Authenticate,
		AuthHandler:        auth.NewHandler(logger, authService),
		MembersHandler:     rbac.NewHandler(logger, engine, gate),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, engine),
		Metrics:            metrics,
		Readiness:          readiness,
	})
	return routerFixture{handler: handler, engine: engine, token: issued.AccessToken}
}

func (f routerFixture) get(target string, authenticated bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if authenticated {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestRouterProtectsAPIRoutes(t *testing.T) {
	f := newRouterFixture(t, nil)

	rec := f.get("/api/v1/permissions", false)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "AUTHENTICATION_REQUIRED")

	rec = f.get("/api/v1/permissions", true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "manage_tenant")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRouterMountsMemberManagementUnderTenants(t *testing.T) {
	f := newRouterFixture(t, nil)

	rec := f.get("/api/v1/tenants/lspd/users", true)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "TENANT_ACCESS_DENIED")

	_, err := f.engine.AssignRole(context.Background(), "u-1", "lspd", rbac.RoleAdmin)
	require.NoError(t, err)

	rec = f.get("/api/v1/tenants/lspd/users", true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "u-1")

	metrics := f.get("/metrics", false)
	assert.Contains(t, metrics.Body.String(), `casnet_authz_decisions_total{gate="admin_or_owner",outcome="tenant_denied"} 1`)
}

func TestRouterHealthAndFallbacks(t *testing.T) {
	f := newRouterFixture(t, map[string]Pinger{
		"postgres": PingFunc(func(context.Context) error { return nil }),
		"redis":    PingFunc(func(context.Context) error { return errors.New("dial tcp: refused") }),
	})

	rec := f.get("/healthz", false)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.get("/readyz", false)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"postgres":"ok","redis":"unavailable"}`, rec.Body.String())

	rec = f.get("/api/v1/nope", true)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "ROUTE_NOT_FOUND")
}
