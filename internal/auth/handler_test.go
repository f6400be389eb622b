package auth_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/casnet/casnet-backend/internal/auth"
	"github.com/casnet/casnet-backend/internal/shared"
	_ "github.com/casnet/casnet-backend/testing"
)

type stubRepo struct {
	users map[string]*auth.User
}

func (s *stubRepo) FindByName(ctx context.Context, name string) (*auth.User, error) {
	for _, u := range s.users {
		if u.Name == name {
			return u, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) FindByID(ctx context.Context, id string) (*auth.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, shared.ErrNotFound
}

func newAuthRouter(t *testing.T) (http.Handler, *stubRepo, *auth.TokenManager) {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &stubRepo{users: map[string]*auth.User{
		"u-1": {ID: "u-1", Name: "alice", PasswordHash: string(hashed)},
	}}
	tokens, err := auth.NewTokenManager("test-secret", "casnet", time.Minute)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := auth.NewService(repo, tokens)

	r := chi.NewRouter()
	r.Route("/auth", auth.NewHandler(logger, svc).MountRoutes)
	mw := auth.Middleware{Service: svc, Logger: logger}
	r.With(mw.Authenticate).Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
		user, _ := shared.UserFromContext(r.Context())
		_ = json.NewEncoder(w).Encode(user)
	})
	return r, repo, tokens
}

func TestTokenEndpoint(t *testing.T) {
	router, _, _ := newAuthRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(`{"name":"alice","password":"correctpass"}`))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	var token auth.Token
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &token))
	assert.NotEmpty(t, token.AccessToken)

	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	res = httptest.NewRecorder()
	router.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"id":"u-1","name":"alice"}`, res.Body.String())
}

func TestTokenEndpointFormLogin(t *testing.T) {
	router, _, _ := newAuthRouter(t)
	form := url.Values{"username": {"alice"}, "password": {"correctpass"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestTokenEndpointInvalidCredentials(t *testing.T) {
	router, _, _ := newAuthRouter(t)
	for _, body := range []string{
		`{"name":"alice","password":"wrongpass"}`,
		`{"name":"mallory","password":"correctpass"}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(body))
		res := httptest.NewRecorder()
		router.ServeHTTP(res, req)
		require.Equal(t, http.StatusUnauthorized, res.Code)
		assert.Contains(t, res.Body.String(), "INVALID_CREDENTIALS")
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(`{"name":"alice"}`))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestAuthenticateMiddleware(t *testing.T) {
	router, repo, tokens := newAuthRouter(t)

	cases := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{name: "missing", header: "", status: http.StatusUnauthorized, code: "AUTHENTICATION_REQUIRED"},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized, code: "AUTHENTICATION_REQUIRED"},
		{name: "garbage", header: "Bearer abc.def.ghi", status: http.StatusUnauthorized, code: "AUTHENTICATION_REQUIRED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			res := httptest.NewRecorder()
			router.ServeHTTP(res, req)
			require.Equal(t, tc.status, res.Code)
			assert.Contains(t, res.Body.String(), tc.code)
		})
	}

	token, err := tokens.Issue(&auth.User{ID: "deleted", Name: "ghost"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	require.Equal(t, http.StatusNotFound, res.Code)
	assert.Contains(t, res.Body.String(), "USER_NOT_FOUND")
	assert.Len(t, repo.users, 1)
}
