package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type coded struct{}

func (coded) Error() string { return "coded" }

func (coded) Problem() ProblemDetail {
	return ProblemDetail{Status: http.StatusTeapot, Code: "TEAPOT", Message: "short and stout"}
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) ProblemDetail {
	t.Helper()
	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestRespondErrorUsesProblemer(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, fmt.Errorf("wrapped: %w", coded{}))

	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.Equal(t, "TEAPOT", decode(t, rr).Code)
}

func TestRespondErrorSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{ErrNotFound, http.StatusNotFound, "RESOURCE_NOT_FOUND"},
		{ErrDuplicate, http.StatusConflict, "DUPLICATE_RESOURCE"},
		{ErrValidation, http.StatusBadRequest, "VALIDATION_FAILED"},
		{ErrForbidden, http.StatusForbidden, "INSUFFICIENT_PERMISSIONS"},
		{ErrUnauthorized, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED"},
		{ErrBadCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		assert.Equal(t, tc.status, rr.Code, tc.code)
		assert.Equal(t, tc.code, decode(t, rr).Code)
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, errors.New(`pq: relation "user_tenant_roles" does not exist`))

	body := decode(t, rr)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "INTERNAL_ERROR", body.Code)
	assert.NotContains(t, rr.Body.String(), "user_tenant_roles")
}

func TestRespondErrorValidation(t *testing.T) {
	type form struct {
		Name string `validate:"required"`
	}
	err := validator.New().Struct(form{})
	require.Error(t, err)

	rr := httptest.NewRecorder()
	RespondError(rr, err)

	body := decode(t, rr)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	require.Len(t, body.FieldErrors, 1)
	assert.Equal(t, "Name", body.FieldErrors[0].Field)
}

func TestRespondErrorDropsWrapChain(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("rbac: assign role: %w", fmt.Errorf("rbac: %w: unknown user or tenant", ErrNotFound)), "resource not found: unknown user or tenant"},
		{fmt.Errorf("rbac: assign role: %w", fmt.Errorf("%w: unknown role %q", ErrValidation, "emperor")), `validation failed: unknown role "emperor"`},
		{fmt.Errorf("users: name already registered: %w", ErrDuplicate), "duplicate entry"},
		{fmt.Errorf("tags: delete: %w", ErrForbidden), "forbidden"},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		body := decode(t, rr)
		assert.Equal(t, tc.want, body.Message)
		assert.NotContains(t, body.Message, "rbac:")
	}
}
