package rbac

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/casnet/casnet-backend/internal/platform/httpx"
)

// ErrPersistence marks a store fault during a mutation. It renders as a
// generic server error.
var ErrPersistence = errors.New("rbac: persistence failure")

// TenantRequiredError is returned when a tenant-scoped call names no tenant.
type TenantRequiredError struct{}

func (TenantRequiredError) Error() string { return "Tenant ID is required" }

// Problem implements httpx.Problemer.
func (e TenantRequiredError) Problem() httpx.ProblemDetail {
	return httpx.ProblemDetail{Status: http.StatusBadRequest, Code: "TENANT_REQUIRED", Message: e.Error()}
}

// TenantAccessDeniedError is returned when the user has no role in the tenant.
// UserTenants lists the tenants the user can access.
type TenantAccessDeniedError struct {
	TenantID    string
	UserTenants []string
}

func (e TenantAccessDeniedError) Error() string {
	return fmt.Sprintf("Access denied to tenant %s", e.TenantID)
}

// Problem implements httpx.Problemer.
func (e TenantAccessDeniedError) Problem() httpx.ProblemDetail {
	return httpx.ProblemDetail{
		Status:      http.StatusForbidden,
		Code:        "TENANT_ACCESS_DENIED",
		Message:     e.Error(),
		TenantID:    e.TenantID,
		UserTenants: e.UserTenants,
	}
}

// AuthorizationError is returned when the user has standing in the tenant but
// lacks the required permission or role.
type AuthorizationError struct {
	Message  string
	Required []string
}

func (e AuthorizationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "Insufficient permissions"
}

// Problem implements httpx.Problemer.
func (e AuthorizationError) Problem() httpx.ProblemDetail {
	return httpx.ProblemDetail{
		Status:              http.StatusForbidden,
		Code:                "INSUFFICIENT_PERMISSIONS",
		Message:             e.Error(),
		RequiredPermissions: e.Required,
	}
}

// ResourceNotFoundError covers both a missing resource and a failed owner
// resolution; callers cannot tell the two apart.
type ResourceNotFoundError struct {
	ResourceType string
	ResourceID   string
}

func (e ResourceNotFoundError) Error() string {
	resourceType := e.ResourceType
	if resourceType == "" {
		resourceType = "Resource"
	}
	return fmt.Sprintf("%s with ID %s not found", resourceType, e.ResourceID)
}

// Problem implements httpx.Problemer.
func (e ResourceNotFoundError) Problem() httpx.ProblemDetail {
	return httpx.ProblemDetail{
		Status:       http.StatusNotFound,
		Code:         "RESOURCE_NOT_FOUND",
		Message:      e.Error(),
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
	}
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
