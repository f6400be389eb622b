package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/casnet/casnet-backend/internal/platform/httpx"
	"github.com/casnet/casnet-backend/internal/shared"
)

// TenantSource declares where a gate reads the target tenant from.
type TenantSource int

const (
	// TenantFromPath reads the {tenantID} route parameter.
	TenantFromPath TenantSource = iota
	// TenantFromQuery reads the tenant_id query parameter.
	TenantFromQuery
	// TenantAuto tries the path first and falls back to the query.
	TenantAuto
)

// Request parameter names used to locate the tenant.
const (
	TenantPathParam  = "tenantID"
	TenantQueryParam = "tenant_id"
)

// Decision outcomes.
const (
	OutcomeAllow           = "allow"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeTenantRequired  = "tenant_required"
	OutcomeTenantDenied    = "tenant_denied"
	OutcomeForbidden       = "forbidden"
	OutcomeNotFound        = "not_found"
	OutcomeError           = "error"
)

// DecisionRecorder counts gate decisions.
type DecisionRecorder interface {
	ObserveDecision(gate, outcome string)
}

// Gate wires access-control requirements in front of HTTP handlers. It expects
// the authenticated user in the request context and never authenticates
// credentials itself.
type Gate struct {
	Service *Service
	Logger  *slog.Logger
	Metrics DecisionRecorder
}

type tenantCheck func(ctx context.Context, userID, tenantID string) error

// RequireTenantAccess only requires standing in the tenant.
func (g Gate) RequireTenantAccess(src TenantSource) func(http.Handler) http.Handler {
	return g.tenantGate("tenant_access", src, nil)
}

// RequirePermission requires perm in the user's effective set.
func (g Gate) RequirePermission(perm Permission, src TenantSource) func(http.Handler) http.Handler {
	return g.tenantGate("permission", src, g.permissionCheck(perm))
}

// RequireRole requires the exact role.
func (g Gate) RequireRole(role Role, src TenantSource) func(http.Handler) http.Handler {
	return g.tenantGate("role", src, func(ctx context.Context, userID, tenantID string) error {
		ok, err := g.Service.HasRole(ctx, userID, tenantID, role)
		if err != nil {
			return err
		}
		if !ok {
			return AuthorizationError{
				Message:  "Role " + string(role) + " required",
				Required: []string{string(role)},
			}
		}
		return nil
	})
}

// RequireOwner requires the OWNER role.
func (g Gate) RequireOwner(src TenantSource) func(http.Handler) http.Handler {
	return g.tenantGate("owner", src, func(ctx context.Context, userID, tenantID string) error {
		ok, err := g.Service.IsOwner(ctx, userID, tenantID)
		if err != nil {
			return err
		}
		if !ok {
			return AuthorizationError{Message: "Owner role required", Required: []string{string(RoleOwner)}}
		}
		return nil
	})
}

// RequireAdminOrOwner requires the ADMIN or OWNER role.
func (g Gate) RequireAdminOrOwner(src TenantSource) func(http.Handler) http.Handler {
	return g.tenantGate("admin_or_owner", src, func(ctx context.Context, userID, tenantID string) error {
		ok, err := g.Service.IsAdminOrOwner(ctx, userID, tenantID)
		if err != nil {
			return err
		}
		if !ok {
			return AuthorizationError{
				Message:  "Admin or owner role required",
				Required: []string{string(RoleAdmin), string(RoleOwner)},
			}
		}
		return nil
	})
}

// RequireResourcePermission guards endpoints addressed by resource id. The
// owning tenant is resolved through the resource registry; an unknown id and a
// failed resolution both answer RESOURCE_NOT_FOUND.
func (g Gate) RequireResourcePermission(perm Permission, param string) func(http.Handler) http.Handler {
	const gate = "resource_permission"
	check := g.permissionCheck(perm)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := shared.UserFromContext(r.Context())
			if !ok {
				g.reject(w, r, gate, OutcomeUnauthenticated, httpx.ErrUnauthorized)
				return
			}
			resourceID := strings.TrimSpace(chi.URLParam(r, param))
			notFound := ResourceNotFoundError{ResourceType: "Resource", ResourceID: resourceID}
			if resourceID == "" {
				g.reject(w, r, gate, OutcomeNotFound, notFound)
				return
			}
			owner, found, err := g.Service.ResourceOwner(r.Context(), resourceID)
			if err != nil {
				// Counted as a fault but rendered as not found.
				g.record(gate, OutcomeError)
				g.logger().Error("rbac resolve resource owner",
					slog.String("resource_id", resourceID), slog.Any("error", err))
				httpx.RespondError(w, notFound)
				return
			}
			if !found {
				g.reject(w, r, gate, OutcomeNotFound, notFound)
				return
			}
			if err := g.authorize(r.Context(), user.ID, owner.TenantID, check); err != nil {
				// Outside the owning tenant the resource does not exist.
				if _, denied := err.(TenantAccessDeniedError); denied {
					err = notFound
				}
				g.reject(w, r, gate, outcomeOf(err), err)
				return
			}
			g.record(gate, OutcomeAllow)
			ctx := shared.ContextWithTenant(r.Context(), owner.TenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (g Gate) tenantGate(gate string, src TenantSource, check tenantCheck) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := shared.UserFromContext(r.Context())
			if !ok {
				g.reject(w, r, gate, OutcomeUnauthenticated, httpx.ErrUnauthorized)
				return
			}
			tenantID := TenantFromRequest(r, src)
			if tenantID == "" {
				g.reject(w, r, gate, OutcomeTenantRequired, TenantRequiredError{})
				return
			}
			if err := g.authorize(r.Context(), user.ID, tenantID, check); err != nil {
				g.reject(w, r, gate, outcomeOf(err), err)
				return
			}
			g.record(gate, OutcomeAllow)
			ctx := shared.ContextWithTenant(r.Context(), tenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authorize checks standing first so a user without a role always sees
// TENANT_ACCESS_DENIED, never INSUFFICIENT_PERMISSIONS.
func (g Gate) authorize(ctx context.Context, userID, tenantID string, check tenantCheck) error {
	ok, err := g.Service.CanAccessTenant(ctx, userID, tenantID)
	if err != nil {
		return err
	}
	if !ok {
		tenants, err := g.Service.AccessibleTenants(ctx, userID)
		if err != nil {
			return err
		}
		return TenantAccessDeniedError{TenantID: tenantID, UserTenants: tenants}
	}
	if check == nil {
		return nil
	}
	return check(ctx, userID, tenantID)
}

func (g Gate) permissionCheck(perm Permission) tenantCheck {
	return func(ctx context.Context, userID, tenantID string) error {
		ok, err := g.Service.HasPermission(ctx, userID, tenantID, perm)
		if err != nil {
			return err
		}
		if !ok {
			return AuthorizationError{
				Message:  "Permission " + string(perm) + " required",
				Required: []string{string(perm)},
			}
		}
		return nil
	}
}

func (g Gate) reject(w http.ResponseWriter, r *http.Request, gate, outcome string, err error) {
	g.record(gate, outcome)
	user, _ := shared.UserFromContext(r.Context())
	if outcome == OutcomeError {
		g.logger().Error("rbac gate", slog.String("gate", gate), slog.String("user_id", user.ID), slog.Any("error", err))
	} else {
		g.logger().Debug("rbac gate denied",
			slog.String("gate", gate),
			slog.String("outcome", outcome),
			slog.String("user_id", user.ID),
			slog.String("path", r.URL.Path),
		)
	}
	httpx.RespondError(w, err)
}

func (g Gate) record(gate, outcome string) {
	if g.Metrics != nil {
		g.Metrics.ObserveDecision(gate, outcome)
	}
}

func (g Gate) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

func outcomeOf(err error) string {
	switch err.(type) {
	case TenantAccessDeniedError:
		return OutcomeTenantDenied
	case AuthorizationError:
		return OutcomeForbidden
	case ResourceNotFoundError:
		return OutcomeNotFound
	default:
		return OutcomeError
	}
}

// TenantFromRequest extracts the tenant id from the declared source. It
// returns "" when the source carries none; it never falls back to a default.
func TenantFromRequest(r *http.Request, src TenantSource) string {
	fromPath := func() string { return strings.TrimSpace(chi.URLParam(r, TenantPathParam)) }
	fromQuery := func() string { return strings.TrimSpace(r.URL.Query().Get(TenantQueryParam)) }
	switch src {
	case TenantFromPath:
		return fromPath()
	case TenantFromQuery:
		return fromQuery()
	default:
		if id := fromPath(); id != "" {
			return id
		}
		return fromQuery()
	}
}
