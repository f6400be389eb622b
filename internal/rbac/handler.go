package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/casnet/casnet-backend/internal/platform/httpx"
	"github.com/casnet/casnet-backend/internal/shared"
)

// Handler exposes tenant membership and direct grant management.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	gate      Gate
	validator *validator.Validate
	audit     shared.AuditTrail
	names     TenantNamer
}

// TenantNamer resolves a tenant's display name for the role summary.
type TenantNamer interface {
	TenantName(ctx context.Context, tenantID string) (string, error)
}

// NewHandler builds a membership Handler.
func NewHandler(logger *slog.Logger, service *Service, gate Gate) *Handler {
	return &Handler{logger: logger, service: service, gate: gate, validator: validator.New()}
}

// WithAudit records every membership and grant mutation to trail and exposes
// the tenant's trail to its owners. Call it before MountRoutes.
func (h *Handler) WithAudit(trail shared.AuditTrail) *Handler {
	h.audit = trail
	return h
}

// WithTenantNames adds tenant_name to the role summary.
func (h *Handler) WithTenantNames(names TenantNamer) *Handler {
	h.names = names
	return h
}

// MountRoutes registers membership routes on the /tenants router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequireAdminOrOwner(TenantFromPath))
		r.Get("/{tenantID}/users", h.listMembers)
		r.Post("/{tenantID}/users", h.addMember)
		r.Put("/{tenantID}/users/{userID}/role", h.updateRole)
		r.Get("/{tenantID}/users/{userID}/permissions", h.permissionBreakdown)
		r.Post("/{tenantID}/users/{userID}/permissions", h.grantPermission)
		r.Delete("/{tenantID}/users/{userID}/permissions/{permission}", h.revokePermission)
		r.Get("/{tenantID}/role-summary", h.roleSummary)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequireOwner(TenantFromPath))
		r.Delete("/{tenantID}/users/{userID}", h.removeMember)
		if h.audit != nil {
			r.Get("/{tenantID}/audit", h.auditTrail)
		}
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequireTenantAccess(TenantFromPath))
		r.Get("/{tenantID}/permissions/check", h.checkPermission)
	})
}

type memberRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Role   string `json:"role" validate:"required"`
}

type roleRequest struct {
	Role string `json:"role" validate:"required"`
}

type permissionRequest struct {
	Permission string `json:"permission" validate:"required"`
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := shared.TenantFromContext(r.Context())
	members, err := h.service.TenantMembers(r.Context(), tenantID)
	if err != nil {
		h.fail(w, "list tenant members", err)
		return
	}
	if members == nil {
		members = []UserTenantRole{}
	}
	httpx.JSON(w, http.StatusOK, members)
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := ParseRole(req.Role)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	tenantID, _ := shared.TenantFromContext(r.Context())
	utr, err := h.service.AssignRole(r.Context(), req.UserID, tenantID, role)
	if err != nil {
		h.fail(w, "add tenant member", err)
		return
	}
	h.record(r, "member.assign", req.UserID, map[string]any{"role": role})
	httpx.JSON(w, http.StatusCreated, utr)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := ParseRole(req.Role)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	tenantID, _ := shared.TenantFromContext(r.Context())
	utr, err := h.service.AssignRole(r.Context(), chi.URLParam(r, "userID"), tenantID, role)
	if err != nil {
		h.fail(w, "update member role", err)
		return
	}
	h.record(r, "member.role_change", utr.UserID, map[string]any{"role": role})
	httpx.JSON(w, http.StatusOK, utr)
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	user, _ := shared.UserFromContext(r.Context())
	tenantID, _ := shared.TenantFromContext(r.Context())
	userID := chi.URLParam(r, "userID")
	if userID == user.ID {
		httpx.Problem(w, httpx.ProblemDetail{
			Status:  http.StatusBadRequest,
			Code:    "VALIDATION_FAILED",
			Message: "You cannot remove yourself from the tenant",
		})
		return
	}
	removed, err := h.service.RemoveUserFromTenant(r.Context(), userID, tenantID)
	if err != nil {
		h.fail(w, "remove tenant member", err)
		return
	}
	if !removed {
		notMember(w)
		return
	}
	h.record(r, "member.remove", userID, nil)
	httpx.Message(w, http.StatusOK, "User successfully removed from tenant")
}

func (h *Handler) permissionBreakdown(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := shared.TenantFromContext(r.Context())
	breakdown, ok, err := h.service.PermissionBreakdown(r.Context(), chi.URLParam(r, "userID"), tenantID)
	if err != nil {
		h.fail(w, "permission breakdown", err)
		return
	}
	if !ok {
		notMember(w)
		return
	}
	httpx.JSON(w, http.StatusOK, breakdown)
}

func (h *Handler) grantPermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	perm, err := ParsePermission(req.Permission)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	tenantID, _ := shared.TenantFromContext(r.Context())
	userID := chi.URLParam(r, "userID")
	member, err := h.service.CanAccessTenant(r.Context(), userID, tenantID)
	if err != nil {
		h.fail(w, "grant permission", err)
		return
	}
	if !member {
		notMember(w)
		return
	}
	utp, err := h.service.AssignPermission(r.Context(), userID, tenantID, perm)
	if err != nil {
		h.fail(w, "grant permission", err)
		return
	}
	h.record(r, "permission.grant", userID, map[string]any{"permission": perm})
	httpx.JSON(w, http.StatusCreated, utp)
}

func (h *Handler) revokePermission(w http.ResponseWriter, r *http.Request) {
	perm, err := ParsePermission(chi.URLParam(r, "permission"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	tenantID, _ := shared.TenantFromContext(r.Context())
	userID := chi.URLParam(r, "userID")
	removed, err := h.service.RemovePermission(r.Context(), userID, tenantID, perm)
	if err != nil {
		h.fail(w, "revoke permission", err)
		return
	}
	if !removed {
		httpx.Problem(w, httpx.ProblemDetail{
			Status:  http.StatusNotFound,
			Code:    "RESOURCE_NOT_FOUND",
			Message: "Permission not found for this user in this tenant",
		})
		return
	}
	h.record(r, "permission.revoke", userID, map[string]any{"permission": perm})
	httpx.Message(w, http.StatusOK, "Permission '"+string(perm)+"' revoked from user")
}

func (h *Handler) roleSummary(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := shared.TenantFromContext(r.Context())
	summary, err := h.service.RoleSummary(r.Context(), tenantID)
	if err != nil {
		h.fail(w, "role summary", err)
		return
	}
	if h.names != nil {
		name, err := h.names.TenantName(r.Context(), tenantID)
		if err != nil {
			h.logger.Warn("role summary tenant name", slog.String("tenant_id", tenantID), slog.Any("error", err))
		}
		summary.TenantName = name
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) checkPermission(w http.ResponseWriter, r *http.Request) {
	perm, err := ParsePermission(r.URL.Query().Get("permission"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, _ := shared.UserFromContext(r.Context())
	tenantID, _ := shared.TenantFromContext(r.Context())
	check, err := h.service.CheckPermission(r.Context(), user.ID, tenantID, perm)
	if err != nil {
		h.fail(w, "check permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, check)
}

func (h *Handler) auditTrail(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := shared.TenantFromContext(r.Context())
	page, size, offset := shared.PageParams(r)
	entries, total, err := h.audit.List(r.Context(), tenantID, size, offset)
	if err != nil {
		h.fail(w, "list audit trail", err)
		return
	}
	if entries == nil {
		entries = []shared.AuditLog{}
	}
	httpx.JSON(w, http.StatusOK, shared.Page[shared.AuditLog]{Data: entries, Meta: shared.NewPagination(page, size, total)})
}

// record appends an audit entry. The mutation already happened, so a failure
// here is logged and not surfaced to the caller.
func (h *Handler) record(r *http.Request, action, targetUserID string, meta map[string]any) {
	if h.audit == nil {
		return
	}
	actor, _ := shared.UserFromContext(r.Context())
	tenantID, _ := shared.TenantFromContext(r.Context())
	entry := shared.AuditLog{
		ActorID:  actor.ID,
		TenantID: tenantID,
		Action:   action,
		Entity:   "user",
		EntityID: targetUserID,
		Meta:     meta,
	}
	if err := h.audit.Record(r.Context(), entry); err != nil {
		h.logger.Warn("audit record", slog.String("action", action), slog.String("tenant_id", tenantID), slog.Any("error", err))
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.Problem(w, httpx.ProblemDetail{Status: http.StatusBadRequest, Code: "VALIDATION_FAILED", Message: "invalid request body"})
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		// The tenant already passed the gate, so the unknown side is the user.
		httpx.Problem(w, httpx.ProblemDetail{
			Status:  http.StatusNotFound,
			Code:    "USER_NOT_FOUND",
			Message: "User not found",
		})
	case errors.Is(err, httpx.ErrNotFound), errors.Is(err, httpx.ErrValidation):
		httpx.RespondError(w, err)
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func notMember(w http.ResponseWriter) {
	httpx.Problem(w, httpx.ProblemDetail{
		Status:  http.StatusNotFound,
		Code:    "USER_NOT_FOUND",
		Message: "User not found in this tenant",
	})
}
