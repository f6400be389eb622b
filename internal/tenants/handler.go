package tenants

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/casnet/casnet-backend/internal/platform/httpx"
	"github.com/casnet/casnet-backend/internal/rbac"
	"github.com/casnet/casnet-backend/internal/shared"
)

// Handler exposes tenant endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	gate      rbac.Gate
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, gate rbac.Gate) *Handler {
	return &Handler{logger: logger, service: service, gate: gate, validator: validator.New()}
}

// MountRoutes registers tenant routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.With(h.gate.RequireTenantAccess(rbac.TenantFromPath)).Get("/{tenantID}", h.get)
	r.With(h.gate.RequirePermission(rbac.PermManageTenant, rbac.TenantFromPath)).Put("/{tenantID}", h.update)
	r.With(h.gate.RequirePermission(rbac.PermDeleteTenant, rbac.TenantFromPath)).Delete("/{tenantID}", h.delete)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	user, ok := shared.UserFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	in, ok := h.decode(w, r)
	if !ok {
		return
	}
	tenant, err := h.service.Create(r.Context(), user.ID, in)
	if err != nil {
		h.fail(w, "create tenant", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, tenant)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	user, ok := shared.UserFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	tenants, err := h.service.ListAccessible(r.Context(), user.ID)
	if err != nil {
		h.fail(w, "list tenants", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tenants)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := shared.TenantFromContext(r.Context())
	tenant, err := h.service.Get(r.Context(), tenantID)
	if err != nil {
		h.fail(w, "get tenant", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tenant)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decode(w, r)
	if !ok {
		return
	}
	tenantID, _ := shared.TenantFromContext(r.Context())
	tenant, err := h.service.Update(r.Context(), tenantID, in)
	if err != nil {
		h.fail(w, "update tenant", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tenant)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := shared.TenantFromContext(r.Context())
	if err := h.service.Delete(r.Context(), tenantID); err != nil {
		h.fail(w, "delete tenant", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (Input, bool) {
	var in Input
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return Input{}, false
	}
	if err := h.validator.Struct(in); err != nil {
		httpx.RespondError(w, err)
		return Input{}, false
	}
	return in, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, httpx.ProblemDetail{Status: http.StatusNotFound, Code: "TENANT_NOT_FOUND", Message: "Tenant not found"})
	case errors.Is(err, httpx.ErrValidation):
		httpx.RespondError(w, err)
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
