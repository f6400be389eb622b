package tags

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

// ResourceParam is the route parameter naming a tag id.
const ResourceParam = "resourceID"

// Handler exposes tag endpoints.
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

// MountRoutes registers tag routes. Collection routes take the tenant from
// the tenant_id query parameter; item routes resolve it from the tag itself.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.gate.RequirePermission(rbac.PermViewTags, rbac.TenantFromQuery)).Get("/", h.list)
	r.With(h.gate.RequirePermission(rbac.PermCreateTags, rbac.TenantFromQuery)).Post("/", h.create)
	r.With(h.gate.RequireResourcePermission(rbac.PermViewTags, ResourceParam)).Get("/{resourceID}", h.get)
	r.With(h.gate.RequireResourcePermission(rbac.PermEditTags, ResourceParam)).Put("/{resourceID}", h.update)
	r.With(h.gate.RequireResourcePermission(rbac.PermDeleteTags, ResourceParam)).Delete("/{resourceID}", h.delete)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := shared.TenantFromContext(r.Context())
	page, size, offset := shared.PageParams(r)
	result, err := h.service.List(r.Context(), tenantID, page, size, offset)
	if err != nil {
		h.fail(w, r, "list tags", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if !h.decode(w, r, &in) {
		return
	}
	tenantID, _ := shared.TenantFromContext(r.Context())
	tag, err := h.service.Create(r.Context(), tenantID, in)
	if err != nil {
		h.fail(w, r, "create tag", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, tag)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tag, err := h.service.Get(r.Context(), chi.URLParam(r, ResourceParam))
	if err != nil {
		h.fail(w, r, "get tag", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tag)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var in UpdateInput
	if !h.decode(w, r, &in) {
		return
	}
	tag, err := h.service.Update(r.Context(), chi.URLParam(r, ResourceParam), in)
	if err != nil {
		h.fail(w, r, "update tag", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tag)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	tag, err := h.service.Delete(r.Context(), chi.URLParam(r, ResourceParam))
	if err != nil {
		h.fail(w, r, "delete tag", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tag)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, ErrNotFound) {
		httpx.RespondError(w, rbac.ResourceNotFoundError{ResourceType: "Tag", ResourceID: chi.URLParam(r, ResourceParam)})
		return
	}
	if !errors.Is(err, httpx.ErrValidation) && !errors.Is(err, httpx.ErrNotFound) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
