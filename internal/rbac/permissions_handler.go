package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/casnet/casnet-backend/internal/platform/httpx"
)

// PermissionsHandler lists the closed permission set and the role catalog.
type PermissionsHandler struct {
	logger  *slog.Logger
	service *Service
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, service: service}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.listPermissions)
}

type permissionEntry struct {
	Permission Permission `json:"permission"`
	Category   string     `json:"category"`
}

type permissionsResponse struct {
	Permissions []permissionEntry      `json:"permissions"`
	Roles       map[Role]PermissionSet `json:"roles"`
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	catalog, err := h.service.Catalog().Snapshot(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := permissionsResponse{Roles: make(map[Role]PermissionSet, len(Roles()))}
	for _, p := range Permissions() {
		resp.Permissions = append(resp.Permissions, permissionEntry{Permission: p, Category: p.Category()})
	}
	for _, role := range Roles() {
		set, ok := catalog[role]
		if !ok {
			set = PermissionSet{}
		}
		resp.Roles[role] = set
	}
	httpx.JSON(w, http.StatusOK, resp)
}
