package tenants

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/casnet/casnet-backend/internal/platform/httpx"
	"github.com/casnet/casnet-backend/internal/rbac"
)

// Membership is the slice of the permission engine tenant lifecycle needs.
type Membership interface {
	AssignRole(ctx context.Context, userID, tenantID string, role rbac.Role) (rbac.UserTenantRole, error)
	AccessibleTenants(ctx context.Context, userID string) ([]string, error)
}

// Service handles tenant lifecycle.
type Service struct {
	repo       Repository
	membership Membership
	logger     *slog.Logger
}

// NewService builds Service instance.
func NewService(repo Repository, membership Membership, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, membership: membership, logger: logger}
}

// Create stores the tenant and makes creatorID its OWNER. When the role
// assignment fails the tenant is deleted again so no ownerless tenant remains.
func (s *Service) Create(ctx context.Context, creatorID string, in Input) (Tenant, error) {
	in, err := normalize(in)
	if err != nil {
		return Tenant{}, err
	}
	tenant, err := s.repo.Create(ctx, in)
	if err != nil {
		return Tenant{}, fmt.Errorf("tenants: create: %w", err)
	}
	if _, err := s.membership.AssignRole(ctx, creatorID, tenant.ID, rbac.RoleOwner); err != nil {
		if _, derr := s.repo.Delete(context.WithoutCancel(ctx), tenant.ID); derr != nil {
			s.logger.Error("tenants: rollback create", slog.String("tenant_id", tenant.ID), slog.Any("error", derr))
		}
		return Tenant{}, fmt.Errorf("tenants: assign owner: %w", err)
	}
	return tenant, nil
}

// Get fetches a tenant.
func (s *Service) Get(ctx context.Context, id string) (Tenant, error) {
	return s.repo.Get(ctx, id)
}

// TenantName returns the tenant's display name.
func (s *Service) TenantName(ctx context.Context, id string) (string, error) {
	tenant, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return tenant.Name, nil
}

// ListAccessible returns the tenants where userID holds a role.
func (s *Service) ListAccessible(ctx context.Context, userID string) ([]Tenant, error) {
	ids, err := s.membership.AccessibleTenants(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByIDs(ctx, ids)
}

// Update changes tenant attributes.
func (s *Service) Update(ctx context.Context, id string, in Input) (Tenant, error) {
	in, err := normalize(in)
	if err != nil {
		return Tenant{}, err
	}
	return s.repo.Update(ctx, id, in)
}

// Delete removes the tenant together with every membership and grant.
func (s *Service) Delete(ctx context.Context, id string) error {
	removed, err := s.repo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("tenants: delete: %w", err)
	}
	if !removed {
		return ErrNotFound
	}
	return nil
}

func normalize(in Input) (Input, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return in, fmt.Errorf("%w: tenant name required", httpx.ErrValidation)
	}
	return in, nil
}
