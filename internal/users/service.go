package users

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/casnet/casnet-backend/internal/platform/httpx"
	"github.com/casnet/casnet-backend/internal/rbac"
)

const maxPasswordBytes = 72

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	Create(ctx context.Context, name, passwordHash string) (User, error)
	Get(ctx context.Context, id string) (User, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// AccessReader is the slice of the permission engine the profile needs.
type AccessReader interface {
	AccessibleTenants(ctx context.Context, userID string) ([]string, error)
	RoleInTenant(ctx context.Context, userID, tenantID string) (rbac.Role, bool, error)
	EffectivePermissions(ctx context.Context, userID, tenantID string) (rbac.PermissionSet, error)
}

// Service handles user business logic.
type Service struct {
	repo       RepositoryPort
	access     AccessReader
	bcryptCost int
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, access AccessReader) *Service {
	return &Service{repo: repo, access: access, bcryptCost: bcrypt.DefaultCost}
}

// Register creates an account. The user has no tenant access until a role is
// assigned.
func (s *Service) Register(ctx context.Context, name, password string) (User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return User{}, fmt.Errorf("%w: name required", httpx.ErrValidation)
	}
	// bcrypt limits the input in bytes; validator's max counts runes.
	if len(password) > maxPasswordBytes {
		return User{}, fmt.Errorf("%w: password longer than %d bytes", httpx.ErrValidation, maxPasswordBytes)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}
	return s.repo.Create(ctx, name, string(hash))
}

// Profile returns the user together with the tenants they can access.
func (s *Service) Profile(ctx context.Context, id string) (Profile, error) {
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	tenants, err := s.access.AccessibleTenants(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	profile := Profile{User: user, Tenants: tenants, TenantAccess: make([]TenantAccess, 0, len(tenants))}
	for _, tenantID := range tenants {
		role, ok, err := s.access.RoleInTenant(ctx, id, tenantID)
		if err != nil {
			return Profile{}, err
		}
		if !ok {
			// Revoked between the two reads.
			continue
		}
		effective, err := s.access.EffectivePermissions(ctx, id, tenantID)
		if err != nil {
			return Profile{}, err
		}
		profile.TenantAccess = append(profile.TenantAccess, TenantAccess{
			TenantID:             tenantID,
			Role:                 role,
			EffectivePermissions: effective,
		})
	}
	return profile, nil
}

// Delete removes the account and with it every tenant assignment.
func (s *Service) Delete(ctx context.Context, id string) error {
	removed, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotFound
	}
	return nil
}
