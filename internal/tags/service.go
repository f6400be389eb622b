package tags

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/casnet/casnet-backend/internal/platform/httpx"
	"github.com/casnet/casnet-backend/internal/shared"
)

// Service handles tag operations. Authorization happens at the gate before
// any method here runs.
type Service struct {
	repo Repository
}

// NewService builds Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns one page of a tenant's tags.
func (s *Service) List(ctx context.Context, tenantID string, page, size, offset int) (shared.Page[Tag], error) {
	items, total, err := s.repo.List(ctx, tenantID, size, offset)
	if err != nil {
		return shared.Page[Tag]{}, err
	}
	if items == nil {
		items = []Tag{}
	}
	return shared.Page[Tag]{Data: items, Meta: shared.NewPagination(page, size, total)}, nil
}

// Create adds a tag to a tenant.
func (s *Service) Create(ctx context.Context, tenantID string, in CreateInput) (Tag, error) {
	in.Name = cleanName(in.Name)
	if in.Name == "" {
		return Tag{}, fmt.Errorf("%w: tag name required", httpx.ErrValidation)
	}
	return s.repo.Create(ctx, tenantID, in)
}

// Get fetches a tag.
func (s *Service) Get(ctx context.Context, id string) (Tag, error) {
	return s.repo.Get(ctx, id)
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (Tag, error) {
	if in.Name != nil {
		name := cleanName(*in.Name)
		if name == "" {
			return Tag{}, fmt.Errorf("%w: tag name required", httpx.ErrValidation)
		}
		in.Name = &name
	}
	return s.repo.Update(ctx, id, in)
}

// Delete removes a tag.
func (s *Service) Delete(ctx context.Context, id string) (Tag, error) {
	return s.repo.Delete(ctx, id)
}

// cleanName trims and NFC-normalizes a tag name so visually identical names
// compare equal.
func cleanName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}
