package tags

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type memoryRepo struct {
	mu   sync.Mutex
	seq  int
	tags map[string]Tag
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{tags: map[string]Tag{}}
}

func (m *memoryRepo) List(_ context.Context, tenantID string, limit, offset int) ([]Tag, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []Tag
	for _, t := range m.tags {
		if t.TenantID == tenantID {
			all = append(all, t)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *memoryRepo) Create(_ context.Context, tenantID string, in CreateInput) (Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	now := time.Now()
	t := Tag{
		ID:          fmt.Sprintf("tag-%03d", m.seq),
		TenantID:    tenantID,
		Name:        in.Name,
		Description: in.Description,
		Color:       in.Color,
		Category:    in.Category,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.tags[t.ID] = t
	return t, nil
}

func (m *memoryRepo) Get(_ context.Context, id string) (Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tags[id]
	if !ok {
		return Tag{}, ErrNotFound
	}
	return t, nil
}

func (m *memoryRepo) Update(_ context.Context, id string, in UpdateInput) (Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tags[id]
	if !ok {
		return Tag{}, ErrNotFound
	}
	if in.Name != nil {
		t.Name = *in.Name
	}
	if in.Description != nil {
		t.Description = in.Description
	}
	if in.Color != nil {
		t.Color = in.Color
	}
	if in.Category != nil {
		t.Category = in.Category
	}
	if in.IsActive != nil {
		t.IsActive = *in.IsActive
	}
	t.UpdatedAt = time.Now()
	m.tags[id] = t
	return t, nil
}

func (m *memoryRepo) Delete(_ context.Context, id string) (Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tags[id]
	if !ok {
		return Tag{}, ErrNotFound
	}
	delete(m.tags, id)
	return t, nil
}

// owner resolves a tag's tenant for the resource registry.
func (m *memoryRepo) owner(_ context.Context, id string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tags[id]
	return t.TenantID, ok, nil
}
