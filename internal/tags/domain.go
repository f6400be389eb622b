package tags

import "time"

// Tag labels tenant-scoped entities.
type Tag struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Color       *string   `json:"color"`
	Category    *string   `json:"category"`
	UsageCount  int       `json:"usage_count"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateInput carries the fields of a new tag.
type CreateInput struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Description *string `json:"description"`
	Color       *string `json:"color" validate:"omitempty,max=7,hexcolor"`
	Category    *string `json:"category" validate:"omitempty,max=50"`
}

// UpdateInput carries a partial update; nil fields are left unchanged.
type UpdateInput struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description"`
	Color       *string `json:"color" validate:"omitempty,max=7,hexcolor"`
	Category    *string `json:"category" validate:"omitempty,max=50"`
	IsActive    *bool   `json:"is_active"`
}
