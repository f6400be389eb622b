package tenants

import "time"

// Tenant statuses.
const (
	StatusInactive = 0
	StatusActive   = 1
)

// Tenant is an isolated organizational boundary.
type Tenant struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Status      int       `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Input carries the writable tenant fields.
type Input struct {
	Name        string  `json:"name" validate:"required,max=255"`
	Description *string `json:"description"`
	Status      *int    `json:"status" validate:"omitempty,oneof=0 1"`
}
