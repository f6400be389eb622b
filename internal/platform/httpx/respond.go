// Package httpx provides HTTP response utilities with structured error bodies.
package httpx

import (
	"encoding/json"
	"net/http"
)

// ProblemDetail is the structured error body. Code is stable and machine-readable;
// Message is meant for humans. The optional fields carry recovery hints.
type ProblemDetail struct {
	Status              int      `json:"status"`
	Code                string   `json:"error_code"`
	Message             string   `json:"message"`
	TenantID            string   `json:"tenant_id,omitempty"`
	UserTenants         []string `json:"user_tenants,omitempty"`
	RequiredPermissions []string `json:"required_permissions,omitempty"`
	ResourceType        string   `json:"resource_type,omitempty"`
	ResourceID          string   `json:"resource_id,omitempty"`
	FieldErrors         []Field  `json:"field_errors,omitempty"`
}

// Field describes a single invalid input field.
type Field struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends a structured error response.
func Problem(w http.ResponseWriter, p ProblemDetail) {
	JSON(w, p.Status, p)
}

// Message sends a {"message": ...} body.
func Message(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"message": message})
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}
